package domain

import (
	"context"
	"sort"
	"time"
)

// --- Model types ---

// Event groups a set of live streams under one poll cadence.
type Event struct {
	ID           string        `db:"id"`
	Name         string        `db:"name"`
	PollInterval time.Duration `db:"poll_interval_ms"`
	Paused       bool          `db:"is_paused"`
	CreatedAt    time.Time     `db:"created_at"`
}

// Stream is one externally tracked video contributing to its event's total.
type Stream struct {
	ID            string     `db:"id"`
	EventID       string     `db:"event_id"`
	VideoID       string     `db:"video_id"`
	Label         string     `db:"label"`
	CustomTitle   string     `db:"custom_title"`
	Favorite      bool       `db:"is_favorite"`
	Paused        bool       `db:"is_paused"`
	Disabled      bool       `db:"is_disabled"`
	FailureCount  int        `db:"failure_count"`
	LastFailureAt *time.Time `db:"last_failure_at"`
}

// Active reports whether the stream takes part in poll cycles.
func (s Stream) Active() bool {
	return !s.Paused && !s.Disabled
}

// DisplayLabel prefers the operator-assigned title over the derived label.
func (s Stream) DisplayLabel() string {
	if s.CustomTitle != "" {
		return s.CustomTitle
	}
	return s.Label
}

// StreamState is the per-stream portion of a Snapshot.
type StreamState struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Current  int    `json:"current"`
	Online   bool   `json:"online"`
	Favorite bool   `json:"favorite"`
}

// Snapshot is the complete aggregate result of one poll cycle.
// Exactly one Snapshot is current per event; it is replaced as a whole,
// never mutated in place.
type Snapshot struct {
	Ts      time.Time              `json:"ts"`
	Total   int                    `json:"total"`
	Streams map[string]StreamState `json:"streams"`
}

// EmptySnapshot is the live state of an event before its first cycle.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Streams: map[string]StreamState{}}
}

// StreamList returns the per-stream states as a slice, favorites first,
// then by label so JSON clients get a stable ordering.
func (s *Snapshot) StreamList() []StreamState {
	out := make([]StreamState, 0, len(s.Streams))
	for _, st := range s.Streams {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SamplePoint is one persisted event-level total.
type SamplePoint struct {
	Ts    time.Time `json:"ts"`
	Total int       `json:"total"`
}

// StreamSamplePoint is one persisted per-stream viewer count.
type StreamSamplePoint struct {
	Ts       time.Time `json:"ts"`
	StreamID string    `json:"stream_id"`
	Viewers  int       `json:"concurrent_viewers"`
}

// ViewerState is the gateway's answer for one video id.
type ViewerState struct {
	Viewers int
	Online  bool
}

// --- Ports ---

// GatewayBatchLimit is the maximum number of video ids per gateway call.
const GatewayBatchLimit = 50

// MetricsGateway wraps the external viewer-count API.
// Callers must not pass more than GatewayBatchLimit ids per call.
// A returned error covers the whole batch and is recoverable.
type MetricsGateway interface {
	CountViewers(ctx context.Context, videoIDs []string) (map[string]ViewerState, error)
}

// SampleStore is durable append-only storage of viewer samples.
type SampleStore interface {
	AppendTotal(ctx context.Context, eventID string, ts time.Time, total int) error
	AppendStreamSample(ctx context.Context, eventID, streamID string, ts time.Time, viewers int) error
	TotalsSince(ctx context.Context, eventID string, since time.Time, limit int) ([]SamplePoint, error)
	TotalsBetween(ctx context.Context, eventID string, from, to time.Time, limit int) ([]SamplePoint, error)
	StreamSamplesSince(ctx context.Context, eventID string, since time.Time, limit int) ([]StreamSamplePoint, error)
	StreamSamplesBetween(ctx context.Context, eventID string, from, to time.Time, limit int) ([]StreamSamplePoint, error)
	StreamSamplesForStream(ctx context.Context, eventID, streamID string, since time.Time, limit int) ([]StreamSamplePoint, error)
}

// EventStore persists the event/stream catalogue across restarts.
// The registry remains the single authority while the process runs.
type EventStore interface {
	ListActive(ctx context.Context) ([]Event, error)
	ListStreams(ctx context.Context, eventID string) ([]Stream, error)
	InsertEvent(ctx context.Context, ev Event) error
	UpdateEvent(ctx context.Context, ev Event) error
	SoftDeleteEvent(ctx context.Context, eventID string) error
	InsertStream(ctx context.Context, st Stream) error
	UpdateStream(ctx context.Context, st Stream) error
	DeleteStream(ctx context.Context, eventID, streamID string) error
}

// TitleResolver looks up the display title of a video.
type TitleResolver interface {
	VideoTitle(ctx context.Context, videoID string) (string, error)
}

// SnapshotSource exposes the current live state of an event.
type SnapshotSource interface {
	Snapshot(eventID string) (*Snapshot, error)
}

// SnapshotSourceFunc adapts a function to the SnapshotSource interface.
type SnapshotSourceFunc func(eventID string) (*Snapshot, error)

func (f SnapshotSourceFunc) Snapshot(eventID string) (*Snapshot, error) { return f(eventID) }
