// Package aggregate turns raw gateway readings into event snapshots.
package aggregate

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/metrics"
)

// CycleResult is the outcome of one poll cycle.
type CycleResult struct {
	Snapshot domain.Snapshot

	// Unreachable holds stream IDs whose gateway batch failed. These
	// are transient faults and do not count against the stream.
	Unreachable map[string]bool

	// Missing holds stream IDs that a successful gateway response did
	// not mention. The video is gone or was never live, which counts
	// toward automatic stream disabling.
	Missing map[string]bool
}

// Engine runs poll cycles: it batches gateway lookups, builds the
// snapshot, and persists samples.
type Engine struct {
	gateway domain.MetricsGateway
	samples domain.SampleStore
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewEngine(gateway domain.MetricsGateway, samples domain.SampleStore, clock clockwork.Clock) *Engine {
	return &Engine{
		gateway: gateway,
		samples: samples,
		clock:   clock,
		logger:  slog.With("component", "aggregate"),
	}
}

// RunCycle polls the gateway for every stream and returns the new
// snapshot. Batch failures degrade the affected streams to offline
// instead of failing the cycle. Sample writes are best effort; a
// storage error never loses the snapshot. An empty stream list ends
// the cycle immediately with no gateway calls and no writes.
func (e *Engine) RunCycle(ctx context.Context, eventID string, streams []domain.Stream) CycleResult {
	started := e.clock.Now()

	if len(streams) == 0 {
		return CycleResult{
			Snapshot:    domain.Snapshot{Ts: started, Streams: map[string]domain.StreamState{}},
			Unreachable: map[string]bool{},
			Missing:     map[string]bool{},
		}
	}

	states, failedVideos := e.collect(ctx, eventID, streams)

	result := CycleResult{
		Snapshot: domain.Snapshot{
			Ts:      started,
			Streams: make(map[string]domain.StreamState, len(streams)),
		},
		Unreachable: make(map[string]bool),
		Missing:     make(map[string]bool),
	}

	var total int
	for _, stream := range streams {
		state := domain.StreamState{
			ID:       stream.ID,
			Label:    stream.DisplayLabel(),
			Favorite: stream.Favorite,
		}
		if viewer, ok := states[stream.VideoID]; ok {
			state.Current = viewer.Viewers
			state.Online = viewer.Online
		} else if failedVideos[stream.VideoID] {
			result.Unreachable[stream.ID] = true
		} else {
			result.Missing[stream.ID] = true
		}
		if state.Online {
			total += state.Current
		}
		result.Snapshot.Streams[stream.ID] = state
	}
	result.Snapshot.Total = total

	e.persist(ctx, eventID, started, result.Snapshot, states, streams)

	outcome := "ok"
	if len(failedVideos) > 0 {
		outcome = "partial"
		if len(states) == 0 && len(streams) > 0 {
			outcome = "failed"
		}
	}
	metrics.PollCyclesTotal.WithLabelValues(outcome).Inc()
	metrics.PollCycleDuration.Observe(e.clock.Since(started).Seconds())

	return result
}

// collect fetches viewer states for all distinct video IDs in batches.
// A failed batch is logged and its videos recorded as failed; the
// remaining batches still go through.
func (e *Engine) collect(ctx context.Context, eventID string, streams []domain.Stream) (map[string]domain.ViewerState, map[string]bool) {
	videoIDs := make([]string, 0, len(streams))
	seen := make(map[string]bool, len(streams))
	for _, stream := range streams {
		if !seen[stream.VideoID] {
			seen[stream.VideoID] = true
			videoIDs = append(videoIDs, stream.VideoID)
		}
	}

	states := make(map[string]domain.ViewerState, len(videoIDs))
	failed := make(map[string]bool)

	for start := 0; start < len(videoIDs); start += domain.GatewayBatchLimit {
		end := min(start+domain.GatewayBatchLimit, len(videoIDs))
		batch := videoIDs[start:end]

		batchStates, err := e.gateway.CountViewers(ctx, batch)
		if err != nil {
			e.logger.Warn("gateway batch failed",
				"event_id", eventID, "batch_size", len(batch), "error", err)
			for _, id := range batch {
				failed[id] = true
			}
			continue
		}
		for id, state := range batchStates {
			states[id] = state
		}
	}

	return states, failed
}

// persist writes the event total and one sample per stream that the
// gateway actually reported on this cycle.
func (e *Engine) persist(ctx context.Context, eventID string, ts time.Time, snapshot domain.Snapshot, states map[string]domain.ViewerState, streams []domain.Stream) {
	if err := e.samples.AppendTotal(ctx, eventID, ts, snapshot.Total); err != nil {
		metrics.SampleWriteErrors.Inc()
		e.logger.Error("event sample write failed", "event_id", eventID, "error", err)
	}

	for _, stream := range streams {
		viewer, ok := states[stream.VideoID]
		if !ok {
			continue
		}
		if err := e.samples.AppendStreamSample(ctx, eventID, stream.ID, ts, viewer.Viewers); err != nil {
			metrics.SampleWriteErrors.Inc()
			e.logger.Error("stream sample write failed",
				"event_id", eventID, "stream_id", stream.ID, "error", err)
		}
	}
}
