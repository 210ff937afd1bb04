// Package registry is the in-memory authority over events and their
// streams. It owns one poller and one live snapshot per event and
// writes every catalogue change through to durable storage.
package registry

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/aggregate"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/metrics"
)

// maxStreamFailures is how many consecutive cycles a stream may go
// unreported before it is disabled automatically.
const maxStreamFailures = 3

// CycleRunner runs one poll cycle for an event.
type CycleRunner interface {
	RunCycle(ctx context.Context, eventID string, streams []domain.Stream) aggregate.CycleResult
}

// Publisher receives finished snapshots for fan-out to subscribers.
type Publisher interface {
	Publish(eventID string, snapshot *domain.Snapshot)
	CloseEvent(eventID string)
}

type eventEntry struct {
	event    domain.Event
	streams  map[string]domain.Stream
	snapshot atomic.Pointer[domain.Snapshot]
	poller   *poller

	// busy guards against overlapping cycles. It belongs to the entry,
	// not the poller, so a cycle started before an interval change
	// still blocks the first fire after it.
	busy atomic.Bool
}

// Registry coordinates events, pollers, snapshots, and persistence.
type Registry struct {
	store           domain.EventStore
	engine          CycleRunner
	publisher       Publisher
	clock           clockwork.Clock
	defaultInterval time.Duration
	logger          *slog.Logger

	ctx context.Context

	mu     sync.Mutex
	events map[string]*eventEntry
}

func New(ctx context.Context, store domain.EventStore, engine CycleRunner, publisher Publisher, clock clockwork.Clock, defaultInterval time.Duration) *Registry {
	return &Registry{
		store:           store,
		engine:          engine,
		publisher:       publisher,
		clock:           clock,
		defaultInterval: defaultInterval,
		logger:          slog.With("component", "registry"),
		ctx:             ctx,
		events:          make(map[string]*eventEntry),
	}
}

// Bootstrap loads the persisted catalogue and starts pollers for every
// active event. Called once at startup, before the HTTP server accepts
// requests.
func (r *Registry) Bootstrap(ctx context.Context) error {
	events, err := r.store.ListActive(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range events {
		streams, err := r.store.ListStreams(ctx, ev.ID)
		if err != nil {
			return err
		}
		entry := &eventEntry{event: ev, streams: make(map[string]domain.Stream, len(streams))}
		for _, st := range streams {
			entry.streams[st.ID] = st
		}
		entry.snapshot.Store(domain.EmptySnapshot())
		r.events[ev.ID] = entry
		if !ev.Paused {
			r.startPollerLocked(entry)
		}
		r.logger.Info("event restored", "event_id", ev.ID, "name", ev.Name,
			"streams", len(streams), "paused", ev.Paused)
	}

	metrics.ActiveEvents.Set(float64(len(r.events)))
	return nil
}

// Stop halts all pollers. Snapshots stay readable until shutdown.
func (r *Registry) Stop() {
	r.mu.Lock()
	pollers := make([]*poller, 0, len(r.events))
	for _, entry := range r.events {
		if entry.poller != nil {
			pollers = append(pollers, entry.poller)
			entry.poller = nil
		}
	}
	r.mu.Unlock()

	for _, p := range pollers {
		p.stop()
	}
}

// --- Event operations ---

func (r *Registry) CreateEvent(ctx context.Context, name string, interval time.Duration) (domain.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Event{}, domain.ErrInvalidEventName
	}
	if interval == 0 {
		interval = r.defaultInterval
	}
	if interval < domain.MinPollInterval || interval > domain.MaxPollInterval {
		return domain.Event{}, domain.ErrInvalidInterval
	}

	ev := domain.Event{
		ID:           uuid.NewString(),
		Name:         name,
		PollInterval: interval,
		CreatedAt:    r.clock.Now(),
	}
	if err := r.store.InsertEvent(ctx, ev); err != nil {
		return domain.Event{}, err
	}

	r.mu.Lock()
	entry := &eventEntry{event: ev, streams: make(map[string]domain.Stream)}
	entry.snapshot.Store(domain.EmptySnapshot())
	r.events[ev.ID] = entry
	r.startPollerLocked(entry)
	metrics.ActiveEvents.Set(float64(len(r.events)))
	r.mu.Unlock()

	r.logger.Info("event created", "event_id", ev.ID, "name", ev.Name, "interval", interval)
	return ev, nil
}

func (r *Registry) UpdateEvent(ctx context.Context, eventID, name string, interval time.Duration) (domain.Event, error) {
	r.mu.Lock()

	entry, ok := r.events[eventID]
	if !ok {
		r.mu.Unlock()
		return domain.Event{}, domain.ErrEventNotFound
	}

	ev := entry.event
	if name = strings.TrimSpace(name); name != "" {
		ev.Name = name
	}
	intervalChanged := false
	if interval != 0 && interval != ev.PollInterval {
		if interval < domain.MinPollInterval || interval > domain.MaxPollInterval {
			r.mu.Unlock()
			return domain.Event{}, domain.ErrInvalidInterval
		}
		ev.PollInterval = interval
		intervalChanged = true
	}

	if err := r.store.UpdateEvent(ctx, ev); err != nil {
		r.mu.Unlock()
		return domain.Event{}, err
	}
	entry.event = ev
	var p *poller
	if intervalChanged {
		p = entry.poller
	}
	r.mu.Unlock()

	// Reconfigure outside the registry lock; the tick loop's fire
	// callback takes that lock.
	if p != nil {
		p.reconfigure(ev.PollInterval)
	}
	return ev, nil
}

// DeleteEvent soft-deletes the event, stops its poller, and tells the
// publisher to drop its subscribers. History rows stay in place.
func (r *Registry) DeleteEvent(ctx context.Context, eventID string) error {
	r.mu.Lock()
	entry, ok := r.events[eventID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrEventNotFound
	}
	delete(r.events, eventID)
	metrics.ActiveEvents.Set(float64(len(r.events)))
	p := entry.poller
	entry.poller = nil
	r.mu.Unlock()

	if p != nil {
		p.stop()
	}
	if err := r.store.SoftDeleteEvent(ctx, eventID); err != nil {
		return err
	}
	r.publisher.CloseEvent(eventID)
	r.logger.Info("event deleted", "event_id", eventID)
	return nil
}

func (r *Registry) PauseEvent(ctx context.Context, eventID string) error {
	return r.setEventPaused(ctx, eventID, true)
}

func (r *Registry) ResumeEvent(ctx context.Context, eventID string) error {
	return r.setEventPaused(ctx, eventID, false)
}

func (r *Registry) setEventPaused(ctx context.Context, eventID string, paused bool) error {
	r.mu.Lock()
	entry, ok := r.events[eventID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrEventNotFound
	}
	if entry.event.Paused == paused {
		r.mu.Unlock()
		return nil
	}
	ev := entry.event
	ev.Paused = paused
	if err := r.store.UpdateEvent(ctx, ev); err != nil {
		r.mu.Unlock()
		return err
	}
	entry.event = ev

	var stopped *poller
	if paused {
		stopped = entry.poller
		entry.poller = nil
	} else {
		r.startPollerLocked(entry)
	}
	r.mu.Unlock()

	if stopped != nil {
		stopped.stop()
	}
	r.logger.Info("event pause state changed", "event_id", eventID, "paused", paused)
	return nil
}

func (r *Registry) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Event, 0, len(r.events))
	for _, entry := range r.events {
		out = append(out, entry.event)
	}
	sortEvents(out)
	return out
}

func (r *Registry) Event(eventID string) (domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return entry.event, nil
}

// Snapshot returns the current live state of the event. Before the
// first completed cycle this is the empty snapshot.
func (r *Registry) Snapshot(eventID string) (*domain.Snapshot, error) {
	r.mu.Lock()
	entry, ok := r.events[eventID]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return entry.snapshot.Load(), nil
}

// --- Stream operations ---

func (r *Registry) AddStream(ctx context.Context, eventID, videoID, label string) (domain.Stream, error) {
	st := domain.Stream{
		ID:      uuid.NewString(),
		EventID: eventID,
		VideoID: videoID,
		Label:   label,
	}

	r.mu.Lock()
	entry, ok := r.events[eventID]
	if !ok {
		r.mu.Unlock()
		return domain.Stream{}, domain.ErrEventNotFound
	}
	if err := r.store.InsertStream(ctx, st); err != nil {
		r.mu.Unlock()
		return domain.Stream{}, err
	}
	entry.streams[st.ID] = st
	snap := r.refreshSnapshotLocked(entry)
	r.mu.Unlock()

	r.publisher.Publish(eventID, snap)
	r.logger.Info("stream added", "event_id", eventID, "stream_id", st.ID, "video_id", videoID)
	return st, nil
}

func (r *Registry) UpdateStream(ctx context.Context, eventID, streamID string, mutate func(*domain.Stream)) (domain.Stream, error) {
	r.mu.Lock()

	entry, ok := r.events[eventID]
	if !ok {
		r.mu.Unlock()
		return domain.Stream{}, domain.ErrEventNotFound
	}
	st, ok := entry.streams[streamID]
	if !ok {
		r.mu.Unlock()
		return domain.Stream{}, domain.ErrStreamNotFound
	}

	mutate(&st)
	st.ID, st.EventID = streamID, eventID

	if err := r.store.UpdateStream(ctx, st); err != nil {
		r.mu.Unlock()
		return domain.Stream{}, err
	}
	entry.streams[streamID] = st
	snap := r.refreshSnapshotLocked(entry)
	r.mu.Unlock()

	r.publisher.Publish(eventID, snap)
	return st, nil
}

// RemoveStream deletes the stream and drops it from the live snapshot
// in the same step, so subscribers never see a deleted stream tick.
func (r *Registry) RemoveStream(ctx context.Context, eventID, streamID string) error {
	r.mu.Lock()

	entry, ok := r.events[eventID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrEventNotFound
	}
	if _, ok := entry.streams[streamID]; !ok {
		r.mu.Unlock()
		return domain.ErrStreamNotFound
	}
	if err := r.store.DeleteStream(ctx, eventID, streamID); err != nil {
		r.mu.Unlock()
		return err
	}
	delete(entry.streams, streamID)
	snap := r.refreshSnapshotLocked(entry)
	r.mu.Unlock()

	r.publisher.Publish(eventID, snap)
	r.logger.Info("stream removed", "event_id", eventID, "stream_id", streamID)
	return nil
}

func (r *Registry) SetStreamPaused(ctx context.Context, eventID, streamID string, paused bool) (domain.Stream, error) {
	return r.UpdateStream(ctx, eventID, streamID, func(st *domain.Stream) {
		st.Paused = paused
	})
}

func (r *Registry) SetStreamFavorite(ctx context.Context, eventID, streamID string, favorite bool) (domain.Stream, error) {
	return r.UpdateStream(ctx, eventID, streamID, func(st *domain.Stream) {
		st.Favorite = favorite
	})
}

// ReactivateStream clears the failure state of an auto-disabled stream
// so it rejoins the next poll cycle.
func (r *Registry) ReactivateStream(ctx context.Context, eventID, streamID string) (domain.Stream, error) {
	return r.UpdateStream(ctx, eventID, streamID, func(st *domain.Stream) {
		st.Disabled = false
		st.FailureCount = 0
		st.LastFailureAt = nil
	})
}

func (r *Registry) Streams(eventID string) ([]domain.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.events[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	out := make([]domain.Stream, 0, len(entry.streams))
	for _, st := range entry.streams {
		out = append(out, st)
	}
	sortStreams(out)
	return out, nil
}

// --- Poll cycle ---

func (r *Registry) startPollerLocked(entry *eventEntry) {
	p := newPoller(entry.event.ID, r.clock, r.fire)
	entry.poller = p
	p.start(r.ctx, entry.event.PollInterval)
}

// fire is the poller callback. The cycle runs on its own goroutine so
// a slow gateway never blocks the tick loop; the busy flag drops ticks
// that arrive while a cycle is still running.
func (r *Registry) fire(ctx context.Context, eventID string) {
	r.mu.Lock()
	entry, ok := r.events[eventID]
	pollable := false
	if ok {
		for _, st := range entry.streams {
			if st.Active() {
				pollable = true
				break
			}
		}
	}
	r.mu.Unlock()
	if !ok || !pollable {
		return
	}
	if !entry.busy.CompareAndSwap(false, true) {
		metrics.PollCyclesSkipped.Inc()
		r.logger.Warn("poll cycle skipped, previous still running", "event_id", eventID)
		return
	}
	go func() {
		snapshot := r.runCycle(ctx, entry)
		// Release before publishing so a subscriber that is slow to
		// drain cannot starve the next cycle into being skipped.
		entry.busy.Store(false)
		if snapshot != nil {
			r.publisher.Publish(eventID, snapshot)
		}
	}()
}

// runCycle snapshots the active stream list, runs the engine against
// it, and applies the outcome. A cycle with nothing to poll ends here
// with no writes and no broadcast.
func (r *Registry) runCycle(ctx context.Context, entry *eventEntry) *domain.Snapshot {
	eventID := entry.event.ID

	r.mu.Lock()
	active := make([]domain.Stream, 0, len(entry.streams))
	for _, st := range entry.streams {
		if st.Active() {
			active = append(active, st)
		}
	}
	r.mu.Unlock()
	if len(active) == 0 {
		return nil
	}
	sortStreams(active)

	result := r.engine.RunCycle(ctx, eventID, active)

	dirty := r.applyCycleOutcome(entry, result)
	for _, st := range dirty {
		if err := r.store.UpdateStream(ctx, st); err != nil {
			r.logger.Error("stream state persist failed",
				"event_id", eventID, "stream_id", st.ID, "error", err)
		}
	}

	entry.snapshot.Store(&result.Snapshot)
	return &result.Snapshot
}

// applyCycleOutcome updates failure counters from the cycle result and
// returns the streams whose persisted state changed. Streams missing
// from a healthy gateway response accumulate failures and are disabled
// at the threshold; a reported stream resets its counter.
func (r *Registry) applyCycleOutcome(entry *eventEntry, result aggregate.CycleResult) []domain.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dirty []domain.Stream
	now := r.clock.Now()

	for id, st := range entry.streams {
		if _, polled := result.Snapshot.Streams[id]; !polled {
			continue
		}
		switch {
		case result.Missing[id]:
			st.FailureCount++
			st.LastFailureAt = &now
			if st.FailureCount >= maxStreamFailures {
				st.Disabled = true
				r.logger.Warn("stream disabled after repeated failures",
					"event_id", entry.event.ID, "stream_id", id, "failures", st.FailureCount)
			}
		case result.Unreachable[id]:
			continue
		default:
			if st.FailureCount == 0 {
				continue
			}
			st.FailureCount = 0
			st.LastFailureAt = nil
		}
		entry.streams[id] = st
		dirty = append(dirty, st)
	}
	return dirty
}

// refreshSnapshotLocked rewrites the live snapshot after a catalogue
// change: removed or inactive streams disappear at once, new streams
// show up offline until their first cycle, and the total is recomputed
// from what remains. Callers hold r.mu and publish the returned
// snapshot after releasing it.
func (r *Registry) refreshSnapshotLocked(entry *eventEntry) *domain.Snapshot {
	old := entry.snapshot.Load()
	next := &domain.Snapshot{
		Ts:      old.Ts,
		Streams: make(map[string]domain.StreamState, len(entry.streams)),
	}
	for id, st := range entry.streams {
		if !st.Active() {
			continue
		}
		state := domain.StreamState{ID: id, Label: st.DisplayLabel(), Favorite: st.Favorite}
		if prev, ok := old.Streams[id]; ok {
			state.Current = prev.Current
			state.Online = prev.Online
		}
		if state.Online {
			next.Total += state.Current
		}
		next.Streams[id] = state
	}
	entry.snapshot.Store(next)
	return next
}

func sortEvents(events []domain.Event) {
	slices.SortFunc(events, func(a, b domain.Event) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortStreams(streams []domain.Stream) {
	slices.SortFunc(streams, func(a, b domain.Stream) int {
		if c := strings.Compare(a.Label, b.Label); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
