package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
)

type fakeGateway struct {
	mu      sync.Mutex
	batches [][]string
	states  map[string]domain.ViewerState
	failOn  map[string]bool
}

func (g *fakeGateway) CountViewers(_ context.Context, videoIDs []string) (map[string]domain.ViewerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batches = append(g.batches, videoIDs)
	out := make(map[string]domain.ViewerState)
	for _, id := range videoIDs {
		if g.failOn[id] {
			return nil, errors.New("gateway unavailable")
		}
		if state, ok := g.states[id]; ok {
			out[id] = state
		}
	}
	return out, nil
}

type recordingStore struct {
	domain.SampleStore
	mu            sync.Mutex
	totals        []domain.SamplePoint
	streamSamples []domain.StreamSamplePoint
	failWrites    bool
}

func (s *recordingStore) AppendTotal(_ context.Context, _ string, ts time.Time, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errors.New("db down")
	}
	s.totals = append(s.totals, domain.SamplePoint{Ts: ts, Total: total})
	return nil
}

func (s *recordingStore) AppendStreamSample(_ context.Context, _, streamID string, ts time.Time, viewers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errors.New("db down")
	}
	s.streamSamples = append(s.streamSamples, domain.StreamSamplePoint{Ts: ts, StreamID: streamID, Viewers: viewers})
	return nil
}

func makeStream(id, videoID string) domain.Stream {
	return domain.Stream{ID: id, EventID: "ev1", VideoID: videoID, Label: "Stream " + id}
}

func TestRunCycleAggregatesOnlineStreams(t *testing.T) {
	gateway := &fakeGateway{states: map[string]domain.ViewerState{
		"vid00000001": {Viewers: 120, Online: true},
		"vid00000002": {Viewers: 80, Online: true},
		"vid00000003": {Viewers: 0, Online: false},
	}}
	store := &recordingStore{}
	engine := NewEngine(gateway, store, clockwork.NewFakeClock())

	result := engine.RunCycle(context.Background(), "ev1", []domain.Stream{
		makeStream("s1", "vid00000001"),
		makeStream("s2", "vid00000002"),
		makeStream("s3", "vid00000003"),
	})

	assert.Equal(t, 200, result.Snapshot.Total)
	require.Len(t, result.Snapshot.Streams, 3)
	assert.True(t, result.Snapshot.Streams["s1"].Online)
	assert.Equal(t, 120, result.Snapshot.Streams["s1"].Current)
	assert.False(t, result.Snapshot.Streams["s3"].Online)
	assert.Empty(t, result.Unreachable)
	assert.Empty(t, result.Missing)

	require.Len(t, store.totals, 1)
	assert.Equal(t, 200, store.totals[0].Total)
	assert.Len(t, store.streamSamples, 3)
}

func TestRunCycleBatchesAtGatewayLimit(t *testing.T) {
	gateway := &fakeGateway{states: map[string]domain.ViewerState{}}
	store := &recordingStore{}
	engine := NewEngine(gateway, store, clockwork.NewFakeClock())

	streams := make([]domain.Stream, 0, 73)
	for i := 0; i < 73; i++ {
		streams = append(streams, makeStream(fmt.Sprintf("s%03d", i), fmt.Sprintf("vid%08d", i)))
	}

	engine.RunCycle(context.Background(), "ev1", streams)

	require.Len(t, gateway.batches, 2)
	assert.Len(t, gateway.batches[0], 50)
	assert.Len(t, gateway.batches[1], 23)
}

func TestRunCycleDeduplicatesVideoIDs(t *testing.T) {
	gateway := &fakeGateway{states: map[string]domain.ViewerState{
		"vid00000001": {Viewers: 50, Online: true},
	}}
	store := &recordingStore{}
	engine := NewEngine(gateway, store, clockwork.NewFakeClock())

	result := engine.RunCycle(context.Background(), "ev1", []domain.Stream{
		makeStream("s1", "vid00000001"),
		makeStream("s2", "vid00000001"),
	})

	require.Len(t, gateway.batches, 1)
	assert.Len(t, gateway.batches[0], 1)
	// Both streams count the shared video.
	assert.Equal(t, 100, result.Snapshot.Total)
	assert.Len(t, store.streamSamples, 2)
}

func TestRunCycleToleratesBatchFailure(t *testing.T) {
	gateway := &fakeGateway{
		states: map[string]domain.ViewerState{},
		failOn: map[string]bool{"vid00000000": true},
	}
	for i := 50; i < 60; i++ {
		gateway.states[fmt.Sprintf("vid%08d", i)] = domain.ViewerState{Viewers: 10, Online: true}
	}
	store := &recordingStore{}
	engine := NewEngine(gateway, store, clockwork.NewFakeClock())

	streams := make([]domain.Stream, 0, 60)
	for i := 0; i < 60; i++ {
		streams = append(streams, makeStream(fmt.Sprintf("s%03d", i), fmt.Sprintf("vid%08d", i)))
	}

	result := engine.RunCycle(context.Background(), "ev1", streams)

	// The second batch survives the first one failing.
	assert.Equal(t, 100, result.Snapshot.Total)
	assert.Len(t, result.Unreachable, 50)
	assert.Empty(t, result.Missing)

	// Every stream still appears in the snapshot, failed ones offline.
	require.Len(t, result.Snapshot.Streams, 60)
	assert.False(t, result.Snapshot.Streams["s000"].Online)
	assert.Zero(t, result.Snapshot.Streams["s000"].Current)

	// Samples only for streams the gateway actually answered for.
	assert.Len(t, store.streamSamples, 10)
	require.Len(t, store.totals, 1)
	assert.Equal(t, 100, store.totals[0].Total)
}

func TestRunCycleMarksMissingStreams(t *testing.T) {
	gateway := &fakeGateway{states: map[string]domain.ViewerState{
		"vid00000001": {Viewers: 30, Online: true},
	}}
	store := &recordingStore{}
	engine := NewEngine(gateway, store, clockwork.NewFakeClock())

	result := engine.RunCycle(context.Background(), "ev1", []domain.Stream{
		makeStream("s1", "vid00000001"),
		makeStream("s2", "vidGone0000"),
	})

	assert.True(t, result.Missing["s2"])
	assert.False(t, result.Missing["s1"])
	assert.False(t, result.Snapshot.Streams["s2"].Online)
	assert.Len(t, store.streamSamples, 1)
}

func TestRunCycleSurvivesSampleWriteFailure(t *testing.T) {
	gateway := &fakeGateway{states: map[string]domain.ViewerState{
		"vid00000001": {Viewers: 42, Online: true},
	}}
	store := &recordingStore{failWrites: true}
	engine := NewEngine(gateway, store, clockwork.NewFakeClock())

	result := engine.RunCycle(context.Background(), "ev1", []domain.Stream{
		makeStream("s1", "vid00000001"),
	})

	assert.Equal(t, 42, result.Snapshot.Total)
	assert.True(t, result.Snapshot.Streams["s1"].Online)
}

func TestRunCycleEmptyEvent(t *testing.T) {
	gateway := &fakeGateway{states: map[string]domain.ViewerState{}}
	store := &recordingStore{}
	engine := NewEngine(gateway, store, clockwork.NewFakeClock())

	result := engine.RunCycle(context.Background(), "ev1", nil)

	// Nothing to poll means no gateway calls and no writes at all.
	assert.Zero(t, result.Snapshot.Total)
	assert.Empty(t, result.Snapshot.Streams)
	assert.Empty(t, gateway.batches)
	assert.Empty(t, store.totals)
	assert.Empty(t, store.streamSamples)
}

func TestRunCycleUsesCustomTitleAsLabel(t *testing.T) {
	gateway := &fakeGateway{states: map[string]domain.ViewerState{
		"vid00000001": {Viewers: 5, Online: true},
	}}
	engine := NewEngine(gateway, &recordingStore{}, clockwork.NewFakeClock())

	stream := makeStream("s1", "vid00000001")
	stream.CustomTitle = "Main Stage"

	result := engine.RunCycle(context.Background(), "ev1", []domain.Stream{stream})

	assert.Equal(t, "Main Stage", result.Snapshot.Streams["s1"].Label)
}
