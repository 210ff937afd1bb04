package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/aggregate"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/config"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/hub"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/registry"
)

// --- Shared test doubles ---

// stubEngine reports every active stream online with a fixed count.
type stubEngine struct{}

func (stubEngine) RunCycle(_ context.Context, _ string, streams []domain.Stream) aggregate.CycleResult {
	result := aggregate.CycleResult{
		Snapshot:    domain.Snapshot{Streams: make(map[string]domain.StreamState)},
		Unreachable: make(map[string]bool),
		Missing:     make(map[string]bool),
	}
	for _, st := range streams {
		result.Snapshot.Streams[st.ID] = domain.StreamState{
			ID: st.ID, Label: st.DisplayLabel(), Current: 10, Online: true, Favorite: st.Favorite,
		}
		result.Snapshot.Total += 10
	}
	return result
}

type memoryEventStore struct {
	mu      sync.Mutex
	events  map[string]domain.Event
	streams map[string]domain.Stream
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{events: make(map[string]domain.Event), streams: make(map[string]domain.Stream)}
}

func (s *memoryEventStore) ListActive(context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return out, nil
}

func (s *memoryEventStore) ListStreams(_ context.Context, eventID string) ([]domain.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stream
	for _, st := range s.streams {
		if st.EventID == eventID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *memoryEventStore) InsertEvent(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	return nil
}

func (s *memoryEventStore) UpdateEvent(_ context.Context, ev domain.Event) error {
	return s.InsertEvent(context.Background(), ev)
}

func (s *memoryEventStore) SoftDeleteEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, eventID)
	return nil
}

func (s *memoryEventStore) InsertStream(_ context.Context, st domain.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[st.ID] = st
	return nil
}

func (s *memoryEventStore) UpdateStream(_ context.Context, st domain.Stream) error {
	return s.InsertStream(context.Background(), st)
}

func (s *memoryEventStore) DeleteStream(_ context.Context, _, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamID)
	return nil
}

type memorySampleStore struct {
	mu            sync.Mutex
	totals        map[string][]domain.SamplePoint
	streamSamples map[string][]domain.StreamSamplePoint
}

func newMemorySampleStore() *memorySampleStore {
	return &memorySampleStore{
		totals:        make(map[string][]domain.SamplePoint),
		streamSamples: make(map[string][]domain.StreamSamplePoint),
	}
}

func (s *memorySampleStore) AppendTotal(_ context.Context, eventID string, ts time.Time, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[eventID] = append(s.totals[eventID], domain.SamplePoint{Ts: ts, Total: total})
	return nil
}

func (s *memorySampleStore) AppendStreamSample(_ context.Context, eventID, streamID string, ts time.Time, viewers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSamples[eventID] = append(s.streamSamples[eventID],
		domain.StreamSamplePoint{Ts: ts, StreamID: streamID, Viewers: viewers})
	return nil
}

func (s *memorySampleStore) TotalsSince(_ context.Context, eventID string, since time.Time, limit int) ([]domain.SamplePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SamplePoint
	for _, p := range s.totals[eventID] {
		if !p.Ts.Before(since) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memorySampleStore) TotalsBetween(_ context.Context, eventID string, from, to time.Time, limit int) ([]domain.SamplePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SamplePoint
	for _, p := range s.totals[eventID] {
		if !p.Ts.Before(from) && !p.Ts.After(to) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memorySampleStore) StreamSamplesSince(_ context.Context, eventID string, since time.Time, limit int) ([]domain.StreamSamplePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StreamSamplePoint
	for _, p := range s.streamSamples[eventID] {
		if !p.Ts.Before(since) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memorySampleStore) StreamSamplesBetween(_ context.Context, eventID string, from, to time.Time, limit int) ([]domain.StreamSamplePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StreamSamplePoint
	for _, p := range s.streamSamples[eventID] {
		if !p.Ts.Before(from) && !p.Ts.After(to) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memorySampleStore) StreamSamplesForStream(_ context.Context, eventID, streamID string, since time.Time, limit int) ([]domain.StreamSamplePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StreamSamplePoint
	for _, p := range s.streamSamples[eventID] {
		if p.StreamID == streamID && !p.Ts.Before(since) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubTitles struct {
	titles map[string]string
}

func (s *stubTitles) VideoTitle(_ context.Context, videoID string) (string, error) {
	if title, ok := s.titles[videoID]; ok {
		return title, nil
	}
	return "", domain.ErrTitleNotFound
}

// --- Fixture ---

type serverFixture struct {
	server   *Server
	registry *registry.Registry
	hub      *hub.Hub
	samples  *memorySampleStore
	titles   *stubTitles
	clock    *clockwork.FakeClock

	adminToken  string
	viewerToken string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{
		AppEnv:           "test",
		Port:             "0",
		AuthSecret:       "test-secret",
		AdminPassword:    "admin-pw",
		ClientPassword:   "client-pw",
		HistoryWindow:    time.Hour,
		MaxHistoryWindow: 7 * 24 * time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(time.Now().Truncate(time.Second))
	samples := newMemorySampleStore()
	titles := &stubTitles{titles: map[string]string{"dQw4w9WgXcQ": "Keynote Live"}}

	var reg *registry.Registry
	h := hub.New(domain.SnapshotSourceFunc(func(eventID string) (*domain.Snapshot, error) {
		return reg.Snapshot(eventID)
	}), clock)
	t.Cleanup(h.Stop)

	reg = registry.New(ctx, newMemoryEventStore(), stubEngine{}, h, clock, 5*time.Second)
	t.Cleanup(reg.Stop)

	srv := NewServer(cfg, reg, h, samples, titles, clock)

	f := &serverFixture{
		server:   srv,
		registry: reg,
		hub:      h,
		samples:  samples,
		titles:   titles,
		clock:    clock,
	}

	var err error
	f.adminToken, err = srv.auth.IssueToken(RoleAdmin, time.Hour)
	require.NoError(t, err)
	f.viewerToken, err = srv.auth.IssueToken(RoleViewer, time.Hour)
	require.NoError(t, err)
	return f
}

// request issues a JSON request against the echo handler chain.
func (f *serverFixture) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// createEvent creates an event through the API and drains its first
// snapshot so later assertions see a settled state.
func (f *serverFixture) createEvent(t *testing.T, name string) eventResponse {
	t.Helper()
	rec := f.request(t, http.MethodPost, "/api/events", f.adminToken, eventRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[eventResponse](t, rec)
}

func (f *serverFixture) addStream(t *testing.T, eventID, url, label string) streamResponse {
	t.Helper()
	rec := f.request(t, http.MethodPost, fmt.Sprintf("/api/events/%s/streams", eventID),
		f.adminToken, addStreamRequest{URL: url, Label: label})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[streamResponse](t, rec)
}
