package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
)

func seedHistory(t *testing.T, f *serverFixture, eventID string) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i-4) * time.Minute)
		require.NoError(t, f.samples.AppendTotal(ctx, eventID, ts, 100+i))
		require.NoError(t, f.samples.AppendStreamSample(ctx, eventID, "s1", ts, 60+i))
		require.NoError(t, f.samples.AppendStreamSample(ctx, eventID, "s2", ts, 40))
	}
	// A sample far outside any test window.
	require.NoError(t, f.samples.AppendTotal(ctx, eventID, now.Add(-48*time.Hour), 9999))
}

type historyResponse struct {
	Samples []domain.SamplePoint `json:"samples"`
}

type streamHistoryResponse struct {
	Samples []domain.StreamSamplePoint `json:"samples"`
}

func TestEventHistoryWindow(t *testing.T) {
	f := newServerFixture(t)
	ev := f.createEvent(t, "Launch")
	seedHistory(t, f, ev.ID)

	rec := f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/history", f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[historyResponse](t, rec)
	require.Len(t, resp.Samples, 5)
	assert.Equal(t, 100, resp.Samples[0].Total)

	// A two minute window keeps only the most recent samples.
	rec = f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/history?minutes=2", f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[historyResponse](t, rec).Samples, 3)
}

func TestEventHistoryExplicitRange(t *testing.T) {
	f := newServerFixture(t)
	ev := f.createEvent(t, "Launch")
	seedHistory(t, f, ev.ID)

	from := f.clock.Now().Add(-3 * time.Minute).UTC().Format(time.RFC3339)
	to := f.clock.Now().Add(-1 * time.Minute).UTC().Format(time.RFC3339)
	url := fmt.Sprintf("/api/events/%s/history?from=%s&to=%s", ev.ID, from, to)

	rec := f.request(t, http.MethodGet, url, f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[historyResponse](t, rec).Samples, 3)
}

func TestEventHistoryValidation(t *testing.T) {
	f := newServerFixture(t)
	ev := f.createEvent(t, "Launch")

	rec := f.request(t, http.MethodGet, "/api/events/nope/history", f.viewerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/history?minutes=abc", f.viewerToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/history?from=2026-01-01T00:00:00Z", f.viewerToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodGet,
		"/api/events/"+ev.ID+"/history?from=2026-01-02T00:00:00Z&to=2026-01-01T00:00:00Z", f.viewerToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/history?limit=-1", f.viewerToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamHistory(t *testing.T) {
	f := newServerFixture(t)
	ev := f.createEvent(t, "Launch")
	seedHistory(t, f, ev.ID)

	rec := f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/history/streams", f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[streamHistoryResponse](t, rec).Samples, 10)

	rec = f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/history/streams?streamId=s1", f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[streamHistoryResponse](t, rec)
	require.Len(t, resp.Samples, 5)
	for _, sample := range resp.Samples {
		assert.Equal(t, "s1", sample.StreamID)
	}
}

func TestExportTotalsCSV(t *testing.T) {
	f := newServerFixture(t)
	ev := f.createEvent(t, "Launch")
	seedHistory(t, f, ev.ID)

	rec := f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/export.csv", f.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "ts,total", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",100"))
}

func TestExportStreamsCSV(t *testing.T) {
	f := newServerFixture(t)
	ev := f.createEvent(t, "Launch")
	seedHistory(t, f, ev.ID)

	rec := f.request(t, http.MethodGet, "/api/events/"+ev.ID+"/export-streams.csv", f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "ts,stream_id,label,concurrent_viewers", lines[0])
	assert.Contains(t, lines[1], "s1")
}
