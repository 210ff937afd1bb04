package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
)

// testClient points a Client at a stub videos.list endpoint.
func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient("test-key")
	c.baseURL = server.URL
	return c
}

func TestCountViewers_ParsesViewerCounts(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "liveStreamingDetails", r.URL.Query().Get("part"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "v1,v2,v3", r.URL.Query().Get("id"))

		fmt.Fprint(w, `{"items":[
			{"id":"v1","liveStreamingDetails":{"concurrentViewers":"100"}},
			{"id":"v2","liveStreamingDetails":{}},
			{"id":"v3"}
		]}`)
	})

	states, err := c.CountViewers(context.Background(), []string{"v1", "v2", "v3"})
	require.NoError(t, err)

	assert.Equal(t, domain.ViewerState{Viewers: 100, Online: true}, states["v1"])
	assert.Equal(t, domain.ViewerState{Viewers: 0, Online: false}, states["v2"])
	assert.Equal(t, domain.ViewerState{Viewers: 0, Online: false}, states["v3"])
}

func TestCountViewers_OmitsMissingIDs(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"id":"v1","liveStreamingDetails":{"concurrentViewers":"7"}}]}`)
	})

	states, err := c.CountViewers(context.Background(), []string{"v1", "gone"})
	require.NoError(t, err)

	assert.Contains(t, states, "v1")
	assert.NotContains(t, states, "gone")
}

func TestCountViewers_RejectsOversizedBatch(t *testing.T) {
	c := NewClient("test-key")

	ids := make([]string, domain.GatewayBatchLimit+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("video%05d", i)
	}

	_, err := c.CountViewers(context.Background(), ids)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds gateway limit")
}

func TestCountViewers_EmptyBatchSkipsRequest(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty batch")
	})

	states, err := c.CountViewers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestCountViewers_HTTPErrorIsRecoverable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403}}`, http.StatusForbidden)
	})

	_, err := c.CountViewers(context.Background(), []string{"v1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestCountViewers_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	for i := 0; i < 10; i++ {
		_, err := c.CountViewers(context.Background(), []string{"v1"})
		require.Error(t, err)
	}

	// Once open, calls fail fast without reaching the server.
	assert.Less(t, calls, 10)
}

func TestVideoTitle(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snippet", r.URL.Query().Get("part"))
		fmt.Fprint(w, `{"items":[{"id":"v1","snippet":{"title":"Launch Day"}}]}`)
	})

	title, err := c.VideoTitle(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "Launch Day", title)
}

func TestVideoTitle_NotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	})

	_, err := c.VideoTitle(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrTitleNotFound)
}

func TestCountViewers_NonNumericCountIsZero(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"id":"v1","liveStreamingDetails":{"concurrentViewers":"`+strings.Repeat("x", 3)+`"}}]}`)
	})

	states, err := c.CountViewers(context.Background(), []string{"v1"})
	require.NoError(t, err)
	assert.Equal(t, 0, states["v1"].Viewers)
	assert.True(t, states["v1"].Online)
}
