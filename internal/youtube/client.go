package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/metrics"
)

const (
	requestTimeout = 10 * time.Second

	// The Data API default quota is 10k units/day; videos.list costs 1 unit.
	// 8 req/s with small bursts keeps a misconfigured event set from
	// burning the quota in minutes.
	requestsPerSecond = 8
	requestBurst      = 4
)

// Client calls the YouTube Data API v3. It implements domain.MetricsGateway.
// All calls share a rate limiter and a circuit breaker; a breaker-open
// result surfaces as an ordinary batch error, which callers treat as
// recoverable.
type Client struct {
	apiKey  string
	baseURL string // overridable for tests
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/youtube/v3",
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "youtube",
			Interval: 60 * time.Second,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// videoListResponse is the subset of the videos.list payload we read.
type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet *struct {
			Title string `json:"title"`
		} `json:"snippet"`
		LiveStreamingDetails *struct {
			ConcurrentViewers string `json:"concurrentViewers"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

// CountViewers fetches concurrent-viewer counts for up to
// domain.GatewayBatchLimit video ids in one call. Ids missing from the
// response are simply absent from the returned map; the API omits
// liveStreamingDetails.concurrentViewers for videos that are not live,
// which maps to {0, offline}.
func (c *Client) CountViewers(ctx context.Context, videoIDs []string) (map[string]domain.ViewerState, error) {
	if len(videoIDs) == 0 {
		return map[string]domain.ViewerState{}, nil
	}
	if len(videoIDs) > domain.GatewayBatchLimit {
		return nil, fmt.Errorf("batch of %d exceeds gateway limit of %d", len(videoIDs), domain.GatewayBatchLimit)
	}

	resp, err := c.videosList(ctx, "liveStreamingDetails", videoIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.ViewerState, len(resp.Items))
	for _, item := range resp.Items {
		state := domain.ViewerState{}
		if d := item.LiveStreamingDetails; d != nil && d.ConcurrentViewers != "" {
			// The API reports the count as a decimal string.
			if v, err := strconv.Atoi(d.ConcurrentViewers); err == nil && v > 0 {
				state.Viewers = v
			}
			state.Online = true
		}
		out[item.ID] = state
	}
	return out, nil
}

// VideoTitle fetches the snippet title for one video.
func (c *Client) VideoTitle(ctx context.Context, videoID string) (string, error) {
	resp, err := c.videosList(ctx, "snippet", []string{videoID})
	if err != nil {
		return "", err
	}
	for _, item := range resp.Items {
		if item.ID == videoID && item.Snippet != nil {
			return item.Snippet.Title, nil
		}
	}
	return "", domain.ErrTitleNotFound
}

func (c *Client) videosList(ctx context.Context, part string, videoIDs []string) (*videoListResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		return c.doVideosList(ctx, part, videoIDs)
	})
	metrics.GatewayRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.GatewayRequestsTotal.WithLabelValues("ok").Inc()
	return result.(*videoListResponse), nil
}

func (c *Client) doVideosList(ctx context.Context, part string, videoIDs []string) (*videoListResponse, error) {
	q := url.Values{}
	q.Set("part", part)
	q.Set("id", strings.Join(videoIDs, ","))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build videos.list request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("videos.list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("videos.list returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed videoListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode videos.list response: %w", err)
	}
	return &parsed, nil
}
