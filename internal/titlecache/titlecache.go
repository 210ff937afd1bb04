// Package titlecache caches YouTube video titles.
//
// Titles change rarely and every lookup costs API quota, so lookups go
// through a TTL store (Redis when configured, in-memory otherwise) with
// singleflight collapsing concurrent misses for the same video.
package titlecache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/metrics"
)

// TTL is how long a cached title stays fresh.
const TTL = 1 * time.Hour

// Store is a TTL key-value store for titles.
type Store interface {
	Get(ctx context.Context, videoID string) (string, bool)
	Set(ctx context.Context, videoID, title string)
}

// Resolver is a caching domain.TitleResolver.
type Resolver struct {
	upstream domain.TitleResolver
	store    Store
	group    singleflight.Group
}

func NewResolver(upstream domain.TitleResolver, store Store) *Resolver {
	return &Resolver{upstream: upstream, store: store}
}

// VideoTitle returns the cached title, or fetches and caches it.
// Concurrent misses for the same video share one upstream call.
func (r *Resolver) VideoTitle(ctx context.Context, videoID string) (string, error) {
	if title, ok := r.store.Get(ctx, videoID); ok {
		metrics.TitleCacheHits.WithLabelValues("cache").Inc()
		return title, nil
	}

	v, err, _ := r.group.Do(videoID, func() (any, error) {
		title, err := r.upstream.VideoTitle(ctx, videoID)
		if err != nil {
			return "", err
		}
		r.store.Set(ctx, videoID, title)
		return title, nil
	})
	if err != nil {
		return "", err
	}
	metrics.TitleCacheHits.WithLabelValues("api").Inc()
	return v.(string), nil
}
