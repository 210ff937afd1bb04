// Package youtube wraps the YouTube Data API v3.
//
// Client implements domain.MetricsGateway (batched concurrent-viewer
// lookups) and domain.TitleResolver (snippet title lookups). Video id
// extraction and auto-labelling from watch/embed/short URLs live in
// videoid.go.
package youtube
