package domain

import "time"

// Poll interval bounds enforced at the mutation boundary. Two seconds keeps
// a single event from hammering the external API; ten minutes is the point
// where a "live" total stops being live.
const (
	MinPollInterval = 2 * time.Second
	MaxPollInterval = 600 * time.Second
)
