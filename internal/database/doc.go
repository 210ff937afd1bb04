// Package database implements the PostgreSQL repositories.
//
// SampleRepo is the append-only time-series store (samples and
// stream_samples); EventRepo persists the event/stream catalogue for
// restarts. Migrations are idempotent statements applied at startup.
package database
