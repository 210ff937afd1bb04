// Package domain defines the core domain types and interfaces.
//
// Model types (Event, Stream, Snapshot, samples) plus the ports the rest of
// the service depends on: MetricsGateway, SampleStore, EventStore. No
// implementation code - just contracts. Keeping the interfaces here on the
// consumer side prevents circular imports.
package domain
