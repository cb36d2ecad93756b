// Package service implements the topology mapper and the queries served on
// top of it.
//
// # Mapper
//
// Mapper is the reactor. A single goroutine (Run) owns the node registry,
// the graph and the sweep cursor, and multiplexes three inputs: report
// datagrams, a fast tick and a slow tick. The fast tick refreshes gauges. The
// slow tick advances the sweep by one probe. Each handler runs to completion
// before the next input is taken, so none of the state is locked. Other
// goroutines reach the mapper only through Snapshot and Reload.
//
// # Event System
//
// The mapper publishes events on an EventBus: nodes registered, probes sent,
// edges attached, reports discarded, sweeps completed and mesh reloads.
// Subscribers include the SSE hub and the sqlite journal (RecordEvents).
//
// # Queries
//
// TopologyService serves the HTTP handlers: snapshots, the printed tree,
// exports through the codec package and the journal.
package service
