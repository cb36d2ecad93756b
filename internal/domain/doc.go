// Package domain defines the topology state kept by the mesh mapper.
//
// The sink node probes nodes known to the routing layer and records the
// parent each one reports. This package holds the result: a bounded registry
// of nodes and the parent/child graph over them.
//
// # Addresses
//
// Address is a 16-byte mesh address. Reports may name a node by its
// link-local or its global form, so lookups go through Normalize, which
// overwrites the leading 16 bits with a network-scope marker.
//
// # Registry
//
// Registry is an append-only arena. Records never move or disappear, so a
// NodeID stays valid for the life of the process. Index 0 is the sink itself.
// Register copies the address, so the registry never aliases caller memory.
//
// # Graph
//
// Attach records an edge from child to parent. Edges are never removed and a
// child keeps the first parent it was attached under. Attach does not look
// for cycles longer than a self-edge; traversals must bound their depth.
//
// # Concurrency
//
// Nothing in this package locks. A single goroutine owns the registry and
// other goroutines see it through Snapshot copies.
package domain
