// Package repository defines the storage interfaces for meshmap.
//
// The topology itself lives only in the mapper's memory. What is persisted is
// an append-only journal of mapper events, so an operator can see which
// nodes were probed, which reports were dropped and when sweeps finished.
// The journal is never read back to rebuild the topology.
//
// The sqlite subpackage implements Journal on modernc.org/sqlite with WAL
// mode. It is tested against in-memory databases.
package repository
