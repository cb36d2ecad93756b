package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"meshmap/internal/codec"
	"meshmap/internal/domain"
	"meshmap/internal/printer"
	"meshmap/internal/repository"
)

// ErrJournalDisabled is returned when no journal is configured
var ErrJournalDisabled = errors.New("journal disabled")

// SnapshotSource is the read side of the mapper
type SnapshotSource interface {
	Snapshot(ctx context.Context) (View, error)
}

// Reloader asks the mapper to re-read the mesh state
type Reloader interface {
	Reload()
}

// TopologyService answers queries about the mapped topology
type TopologyService struct {
	mapper  SnapshotSource
	journal repository.Journal
}

// NewTopologyService creates a service over the mapper. journal may be nil.
func NewTopologyService(mapper SnapshotSource, journal repository.Journal) *TopologyService {
	return &TopologyService{
		mapper:  mapper,
		journal: journal,
	}
}

// GetTopology returns the current snapshot, tree and cursor
func (s *TopologyService) GetTopology(ctx context.Context) (*View, error) {
	v, err := s.mapper.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &v, nil
}

// WriteText renders the tree the way the console shows it
func (s *TopologyService) WriteText(ctx context.Context, w io.Writer) error {
	v, err := s.GetTopology(ctx)
	if err != nil {
		return err
	}
	return printer.Format(w, v.Tree)
}

// ListNodes returns every registered node in index order
func (s *TopologyService) ListNodes(ctx context.Context) ([]domain.SnapshotNode, error) {
	v, err := s.GetTopology(ctx)
	if err != nil {
		return nil, err
	}
	return v.Topology.Nodes, nil
}

// Export writes the topology with exp
func (s *TopologyService) Export(ctx context.Context, exp codec.Exporter, w io.Writer) error {
	v, err := s.GetTopology(ctx)
	if err != nil {
		return err
	}
	return exp.Export(&v.Topology, w)
}

// RecentEvents returns journaled events, newest first
func (s *TopologyService) RecentEvents(ctx context.Context, limit int) ([]repository.Entry, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.Recent(ctx, limit)
}
