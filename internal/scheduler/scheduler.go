// Package scheduler decides which node the sink probes next.
//
// A sweep walks the routing table once under one instance/DAG pair, one
// probe per slow tick. When a sweep ends the next pair is chosen round-robin
// across every in-use DAG of every in-use instance.
package scheduler

import (
	"meshmap/internal/domain"
	"meshmap/internal/mesh"
	"meshmap/internal/protocol"
)

// Cursor is the persisted position of the sweep. Instance and DAG name the
// next directory slot to examine; Host is the next routing slot.
type Cursor struct {
	Instance int `json:"instance"`
	DAG      int `json:"dag"`
	Host     int `json:"host"`
}

// Outcome classifies what a step did
type Outcome int

const (
	// OutcomeProbe means the step produced a probe
	OutcomeProbe Outcome = iota
	// OutcomeNoContext means no instance/DAG pair is in use
	OutcomeNoContext
	// OutcomeIdle means the rest of the routing table was empty
	OutcomeIdle
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProbe:
		return "probe"
	case OutcomeNoContext:
		return "no-context"
	case OutcomeIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// StepResult is the effect of one slow tick
type StepResult struct {
	Outcome Outcome
	// Target and Probe are set for OutcomeProbe
	Target domain.Address
	Probe  protocol.Probe
	// NewContext is set when the step selected an instance/DAG pair
	NewContext bool
	// Wrapped is set when the sweep reached the end of the routing table
	Wrapped bool
}

// Scheduler holds the sweep cursor and the active scan context
type Scheduler struct {
	cursor  Cursor
	context domain.ScanContext
}

// New returns a scheduler positioned at the start of the first sweep
func New() *Scheduler {
	return &Scheduler{}
}

// Cursor returns the current position
func (s *Scheduler) Cursor() Cursor { return s.cursor }

// Context returns the instance/DAG pair of the current sweep
func (s *Scheduler) Context() domain.ScanContext { return s.context }

// Step advances the sweep by at most one probe
func (s *Scheduler) Step(src mesh.Source) StepResult {
	var res StepResult

	if s.cursor.Host == 0 {
		if !s.selectContext(src) {
			s.context = domain.ScanContext{}
			res.Outcome = OutcomeNoContext
			return res
		}
		res.NewContext = true
	}

	n := src.Len()
	s.skipUnused(src)
	if s.cursor.Host >= n {
		s.cursor.Host = 0
		res.Outcome = OutcomeIdle
		res.Wrapped = true
		return res
	}

	res.Outcome = OutcomeProbe
	res.Target = src.Route(s.cursor.Host).Dest
	res.Probe = protocol.Probe{InstanceID: s.context.InstanceID, DAGID: s.context.DAGID}
	s.cursor.Host++

	s.skipUnused(src)
	if s.cursor.Host >= n {
		s.cursor.Host = 0
		res.Wrapped = true
	}
	return res
}

func (s *Scheduler) skipUnused(src mesh.RoutingTable) {
	for s.cursor.Host < src.Len() && !src.Route(s.cursor.Host).Used {
		s.cursor.Host++
	}
}

// selectContext finds the next in-use instance/DAG pair at or after the
// cursor, wrapping around the directory once
func (s *Scheduler) selectContext(dir mesh.Directory) bool {
	instances, dags := dir.Instances(), dir.DAGsPerInstance()
	total := instances * dags
	if total == 0 {
		return false
	}

	start := s.cursor.Instance*dags + s.cursor.DAG
	if start < 0 || start >= total {
		start = 0
	}
	for k := 0; k < total; k++ {
		slot := (start + k) % total
		i, j := slot/dags, slot%dags
		if !dir.Instance(i).Used {
			continue
		}
		dag := dir.DAG(i, j)
		if !dag.Used {
			continue
		}
		s.context = domain.ScanContext{
			InstanceID: dir.Instance(i).ID,
			DAGID:      dag.ID,
			Valid:      true,
		}
		next := (slot + 1) % total
		s.cursor.Instance, s.cursor.DAG = next/dags, next%dags
		return true
	}
	return false
}
