package domain

import "time"

// ScanContext is the instance/DAG pair a sweep is probing
type ScanContext struct {
	InstanceID uint8   `json:"instance_id" yaml:"instance_id"`
	DAGID      Address `json:"dag_id" yaml:"dag_id"`
	Valid      bool    `json:"valid" yaml:"valid"`
}

// SnapshotNode is a registry record rendered with addresses instead of indices
type SnapshotNode struct {
	Index    int       `json:"index" yaml:"index"`
	Address  Address   `json:"address" yaml:"address"`
	Parent   *Address  `json:"parent,omitempty" yaml:"parent,omitempty"`
	Children []Address `json:"children" yaml:"children"`
}

// SnapshotEdge is one child-to-parent relation
type SnapshotEdge struct {
	Child  Address `json:"child" yaml:"child"`
	Parent Address `json:"parent" yaml:"parent"`
}

// Snapshot is a point-in-time copy of the topology for export and the API
type Snapshot struct {
	TakenAt  time.Time      `json:"taken_at" yaml:"taken_at"`
	Root     *Address       `json:"root,omitempty" yaml:"root,omitempty"`
	Capacity int            `json:"capacity" yaml:"capacity"`
	Nodes    []SnapshotNode `json:"nodes" yaml:"nodes"`
	Edges    []SnapshotEdge `json:"edges" yaml:"edges"`
	Context  ScanContext    `json:"context" yaml:"context"`
}

// NewSnapshot copies the registry into a Snapshot
func NewSnapshot(r *Registry) Snapshot {
	snap := Snapshot{
		TakenAt:  time.Now(),
		Capacity: r.Cap(),
		Nodes:    make([]SnapshotNode, 0, r.Len()),
		Edges:    make([]SnapshotEdge, 0, r.Edges()),
	}
	if root, ok := r.Root(); ok {
		addr := r.nodes[root].Address
		snap.Root = &addr
	}

	for i, n := range r.nodes {
		sn := SnapshotNode{
			Index:    i,
			Address:  n.Address,
			Children: make([]Address, 0, len(n.Children)),
		}
		if n.HasParent() {
			parent := r.nodes[n.Parent].Address
			sn.Parent = &parent
		}
		for _, c := range n.Children {
			child := r.nodes[c].Address
			sn.Children = append(sn.Children, child)
			snap.Edges = append(snap.Edges, SnapshotEdge{Child: child, Parent: n.Address})
		}
		snap.Nodes = append(snap.Nodes, sn)
	}
	return snap
}
