package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryFull is returned when a new address does not fit
	ErrRegistryFull = errors.New("registry full")
	// ErrUnknownNode is returned for a NodeID that was never registered
	ErrUnknownNode = errors.New("unknown node")
)

// NodeID is the stable arena index of a registered node
type NodeID int

// NoNode marks an absent parent
const NoNode NodeID = -1

// NodeRecord is one registered mesh node and its edges
type NodeRecord struct {
	Address  Address  `json:"address" yaml:"address"`
	Parent   NodeID   `json:"parent" yaml:"parent"`
	Children []NodeID `json:"children" yaml:"children"`
}

// HasParent reports whether an attach has set the parent
func (n NodeRecord) HasParent() bool {
	return n.Parent != NoNode
}

// Registry is a bounded append-only arena of nodes. Index 0 is the root once
// seeded. It is not safe for concurrent use; one goroutine owns it.
type Registry struct {
	nodes       []NodeRecord
	capacity    int
	childrenCap int
	edges       int
}

// NewRegistry allocates a registry holding at most capacity nodes, each with
// room for capacity/4 children
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	childrenCap := capacity / 4
	if childrenCap < 1 {
		childrenCap = 1
	}
	return &Registry{
		nodes:       make([]NodeRecord, 0, capacity),
		capacity:    capacity,
		childrenCap: childrenCap,
	}
}

// Find returns the first node registered under addr
func (r *Registry) Find(addr Address) (NodeID, bool) {
	for i := range r.nodes {
		if r.nodes[i].Address == addr {
			return NodeID(i), true
		}
	}
	return NoNode, false
}

// Register returns the node for addr, appending a new record if needed
func (r *Registry) Register(addr Address) (NodeID, error) {
	if id, ok := r.Find(addr); ok {
		return id, nil
	}
	if len(r.nodes) >= r.capacity {
		return NoNode, fmt.Errorf("register %s: %w", addr, ErrRegistryFull)
	}
	r.nodes = append(r.nodes, NodeRecord{
		Address:  addr,
		Parent:   NoNode,
		Children: make([]NodeID, 0, r.childrenCap),
	})
	return NodeID(len(r.nodes) - 1), nil
}

// Root returns index 0 if the registry has been seeded
func (r *Registry) Root() (NodeID, bool) {
	if len(r.nodes) == 0 {
		return NoNode, false
	}
	return 0, true
}

// Len is the number of registered nodes
func (r *Registry) Len() int { return len(r.nodes) }

// Cap is the maximum number of nodes
func (r *Registry) Cap() int { return r.capacity }

// ChildrenCap is the per-node fan-out limit
func (r *Registry) ChildrenCap() int { return r.childrenCap }

// Edges is the number of recorded parent/child edges
func (r *Registry) Edges() int { return r.edges }

// Node returns a copy of the record for id
func (r *Registry) Node(id NodeID) (NodeRecord, bool) {
	if !r.valid(id) {
		return NodeRecord{}, false
	}
	n := r.nodes[id]
	n.Children = append([]NodeID(nil), n.Children...)
	return n, true
}

// Nodes returns copies of every record in index order
func (r *Registry) Nodes() []NodeRecord {
	out := make([]NodeRecord, len(r.nodes))
	for i := range r.nodes {
		out[i], _ = r.Node(NodeID(i))
	}
	return out
}

func (r *Registry) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(r.nodes)
}
