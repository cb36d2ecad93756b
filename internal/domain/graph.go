package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrChildCapacityExceeded is returned when the parent has no free child slot
	ErrChildCapacityExceeded = errors.New("child capacity exceeded")
	// ErrAlreadyParented is returned when the child is attached under another parent
	ErrAlreadyParented = errors.New("child already has a different parent")
	// ErrSelfEdge is returned when a node names itself as parent
	ErrSelfEdge = errors.New("node cannot be its own parent")
)

// Attach records child under parent. An existing edge is a no-op reporting
// added=false. The first successful attach wins: a child that already has a
// different parent is left where it is.
func (r *Registry) Attach(child, parent NodeID) (added bool, err error) {
	if !r.valid(child) {
		return false, fmt.Errorf("attach child %d: %w", child, ErrUnknownNode)
	}
	if !r.valid(parent) {
		return false, fmt.Errorf("attach parent %d: %w", parent, ErrUnknownNode)
	}
	if child == parent {
		return false, fmt.Errorf("attach %s: %w", r.nodes[child].Address, ErrSelfEdge)
	}

	p := &r.nodes[parent]
	childAddr := r.nodes[child].Address
	for _, c := range p.Children {
		if r.nodes[c].Address == childAddr {
			return false, nil
		}
	}

	c := &r.nodes[child]
	if c.HasParent() {
		return false, fmt.Errorf("attach %s under %s: %w (parent %s)",
			c.Address, p.Address, ErrAlreadyParented, r.nodes[c.Parent].Address)
	}
	if len(p.Children) >= r.childrenCap {
		return false, fmt.Errorf("attach %s under %s: %w", c.Address, p.Address, ErrChildCapacityExceeded)
	}

	p.Children = append(p.Children, child)
	c.Parent = parent
	r.edges++
	return true, nil
}

// Children returns the ordered children of id
func (r *Registry) Children(id NodeID) []NodeID {
	if !r.valid(id) {
		return nil
	}
	return append([]NodeID(nil), r.nodes[id].Children...)
}

// Parent returns the recorded parent of id
func (r *Registry) Parent(id NodeID) (NodeID, bool) {
	if !r.valid(id) || !r.nodes[id].HasParent() {
		return NoNode, false
	}
	return r.nodes[id].Parent, true
}
