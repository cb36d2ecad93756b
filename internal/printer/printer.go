// Package printer renders the discovered tree for a human.
package printer

import (
	"fmt"
	"io"
	"strings"

	"meshmap/internal/domain"
)

// DefaultMaxDepth bounds the traversal. Attach does not prevent cycles, so
// every walk needs a ceiling.
const DefaultMaxDepth = 8

// TruncationMarker replaces a subtree deeper than the ceiling
const TruncationMarker = "..."

// Line is one rendered node
type Line struct {
	Depth     int            `json:"depth"`
	Address   domain.Address `json:"address"`
	Truncated bool           `json:"truncated,omitempty"`
}

// Tree is a pre-order rendering of the graph below the root
type Tree struct {
	Lines     []Line `json:"lines"`
	Truncated bool   `json:"truncated"`
}

// Walk traverses the registry pre-order from the root. A node deeper than
// maxDepth becomes a truncation line and is not expanded.
func Walk(reg *domain.Registry, maxDepth int) Tree {
	var tree Tree
	root, ok := reg.Root()
	if !ok {
		return tree
	}

	type frame struct {
		id    domain.NodeID
		depth int
	}
	stack := []frame{{id: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, _ := reg.Node(f.id)
		if f.depth > maxDepth {
			tree.Lines = append(tree.Lines, Line{Depth: f.depth, Address: node.Address, Truncated: true})
			tree.Truncated = true
			continue
		}
		tree.Lines = append(tree.Lines, Line{Depth: f.depth, Address: node.Address})

		// push in reverse so the first child is visited first
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: node.Children[i], depth: f.depth + 1})
		}
	}
	return tree
}

// Format writes the tree as indented text, two spaces per level
func Format(w io.Writer, tree Tree) error {
	var b strings.Builder
	b.WriteString("Network graph:\n\n")
	for _, l := range tree.Lines {
		b.WriteString(strings.Repeat("  ", l.Depth))
		if l.Truncated {
			b.WriteString(TruncationMarker)
		} else {
			b.WriteString(l.Address.String())
		}
		b.WriteByte('\n')
	}
	b.WriteString("-----------------------\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}

// Render walks and formats in one call
func Render(w io.Writer, reg *domain.Registry, maxDepth int) (Tree, error) {
	tree := Walk(reg, maxDepth)
	return tree, Format(w, tree)
}
