// Package callgraph walks call relationships through the backend and
// returns a bounded tree. Depth is capped by configuration, so the
// recursion here is bounded by the cap, not by binary size.
package callgraph

import (
	"context"
	"fmt"
	"sort"

	"binkb/internal/backend"
	"binkb/internal/errors"
)

// Direction selects which way edges are followed from the root.
type Direction string

const (
	Callees Direction = "callees"
	Callers Direction = "callers"
)

// ParseDirection validates a direction token. Empty defaults to callees.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Callees, Callers:
		return Direction(s), nil
	case "":
		return Callees, nil
	}
	return "", errors.NewInvalidFormat("direction", fmt.Sprintf("%q is not callers or callees", s))
}

// Node is one procedure in the result tree.
type Node struct {
	Address  string  `json:"address"`
	Name     string  `json:"name,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Result is the graph rooted at the requested procedure.
type Result struct {
	Root      *Node  `json:"root"`
	Direction string `json:"direction"`
	MaxDepth  int    `json:"maxDepth"`
	Nodes     int    `json:"nodes"`
	Truncated bool   `json:"truncated"`
}

// Walker traverses call graphs over one backend.
type Walker struct {
	backend backend.Backend
}

// New creates a walker.
func New(b backend.Backend) *Walker {
	return &Walker{backend: b}
}

// Walk builds the tree rooted at rootAddr, following dir edges up to
// maxDepth levels below the root (the root itself is depth 0). An edge
// back to an address already on the current path is kept as a leaf
// child and never re-expanded, so recursive code yields a finite tree
// that still shows the back edge. Diamonds are expanded on every path:
// only true cycles are cut. Truncated is set when any node at the depth
// limit still had outgoing edges.
func (w *Walker) Walk(ctx context.Context, docID string, rootAddr uint64, dir Direction, maxDepth int) (*Result, error) {
	if maxDepth < 0 {
		return nil, errors.NewInvalidFormat("maxDepth", "must not be negative")
	}

	name, err := w.backend.NameAt(ctx, docID, rootAddr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("NameAt", err)
	}

	res := &Result{
		Root:      &Node{Address: formatAddr(rootAddr), Name: name},
		Direction: string(dir),
		MaxDepth:  maxDepth,
		Nodes:     1,
	}
	onPath := map[uint64]bool{rootAddr: true}
	if err := w.expand(ctx, docID, res.Root, rootAddr, dir, 0, maxDepth, onPath, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (w *Walker) expand(ctx context.Context, docID string, node *Node, addr uint64, dir Direction, depth, maxDepth int, onPath map[uint64]bool, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	edges, err := w.edges(ctx, docID, addr, dir)
	if err != nil {
		return err
	}
	if depth >= maxDepth {
		if len(edges) > 0 {
			res.Truncated = true
		}
		return nil
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })

	for _, target := range edges {
		name, err := w.backend.NameAt(ctx, docID, target)
		if err != nil {
			return errors.NewBackendUnavailable("NameAt", err)
		}
		child := &Node{Address: formatAddr(target), Name: name}
		node.Children = append(node.Children, child)
		res.Nodes++

		if onPath[target] {
			// Back edge into the current path: keep as a leaf.
			continue
		}
		onPath[target] = true
		if err := w.expand(ctx, docID, child, target, dir, depth+1, maxDepth, onPath, res); err != nil {
			return err
		}
		delete(onPath, target)
	}
	return nil
}

func (w *Walker) edges(ctx context.Context, docID string, addr uint64, dir Direction) ([]uint64, error) {
	var (
		out []uint64
		err error
	)
	if dir == Callers {
		out, err = w.backend.Callers(ctx, docID, addr)
	} else {
		out, err = w.backend.Callees(ctx, docID, addr)
	}
	if err != nil {
		return nil, errors.NewBackendUnavailable(string(dir), err)
	}
	return out, nil
}

func formatAddr(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}
