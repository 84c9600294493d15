package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned when a topological order does not exist.
var ErrCycle = errors.New("dependency cycle")

// CycleError lists the modules of a detected cycle in import order.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ErrCycle.Error(), strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// Node represents a module in the dependency graph
type Node struct {
	Path     string
	OutEdges []string // modules this module imports
	InEdges  []string // modules importing this module
}

// Graph is a module dependency graph. Edges point from importer to imported.
type Graph struct {
	Nodes map[string]*Node
}

// NewGraph creates a new empty graph
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode returns the node for path, creating it when missing.
func (g *Graph) AddNode(path string) *Node {
	if node, ok := g.Nodes[path]; ok {
		return node
	}
	node := &Node{Path: path, OutEdges: make([]string, 0), InEdges: make([]string, 0)}
	g.Nodes[path] = node
	return node
}

// AddEdge records that from imports to.
func (g *Graph) AddEdge(from, to string) {
	src := g.AddNode(from)
	dst := g.AddNode(to)
	src.OutEdges = dedupeAndSort(append(src.OutEdges, to))
	dst.InEdges = dedupeAndSort(append(dst.InEdges, from))
}

// SetDependencies replaces the outgoing edges of path.
func (g *Graph) SetDependencies(path string, deps []string) {
	node := g.AddNode(path)
	for _, old := range node.OutEdges {
		if target, ok := g.Nodes[old]; ok {
			target.InEdges = remove(target.InEdges, path)
		}
	}
	node.OutEdges = make([]string, 0, len(deps))
	for _, dep := range deps {
		g.AddEdge(path, dep)
	}
}

// RemoveNode drops path and every edge touching it.
func (g *Graph) RemoveNode(path string) {
	node, ok := g.Nodes[path]
	if !ok {
		return
	}
	for _, out := range node.OutEdges {
		if target, ok := g.Nodes[out]; ok {
			target.InEdges = remove(target.InEdges, path)
		}
	}
	for _, in := range node.InEdges {
		if source, ok := g.Nodes[in]; ok {
			source.OutEdges = remove(source.OutEdges, path)
		}
	}
	delete(g.Nodes, path)
}

// TopoOrder returns the modules reachable from root, dependencies first.
// Siblings are visited in sorted order so the result is deterministic.
func (g *Graph) TopoOrder(root string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	order := make([]string, 0, len(g.Nodes))
	stack := make([]string, 0)

	var visit func(path string) error
	visit = func(path string) error {
		switch state[path] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, p := range stack {
				if p == path {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, stack[start:]...), path)
			return &CycleError{Path: cycle}
		}
		state[path] = visiting
		stack = append(stack, path)
		if node, ok := g.Nodes[path]; ok {
			for _, dep := range node.OutEdges {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[path] = done
		order = append(order, path)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// Dependents returns paths plus every module that transitively imports
// one of them.
func (g *Graph) Dependents(paths ...string) []string {
	impacted := make(map[string]bool)
	queue := make([]string, 0, len(paths))
	for _, path := range paths {
		if !impacted[path] {
			impacted[path] = true
			queue = append(queue, path)
		}
	}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		node, ok := g.Nodes[path]
		if !ok {
			continue
		}
		for _, importer := range node.InEdges {
			if impacted[importer] {
				continue
			}
			impacted[importer] = true
			queue = append(queue, importer)
		}
	}

	out := make([]string, 0, len(impacted))
	for path := range impacted {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func remove(values []string, value string) []string {
	out := values[:0]
	for _, v := range values {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func dedupeAndSort(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
