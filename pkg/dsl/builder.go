package dsl

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Builder manages the graph construction. Nodes keep their insertion order.
type Builder struct {
	order []string
	nodes map[string]*NodeBuilder
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build assembles the graph. Edge ids are generated as e1, e2, ... in node order.
func (b *Builder) Build() *domain.Graph {
	g := &domain.Graph{}
	n := 0
	for _, id := range b.order {
		nb := b.nodes[id]
		g.Nodes = append(g.Nodes, nb.Build())
		for _, e := range nb.edges {
			n++
			e.ID = fmt.Sprintf("e%d", n)
			g.Edges = append(g.Edges, e)
		}
	}
	return g
}
