package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Graph is the authored flow: an ordered collection of nodes and edges.
// Once activated its content is immutable; edits produce a new Version.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`

	// Version is the content fingerprint, filled by Seal.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	index map[string]int
}

// Fingerprint computes the content hash of the nodes and edges.
// Property maps are serialized with sorted keys, so equal content yields equal fingerprints.
func (g *Graph) Fingerprint() string {
	payload := struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}{g.Nodes, g.Edges}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Seal stamps the graph with its fingerprint and builds the node index.
func (g *Graph) Seal() *Graph {
	g.Version = g.Fingerprint()
	g.reindex()
	return g
}

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = i
		}
	}
}

// Node looks up a node by id. Sealed graphs use the index; unsealed graphs are scanned
// without mutation so concurrent readers stay safe.
func (g *Graph) Node(id string) (*Node, bool) {
	if g.index != nil {
		if i, ok := g.index[id]; ok {
			return &g.Nodes[i], true
		}
		return nil, false
	}
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// StartNode returns the first node of type start.
func (g *Graph) StartNode() (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeStart {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Outgoing returns the edges leaving the node, in authoring order.
func (g *Graph) Outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Restore stamps a graph loaded from storage with its stored version and builds the index.
func (g *Graph) Restore(version string) *Graph {
	g.Version = version
	g.reindex()
	return g
}

// Clone returns a copy whose node and edge slices and property maps can be mutated freely.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes:   make([]Node, len(g.Nodes)),
		Edges:   append([]Edge(nil), g.Edges...),
		Version: g.Version,
	}
	for i, n := range g.Nodes {
		if n.Properties != nil {
			props := make(map[string]any, len(n.Properties))
			for k, v := range n.Properties {
				props[k] = v
			}
			n.Properties = props
		}
		c.Nodes[i] = n
	}
	if g.index != nil {
		c.reindex()
	}
	return c
}
