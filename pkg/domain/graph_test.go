package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/domain"
)

func sampleGraph() *domain.Graph {
	return &domain.Graph{
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeTypeStart},
			{ID: "menu", Type: domain.NodeTypeButtons, Properties: map[string]any{"message": "Pick", "buttons": []any{"Yes", "No"}}},
			{ID: "end", Type: domain.NodeTypeEnd},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "menu"},
			{ID: "e2", Source: "menu", Target: "end", Label: "Yes"},
			{ID: "e3", Source: "menu", Target: "end", Label: "No"},
		},
	}
}

func TestGraph_Fingerprint(t *testing.T) {
	a := sampleGraph()
	b := sampleGraph()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	b.Nodes[1].Properties["message"] = "Pick one"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestGraph_SealAndLookup(t *testing.T) {
	g := sampleGraph()

	n, ok := g.Node("menu")
	require.True(t, ok, "unsealed lookup scans")
	assert.Equal(t, domain.NodeTypeButtons, n.Type)

	g.Seal()
	assert.Equal(t, g.Fingerprint(), g.Version)

	n, ok = g.Node("end")
	require.True(t, ok)
	assert.Equal(t, domain.NodeTypeEnd, n.Type)

	_, ok = g.Node("ghost")
	assert.False(t, ok)

	start, ok := g.StartNode()
	require.True(t, ok)
	assert.Equal(t, "start", start.ID)

	out := g.Outgoing("menu")
	require.Len(t, out, 2)
	assert.Equal(t, "e2", out[0].ID)
}

func TestGraph_Restore(t *testing.T) {
	g := sampleGraph().Restore("stored")
	assert.Equal(t, "stored", g.Version)
	_, ok := g.Node("menu")
	assert.True(t, ok)
}

func TestEdge_Labels(t *testing.T) {
	assert.True(t, domain.Edge{Label: " Default "}.IsFallback())
	assert.True(t, domain.Edge{Label: "OTHER"}.IsFallback())
	assert.False(t, domain.Edge{Label: "yes"}.IsFallback())
	assert.True(t, domain.Edge{Label: "Yes"}.Matches(" yes"))
	assert.False(t, domain.Edge{Label: "Yes"}.Matches("no"))
}
