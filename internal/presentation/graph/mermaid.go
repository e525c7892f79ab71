package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Overlay marks session progress on the rendered graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFor builds the overlay of a session.
func OverlayFor(s *domain.Session) *Overlay {
	if s == nil {
		return nil
	}
	return &Overlay{VisitedNodes: s.History, CurrentNode: s.CurrentNodeID}
}

// GenerateMermaid produces a Mermaid flowchart from a flow graph.
// Shapes follow the node role:
//   - start, end: ((circle))
//   - apiCall: [[subroutine]]
//   - askaQuestion, buttons, keywordMatch: [/parallelogram/] (waits for input)
//   - message: [rectangle]
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes {
		opener, closer := "[", "]"
		switch node.Type {
		case domain.NodeTypeStart, domain.NodeTypeEnd:
			opener, closer = "((", "))"
		case domain.NodeTypeAPICall:
			opener, closer = "[[", "]]"
		case domain.NodeTypeAskQuestion, domain.NodeTypeButtons, domain.NodeTypeKeywordMatch:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeID(node.ID), opener, escape(node.DisplayName()), closer)
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if e.Label != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escape(e.Label))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeID(e.Source), arrow, sanitizeID(e.Target))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safe := sanitizeID(id)
			if safe == "" || seen[safe] {
				continue
			}
			seen[safe] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safe)
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

var idReplacer = strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")

func sanitizeID(id string) string {
	return idReplacer.Replace(id)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
