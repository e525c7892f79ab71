package domain

import "strings"

// Edge is a directed transition between two nodes of the same graph.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`

	// Label selects the branch on multi-outcome nodes (buttons, keywordMatch).
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Fallback labels select the branch taken by a keywordMatch node when no keyword matched.
var FallbackLabels = []string{"default", "other"}

// IsFallback reports whether the edge is a keywordMatch fallback branch.
func (e Edge) IsFallback() bool {
	label := strings.TrimSpace(e.Label)
	for _, f := range FallbackLabels {
		if strings.EqualFold(label, f) {
			return true
		}
	}
	return false
}

// Matches reports whether the edge label equals s, ignoring case and surrounding spaces.
func (e Edge) Matches(s string) bool {
	return strings.EqualFold(strings.TrimSpace(e.Label), strings.TrimSpace(s))
}
