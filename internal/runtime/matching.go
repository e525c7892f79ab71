package runtime

import (
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// selectButton resolves a reply against the buttons as they were sent and returns the
// index of the chosen one. A selection id may be the channel reply id or the label
// itself; free text must equal a label.
func selectButton(buttons []string, selectionID, text string) (int, bool) {
	selectionID = strings.TrimSpace(selectionID)
	text = strings.TrimSpace(text)
	for i, label := range buttons {
		if selectionID != "" && (strings.EqualFold(selectionID, domain.ButtonID(i, label)) || strings.EqualFold(selectionID, label)) {
			return i, true
		}
		if text != "" && strings.EqualFold(text, label) {
			return i, true
		}
	}
	return -1, false
}

// matchKeyword returns the first keyword, in declaration order, contained in text
// ignoring case.
func matchKeyword(keywords []string, text string) (string, bool) {
	haystack := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// selectKeywordEdge picks the branch of a keywordMatch node for the inbound text.
//
// A matched keyword selects the edge labeled with it; when no edge carries that label
// and the node has exactly one non-fallback edge, that edge is taken. Without a match
// the default/other edge is used if present.
func selectKeywordEdge(edges []domain.Edge, keywords []string, text string) (string, bool) {
	var fallback, plain []domain.Edge
	for _, e := range edges {
		if e.IsFallback() {
			fallback = append(fallback, e)
		} else {
			plain = append(plain, e)
		}
	}

	if kw, ok := matchKeyword(keywords, text); ok {
		for _, e := range plain {
			if e.Matches(kw) {
				return e.Target, true
			}
		}
		if len(plain) == 1 {
			return plain[0].Target, true
		}
	}

	if len(fallback) > 0 {
		return fallback[0].Target, true
	}
	return "", false
}
