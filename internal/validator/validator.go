// Package validator performs static analysis of a flow graph before activation.
package validator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Diagnostic texts that callers and tests match on.
const (
	MsgEmptyFlow      = "flow has no nodes"
	MsgNoStart        = "flow has no start node"
	MsgMultipleStarts = "multiple start nodes"
	MsgMultipleEnds   = "multiple end nodes"
	MsgCycle          = "flow contains a cycle"
)

// requiredFields lists, per node type, the property keys that must carry content.
var requiredFields = map[string][]string{
	domain.NodeTypeStart:        nil,
	domain.NodeTypeEnd:          nil,
	domain.NodeTypeMessage:      {"message"},
	domain.NodeTypeButtons:      {"message", "buttons"},
	domain.NodeTypeKeywordMatch: {"keywords"},
	domain.NodeTypeAPICall:      {"requestName", "url"},
	domain.NodeTypeAskQuestion:  {"question", "propertyName"},
}

// Validate checks the graph against every structural and content rule and returns
// the union of violations in rule order. It never fails; diagnostics are data.
func Validate(g *domain.Graph) domain.ValidationResult {
	if g == nil || len(g.Nodes) == 0 {
		return domain.ValidationResult{IsValid: false, Errors: []string{MsgEmptyFlow}}
	}

	c := &checker{graph: g}
	c.references()
	c.degrees()
	c.cardinality()
	c.direction()
	c.selfLoops()
	c.content()
	c.branches()
	c.cycles()

	return domain.ValidationResult{IsValid: len(c.errs) == 0, Errors: c.errorList()}
}

type checker struct {
	graph *domain.Graph
	errs  []string

	known map[string]bool
	in    map[string]int
	out   map[string]int
}

func (c *checker) addf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

func (c *checker) errorList() []string {
	if c.errs == nil {
		return []string{}
	}
	return c.errs
}

// references flags duplicate ids and edges whose endpoints are unknown.
func (c *checker) references() {
	c.known = make(map[string]bool, len(c.graph.Nodes))
	for _, n := range c.graph.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			c.addf("node %q has an empty id", n.DisplayName())
			continue
		}
		if c.known[n.ID] {
			c.addf("duplicate node id %q", n.ID)
		}
		c.known[n.ID] = true
	}
	for _, e := range c.graph.Edges {
		if !c.known[e.Source] {
			c.addf("edge %q references unknown source node %q", e.ID, e.Source)
		}
		if !c.known[e.Target] {
			c.addf("edge %q references unknown target node %q", e.ID, e.Target)
		}
	}
}

// degrees counts edge endpoints per node and reports isolated or half-connected nodes.
func (c *checker) degrees() {
	c.in = make(map[string]int, len(c.graph.Nodes))
	c.out = make(map[string]int, len(c.graph.Nodes))
	for _, e := range c.graph.Edges {
		c.out[e.Source]++
		c.in[e.Target]++
	}
	for _, n := range c.graph.Nodes {
		in, out := c.in[n.ID], c.out[n.ID]
		if in == 0 && out == 0 {
			c.addf("node %q is isolated", n.DisplayName())
			continue
		}
		if n.Type != domain.NodeTypeStart && in == 0 {
			c.addf("node %q has no incoming edges", n.DisplayName())
		}
		if n.Type != domain.NodeTypeEnd && out == 0 {
			c.addf("node %q has no outgoing edges", n.DisplayName())
		}
	}
}

func (c *checker) cardinality() {
	starts, ends := 0, 0
	for _, n := range c.graph.Nodes {
		switch n.Type {
		case domain.NodeTypeStart:
			starts++
		case domain.NodeTypeEnd:
			ends++
		}
	}
	switch {
	case starts == 0:
		c.addf(MsgNoStart)
	case starts > 1:
		c.addf(MsgMultipleStarts)
	}
	if ends > 1 {
		c.addf(MsgMultipleEnds)
	}
}

func (c *checker) direction() {
	for _, n := range c.graph.Nodes {
		if n.Type == domain.NodeTypeStart && c.in[n.ID] > 0 {
			c.addf("start node %q cannot have incoming edges", n.DisplayName())
		}
		if n.Type == domain.NodeTypeEnd && c.out[n.ID] > 0 {
			c.addf("end node %q cannot have outgoing edges", n.DisplayName())
		}
	}
}

func (c *checker) selfLoops() {
	for _, e := range c.graph.Edges {
		if e.Source == e.Target {
			c.addf("node %q has a self-loop (edge %q)", c.nameOf(e.Source), e.ID)
		}
	}
}

func (c *checker) content() {
	for _, n := range c.graph.Nodes {
		fields, ok := requiredFields[n.Type]
		if !ok {
			c.addf("node %q has unknown type %q", n.DisplayName(), n.Type)
			continue
		}
		for _, field := range fields {
			if isBlank(n.Properties[field]) {
				c.addf("node %q is missing required property %q", n.DisplayName(), field)
			}
		}
		if n.Type == domain.NodeTypeAPICall && !isBlank(n.Properties["url"]) {
			raw, _ := n.Properties["url"].(string)
			if !isAbsoluteURL(raw) {
				c.addf("node %q has an invalid url %q", n.DisplayName(), raw)
			}
		}
	}
}

// branches requires an outgoing edge for every declared button label.
func (c *checker) branches() {
	for _, n := range c.graph.Nodes {
		if n.Type != domain.NodeTypeButtons {
			continue
		}
		labels := listEntries(n.Properties["buttons"])
		edges := c.graph.Outgoing(n.ID)
		if len(labels) == 0 {
			if len(edges) > 0 {
				c.addf("buttons node %q has outgoing edges but no buttons defined", n.DisplayName())
			}
			continue
		}
		for _, label := range labels {
			found := false
			for _, e := range edges {
				if e.Matches(label) {
					found = true
					break
				}
			}
			if !found {
				c.addf("buttons node %q has no edge for button %q", n.DisplayName(), label)
			}
		}
	}
}

type frame struct {
	id   string
	next int
}

// cycles runs an iterative depth-first search with an explicit stack and reports
// the first back edge found.
func (c *checker) cycles() {
	adj := make(map[string][]string, len(c.graph.Nodes))
	for _, e := range c.graph.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	visited := make(map[string]bool, len(c.graph.Nodes))
	onStack := make(map[string]bool)

	for _, root := range c.graph.Nodes {
		if visited[root.ID] {
			continue
		}
		stack := []frame{{id: root.ID}}
		visited[root.ID] = true
		onStack[root.ID] = true

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(adj[top.id]) {
				onStack[top.id] = false
				stack = stack[:len(stack)-1]
				continue
			}
			child := adj[top.id][top.next]
			top.next++
			if onStack[child] {
				c.addf(MsgCycle)
				return
			}
			if !visited[child] {
				visited[child] = true
				onStack[child] = true
				stack = append(stack, frame{id: child})
			}
		}
	}
}

func (c *checker) nameOf(id string) string {
	if n, ok := c.graph.Node(id); ok {
		return n.DisplayName()
	}
	return id
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []string:
		for _, s := range val {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	case []any:
		return len(listEntries(val)) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

// listEntries returns the non-blank texts of a list property.
func listEntries(v any) []string {
	var out []string
	switch val := v.(type) {
	case []string:
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range val {
			if s := domain.EntryText(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
