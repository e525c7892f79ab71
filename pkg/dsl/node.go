package dsl

import (
	"maps"

	"github.com/aretw0/chatflow/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	edges   []domain.Edge
	builder *Builder
}

func (n *NodeBuilder) set(typ string, props map[string]any) *NodeBuilder {
	n.node.Type = typ
	if n.node.Properties == nil {
		n.node.Properties = make(map[string]any)
	}
	maps.Copy(n.node.Properties, props)
	return n
}

// Label sets the display name used in diagnostics and diagrams.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// Start marks the node as the entry point.
func (n *NodeBuilder) Start() *NodeBuilder {
	return n.set(domain.NodeTypeStart, nil)
}

// Message sends text and moves on.
func (n *NodeBuilder) Message(text string) *NodeBuilder {
	return n.set(domain.NodeTypeMessage, map[string]any{"message": text})
}

// Buttons sends text with reply buttons and waits for a selection.
// Route each label with When.
func (n *NodeBuilder) Buttons(text string, labels ...string) *NodeBuilder {
	return n.set(domain.NodeTypeButtons, map[string]any{"message": text, "buttons": labels})
}

// Keywords waits for text and routes it by keyword. Route each keyword with
// When and the no-match branch with Otherwise.
func (n *NodeBuilder) Keywords(keywords ...string) *NodeBuilder {
	return n.set(domain.NodeTypeKeywordMatch, map[string]any{"keywords": keywords})
}

// Ask sends a question and stores the answer in the variable property.
func (n *NodeBuilder) Ask(question, property string) *NodeBuilder {
	return n.set(domain.NodeTypeAskQuestion, map[string]any{"question": question, "propertyName": property})
}

// Call configures an external HTTP request. Chain Header, Body, Map, SaveTo and
// OnError to complete it.
func (n *NodeBuilder) Call(name, method, url string) *NodeBuilder {
	return n.set(domain.NodeTypeAPICall, map[string]any{"requestName": name, "method": method, "url": url})
}

// Header adds a request header to an apiCall node.
func (n *NodeBuilder) Header(key, value string) *NodeBuilder {
	return n.addTo("headers", key, value)
}

// Body sets the request body template of an apiCall node.
func (n *NodeBuilder) Body(body string) *NodeBuilder {
	return n.set(domain.NodeTypeAPICall, map[string]any{"body": body})
}

// Map stores the response value at path (gjson syntax) in variable.
func (n *NodeBuilder) Map(variable, path string) *NodeBuilder {
	return n.addTo("responseMapping", variable, path)
}

// SaveTo stores the whole response body in variable.
func (n *NodeBuilder) SaveTo(variable string) *NodeBuilder {
	return n.set(domain.NodeTypeAPICall, map[string]any{"propertyName": variable})
}

// OnError sets the text sent to the sender when the call fails.
func (n *NodeBuilder) OnError(message string) *NodeBuilder {
	return n.set(domain.NodeTypeAPICall, map[string]any{"errorMessage": message})
}

// End marks the node as a completion point.
func (n *NodeBuilder) End() *NodeBuilder {
	n.edges = nil
	return n.set(domain.NodeTypeEnd, nil)
}

// Go adds an unlabeled edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.When("", target)
}

// When adds an edge taken when the button or keyword equals label.
func (n *NodeBuilder) When(label, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{Source: n.node.ID, Target: target, Label: label})
	return n
}

// Otherwise adds the keywordMatch fallback edge.
func (n *NodeBuilder) Otherwise(target string) *NodeBuilder {
	return n.When(domain.FallbackLabels[0], target)
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.Node {
	node := n.node
	node.Properties = maps.Clone(n.node.Properties)
	return node
}

func (n *NodeBuilder) addTo(prop, key, value string) *NodeBuilder {
	if n.node.Properties == nil {
		n.node.Properties = make(map[string]any)
	}
	m, _ := n.node.Properties[prop].(map[string]string)
	if m == nil {
		m = make(map[string]string)
		n.node.Properties[prop] = m
	}
	m[key] = value
	n.node.Type = domain.NodeTypeAPICall
	return n
}
