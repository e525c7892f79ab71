package runtime

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// dispatch runs the behavior of a single node type.
func (r *stepRun) dispatch(node *domain.Node) (string, outcome, error) {
	switch node.Type {
	case domain.NodeTypeStart:
		return r.follow(node)

	case domain.NodeTypeMessage:
		props, err := domain.DecodeProperties[domain.MessageProps](*node)
		if err != nil {
			r.abort(err)
			return "", finish, nil
		}
		r.send(node, props.Message)
		return r.follow(node)

	case domain.NodeTypeButtons:
		return r.buttons(node)

	case domain.NodeTypeKeywordMatch:
		return r.keywordMatch(node)

	case domain.NodeTypeAskQuestion:
		return r.askQuestion(node)

	case domain.NodeTypeAPICall:
		return r.apiCall(node)

	case domain.NodeTypeEnd:
		r.complete()
		return "", finish, nil

	default:
		r.abort(fmt.Errorf("node %q has unsupported type %q", node.ID, node.Type))
		return "", finish, nil
	}
}

// resumed reports whether the step started suspended at this node.
func (r *stepRun) resumed() bool {
	return !r.entered && r.session.Awaiting != domain.AwaitNone
}

// follow advances along the single outgoing edge of node.
func (r *stepRun) follow(node *domain.Node) (string, outcome, error) {
	edges := r.graph.Outgoing(node.ID)
	if len(edges) == 0 {
		r.abort(&domain.DanglingReferenceError{NodeID: node.ID + "->?", GraphVersion: r.graph.Version})
		return "", finish, nil
	}
	return edges[0].Target, advance, nil
}

func (r *stepRun) buttons(node *domain.Node) (string, outcome, error) {
	props, err := domain.DecodeProperties[domain.ButtonsProps](*node)
	if err != nil {
		r.abort(err)
		return "", finish, nil
	}
	visible := props.VisibleButtons()

	if r.resumed() && r.session.Awaiting == domain.AwaitButtons {
		text, selection, _ := r.consume()
		// Replies carry the rendered label; edges are authored against the raw one.
		if i, ok := selectButton(r.renderAll(visible), selection, text); ok {
			label := visible[i]
			for _, e := range r.graph.Outgoing(node.ID) {
				if e.Matches(label) {
					return e.Target, advance, nil
				}
			}
			r.abort(fmt.Errorf("buttons node %q has no edge for %q", node.ID, label))
			return "", finish, nil
		}
		r.exec.logger.Debug("invalid button selection",
			"project_id", r.session.ProjectID, "sender_id", r.session.SenderID, "node_id", node.ID)
	}

	r.sendInteractive(node, props.Message, visible)
	r.session.Awaiting = domain.AwaitButtons
	return "", suspend, nil
}

func (r *stepRun) keywordMatch(node *domain.Node) (string, outcome, error) {
	props, err := domain.DecodeProperties[domain.KeywordMatchProps](*node)
	if err != nil {
		r.abort(err)
		return "", finish, nil
	}

	text, _, ok := r.consume()
	if ok {
		if target, found := selectKeywordEdge(r.graph.Outgoing(node.ID), props.Keywords, text); found {
			return target, advance, nil
		}
	}

	r.session.Awaiting = domain.AwaitKeyword
	return "", suspend, nil
}

func (r *stepRun) askQuestion(node *domain.Node) (string, outcome, error) {
	props, err := domain.DecodeProperties[domain.AskQuestionProps](*node)
	if err != nil {
		r.abort(err)
		return "", finish, nil
	}

	if r.resumed() && r.session.Awaiting == domain.AwaitText {
		text, selection, _ := r.consume()
		if text == "" {
			text = selection
		}
		if text != "" {
			r.session.Variables[props.PropertyName] = text
			return r.follow(node)
		}
	}

	r.send(node, props.Question)
	r.session.Awaiting = domain.AwaitText
	return "", suspend, nil
}
