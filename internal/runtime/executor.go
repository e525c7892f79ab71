// Package runtime implements the per-session flow interpreter.
//
// An Executor advances one Session by one inbound event against an immutable Graph and
// returns the updated copy plus the outbound effects. It holds no per-session state:
// suspension is persisted on the session (Awaiting + CurrentNodeID), so every event is a
// fresh call.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultMaxSteps bounds the nodes traversed for a single inbound event.
const DefaultMaxSteps = 64

// Executor is the flow state machine.
type Executor struct {
	invoker  ports.ExternalInvoker
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	policy   RetryPolicy
	maxSteps int
	now      func() time.Time
}

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithInvoker sets the invoker used by apiCall nodes.
func WithInvoker(inv ports.ExternalInvoker) Option {
	return func(x *Executor) {
		x.invoker = inv
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(x *Executor) {
		x.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Executor) {
		x.logger = logger
	}
}

// WithRetryPolicy overrides the apiCall retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(x *Executor) {
		x.policy = p
	}
}

// WithMaxSteps overrides the traversal cap per inbound event.
func WithMaxSteps(n int) Option {
	return func(x *Executor) {
		if n > 0 {
			x.maxSteps = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(x *Executor) {
		x.now = now
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	x := &Executor{
		logger:   logging.NewNop(),
		policy:   DefaultRetryPolicy(),
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Step advances the session by one inbound event.
//
// Faults caused by flow content (dangling node, stale graph, failed external call,
// traversal cap) abort only this session and are reported as diagnostic effects.
// The returned error is reserved for a cancelled context, in which case nothing
// should be persisted.
func (x *Executor) Step(ctx context.Context, g *domain.Graph, current *domain.Session, ev domain.InboundEvent) (*domain.Session, []domain.Effect, error) {
	run := &stepRun{
		exec:    x,
		ctx:     ctx,
		graph:   g,
		event:   ev,
		pending: ev.HasInput(),
	}

	if current == nil || current.Status.IsTerminal() {
		start, ok := g.StartNode()
		if !ok {
			s := domain.NewSession(ev.Key(), "", g.Version, x.now())
			run.session = s
			run.abort(&domain.DanglingReferenceError{NodeID: domain.NodeTypeStart, GraphVersion: g.Version})
			return run.session, run.effects, nil
		}
		if current != nil {
			x.logger.Debug("restarting session", "project_id", ev.ProjectID, "sender_id", ev.SenderID, "previous_status", current.Status)
		}
		run.session = domain.NewSession(ev.Key(), start.ID, g.Version, x.now())
		run.entered = true
	} else {
		run.session = current.Clone()
	}

	if run.session.GraphVersion != g.Version {
		run.abort(&domain.StaleGraphError{SessionVersion: run.session.GraphVersion, GraphVersion: g.Version})
		return run.session, run.effects, nil
	}

	if err := run.loop(); err != nil {
		return current, nil, err
	}
	return run.session, run.effects, nil
}

// stepRun carries the mutable state of one Step call.
type stepRun struct {
	exec    *Executor
	ctx     context.Context
	graph   *domain.Graph
	session *domain.Session
	event   domain.InboundEvent
	effects []domain.Effect

	// pending is true while the inbound input has not been consumed by a suspend point.
	pending bool

	// entered is true when the current node was entered during this step.
	entered bool
}

// outcome tells the loop what a node handler decided.
type outcome int

const (
	advance outcome = iota
	suspend
	finish
)

func (r *stepRun) loop() error {
	for steps := 0; ; steps++ {
		if steps >= r.exec.maxSteps {
			r.abort(fmt.Errorf("traversal limit of %d nodes exceeded", r.exec.maxSteps))
			return nil
		}

		node, ok := r.graph.Node(r.session.CurrentNodeID)
		if !ok {
			r.abort(&domain.DanglingReferenceError{NodeID: r.session.CurrentNodeID, GraphVersion: r.graph.Version})
			return nil
		}

		if r.entered {
			r.exec.emitNode(r.ctx, domain.EventNodeEnter, r.session, node)
		}

		next, out, err := r.dispatch(node)
		if err != nil {
			return err
		}

		switch out {
		case suspend, finish:
			return nil
		case advance:
			r.exec.emitNode(r.ctx, domain.EventNodeLeave, r.session, node)
			r.moveTo(next)
		}
	}
}

func (r *stepRun) moveTo(nodeID string) {
	r.session.CurrentNodeID = nodeID
	r.session.Awaiting = domain.AwaitNone
	r.session.History = append(r.session.History, nodeID)
	r.session.LastAdvancedAt = r.exec.now()
	r.entered = true
}

// consume takes the pending input, if any.
func (r *stepRun) consume() (text, selection string, ok bool) {
	if !r.pending {
		return "", "", false
	}
	r.pending = false
	return r.event.Text, r.event.ButtonSelectionID, true
}

func (r *stepRun) send(node *domain.Node, text string) {
	r.effects = append(r.effects, domain.Effect{
		Type:   domain.EffectSendText,
		NodeID: node.ID,
		To:     r.session.SenderID,
		Text:   Render(text, r.session.Variables),
	})
}

func (r *stepRun) renderAll(in []string) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = Render(t, r.session.Variables)
	}
	return out
}

func (r *stepRun) sendInteractive(node *domain.Node, text string, options []string) {
	rendered := r.renderAll(options)
	r.effects = append(r.effects, domain.Effect{
		Type:    domain.EffectSendInteractive,
		NodeID:  node.ID,
		To:      r.session.SenderID,
		Text:    Render(text, r.session.Variables),
		Options: rendered,
	})
}

func (r *stepRun) complete() {
	r.session.Status = domain.StatusCompleted
	r.session.Awaiting = domain.AwaitNone
	r.session.LastAdvancedAt = r.exec.now()
	r.exec.emitEnd(r.ctx, r.session, "")
}

// abort moves the session to Aborted and records a diagnostic effect.
func (r *stepRun) abort(cause error) {
	r.session.Status = domain.StatusAborted
	r.session.Awaiting = domain.AwaitNone
	r.session.AbortReason = cause.Error()
	r.session.LastAdvancedAt = r.exec.now()
	r.effects = append(r.effects, domain.Effect{
		Type:   domain.EffectDiagnostic,
		NodeID: r.session.CurrentNodeID,
		Text:   cause.Error(),
	})
	r.exec.logger.Warn("session aborted",
		"project_id", r.session.ProjectID,
		"sender_id", r.session.SenderID,
		"node_id", r.session.CurrentNodeID,
		"graph_version", r.graph.Version,
		"err", cause,
	)
	r.exec.emitEnd(r.ctx, r.session, cause.Error())
}

func (x *Executor) emitNode(ctx context.Context, typ domain.EventType, s *domain.Session, node *domain.Node) {
	hook := x.hooks.OnNodeEnter
	if typ == domain.EventNodeLeave {
		hook = x.hooks.OnNodeLeave
	}
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: x.base(typ, s),
		NodeID:    node.ID,
		NodeType:  node.Type,
	})
}

func (x *Executor) emitEnd(ctx context.Context, s *domain.Session, reason string) {
	if x.hooks.OnSessionEnd == nil {
		return
	}
	x.hooks.OnSessionEnd(ctx, &domain.SessionEvent{
		EventBase: x.base(domain.EventSessionEnd, s),
		Status:    s.Status,
		Reason:    reason,
	})
}

func (x *Executor) base(typ domain.EventType, s *domain.Session) domain.EventBase {
	return domain.EventBase{
		Timestamp: x.now(),
		Type:      typ,
		ProjectID: s.ProjectID,
		SenderID:  s.SenderID,
	}
}
