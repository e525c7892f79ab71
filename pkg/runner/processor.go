package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
)

// Observer receives processing outcomes. observability.Metrics implements it.
type Observer interface {
	ObserveStep(s *domain.Session, duplicate bool)
	ObserveDelivery(effect domain.Effect, err error)
	ObserveLockTimeout(projectID string)
}

// Result is what one handled event produced.
type Result struct {
	Session *domain.Session
	Effects []domain.Effect

	// Duplicate is true when the event was a redelivery and nothing advanced.
	Duplicate bool
}

// Processor runs inbound events through the executor, one step per event.
type Processor struct {
	flows    ports.FlowRepository
	sessions *session.Manager
	executor *runtime.Executor
	gateway  ports.OutboundGateway
	observer Observer
	logger   *slog.Logger
	maxInput int
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithGateway sets the outbound gateway. Without one effects are returned but not delivered.
func WithGateway(gw ports.OutboundGateway) ProcessorOption {
	return func(p *Processor) {
		p.gateway = gw
	}
}

// WithObserver registers an observer for step and delivery outcomes.
func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithMaxInputSize overrides DefaultMaxInputSize.
func WithMaxInputSize(n int) ProcessorOption {
	return func(p *Processor) {
		p.maxInput = n
	}
}

// NewProcessor creates a Processor.
func NewProcessor(flows ports.FlowRepository, sessions *session.Manager, executor *runtime.Executor, opts ...ProcessorOption) *Processor {
	p := &Processor{
		flows:    flows,
		sessions: sessions,
		executor: executor,
		logger:   logging.NewNop(),
		maxInput: DefaultMaxInputSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one inbound event.
//
// It returns domain.ErrFlowNotActive when the project has no active flow and a
// wrapped domain.ErrSessionLockTimeout when the sender's session stayed locked;
// both leave the session untouched and may be retried by the caller.
// Delivery failures do not fail the call: they are recorded on the effect
// and reported as diagnostics.
func (p *Processor) Handle(ctx context.Context, ev domain.InboundEvent) (Result, error) {
	text, err := SanitizeInput(ev.Text, p.maxInput)
	if err != nil {
		return Result{}, err
	}
	selection, err := SanitizeInput(ev.ButtonSelectionID, p.maxInput)
	if err != nil {
		return Result{}, err
	}
	ev.Text, ev.ButtonSelectionID = text, selection

	active, err := p.flows.Active(ctx, ev.ProjectID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = p.sessions.Transact(ctx, ev.Key(), func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		if current != nil && current.HasSeen(ev.MessageID) {
			p.logger.Info("duplicate event ignored",
				"project_id", ev.ProjectID,
				"sender_id", ev.SenderID,
				"message_id", ev.MessageID,
			)
			res = Result{Session: current, Duplicate: true}
			return nil, nil
		}

		graph := p.graphFor(ctx, current, active)
		next, effects, err := p.executor.Step(ctx, graph, current, ev)
		if err != nil {
			return nil, err
		}

		if current != nil && len(next.RecentMessages) == 0 {
			next.RecentMessages = slices.Clone(current.RecentMessages)
		}
		next.Remember(ev.MessageID)

		effects = p.deliver(ctx, ev, effects)
		res = Result{Session: next, Effects: effects}
		return next, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionLockTimeout) && p.observer != nil {
			p.observer.ObserveLockTimeout(ev.ProjectID)
		}
		return Result{}, fmt.Errorf("handle event for %s: %w", ev.Key(), err)
	}

	if p.observer != nil {
		p.observer.ObserveStep(res.Session, res.Duplicate)
	}
	return res, nil
}

// graphFor returns the graph the session must step against: the version it
// captured while active, or the active graph for new and finished sessions.
func (p *Processor) graphFor(ctx context.Context, current *domain.Session, active *domain.Graph) *domain.Graph {
	if current == nil || current.Status.IsTerminal() || current.GraphVersion == active.Version {
		return active
	}
	g, err := p.flows.Version(ctx, current.ProjectID, current.GraphVersion)
	if err != nil {
		// The executor aborts the session with a stale graph diagnostic.
		p.logger.Warn("captured graph version unavailable",
			"project_id", current.ProjectID,
			"sender_id", current.SenderID,
			"graph_version", current.GraphVersion,
			"err", err,
		)
		return active
	}
	return g
}

// deliver sends each deliverable effect in order. Failures are recorded on the
// effect and appended as diagnostics; the step is not rolled back.
func (p *Processor) deliver(ctx context.Context, ev domain.InboundEvent, effects []domain.Effect) []domain.Effect {
	if p.gateway == nil {
		return effects
	}

	var failures []domain.Effect
	for i := range effects {
		if !effects[i].IsDeliverable() {
			continue
		}
		result, err := ports.Deliver(ctx, p.gateway, ev.ProjectID, effects[i])
		if err != nil && result.Error == "" {
			result.Error = err.Error()
		}
		effects[i].Outcome = &result

		if p.observer != nil {
			p.observer.ObserveDelivery(effects[i], err)
		}
		if err != nil {
			p.logger.Error("delivery failed",
				"project_id", ev.ProjectID,
				"sender_id", ev.SenderID,
				"node_id", effects[i].NodeID,
				"err", err,
			)
			var derr *domain.DeliveryError
			if !errors.As(err, &derr) {
				derr = &domain.DeliveryError{SenderID: ev.SenderID, Err: err}
			}
			failures = append(failures, domain.Effect{
				Type:   domain.EffectDiagnostic,
				NodeID: effects[i].NodeID,
				To:     effects[i].To,
				Text:   derr.Error(),
			})
		}
	}
	return append(effects, failures...)
}
