package chatflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/aretw0/chatflow/pkg/session"
)

// Engine is the high-level entry point: flow activation and inbound event handling.
type Engine struct {
	flows     ports.FlowRepository
	channels  ports.ChannelDirectory
	store     ports.SessionStore
	locker    ports.DistributedLocker
	gateway   ports.OutboundGateway
	invoker   ports.ExternalInvoker
	hooks     domain.LifecycleHooks
	metrics   *observability.Metrics
	logger    *slog.Logger
	policy    *runtime.RetryPolicy
	maxSteps  int
	maxInput  int
	lockWait  time.Duration
	lockTTL   time.Duration
	sessions  *session.Manager
	processor *runner.Processor
}

// Option configures the Engine.
type Option func(*Engine)

// WithFlowRepository sets where drafts and published versions live. Default: in memory.
func WithFlowRepository(r ports.FlowRepository) Option {
	return func(e *Engine) {
		e.flows = r
	}
}

// WithChannelDirectory sets the channel to project mapping. Default: in memory.
func WithChannelDirectory(d ports.ChannelDirectory) Option {
	return func(e *Engine) {
		e.channels = d
	}
}

// WithSessionStore sets the session store. Default: in memory.
func WithSessionStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker adds a distributed lock around each session step, for multi-instance deployments.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithGateway sets the outbound gateway.
func WithGateway(gw ports.OutboundGateway) Option {
	return func(e *Engine) {
		e.gateway = gw
	}
}

// WithInvoker sets the invoker used by apiCall nodes.
func WithInvoker(inv ports.ExternalInvoker) Option {
	return func(e *Engine) {
		e.invoker = inv
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMetrics records executor, processor and activation metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRetryPolicy overrides the apiCall retry policy.
func WithRetryPolicy(p runtime.RetryPolicy) Option {
	return func(e *Engine) {
		e.policy = &p
	}
}

// WithMaxSteps overrides the per-event traversal cap.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithMaxInputSize overrides the inbound text limit.
func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		e.maxInput = n
	}
}

// WithLockTimeout bounds how long an event waits for its session lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lockWait = d
	}
}

// WithLockTTL sets the expiry of distributed session locks.
func WithLockTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = d
	}
}

// New creates an Engine. Unset collaborators default to in-memory adapters.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.flows == nil {
		e.flows = memory.NewFlowRepository()
	}
	if e.channels == nil {
		e.channels = memory.NewChannels()
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}

	hooks := e.hooks
	if e.metrics != nil {
		hooks = observability.MergeHooks(e.metrics.Hooks(), hooks)
	}

	execOpts := []runtime.Option{
		runtime.WithLifecycleHooks(hooks),
		runtime.WithLogger(e.logger),
	}
	if e.invoker != nil {
		execOpts = append(execOpts, runtime.WithInvoker(e.invoker))
	}
	if e.policy != nil {
		execOpts = append(execOpts, runtime.WithRetryPolicy(*e.policy))
	}
	if e.maxSteps > 0 {
		execOpts = append(execOpts, runtime.WithMaxSteps(e.maxSteps))
	}

	mgrOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(e.locker))
	}
	if e.lockWait > 0 {
		mgrOpts = append(mgrOpts, session.WithLockTimeout(e.lockWait))
	}
	if e.lockTTL > 0 {
		mgrOpts = append(mgrOpts, session.WithLockTTL(e.lockTTL))
	}
	e.sessions = session.NewManager(e.store, mgrOpts...)

	procOpts := []runner.ProcessorOption{runner.WithLogger(e.logger)}
	if e.gateway != nil {
		procOpts = append(procOpts, runner.WithGateway(e.gateway))
	}
	if e.metrics != nil {
		procOpts = append(procOpts, runner.WithObserver(e.metrics))
	}
	if e.maxInput > 0 {
		procOpts = append(procOpts, runner.WithMaxInputSize(e.maxInput))
	}
	e.processor = runner.NewProcessor(e.flows, e.sessions, runtime.New(execOpts...), procOpts...)

	return e
}

// Validate checks a graph without storing it.
func (e *Engine) Validate(g *domain.Graph) domain.ValidationResult {
	return validator.Validate(g)
}

// SaveDraft stores a graph for later activation. Drafts are not validated.
func (e *Engine) SaveDraft(ctx context.Context, projectID string, g *domain.Graph) error {
	return e.flows.SaveDraft(ctx, projectID, g)
}

// Draft returns the stored draft of a project.
func (e *Engine) Draft(ctx context.Context, projectID string) (*domain.Graph, error) {
	return e.flows.Draft(ctx, projectID)
}

// Activate validates g (or the stored draft when g is nil) and, when valid,
// publishes it as the project's live version.
//
// The full validation result is always returned. An invalid graph yields an
// error wrapping domain.ErrInvalidFlow and leaves the active version unchanged.
func (e *Engine) Activate(ctx context.Context, projectID string, g *domain.Graph) (domain.ValidationResult, error) {
	if g == nil {
		draft, err := e.flows.Draft(ctx, projectID)
		if err != nil {
			return domain.ValidationResult{Errors: []string{}}, err
		}
		g = draft
	}

	res := validator.Validate(g)
	if e.metrics != nil {
		e.metrics.ObserveActivation(res)
	}
	if !res.IsValid {
		e.logger.Info("activation refused", "project_id", projectID, "diagnostics", len(res.Errors))
		return res, fmt.Errorf("%w: %d diagnostic(s)", domain.ErrInvalidFlow, len(res.Errors))
	}

	sealed := g.Clone()
	sealed.Version = ""
	sealed.Seal()
	if err := e.flows.Publish(ctx, projectID, sealed); err != nil {
		return res, fmt.Errorf("publish flow: %w", err)
	}
	e.logger.Info("flow activated", "project_id", projectID, "graph_version", sealed.Version)
	return res, nil
}

// Deactivate stops live traffic for a project. Published versions are kept.
func (e *Engine) Deactivate(ctx context.Context, projectID string) error {
	if err := e.flows.Deactivate(ctx, projectID); err != nil {
		return err
	}
	e.logger.Info("flow deactivated", "project_id", projectID)
	return nil
}

// ActiveFlow returns the graph currently receiving traffic.
func (e *Engine) ActiveFlow(ctx context.Context, projectID string) (*domain.Graph, error) {
	return e.flows.Active(ctx, projectID)
}

// RegisterChannel binds a channel address to a project.
func (e *Engine) RegisterChannel(ctx context.Context, ch domain.Channel) error {
	return e.channels.Register(ctx, ch)
}

// ResolveChannel returns the project bound to a channel address.
func (e *Engine) ResolveChannel(ctx context.Context, phoneNumberID string) (string, error) {
	ch, err := e.channels.Lookup(ctx, phoneNumberID)
	if err != nil {
		return "", err
	}
	return ch.ProjectID, nil
}

// Handle runs one inbound event. See runner.Processor.Handle.
func (e *Engine) Handle(ctx context.Context, ev domain.InboundEvent) (runner.Result, error) {
	return e.processor.Handle(ctx, ev)
}

// Session returns the stored session of a sender.
func (e *Engine) Session(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	return e.sessions.Load(ctx, key)
}

// Sessions exposes the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// DeleteSession removes a sender's session; the next message starts over.
func (e *Engine) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	return e.sessions.Delete(ctx, key)
}
