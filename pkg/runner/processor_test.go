package runner_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/aretw0/chatflow/pkg/session"
)

type sent struct {
	to, text string
	options  []string
}

type recordingGateway struct {
	mu   sync.Mutex
	sent []sent
	fail error
}

func (g *recordingGateway) SendText(ctx context.Context, projectID, to, text string) (domain.DeliveryResult, error) {
	return g.record(sent{to: to, text: text})
}

func (g *recordingGateway) SendInteractive(ctx context.Context, projectID, to, text string, options []string) (domain.DeliveryResult, error) {
	return g.record(sent{to: to, text: text, options: options})
}

func (g *recordingGateway) record(s sent) (domain.DeliveryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return domain.DeliveryResult{Error: g.fail.Error()}, g.fail
	}
	g.sent = append(g.sent, s)
	return domain.DeliveryResult{Delivered: true, MessageID: "out"}, nil
}

func (g *recordingGateway) texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, s := range g.sent {
		out = append(out, s.text)
	}
	return out
}

func greetingFlow(greeting string) *domain.Graph {
	return &domain.Graph{
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeTypeStart},
			{ID: "hi", Type: domain.NodeTypeMessage, Properties: map[string]any{"message": greeting}},
			{ID: "ask", Type: domain.NodeTypeAskQuestion, Properties: map[string]any{"question": "name?", "propertyName": "name"}},
			{ID: "hello", Type: domain.NodeTypeMessage, Properties: map[string]any{"message": "Hello {name}"}},
			{ID: "end", Type: domain.NodeTypeEnd},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "hi"},
			{ID: "e2", Source: "hi", Target: "ask"},
			{ID: "e3", Source: "ask", Target: "hello"},
			{ID: "e4", Source: "hello", Target: "end"},
		},
	}
}

type fixture struct {
	flows   *memory.FlowRepository
	store   *memory.Store
	gateway *recordingGateway
	proc    *runner.Processor
}

func newFixture(t *testing.T, opts ...runner.ProcessorOption) *fixture {
	t.Helper()
	f := &fixture{
		flows:   memory.NewFlowRepository(),
		store:   memory.NewStore(),
		gateway: &recordingGateway{},
	}
	require.NoError(t, f.flows.Publish(context.Background(), "acme", greetingFlow("Hi")))

	opts = append([]runner.ProcessorOption{runner.WithGateway(f.gateway)}, opts...)
	f.proc = runner.NewProcessor(f.flows, session.NewManager(f.store), runtime.New(), opts...)
	return f
}

func event(id, text string) domain.InboundEvent {
	return domain.InboundEvent{ProjectID: "acme", SenderID: "5511", MessageID: id, Text: text}
}

func TestProcessor_Conversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.proc.Handle(ctx, event("m1", "hey"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, res.Session.Status)
	assert.Equal(t, "ask", res.Session.CurrentNodeID)
	require.Len(t, res.Effects, 2)
	for _, e := range res.Effects {
		require.NotNil(t, e.Outcome)
		assert.True(t, e.Outcome.Delivered)
	}

	res, err = f.proc.Handle(ctx, event("m2", "Alice"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Session.Status)
	assert.Equal(t, "Alice", res.Session.Variables["name"])

	assert.Equal(t, []string{"Hi", "name?", "Hello Alice"}, f.gateway.texts())

	stored, err := f.store.Load(ctx, domain.SessionKey{ProjectID: "acme", SenderID: "5511"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, []string{"m1", "m2"}, stored.RecentMessages)
}

func TestProcessor_InactiveProject(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.flows.Deactivate(context.Background(), "acme"))

	_, err := f.proc.Handle(context.Background(), event("m1", "hey"))
	assert.ErrorIs(t, err, domain.ErrFlowNotActive)
	assert.Empty(t, f.gateway.texts())
}

func TestProcessor_Redelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proc.Handle(ctx, event("m1", "hey"))
	require.NoError(t, err)

	res, err := f.proc.Handle(ctx, event("m1", "hey"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, res.Effects)
	assert.Equal(t, []string{"Hi", "name?"}, f.gateway.texts())
}

func TestProcessor_ConcurrentRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.proc.Handle(ctx, event("m1", "hey"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]runner.Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.proc.Handle(ctx, event("m2", "Alice"))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	duplicates := 0
	for _, r := range results {
		if r.Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, duplicates, "exactly one delivery advances the session")
	assert.Equal(t, []string{"Hi", "name?", "Hello Alice"}, f.gateway.texts())
}

func TestProcessor_DeliveryFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.gateway.fail = errors.New("graph api unavailable")

	res, err := f.proc.Handle(context.Background(), event("m1", "hey"))
	require.NoError(t, err)
	assert.Equal(t, "ask", res.Session.CurrentNodeID)

	var diagnostics int
	for _, e := range res.Effects {
		if e.Type == domain.EffectDiagnostic {
			diagnostics++
			assert.Contains(t, e.Text, "graph api unavailable")
			continue
		}
		require.NotNil(t, e.Outcome)
		assert.False(t, e.Outcome.Delivered)
	}
	assert.Equal(t, 2, diagnostics)

	stored, err := f.store.Load(context.Background(), domain.SessionKey{ProjectID: "acme", SenderID: "5511"})
	require.NoError(t, err)
	assert.Equal(t, "ask", stored.CurrentNodeID)
}

func TestProcessor_SessionKeepsCapturedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.proc.Handle(ctx, event("m1", "hey"))
	require.NoError(t, err)
	v1 := first.Session.GraphVersion

	edited := greetingFlow("Welcome")
	edited.Nodes[3].Properties["message"] = "Bye {name}"
	require.NoError(t, f.flows.Publish(ctx, "acme", edited))

	res, err := f.proc.Handle(ctx, event("m2", "Alice"))
	require.NoError(t, err)
	assert.Equal(t, v1, res.Session.GraphVersion)
	assert.Equal(t, domain.StatusCompleted, res.Session.Status)
	assert.Equal(t, []string{"Hi", "name?", "Hello Alice"}, f.gateway.texts())

	// A finished session restarts on the newly active version.
	res, err = f.proc.Handle(ctx, event("m3", "again"))
	require.NoError(t, err)
	assert.NotEqual(t, v1, res.Session.GraphVersion)
	assert.Equal(t, "Welcome", f.gateway.texts()[3])
	assert.Contains(t, res.Session.RecentMessages, "m1", "redelivery window survives a restart")
}

func TestProcessor_RejectsOversizedInput(t *testing.T) {
	f := newFixture(t, runner.WithMaxInputSize(8))

	_, err := f.proc.Handle(context.Background(), event("m1", strings.Repeat("x", 9)))
	assert.ErrorIs(t, err, domain.ErrInputTooLarge)
	assert.Empty(t, f.gateway.texts())
}

type countingObserver struct {
	mu         sync.Mutex
	steps      int
	duplicates int
	deliveries int
}

func (o *countingObserver) ObserveStep(s *domain.Session, duplicate bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps++
	if duplicate {
		o.duplicates++
	}
}

func (o *countingObserver) ObserveDelivery(domain.Effect, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deliveries++
}

func (o *countingObserver) ObserveLockTimeout(string) {}

func TestProcessor_Observer(t *testing.T) {
	obs := &countingObserver{}
	f := newFixture(t, runner.WithObserver(obs))
	ctx := context.Background()

	_, err := f.proc.Handle(ctx, event("m1", "hey"))
	require.NoError(t, err)
	_, err = f.proc.Handle(ctx, event("m1", "hey"))
	require.NoError(t, err)

	assert.Equal(t, 2, obs.steps)
	assert.Equal(t, 1, obs.duplicates)
	assert.Equal(t, 2, obs.deliveries)
}
