package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/domain"
)

func apiGraph(props map[string]any) *domain.Graph {
	return newGraph().
		node("start", domain.NodeTypeStart, nil).
		node("ask", domain.NodeTypeAskQuestion, map[string]any{"question": "order id?", "propertyName": "order"}).
		node("call", domain.NodeTypeAPICall, props).
		node("done", domain.NodeTypeMessage, map[string]any{"message": "Status: {{status}}"}).
		node("end", domain.NodeTypeEnd, nil).
		edge("start", "ask", "").
		edge("ask", "call", "").
		edge("call", "done", "").
		edge("done", "end", "").
		build()
}

func askedSession(t *testing.T, x *Executor, g *domain.Graph) *domain.Session {
	t.Helper()
	s, _, err := x.Step(context.Background(), g, nil, text(""))
	require.NoError(t, err)
	require.Equal(t, "ask", s.CurrentNodeID)
	return s
}

func TestAPICall_SuccessMergesVariables(t *testing.T) {
	inv := new(mockInvoker)
	g := apiGraph(map[string]any{
		"requestName":     "orderStatus",
		"url":             "https://api.example.com/orders/{order}",
		"method":          "post",
		"headers":         map[string]any{"X-Order": "{{order}}"},
		"body":            `{"id":"{order}"}`,
		"responseMapping": map[string]any{"status": "data.status"},
		"propertyName":    "raw",
	})
	x := New(WithInvoker(inv), WithRetryPolicy(fastPolicy()))
	s := askedSession(t, x, g)

	expected := domain.ExternalRequest{
		Name:    "orderStatus",
		URL:     "https://api.example.com/orders/A-42",
		Method:  "POST",
		Headers: map[string]string{"X-Order": "A-42"},
		Body:    `{"id":"A-42"}`,
	}
	body := []byte(`{"data":{"status":"shipped"}}`)
	inv.On("Invoke", mock.Anything, expected).Return(domain.ExternalResponse{StatusCode: 200, Body: body}, nil).Once()

	next, effects, err := x.Step(context.Background(), g, s, text("A-42"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, next.Status)
	assert.Equal(t, "shipped", next.Variables["status"])
	assert.Equal(t, string(body), next.Variables["raw"])
	assert.Equal(t, []string{"Status: shipped"}, texts(effects))
	inv.AssertExpectations(t)
}

func TestAPICall_RetriesThenAborts(t *testing.T) {
	inv := new(mockInvoker)
	g := apiGraph(map[string]any{"requestName": "orderStatus", "url": "https://api.example.com/orders", "errorMessage": "Service down"})
	var calls, returns int
	x := New(WithInvoker(inv), WithRetryPolicy(fastPolicy()), WithLifecycleHooks(domain.LifecycleHooks{
		OnExternalCall:   func(context.Context, *domain.ExternalEvent) { calls++ },
		OnExternalReturn: func(_ context.Context, e *domain.ExternalEvent) { returns++; assert.True(t, e.IsError) },
	}))
	s := askedSession(t, x, g)

	inv.On("Invoke", mock.Anything, mock.Anything).
		Return(domain.ExternalResponse{StatusCode: 503}, &domain.StatusError{StatusCode: 503}).Times(3)

	next, effects, err := x.Step(context.Background(), g, s, text("A-42"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAborted, next.Status)
	assert.Equal(t, "call", next.CurrentNodeID, "no outgoing edge is taken")
	assert.Equal(t, []string{"Service down"}, texts(effects))
	assert.Contains(t, next.AbortReason, "3 attempt(s)")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, returns)
	inv.AssertExpectations(t)
}

func TestAPICall_ClientErrorIsNotRetried(t *testing.T) {
	inv := new(mockInvoker)
	g := apiGraph(map[string]any{"requestName": "orderStatus", "url": "https://api.example.com/orders"})
	x := New(WithInvoker(inv), WithRetryPolicy(fastPolicy()))
	s := askedSession(t, x, g)

	inv.On("Invoke", mock.Anything, mock.Anything).
		Return(domain.ExternalResponse{StatusCode: 404}, &domain.StatusError{StatusCode: 404}).Once()

	next, effects, err := x.Step(context.Background(), g, s, text("A-42"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAborted, next.Status)
	assert.Equal(t, []string{DefaultFailureNotice}, texts(effects))
	assert.Contains(t, next.AbortReason, "status 404")
	inv.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestAPICall_NoInvokerAborts(t *testing.T) {
	g := apiGraph(map[string]any{"requestName": "orderStatus", "url": "https://api.example.com/orders"})
	x := New()
	s := askedSession(t, x, g)

	next, _, err := x.Step(context.Background(), g, s, text("A-42"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAborted, next.Status)
}

func TestAPICall_CancelledContextIsNotAFlowFault(t *testing.T) {
	inv := new(mockInvoker)
	g := apiGraph(map[string]any{"requestName": "orderStatus", "url": "https://api.example.com/orders"})
	x := New(WithInvoker(inv), WithRetryPolicy(fastPolicy()))
	s := askedSession(t, x, g)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv.On("Invoke", mock.Anything, mock.Anything).Return(domain.ExternalResponse{}, context.Canceled).Once()

	next, effects, err := x.Step(ctx, g, s, text("A-42"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, effects)
	assert.Same(t, s, next)
	assert.Equal(t, domain.StatusActive, next.Status)
}
