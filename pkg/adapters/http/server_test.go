package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow"
	chathttp "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/observability"
)

type recordingGateway struct {
	mu    sync.Mutex
	texts []string
}

func (g *recordingGateway) SendText(_ context.Context, _, _, text string) (domain.DeliveryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts = append(g.texts, text)
	return domain.DeliveryResult{Delivered: true}, nil
}

func (g *recordingGateway) SendInteractive(ctx context.Context, projectID, to, text string, _ []string) (domain.DeliveryResult, error) {
	return g.SendText(ctx, projectID, to, text)
}

const flowJSON = `{
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "hi", "type": "message", "properties": {"message": "Hi"}},
    {"id": "ask", "type": "askaQuestion", "properties": {"question": "name?", "propertyName": "name"}},
    {"id": "end", "type": "end"}
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "hi"},
    {"id": "e2", "source": "hi", "target": "ask"},
    {"id": "e3", "source": "ask", "target": "end"}
  ]
}`

const notification = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "metadata": {"phone_number_id": "1029384756"},
    "messages": [{"from": "5511", "id": "wamid.1", "type": "text", "text": {"body": "hello"}}]
  }}]}]
}`

type harness struct {
	handler  http.Handler
	gateway  *recordingGateway
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	gw := &recordingGateway{}
	eng := chatflow.New(
		chatflow.WithGateway(gw),
		chatflow.WithMetrics(observability.NewMetrics(reg)),
	)
	h, err := chathttp.NewHandler(eng,
		chathttp.WithVerifyToken("s3cret"),
		chathttp.WithGatherer(reg),
	)
	require.NoError(t, err)
	return &harness{handler: h, gateway: gw, registry: reg}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func (h *harness) setup(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPut, "/projects/acme/channel",
		`{"phone_number_id":"1029384756","access_token":"tok"}`).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/projects/acme/activate", flowJSON).Code)
}

func TestGetHealth(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestGetInfo(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "chatflow", resp["app"])
	assert.NotEmpty(t, resp["version"])
	assert.Equal(t, "0.1.0", resp["api_version"])
}

func TestOpenAPIDocument(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "openapi: 3.0.3")
}

func TestValidateFlow(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/flows/validate", `{"nodes":[]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"isValid":false,"errors":["flow has no nodes"]}`, rr.Body.String())

	rr = h.do(http.MethodPost, "/flows/validate", flowJSON)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"isValid":true,"errors":[]}`, rr.Body.String())
}

func TestValidateFlow_RejectedBySchema(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/flows/validate", `{"edges":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDraftAndActivation(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/projects/acme/flow", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/projects/acme/activate", "").Code)

	require.Equal(t, http.StatusNoContent, h.do(http.MethodPut, "/projects/acme/flow", flowJSON).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/projects/acme/flow", "").Code)

	rr := h.do(http.MethodPost, "/projects/acme/activate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		IsValid bool     `json:"isValid"`
		Errors  []string `json:"errors"`
		Version string   `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.IsValid)
	assert.NotEmpty(t, body.Version)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/projects/acme/deactivate", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/projects/ghost/deactivate", "").Code)
}

func TestActivateInvalid(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/projects/acme/activate",
		`{"nodes":[{"id":"a","type":"start"},{"id":"b","type":"start"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body domain.ValidationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.IsValid)
	assert.Contains(t, body.Errors, "multiple start nodes")
}

func TestWebhookVerify(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=s3cret&hub.challenge=42", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "42", rr.Body.String())

	rr = h.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestWebhookReceive(t *testing.T) {
	h := newHarness(t)
	h.setup(t)

	rr := h.do(http.MethodPost, "/webhook", notification)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Hi", "name?"}, h.gateway.texts)

	rr = h.do(http.MethodGet, "/projects/acme/sessions/5511", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sess domain.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.Equal(t, "ask", sess.CurrentNodeID)

	// Redelivery of the same message is acknowledged without new messages.
	rr = h.do(http.MethodPost, "/webhook", notification)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, h.gateway.texts, 2)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/projects/acme/sessions/5511", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/projects/acme/sessions/5511", "").Code)
}

func TestWebhookReceive_Rejections(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/webhook", `{"object":"page"}`).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/webhook", notification).Code, "unknown channel")

	require.Equal(t, http.StatusNoContent, h.do(http.MethodPut, "/projects/acme/channel",
		`{"phone_number_id":"1029384756","access_token":"tok"}`).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/webhook", notification).Code, "inactive project")

	status := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"1029384756"},"statuses":[{"status":"read"}]}}]}]}`
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/webhook", status).Code)
	assert.Empty(t, h.gateway.texts)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.setup(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/webhook", notification).Code)

	rr := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "chatflow_steps_total")
	assert.Contains(t, rr.Body.String(), "chatflow_activations_total")
}
