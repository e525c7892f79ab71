package whatsapp_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/adapters/whatsapp"
	"github.com/aretw0/chatflow/pkg/domain"
)

type captured struct {
	path string
	auth string
	body []byte
}

func newGraphAPI(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		c.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newGateway(srv *httptest.Server) *whatsapp.Gateway {
	channels := memory.NewChannels(domain.Channel{ProjectID: "acme", PhoneNumberID: "1029384756", AccessToken: "tok"})
	return whatsapp.NewGateway(channels, whatsapp.WithBaseURL(srv.URL+"/"), whatsapp.WithHTTPClient(srv.Client()))
}

func TestGateway_SendText(t *testing.T) {
	srv, got := newGraphAPI(t, http.StatusOK, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.OUT1"}]}`)
	gw := newGateway(srv)

	res, err := gw.SendText(context.Background(), "acme", "5511999990000", "Welcome!")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, "wamid.OUT1", res.MessageID)

	assert.Equal(t, "/1029384756/messages", got.path)
	assert.Equal(t, "Bearer tok", got.auth)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "whatsapp", payload["messaging_product"])
	assert.Equal(t, "5511999990000", payload["to"])
	assert.Equal(t, "text", payload["type"])
	assert.Equal(t, "Welcome!", gjson.GetBytes(got.body, "text.body").String())
	assert.NotContains(t, payload, "interactive")
}

func TestGateway_SendInteractive(t *testing.T) {
	srv, got := newGraphAPI(t, http.StatusOK, `{"messages":[{"id":"wamid.OUT2"}]}`)
	gw := newGateway(srv)

	res, err := gw.SendInteractive(context.Background(), "acme", "55", "Pick one",
		[]string{"Support", "Talk to  Sales", "Billing", "Extra"})
	require.NoError(t, err)
	assert.True(t, res.Delivered)

	assert.Equal(t, "interactive", gjson.GetBytes(got.body, "type").String())
	assert.Equal(t, "button", gjson.GetBytes(got.body, "interactive.type").String())
	assert.Equal(t, "Pick one", gjson.GetBytes(got.body, "interactive.body.text").String())

	buttons := gjson.GetBytes(got.body, "interactive.action.buttons").Array()
	require.Len(t, buttons, 3)
	assert.Equal(t, "reply", buttons[0].Get("type").String())
	assert.Equal(t, "btn_1_support", buttons[0].Get("reply.id").String())
	assert.Equal(t, "btn_2_talk_to_sales", buttons[1].Get("reply.id").String())
	assert.Equal(t, "Talk to  Sales", buttons[1].Get("reply.title").String())
}

func TestGateway_Rejected(t *testing.T) {
	srv, _ := newGraphAPI(t, http.StatusUnauthorized, `{"error":{"message":"Invalid OAuth access token"}}`)
	gw := newGateway(srv)

	res, err := gw.SendText(context.Background(), "acme", "55", "hi")
	require.Error(t, err)
	assert.False(t, res.Delivered)
	assert.NotEmpty(t, res.Error)

	var derr *domain.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "55", derr.SenderID)

	var serr *domain.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusUnauthorized, serr.StatusCode)
}

func TestGateway_UnknownProject(t *testing.T) {
	srv, got := newGraphAPI(t, http.StatusOK, `{}`)
	gw := newGateway(srv)

	_, err := gw.SendText(context.Background(), "ghost", "55", "hi")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
	assert.Empty(t, got.path, "no request is made without credentials")
}
