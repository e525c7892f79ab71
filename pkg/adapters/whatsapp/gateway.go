package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultBaseURL is the Graph API root used for message delivery.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// Gateway implements ports.OutboundGateway over the WhatsApp Cloud API.
type Gateway struct {
	client   *http.Client
	baseURL  string
	channels ports.ChannelDirectory
	logger   *slog.Logger
}

var _ ports.OutboundGateway = (*Gateway)(nil)

// Option configures the Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithBaseURL overrides the Graph API root (tests, API version pinning).
func WithBaseURL(u string) Option {
	return func(g *Gateway) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// NewGateway creates a gateway resolving credentials through channels.
func NewGateway(channels ports.ChannelDirectory, opts ...Option) *Gateway {
	g := &Gateway{
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  DefaultBaseURL,
		channels: channels,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type textBody struct {
	Body string `json:"body"`
}

type replyButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type interactive struct {
	Type string `json:"type"`
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []replyButton `json:"buttons"`
	} `json:"action"`
}

type message struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

// SendText delivers a plain text message.
func (g *Gateway) SendText(ctx context.Context, projectID, to, text string) (domain.DeliveryResult, error) {
	return g.send(ctx, projectID, message{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

// SendInteractive delivers a reply-button message. Only the first three options are sent.
func (g *Gateway) SendInteractive(ctx context.Context, projectID, to, text string, options []string) (domain.DeliveryResult, error) {
	if len(options) == 0 {
		return g.SendText(ctx, projectID, to, text)
	}
	if len(options) > domain.MaxButtons {
		options = options[:domain.MaxButtons]
	}

	in := &interactive{Type: "button"}
	in.Body.Text = text
	for i, label := range options {
		b := replyButton{Type: "reply"}
		b.Reply.ID = domain.ButtonID(i, label)
		b.Reply.Title = label
		in.Action.Buttons = append(in.Action.Buttons, b)
	}

	return g.send(ctx, projectID, message{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive:      in,
	})
}

func (g *Gateway) send(ctx context.Context, projectID string, msg message) (domain.DeliveryResult, error) {
	fail := func(err error) (domain.DeliveryResult, error) {
		return domain.DeliveryResult{Error: err.Error()}, &domain.DeliveryError{SenderID: msg.To, Err: err}
	}

	ch, err := g.channels.ByProject(ctx, projectID)
	if err != nil {
		return fail(fmt.Errorf("credentials for project %s: %w", projectID, err))
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fail(err)
	}

	url := fmt.Sprintf("%s/%s/messages", g.baseURL, ch.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Authorization", "Bearer "+ch.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fail(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("whatsapp delivery rejected",
			"project_id", projectID,
			"status", resp.StatusCode,
			"error_message", gjson.GetBytes(body, "error.message").String(),
		)
		return fail(&domain.StatusError{StatusCode: resp.StatusCode, Body: body})
	}

	id := gjson.GetBytes(body, "messages.0.id").String()
	g.logger.Debug("whatsapp message sent", "project_id", projectID, "type", msg.Type, "message_id", id)
	return domain.DeliveryResult{Delivered: true, MessageID: id}, nil
}
