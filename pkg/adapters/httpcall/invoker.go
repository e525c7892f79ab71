// Package httpcall performs the outbound requests of apiCall nodes over HTTP.
package httpcall

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultMaxResponseBytes caps how much of a response body is read.
const DefaultMaxResponseBytes = 1 << 20

// Invoker implements ports.ExternalInvoker with net/http.
type Invoker struct {
	client   *http.Client
	maxBytes int64
	agent    string
	logger   *slog.Logger
}

var _ ports.ExternalInvoker = (*Invoker)(nil)

// Option configures the Invoker.
type Option func(*Invoker)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Invoker) {
		i.client = c
	}
}

// WithMaxResponseBytes caps response bodies.
func WithMaxResponseBytes(n int64) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header sent when the request has none.
func WithUserAgent(ua string) Option {
	return func(i *Invoker) {
		i.agent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) {
		i.logger = l
	}
}

// New creates an Invoker. Per-attempt deadlines come from the caller's context.
func New(opts ...Option) *Invoker {
	i := &Invoker{
		client:   &http.Client{},
		maxBytes: DefaultMaxResponseBytes,
		agent:    "chatflow",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke sends the request. A non-2xx response is reported as *domain.StatusError.
func (i *Invoker) Invoke(ctx context.Context, req domain.ExternalRequest) (domain.ExternalResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return domain.ExternalResponse{}, fmt.Errorf("build request %s: %w", req.Name, err)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	if req.Body != "" && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", i.agent)
	}

	start := time.Now()
	resp, err := i.client.Do(hreq)
	if err != nil {
		return domain.ExternalResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes))
	elapsed := time.Since(start)
	if err != nil {
		return domain.ExternalResponse{}, fmt.Errorf("read response %s: %w", req.Name, err)
	}

	i.logger.Debug("external call",
		"name", req.Name,
		"method", method,
		"status", resp.StatusCode,
		"duration", elapsed,
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ExternalResponse{StatusCode: resp.StatusCode, Body: data, Duration: elapsed},
			&domain.StatusError{StatusCode: resp.StatusCode, Body: data}
	}
	return domain.ExternalResponse{StatusCode: resp.StatusCode, Body: data, Duration: elapsed}, nil
}
