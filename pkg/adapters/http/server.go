// Package http exposes the engine over HTTP: the WhatsApp webhook, the flow
// management API and the metrics endpoint.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
)

// Engine is the part of chatflow.Engine the server drives.
type Engine interface {
	Validate(g *domain.Graph) domain.ValidationResult
	SaveDraft(ctx context.Context, projectID string, g *domain.Graph) error
	Draft(ctx context.Context, projectID string) (*domain.Graph, error)
	Activate(ctx context.Context, projectID string, g *domain.Graph) (domain.ValidationResult, error)
	Deactivate(ctx context.Context, projectID string) error
	ActiveFlow(ctx context.Context, projectID string) (*domain.Graph, error)
	RegisterChannel(ctx context.Context, ch domain.Channel) error
	ResolveChannel(ctx context.Context, phoneNumberID string) (string, error)
	Handle(ctx context.Context, ev domain.InboundEvent) (runner.Result, error)
	Session(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
	DeleteSession(ctx context.Context, key domain.SessionKey) error
}

var _ Engine = (*chatflow.Engine)(nil)

// DefaultHandleTimeout bounds the processing of one webhook event.
const DefaultHandleTimeout = 30 * time.Second

// Server holds the handlers' dependencies.
type Server struct {
	engine        Engine
	verifyToken   string
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
	handleTimeout time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithVerifyToken sets the token expected by the webhook subscription handshake.
func WithVerifyToken(token string) Option {
	return func(s *Server) {
		s.verifyToken = token
	}
}

// WithGatherer sets the registry served on /metrics. Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithHandleTimeout bounds webhook processing.
func WithHandleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.handleTimeout = d
		}
	}
}

// NewHandler builds the router. Management routes are validated against the embedded OpenAPI document.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		engine:        engine,
		gatherer:      prometheus.DefaultGatherer,
		logger:        logging.NewNop(),
		handleTimeout: DefaultHandleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	router, err := newSpecRouter()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get("/webhook", s.VerifyWebhook)
	r.Post("/webhook", s.ReceiveWebhook)

	r.Group(func(r chi.Router) {
		r.Use(validateRequests(router, s.logger))

		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Post("/flows/validate", s.ValidateFlow)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/flow", s.GetDraft)
			r.Put("/flow", s.SaveDraft)
			r.Post("/activate", s.ActivateFlow)
			r.Post("/deactivate", s.DeactivateFlow)
			r.Put("/channel", s.RegisterChannel)
			r.Get("/sessions/{senderID}", s.GetSession)
			r.Delete("/sessions/{senderID}", s.DeleteSession)
		})
	})

	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "chatflow",
		"version":     chatflow.Version,
		"api_version": specVersion(),
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
