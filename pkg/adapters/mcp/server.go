// Package mcp exposes flow validation, activation and session inspection as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
)

const flowURIPrefix = "chatflow://flows/"

// Engine is the part of chatflow.Engine the tools drive.
type Engine interface {
	Validate(g *domain.Graph) domain.ValidationResult
	Activate(ctx context.Context, projectID string, g *domain.Graph) (domain.ValidationResult, error)
	ActiveFlow(ctx context.Context, projectID string) (*domain.Graph, error)
	Handle(ctx context.Context, ev domain.InboundEvent) (runner.Result, error)
	Session(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
}

var _ Engine = (*chatflow.Engine)(nil)

// ActivationResponse is the structured result of activate_flow.
type ActivationResponse struct {
	IsValid bool     `json:"isValid" jsonschema_description:"Whether the flow passed validation and is now live"`
	Errors  []string `json:"errors" jsonschema_description:"Every validation diagnostic, in rule order"`
	Version string   `json:"version,omitempty" jsonschema_description:"Published graph version when activated"`
}

// MessageResponse is the structured result of send_message.
type MessageResponse struct {
	Session   *domain.Session `json:"session,omitempty" jsonschema_description:"The session after the step"`
	Effects   []domain.Effect `json:"effects" jsonschema_description:"Messages and diagnostics produced by the step"`
	Duplicate bool            `json:"duplicate" jsonschema_description:"True when the message id was already processed"`
}

type validateArgs struct {
	Flow string `json:"flow"`
}

type activateArgs struct {
	ProjectID string `json:"project_id"`
	Flow      string `json:"flow"`
}

type sessionArgs struct {
	ProjectID string `json:"project_id"`
	SenderID  string `json:"sender_id"`
}

type messageArgs struct {
	ProjectID string `json:"project_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	ButtonID  string `json:"button_id"`
	MessageID string `json:"message_id"`
}

// Server wraps the engine as an MCP server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("chatflow-mcp", chatflow.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sse.SSEHandler())
	mux.Handle("/message", sse.MessageHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop mcp server gracefully: %w", err)
		}
		return nil
	}
}

// MCPServer exposes the underlying server, e.g. for SSE or streamable HTTP transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("validate_flow",
		mcp.WithDescription("Validate a flow graph and list every diagnostic. Nothing is stored."),
		mcp.WithString("flow", mcp.Required(), mcp.Description("Flow document as JSON: {nodes:[...], edges:[...]}")),
		mcp.WithOutputSchema[domain.ValidationResult](),
	), mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("activate_flow",
		mcp.WithDescription("Validate a flow and, if valid, make it the project's live flow. Without a flow the stored draft is used."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("flow", mcp.Description("Flow document as JSON (optional)")),
		mcp.WithOutputSchema[ActivationResponse](),
	), mcp.NewStructuredToolHandler(s.handleActivate))

	s.mcpServer.AddTool(mcp.NewTool("inspect_session",
		mcp.WithDescription("Return the stored session of a sender: current node, variables and status."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("sender_id", mcp.Required(), mcp.Description("Channel address of the sender")),
	), s.handleInspect)

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Simulate an inbound message and run one step of the sender's session."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("sender_id", mcp.Required(), mcp.Description("Channel address of the sender")),
		mcp.WithString("text", mcp.Description("Message text")),
		mcp.WithString("button_id", mcp.Description("Selected reply button id or label")),
		mcp.WithString("message_id", mcp.Description("Channel message id, used for redelivery detection")),
		mcp.WithOutputSchema[MessageResponse](),
	), mcp.NewStructuredToolHandler(s.handleMessage))
}

func parseFlow(raw string) (*domain.Graph, error) {
	var g domain.Graph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("invalid flow json: %w", err)
	}
	return &g, nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest, args validateArgs) (domain.ValidationResult, error) {
	g, err := parseFlow(args.Flow)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return s.engine.Validate(g), nil
}

func (s *Server) handleActivate(ctx context.Context, request mcp.CallToolRequest, args activateArgs) (ActivationResponse, error) {
	if args.ProjectID == "" {
		return ActivationResponse{}, errors.New("project_id is required")
	}
	var g *domain.Graph
	if strings.TrimSpace(args.Flow) != "" {
		var err error
		if g, err = parseFlow(args.Flow); err != nil {
			return ActivationResponse{}, err
		}
	}

	res, err := s.engine.Activate(ctx, args.ProjectID, g)
	out := ActivationResponse{IsValid: res.IsValid, Errors: res.Errors}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFlow) {
			return out, nil
		}
		return ActivationResponse{}, fmt.Errorf("activation failed: %w", err)
	}
	if active, err := s.engine.ActiveFlow(ctx, args.ProjectID); err == nil {
		out.Version = active.Version
	}
	return out, nil
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	sess, err := s.engine.Session(ctx, domain.SessionKey{ProjectID: args.ProjectID, SenderID: args.SenderID})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleMessage(ctx context.Context, request mcp.CallToolRequest, args messageArgs) (MessageResponse, error) {
	res, err := s.engine.Handle(ctx, domain.InboundEvent{
		ProjectID:         args.ProjectID,
		SenderID:          args.SenderID,
		MessageID:         args.MessageID,
		Text:              args.Text,
		ButtonSelectionID: args.ButtonID,
	})
	if err != nil {
		s.logger.Warn("MCP send_message failed", "project_id", args.ProjectID, "err", err)
		return MessageResponse{}, fmt.Errorf("step failed: %w", err)
	}
	effects := res.Effects
	if effects == nil {
		effects = []domain.Effect{}
	}
	return MessageResponse{Session: res.Session, Effects: effects, Duplicate: res.Duplicate}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(flowURIPrefix+"{project_id}", "Active flow of a project",
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		projectID := strings.TrimPrefix(request.Params.URI, flowURIPrefix)
		g, err := s.engine.ActiveFlow(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to read flow %s: %w", projectID, err)
		}
		data, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
