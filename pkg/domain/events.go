package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter      EventType = "node_enter"
	EventNodeLeave      EventType = "node_leave"
	EventExternalCall   EventType = "external_call"
	EventExternalReturn EventType = "external_return"
	EventSessionEnd     EventType = "session_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id"`
	SenderID  string    `json:"sender_id"`
}

// NodeEvent represents entry into or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
}

// ExternalEvent represents one attempt of an apiCall.
type ExternalEvent struct {
	EventBase
	NodeID      string        `json:"node_id"`
	RequestName string        `json:"request_name"`
	Attempt     int           `json:"attempt"`
	StatusCode  int           `json:"status_code,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	IsError     bool          `json:"is_error,omitempty"`
}

// SessionEvent represents a session reaching a terminal status.
type SessionEvent struct {
	EventBase
	Status SessionStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// LifecycleHooks defines callbacks for executor observability.
type LifecycleHooks struct {
	OnNodeEnter      func(context.Context, *NodeEvent)
	OnNodeLeave      func(context.Context, *NodeEvent)
	OnExternalCall   func(context.Context, *ExternalEvent)
	OnExternalReturn func(context.Context, *ExternalEvent)
	OnSessionEnd     func(context.Context, *SessionEvent)
}
