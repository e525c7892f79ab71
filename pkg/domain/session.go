package domain

import (
	"slices"
	"strings"
	"time"
)

// SessionStatus defines the lifecycle position of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"    // Positioned on a node of its captured graph
	StatusCompleted SessionStatus = "completed" // Reached an end node
	StatusAborted   SessionStatus = "aborted"   // Stopped by a fault confined to this session
)

// IsTerminal reports whether no further step may advance the session.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// AwaitKind describes which reply a suspended session is waiting for.
type AwaitKind string

const (
	AwaitNone    AwaitKind = ""
	AwaitButtons AwaitKind = "buttons"
	AwaitKeyword AwaitKind = "keyword"
	AwaitText    AwaitKind = "text"
)

// RecentMessageWindow bounds how many channel message ids a session remembers for redelivery detection.
const RecentMessageWindow = 32

// SessionKey identifies the single session of a sender within a project.
type SessionKey struct {
	ProjectID string `json:"project_id"`
	SenderID  string `json:"sender_id"`
}

// String renders the key as "project:sender", the form used by stores and lockers.
func (k SessionKey) String() string {
	return k.ProjectID + ":" + k.SenderID
}

// Session is the per-sender runtime record of a conversation.
type Session struct {
	ProjectID     string            `json:"project_id"`
	SenderID      string            `json:"sender_id"`
	CurrentNodeID string            `json:"current_node_id"`
	Variables     map[string]string `json:"variables"`
	Status        SessionStatus     `json:"status"`

	// Awaiting is the persisted suspension marker; CurrentNodeID is the continuation.
	Awaiting AwaitKind `json:"awaiting,omitempty"`

	// GraphVersion is the fingerprint of the graph captured when the session started.
	GraphVersion string `json:"graph_version"`

	CreatedAt      time.Time `json:"created_at"`
	LastAdvancedAt time.Time `json:"last_advanced_at"`

	// History tracks the nodes entered, in order.
	History []string `json:"history,omitempty"`

	// RecentMessages holds the latest channel message ids already processed.
	RecentMessages []string `json:"recent_messages,omitempty"`

	AbortReason string `json:"abort_reason,omitempty"`
}

// NewSession creates a fresh session positioned at startNodeID.
func NewSession(key SessionKey, startNodeID, graphVersion string, now time.Time) *Session {
	return &Session{
		ProjectID:      key.ProjectID,
		SenderID:       key.SenderID,
		CurrentNodeID:  startNodeID,
		Variables:      make(map[string]string),
		Status:         StatusActive,
		GraphVersion:   graphVersion,
		CreatedAt:      now,
		LastAdvancedAt: now,
		History:        []string{startNodeID},
	}
}

// Key returns the session key.
func (s *Session) Key() SessionKey {
	return SessionKey{ProjectID: s.ProjectID, SenderID: s.SenderID}
}

// Clone returns a deep copy safe for mutation.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	next := *s
	next.Variables = make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		next.Variables[k] = v
	}
	next.History = slices.Clone(s.History)
	next.RecentMessages = slices.Clone(s.RecentMessages)
	return &next
}

// HasSeen reports whether the channel message id was already processed.
func (s *Session) HasSeen(messageID string) bool {
	if messageID == "" {
		return false
	}
	return slices.Contains(s.RecentMessages, messageID)
}

// Remember records a processed channel message id, keeping the window bounded.
func (s *Session) Remember(messageID string) {
	if messageID == "" || s.HasSeen(messageID) {
		return
	}
	s.RecentMessages = append(s.RecentMessages, messageID)
	if over := len(s.RecentMessages) - RecentMessageWindow; over > 0 {
		s.RecentMessages = slices.Clone(s.RecentMessages[over:])
	}
}

// ParseSessionKey reverses SessionKey.String. The project id must not contain ':'.
func ParseSessionKey(s string) (SessionKey, bool) {
	project, sender, ok := strings.Cut(s, ":")
	if !ok || project == "" || sender == "" {
		return SessionKey{}, false
	}
	return SessionKey{ProjectID: project, SenderID: sender}, true
}
