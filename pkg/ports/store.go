package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// SessionStore defines the interface for persisting conversation sessions.
// Callers serialize access per key through the session manager.
type SessionStore interface {
	// Save persists the session under its (project, sender) key.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the session for the key.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error)

	// Delete removes the session for the key.
	Delete(ctx context.Context, key domain.SessionKey) error

	// List returns the keys of all stored sessions.
	List(ctx context.Context) ([]domain.SessionKey, error)
}
