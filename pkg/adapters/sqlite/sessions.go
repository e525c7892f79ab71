package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// SessionStore is a ports.SessionStore backed by SQLite.
type SessionStore struct {
	db *sql.DB
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore wraps a database prepared by Open.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save upserts the session.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (project_id, sender_id, data) VALUES (?, ?, ?)
		ON CONFLICT(project_id, sender_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		session.ProjectID, session.SenderID, data,
	)
	return err
}

// Load retrieves a session.
func (s *SessionStore) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE project_id = ? AND sender_id = ?`, key.ProjectID, key.SenderID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Variables == nil {
		session.Variables = make(map[string]string)
	}
	return &session, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, key domain.SessionKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE project_id = ? AND sender_id = ?`, key.ProjectID, key.SenderID)
	return err
}

// List returns every stored session key.
func (s *SessionStore) List(ctx context.Context) ([]domain.SessionKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, sender_id FROM sessions ORDER BY project_id, sender_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SessionKey
	for rows.Next() {
		var k domain.SessionKey
		if err := rows.Scan(&k.ProjectID, &k.SenderID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
