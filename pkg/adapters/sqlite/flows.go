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

// FlowRepository is a ports.FlowRepository backed by SQLite.
type FlowRepository struct {
	db *sql.DB
}

var _ ports.FlowRepository = (*FlowRepository)(nil)

// NewFlowRepository wraps a database prepared by Open.
func NewFlowRepository(db *sql.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

func encodeGraph(g *domain.Graph) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return data, nil
}

func decodeGraph(data []byte) (*domain.Graph, error) {
	var g domain.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return &g, nil
}

// SaveDraft replaces the project's draft.
func (r *FlowRepository) SaveDraft(ctx context.Context, projectID string, g *domain.Graph) error {
	data, err := encodeGraph(g)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, draft) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET draft = excluded.draft, updated_at = CURRENT_TIMESTAMP`,
		projectID, data,
	)
	return err
}

// Draft returns the project's draft.
func (r *FlowRepository) Draft(ctx context.Context, projectID string) (*domain.Graph, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT draft FROM projects WHERE id = ?`, projectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && data == nil) {
		return nil, domain.ErrFlowNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeGraph(data)
}

// Publish stores the graph version (once) and activates it, atomically.
func (r *FlowRepository) Publish(ctx context.Context, projectID string, g *domain.Graph) error {
	version := g.Version
	if version == "" {
		version = g.Fingerprint()
	}
	data, err := encodeGraph(g)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO flow_versions (project_id, version, graph) VALUES (?, ?, ?)`,
		projectID, version, data,
	); err != nil {
		return fmt.Errorf("failed to store flow version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, active_version) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET active_version = excluded.active_version, updated_at = CURRENT_TIMESTAMP`,
		projectID, version,
	); err != nil {
		return fmt.Errorf("failed to activate flow version: %w", err)
	}
	return tx.Commit()
}

// Deactivate clears the active version.
func (r *FlowRepository) Deactivate(ctx context.Context, projectID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET active_version = '', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, projectID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrFlowNotFound
	}
	return nil
}

// Active returns the active graph.
func (r *FlowRepository) Active(ctx context.Context, projectID string) (*domain.Graph, error) {
	var version string
	err := r.db.QueryRowContext(ctx, `SELECT active_version FROM projects WHERE id = ?`, projectID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && version == "") {
		return nil, domain.ErrFlowNotActive
	}
	if err != nil {
		return nil, err
	}
	return r.Version(ctx, projectID, version)
}

// Version returns a published graph.
func (r *FlowRepository) Version(ctx context.Context, projectID, version string) (*domain.Graph, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT graph FROM flow_versions WHERE project_id = ? AND version = ?`, projectID, version,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFlowVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	g, err := decodeGraph(data)
	if err != nil {
		return nil, err
	}
	return g.Restore(version), nil
}
