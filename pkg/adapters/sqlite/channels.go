package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Channels is a ports.ChannelDirectory backed by SQLite.
type Channels struct {
	db *sql.DB
}

var _ ports.ChannelDirectory = (*Channels)(nil)

// NewChannels wraps a database prepared by Open.
func NewChannels(db *sql.DB) *Channels {
	return &Channels{db: db}
}

// Register binds the channel, replacing any previous binding of the project.
func (c *Channels) Register(ctx context.Context, ch domain.Channel) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channels WHERE project_id = ? OR phone_number_id = ?`, ch.ProjectID, ch.PhoneNumberID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels (phone_number_id, project_id, access_token) VALUES (?, ?, ?)`,
		ch.PhoneNumberID, ch.ProjectID, ch.AccessToken,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Lookup resolves a phone number id.
func (c *Channels) Lookup(ctx context.Context, phoneNumberID string) (domain.Channel, error) {
	return c.scan(c.db.QueryRowContext(ctx,
		`SELECT phone_number_id, project_id, access_token FROM channels WHERE phone_number_id = ?`, phoneNumberID))
}

// ByProject resolves a project's channel.
func (c *Channels) ByProject(ctx context.Context, projectID string) (domain.Channel, error) {
	return c.scan(c.db.QueryRowContext(ctx,
		`SELECT phone_number_id, project_id, access_token FROM channels WHERE project_id = ?`, projectID))
}

func (c *Channels) scan(row *sql.Row) (domain.Channel, error) {
	var ch domain.Channel
	err := row.Scan(&ch.PhoneNumberID, &ch.ProjectID, &ch.AccessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return ch, err
}
