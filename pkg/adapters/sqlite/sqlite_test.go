package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/adapters/sqlite"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteFlowRepository_Contract(t *testing.T) {
	ports.RunFlowRepositoryContract(t, sqlite.NewFlowRepository(openDB(t)))
}

func TestSQLiteChannels_Contract(t *testing.T) {
	ports.RunChannelDirectoryContract(t, sqlite.NewChannels(openDB(t)))
}

func TestSQLiteSessionStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, sqlite.NewSessionStore(openDB(t)))
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatflow.db")
	ctx := context.Background()

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	g := (&domain.Graph{
		Nodes: []domain.Node{{ID: "start", Type: domain.NodeTypeStart}, {ID: "end", Type: domain.NodeTypeEnd}},
		Edges: []domain.Edge{{ID: "e", Source: "start", Target: "end"}},
	}).Seal()
	require.NoError(t, sqlite.NewFlowRepository(db).Publish(ctx, "acme", g))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()

	active, err := sqlite.NewFlowRepository(db).Active(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, g.Version, active.Version)
	_, ok := active.Node("end")
	assert.True(t, ok)
}
