package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/domain"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	project := "contract-" + time.Now().Format("20060102150405")
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Save and Load", func(t *testing.T) {
		key := domain.SessionKey{ProjectID: project, SenderID: "5511999990000"}
		session := domain.NewSession(key, "start", "v1", now)
		session.CurrentNodeID = "ask"
		session.Awaiting = domain.AwaitText
		session.Variables["name"] = "Alice"
		session.Remember("wamid.1")

		require.NoError(t, store.Save(ctx, session), "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, key, loaded.Key())
		assert.Equal(t, "ask", loaded.CurrentNodeID)
		assert.Equal(t, domain.AwaitText, loaded.Awaiting)
		assert.Equal(t, "Alice", loaded.Variables["name"])
		assert.Equal(t, "v1", loaded.GraphVersion)
		assert.True(t, loaded.HasSeen("wamid.1"))
		assert.True(t, now.Equal(loaded.CreatedAt))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.SessionKey{ProjectID: project, SenderID: "nobody"})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		key := domain.SessionKey{ProjectID: project, SenderID: "overwrite"}
		session := domain.NewSession(key, "start", "v1", now)
		require.NoError(t, store.Save(ctx, session))

		session.Status = domain.StatusCompleted
		session.CurrentNodeID = "end"
		require.NoError(t, store.Save(ctx, session))

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, loaded.Status)
		assert.Equal(t, "end", loaded.CurrentNodeID)
		_ = store.Delete(ctx, key)
	})

	t.Run("Delete", func(t *testing.T) {
		key := domain.SessionKey{ProjectID: project, SenderID: "delete-me"}
		require.NoError(t, store.Save(ctx, domain.NewSession(key, "start", "v1", now)))

		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		k1 := domain.SessionKey{ProjectID: project, SenderID: "list-1"}
		k2 := domain.SessionKey{ProjectID: project, SenderID: "list-2"}
		_ = store.Save(ctx, domain.NewSession(k1, "start", "v1", now))
		_ = store.Save(ctx, domain.NewSession(k2, "start", "v1", now))

		defer func() {
			_ = store.Delete(ctx, k1)
			_ = store.Delete(ctx, k2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, k1)
		assert.Contains(t, keys, k2)
	})
}

func contractGraph(message string) *domain.Graph {
	g := &domain.Graph{
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeTypeStart},
			{ID: "hi", Type: domain.NodeTypeMessage, Properties: map[string]any{"message": message}},
			{ID: "end", Type: domain.NodeTypeEnd},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "hi"},
			{ID: "e2", Source: "hi", Target: "end"},
		},
	}
	return g.Seal()
}

// RunFlowRepositoryContract verifies the draft, publish and version retention semantics
// of a FlowRepository implementation.
func RunFlowRepositoryContract(t *testing.T, repo FlowRepository) {
	ctx := context.Background()
	project := fmt.Sprintf("contract-%d", time.Now().UnixNano())

	t.Run("Unknown Project", func(t *testing.T) {
		_, err := repo.Draft(ctx, project+"-none")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)

		_, err = repo.Active(ctx, project+"-none")
		assert.ErrorIs(t, err, domain.ErrFlowNotActive)

		_, err = repo.Version(ctx, project+"-none", "deadbeef")
		assert.ErrorIs(t, err, domain.ErrFlowVersionNotFound)

		assert.ErrorIs(t, repo.Deactivate(ctx, project+"-none"), domain.ErrFlowNotFound)
	})

	t.Run("Draft", func(t *testing.T) {
		draft := &domain.Graph{Nodes: []domain.Node{{ID: "only", Type: domain.NodeTypeMessage}}}
		require.NoError(t, repo.SaveDraft(ctx, project, draft))

		loaded, err := repo.Draft(ctx, project)
		require.NoError(t, err)
		require.Len(t, loaded.Nodes, 1)
		assert.Equal(t, "only", loaded.Nodes[0].ID)

		_, err = repo.Active(ctx, project)
		assert.ErrorIs(t, err, domain.ErrFlowNotActive, "a draft alone does not activate the project")
	})

	t.Run("Publish Retains Versions", func(t *testing.T) {
		v1 := contractGraph("Hi")
		v2 := contractGraph("Hello")
		require.NotEqual(t, v1.Version, v2.Version)

		require.NoError(t, repo.Publish(ctx, project, v1))
		active, err := repo.Active(ctx, project)
		require.NoError(t, err)
		assert.Equal(t, v1.Version, active.Version)

		require.NoError(t, repo.Publish(ctx, project, v2))
		active, err = repo.Active(ctx, project)
		require.NoError(t, err)
		assert.Equal(t, v2.Version, active.Version)

		old, err := repo.Version(ctx, project, v1.Version)
		require.NoError(t, err)
		assert.Equal(t, "Hi", old.Nodes[1].Properties["message"])
		n, ok := old.Node("hi")
		require.True(t, ok)
		assert.Equal(t, domain.NodeTypeMessage, n.Type)
	})

	t.Run("Deactivate", func(t *testing.T) {
		require.NoError(t, repo.Deactivate(ctx, project))

		_, err := repo.Active(ctx, project)
		assert.ErrorIs(t, err, domain.ErrFlowNotActive)

		v2 := contractGraph("Hello")
		_, err = repo.Version(ctx, project, v2.Version)
		assert.NoError(t, err, "deactivation keeps published versions")
	})
}

// RunChannelDirectoryContract verifies lookups in both directions.
func RunChannelDirectoryContract(t *testing.T, dir ChannelDirectory) {
	ctx := context.Background()
	ch := domain.Channel{ProjectID: "acme", PhoneNumberID: "1029384756", AccessToken: "token-1"}

	_, err := dir.Lookup(ctx, ch.PhoneNumberID)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)

	require.NoError(t, dir.Register(ctx, ch))

	got, err := dir.Lookup(ctx, ch.PhoneNumberID)
	require.NoError(t, err)
	assert.Equal(t, ch, got)

	got, err = dir.ByProject(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, ch, got)

	ch.AccessToken = "token-2"
	require.NoError(t, dir.Register(ctx, ch))
	got, err = dir.ByProject(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "token-2", got.AccessToken)

	_, err = dir.ByProject(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}
