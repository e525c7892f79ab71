package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, store ports.SessionStore, cfg middleware.EncryptionConfig) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(store)
}

var testKey = domain.SessionKey{ProjectID: "acme", SenderID: "5511999"}

func testSession(secret string) *domain.Session {
	s := domain.NewSession(testKey, "ask", "v1", time.Unix(1700000000, 0).UTC())
	s.Variables["email"] = secret
	return s
}

func TestEncryptionMiddleware_SessionStoreContract(t *testing.T) {
	ports.RunSessionStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	require.NoError(t, secure.Save(ctx, testSession("ana@example.com")))

	stored, err := underlying.Load(ctx, testKey)
	require.NoError(t, err)
	assert.NotContains(t, stored.Variables, "email")
	assert.Contains(t, stored.Variables, middleware.EnvelopeKey)
	assert.Empty(t, stored.CurrentNodeID)
	assert.Equal(t, domain.StatusActive, stored.Status)

	loaded, err := secure.Load(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", loaded.Variables["email"])
	assert.Equal(t, "ask", loaded.CurrentNodeID)
	assert.Equal(t, "v1", loaded.GraphVersion)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, oldStore.Save(ctx, testSession("old")))

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := newStore.Load(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "old", loaded.Variables["email"])

	// Saving again seals with the new key only.
	loaded.Variables["email"] = "new"
	require.NoError(t, newStore.Save(ctx, loaded))
	_, err = oldStore.Load(ctx, testKey)
	assert.Error(t, err)
}

func TestEncryptionMiddleware_PlainSessionRejected(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, testSession("plain")))

	_, err := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).Load(ctx, testKey)
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	active, old := generateKey(t), generateKey(t)

	cfg, err := middleware.ParseKeys(base64.StdEncoding.EncodeToString(active), base64.StdEncoding.EncodeToString(old))
	require.NoError(t, err)
	assert.Equal(t, active, cfg.ActiveKey)
	assert.Equal(t, [][]byte{old}, cfg.FallbackKeys)

	_, err = middleware.ParseKeys("not base64!")
	assert.Error(t, err)
}
