package main

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Sessions: "file", Dir: t.TempDir()},
		WhatsApp: config.WhatsAppConfig{
			BaseURL:       "http://127.0.0.1:1",
			ProjectID:     "acme",
			PhoneNumberID: "1001",
			AccessToken:   "secret",
		},
		Runtime:  config.RuntimeConfig{MaxSteps: 16, MaxInputSize: 1024},
		External: config.ExternalConfig{Attempts: 1},
	}
}

func TestCreateEngine_FileSessions(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	setup, err := createEngine(ctx, cfg, logging.NewNop(), engineOptions{
		Registerer: prometheus.NewRegistry(),
		Gateway:    terminalGateway{},
	})
	require.NoError(t, err)
	defer setup.Close()

	project, err := setup.Engine.ResolveChannel(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "acme", project)

	_, err = setup.Engine.Activate(ctx, "acme", menuFlow())
	require.NoError(t, err)
	_, err = setup.Engine.Handle(ctx, domain.InboundEvent{ProjectID: "acme", SenderID: "55", Text: "hi"})
	require.NoError(t, err)

	keys, err := setup.Engine.Sessions().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionKey{{ProjectID: "acme", SenderID: "55"}}, keys)
}

func TestCreateEngine_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Sessions = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "chatflow.db")
	ctx := context.Background()

	setup, err := createEngine(ctx, cfg, logging.NewNop(), engineOptions{Gateway: terminalGateway{}})
	require.NoError(t, err)

	_, err = setup.Engine.Activate(ctx, "acme", menuFlow())
	require.NoError(t, err)
	res, err := setup.Engine.Handle(ctx, domain.InboundEvent{ProjectID: "acme", SenderID: "55", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "menu", res.Session.CurrentNodeID)
	require.NoError(t, setup.Close())
}

func TestCreateEngine_BadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Sessions = "redis"
	cfg.Store.RedisURL = "not-a-url"

	_, err := createEngine(context.Background(), cfg, logging.NewNop(), engineOptions{})
	require.Error(t, err)
}

func TestCreateEngine_EncryptedSessions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	ctx := context.Background()

	setup, err := createEngine(ctx, cfg, logging.NewNop(), engineOptions{Gateway: terminalGateway{}})
	require.NoError(t, err)
	defer setup.Close()

	_, err = setup.Engine.Activate(ctx, "acme", menuFlow())
	require.NoError(t, err)
	_, err = setup.Engine.Handle(ctx, domain.InboundEvent{ProjectID: "acme", SenderID: "55", Text: "hi"})
	require.NoError(t, err)

	key := domain.SessionKey{ProjectID: "acme", SenderID: "55"}
	raw, err := file.New(cfg.Store.Dir).Load(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, raw.Variables, middleware.EnvelopeKey)
	assert.Empty(t, raw.CurrentNodeID)

	s, err := setup.Engine.Session(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "menu", s.CurrentNodeID)
}

func TestCreateEngine_BadEncryptionKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short"))

	_, err := createEngine(context.Background(), cfg, logging.NewNop(), engineOptions{Gateway: terminalGateway{}})
	require.Error(t, err)
}
