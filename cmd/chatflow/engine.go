package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/httpcall"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/adapters/sqlite"
	"github.com/aretw0/chatflow/pkg/adapters/whatsapp"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
)

// engineSetup is an Engine plus the resources it owns.
type engineSetup struct {
	Engine  *chatflow.Engine
	closers []func() error
}

// Close releases database and redis connections.
func (s *engineSetup) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// engineOptions tweaks createEngine for a particular command.
type engineOptions struct {
	// Registerer enables metrics. Nil disables them.
	Registerer prometheus.Registerer

	// Gateway overrides the WhatsApp gateway (the chat simulator prints instead).
	Gateway ports.OutboundGateway
}

// createEngine wires an Engine from configuration: storage backends, the
// WhatsApp gateway, the apiCall invoker, hooks and the optional bootstrap channel.
func createEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, o engineOptions) (*engineSetup, error) {
	setup := &engineSetup{}
	fail := func(err error) (*engineSetup, error) {
		_ = setup.Close()
		return nil, err
	}

	opts := []chatflow.Option{
		chatflow.WithLogger(logger),
		chatflow.WithMaxSteps(cfg.Runtime.MaxSteps),
		chatflow.WithMaxInputSize(cfg.Runtime.MaxInputSize),
		chatflow.WithLockTimeout(cfg.Runtime.LockTimeout),
		chatflow.WithLockTTL(cfg.Runtime.LockTTL),
		chatflow.WithRetryPolicy(runtime.RetryPolicy{
			MaxAttempts:       cfg.External.Attempts,
			InitialBackoff:    cfg.External.InitialBackoff,
			MaxBackoff:        cfg.External.MaxBackoff,
			BackoffMultiplier: cfg.External.Multiplier,
			AttemptTimeout:    cfg.External.Timeout,
		}),
		chatflow.WithInvoker(httpcall.New(httpcall.WithLogger(logger))),
	}

	var channels ports.ChannelDirectory = memory.NewChannels()
	var db *sql.DB
	if cfg.Store.SQLitePath != "" {
		var err error
		db, err = sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return fail(err)
		}
		setup.closers = append(setup.closers, db.Close)
		channels = sqlite.NewChannels(db)
		opts = append(opts, chatflow.WithFlowRepository(sqlite.NewFlowRepository(db)))
	}
	opts = append(opts, chatflow.WithChannelDirectory(channels))

	var store ports.SessionStore
	switch cfg.Store.Sessions {
	case "file":
		store = file.New(cfg.Store.Dir)
	case "sqlite":
		store = sqlite.NewSessionStore(db)
	case "redis":
		rs, err := redis.New(cfg.Store.RedisURL, redis.WithTTL(cfg.Store.SessionTTL))
		if err != nil {
			return fail(err)
		}
		setup.closers = append(setup.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return fail(fmt.Errorf("redis unreachable: %w", err))
		}
		store = rs
		opts = append(opts, chatflow.WithLocker(redis.NewLocker(rs.Client(), redis.DefaultPrefix)))
	default:
		store = memory.NewStore()
	}
	store, err := sealed(cfg, store)
	if err != nil {
		return fail(err)
	}
	opts = append(opts, chatflow.WithSessionStore(store))

	gw := o.Gateway
	if gw == nil {
		gw = whatsapp.NewGateway(channels,
			whatsapp.WithBaseURL(cfg.WhatsApp.BaseURL),
			whatsapp.WithLogger(logger),
		)
	}
	opts = append(opts, chatflow.WithGateway(gw))

	opts = append(opts, chatflow.WithLifecycleHooks(observability.LogHooks(logger)))
	if o.Registerer != nil {
		opts = append(opts, chatflow.WithMetrics(observability.NewMetrics(o.Registerer)))
	}

	setup.Engine = chatflow.New(opts...)

	if cfg.HasBootstrapChannel() {
		ch := domain.Channel{
			ProjectID:     cfg.WhatsApp.ProjectID,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
		}
		if err := setup.Engine.RegisterChannel(ctx, ch); err != nil {
			return fail(fmt.Errorf("register bootstrap channel: %w", err))
		}
		logger.Info("channel registered", "project_id", ch.ProjectID, "phone_number_id", ch.PhoneNumberID)
	}

	return setup, nil
}

// sealed wraps store with at-rest encryption when a key is configured.
func sealed(cfg *config.Config, store ports.SessionStore) (ports.SessionStore, error) {
	if cfg.Store.EncryptionKey == "" {
		return store, nil
	}
	keys, err := middleware.ParseKeys(cfg.Store.EncryptionKey, cfg.Store.FallbackKeys...)
	if err != nil {
		return nil, err
	}
	mw, err := middleware.NewEncryptionMiddleware(keys)
	if err != nil {
		return nil, err
	}
	return mw(store), nil
}
