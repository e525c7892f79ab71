package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

const (
	// DefaultLockTimeout bounds how long a step waits for its session.
	DefaultLockTimeout = 10 * time.Second

	// DefaultLockTTL is the expiry of a distributed lock whose holder disappeared.
	DefaultLockTTL = 30 * time.Second
)

// lockEntry holds the per-session lock and the reference count.
// The lock is a one-slot channel so waiters can give up on timeout; blocked
// waiters are served in arrival order.
type lockEntry struct {
	slot chan struct{}
	refs int
}

// Manager orchestrates session access, ensuring at most one step per session at a time.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker      ports.DistributedLocker // Optional distributed locker
	lockTimeout time.Duration
	lockTTL     time.Duration
	logger      *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithLockTimeout bounds the wait for a session lock. Zero waits until the context ends.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.lockTimeout = d
	}
}

// WithLockTTL sets the expiry passed to the distributed locker.
func WithLockTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lockTTL = d
		}
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		locks:       make(map[string]*lockEntry),
		lockTimeout: DefaultLockTimeout,
		lockTTL:     DefaultLockTTL,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(key) once done with the entry.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{slot: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithLock executes fn while holding the lock for the session.
// It returns domain.ErrSessionLockTimeout when the lock is not obtained in time.
func (m *Manager) WithLock(ctx context.Context, key domain.SessionKey, fn func(context.Context) error) error {
	id := key.String()
	entry := m.acquire(id)
	defer m.release(id)

	waitCtx := ctx
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}

	select {
	case entry.slot <- struct{}{}:
	case <-waitCtx.Done():
		return m.waitError(ctx, id)
	}
	defer func() { <-entry.slot }()

	if m.locker != nil {
		unlock, err := m.locker.Lock(waitCtx, id, m.lockTTL)
		if err != nil {
			if waitCtx.Err() != nil {
				return m.waitError(ctx, id)
			}
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The step context may already be done; release must still reach the backend.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session", id,
					"err", err,
				)
			}
		}()

		// The step must finish while the distributed lock is still ours.
		stepCtx, cancel := context.WithTimeout(ctx, m.stepBudget())
		defer cancel()
		return fn(stepCtx)
	}

	return fn(ctx)
}

// stepBudget is how long a step may run under a distributed lock: the TTL minus a
// tenth kept as margin for the save and the release round trip.
func (m *Manager) stepBudget() time.Duration {
	return m.lockTTL - m.lockTTL/10
}

func (m *Manager) waitError(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Warn("session lock timeout", "session", id, "timeout", m.lockTimeout)
	return fmt.Errorf("%w: %s", domain.ErrSessionLockTimeout, id)
}

// Transact loads the session (nil when absent), hands it to fn and persists the session
// fn returns, all under the session lock. A nil result skips the save.
func (m *Manager) Transact(ctx context.Context, key domain.SessionKey, fn func(ctx context.Context, current *domain.Session) (*domain.Session, error)) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, key)
		if err != nil {
			if !errors.Is(err, domain.ErrSessionNotFound) {
				return fmt.Errorf("failed to load session: %w", err)
			}
			current = nil
		}

		next, err := fn(ctx, current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := m.store.Save(ctx, next); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	var s *domain.Session
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		s, err = m.store.Load(ctx, key)
		return err
	})
	return s, err
}

// Save persists the session.
func (m *Manager) Save(ctx context.Context, s *domain.Session) error {
	return m.WithLock(ctx, s.Key(), func(ctx context.Context) error {
		return m.store.Save(ctx, s)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, key domain.SessionKey) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]domain.SessionKey, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}
