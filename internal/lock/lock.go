// Package lock provides a TTL-bounded mutual-exclusion lock keyed by
// transaction reference, used to serialize webhook processing for the same
// payment.
//
// The lock is a race-reduction optimization, not the correctness mechanism:
// when no shared backend is configured the no-op fallback always grants the
// lock, and safety rests entirely on the forward-only transition engine,
// which rejects regressions regardless of interleaving. Callers must treat
// acquisition failure as non-fatal for the same reason.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrTimeout is returned when the lock stays held for the whole wait window.
var ErrTimeout = errors.New("lock: acquisition timed out")

const pollInterval = 100 * time.Millisecond

// Backend is the shared-store capability the manager needs: an atomic
// set-if-absent with expiry, and a compare-and-delete conditioned on the
// owner token.
type Backend interface {
	// Acquire atomically claims key for token with the given TTL. Returns
	// false when the key is already held by someone else.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release deletes key only if it is still owned by token. A blind delete
	// would let a slow holder release a lock someone else acquired after the
	// TTL expired.
	Release(ctx context.Context, key, token string) (bool, error)
}

// Manager acquires locks against a backend with a bounded wait.
type Manager struct {
	backend Backend
	ttl     time.Duration
	maxWait time.Duration
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	backend Backend
	key     string
	token   string
}

// Option configures a Manager.
type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

func WithMaxWait(maxWait time.Duration) Option {
	return func(m *Manager) { m.maxWait = maxWait }
}

// NewManager returns a Manager with a 30s TTL and 10s max wait by default.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		ttl:     30 * time.Second,
		maxWait: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire claims the lock for key, polling until maxWait elapses. Returns
// ErrTimeout on exhaustion.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lock, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(m.maxWait)

	for {
		ok, err := m.backend.Acquire(ctx, key, token, m.ttl)
		if err != nil {
			return nil, errors.Wrapf(err, "acquiring lock for %s", key)
		}
		if ok {
			return &Lock{backend: m.backend, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release releases the lock if it is still owned by this holder.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	return l.backend.Release(ctx, l.key, l.token)
}

// Key returns the lock key.
func (l *Lock) Key() string {
	return l.key
}
