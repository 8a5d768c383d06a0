package lock

import (
	"context"
	"time"
)

// NoopBackend grants every acquisition immediately. It is the fallback when
// no shared cache is configured; concurrent updates may then interleave, and
// the transition engine's forward-only rule keeps the final persisted status
// correct.
type NoopBackend struct{}

func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

func (*NoopBackend) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (*NoopBackend) Release(context.Context, string, string) (bool, error) {
	return true, nil
}
