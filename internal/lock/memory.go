package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryBackend implements Backend with an in-process map. It serializes
// processing within a single instance; deployments with multiple replicas
// need the Redis backend.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *MemoryBackend) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.entries[key]; ok && time.Now().Before(entry.expiresAt) {
		return false, nil
	}

	b.entries[key] = memoryEntry{token: token, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (b *MemoryBackend) Release(_ context.Context, key, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok || entry.token != token {
		return false, nil
	}

	delete(b.entries, key)
	return true, nil
}
