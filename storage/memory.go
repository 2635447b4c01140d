package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sonata-project/mediastore/interfaces"
)

type memoryEntry struct {
	content []byte
	mtime   time.Time
}

// MemoryBackend keeps content in process memory. It backs tests and
// memory:// locations.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	name    string
	now     func() time.Time
	log     *slog.Logger
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(name string, log *slog.Logger) *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		name:    name,
		now:     time.Now,
		log:     log,
	}
}

// WithClock replaces the clock used for modification times.
func (b *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	b.now = now
	return b
}

func (b *MemoryBackend) Read(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
	}

	data := make([]byte, len(entry.content))
	copy(data, entry.content)
	return data, nil
}

func (b *MemoryBackend) Write(ctx context.Context, key string, content []byte) (int, error) {
	if key == "" {
		return 0, interfaces.ErrInvalidKey
	}

	data := make([]byte, len(content))
	copy(data, content)

	b.mu.Lock()
	b.entries[key] = memoryEntry{content: data, mtime: b.now()}
	b.mu.Unlock()

	b.log.Debug("Stored content in memory",
		slog.String("backend_name", b.name),
		slog.String("key", key),
		slog.Int("size", len(content)))

	return len(content), nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
	}
	delete(b.entries, key)
	return nil
}

func (b *MemoryBackend) Rename(ctx context.Context, sourceKey, targetKey string) error {
	if targetKey == "" {
		return interfaces.ErrInvalidKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[sourceKey]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, sourceKey)
	}
	delete(b.entries, sourceKey)
	entry.mtime = b.now()
	b.entries[targetKey] = entry
	return nil
}

func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.entries[key]
	return ok, nil
}

func (b *MemoryBackend) Mtime(ctx context.Context, key string) (time.Time, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[key]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
	}
	return entry.mtime, nil
}

func (b *MemoryBackend) Keys(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// IsDirectory reports whether any key lives under key + "/".
func (b *MemoryBackend) IsDirectory(ctx context.Context, key string) (bool, error) {
	prefix := strings.TrimSuffix(key, "/") + "/"

	b.mu.RLock()
	defer b.mu.RUnlock()

	for k := range b.entries {
		if strings.HasPrefix(k, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

func (b *MemoryBackend) Name() string {
	return fmt.Sprintf("memory-%s", b.name)
}

func (b *MemoryBackend) LocationURI() string {
	return "memory://" + b.name
}
