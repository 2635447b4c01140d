package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/metrics"
)

// ReplicatedBackend writes to a primary and a secondary store and serves every
// read from the primary. The secondary exists purely as a redundancy target.
//
// Mutations run sequentially, never in parallel:
//   - Write: primary first; the secondary is written only if the primary
//     succeeded, and a secondary failure is logged and dropped.
//   - Delete: secondary first; the primary is deleted only if the secondary
//     succeeded, and the primary's result is returned.
//   - Rename: primary then secondary, both always invoked; a secondary failure
//     is logged and dropped.
//
// Errors from the stores are returned as is. Nothing reconciles the two stores
// after a partial failure, and concurrent callers on the same key may leave them
// inconsistent.
type ReplicatedBackend struct {
	primary   interfaces.Adapter
	secondary interfaces.Adapter
	log       *slog.Logger
	metrics   *metrics.StorageMetrics
}

// NewReplicatedBackend wraps primary and secondary. Both stores are owned by the
// caller.
func NewReplicatedBackend(primary, secondary interfaces.Adapter, logger *slog.Logger) *ReplicatedBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReplicatedBackend{
		primary:   primary,
		secondary: secondary,
		log:       logger,
	}
}

// WithMetrics records operations and dropped leg failures in m.
func (r *ReplicatedBackend) WithMetrics(m *metrics.StorageMetrics) *ReplicatedBackend {
	r.metrics = m
	return r
}

// Write stores content in the primary, then in the secondary.
func (r *ReplicatedBackend) Write(ctx context.Context, key string, content []byte) (int, error) {
	r.metrics.ObserveOperation("write")

	n, err := r.primary.Write(ctx, key, content)
	if err != nil {
		return n, err
	}

	if _, err := r.secondary.Write(ctx, key, content); err != nil {
		r.dropLegFailure("write", "secondary", key, err)
	}

	return n, nil
}

// Delete removes key from the secondary, then from the primary.
func (r *ReplicatedBackend) Delete(ctx context.Context, key string) error {
	r.metrics.ObserveOperation("delete")

	if err := r.secondary.Delete(ctx, key); err != nil {
		return err
	}

	return r.primary.Delete(ctx, key)
}

// Rename moves sourceKey to targetKey in both stores.
func (r *ReplicatedBackend) Rename(ctx context.Context, sourceKey, targetKey string) error {
	r.metrics.ObserveOperation("rename")

	primaryErr := r.primary.Rename(ctx, sourceKey, targetKey)

	if err := r.secondary.Rename(ctx, sourceKey, targetKey); err != nil {
		r.dropLegFailure("rename", "secondary", sourceKey, err)
	}

	return primaryErr
}

// Read returns the primary's content for key.
func (r *ReplicatedBackend) Read(ctx context.Context, key string) ([]byte, error) {
	r.metrics.ObserveOperation("read")
	return r.primary.Read(ctx, key)
}

func (r *ReplicatedBackend) Exists(ctx context.Context, key string) (bool, error) {
	r.metrics.ObserveOperation("exists")
	return r.primary.Exists(ctx, key)
}

func (r *ReplicatedBackend) Mtime(ctx context.Context, key string) (time.Time, error) {
	r.metrics.ObserveOperation("mtime")
	return r.primary.Mtime(ctx, key)
}

func (r *ReplicatedBackend) Keys(ctx context.Context) ([]string, error) {
	r.metrics.ObserveOperation("keys")
	return r.primary.Keys(ctx)
}

func (r *ReplicatedBackend) IsDirectory(ctx context.Context, key string) (bool, error) {
	r.metrics.ObserveOperation("is_directory")
	return r.primary.IsDirectory(ctx, key)
}

// Close closes both stores when they hold resources.
func (r *ReplicatedBackend) Close() error {
	var errs []error
	for _, leg := range []interfaces.Adapter{r.primary, r.secondary} {
		if closer, ok := leg.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// Available reports the primary's availability. Adapters without an identity
// are assumed available.
func (r *ReplicatedBackend) Available(ctx context.Context) bool {
	if backend, ok := r.primary.(interfaces.StorageBackend); ok {
		return backend.Available(ctx)
	}
	return true
}

// Name returns the name of this backend
func (r *ReplicatedBackend) Name() string {
	return "replicate"
}

// LocationURI combines the locations of both stores.
func (r *ReplicatedBackend) LocationURI() string {
	return "replicate:[" + locationOf(r.primary) + "," + locationOf(r.secondary) + "]"
}

func (r *ReplicatedBackend) dropLegFailure(op, leg, key string, err error) {
	r.metrics.ObserveLegFailure(op, leg)
	r.log.Warn("Replication leg failed",
		slog.String("op", op),
		slog.String("leg", leg),
		slog.String("backend_name", nameOf(r.secondary)),
		slog.String("key", key),
		"err", err)
}

func nameOf(a interfaces.Adapter) string {
	if backend, ok := a.(interfaces.StorageBackend); ok {
		return backend.Name()
	}
	return "adapter"
}

func locationOf(a interfaces.Adapter) string {
	if backend, ok := a.(interfaces.StorageBackend); ok {
		return backend.LocationURI()
	}
	return "adapter:"
}
