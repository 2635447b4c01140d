// Package media assigns storage paths to media assets and stores their
// content through a storage adapter.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/sonata-project/mediastore/cdn"
	"github.com/sonata-project/mediastore/interfaces"
)

// ErrInvalidAsset is returned for assets missing a context, id or reference.
var ErrInvalidAsset = errors.New("invalid media asset")

// Asset identifies one stored file. Path is assigned by the Manager on first
// save and kept from then on.
type Asset struct {
	Context   string `json:"context"`
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Path      string `json:"path,omitempty"`
}

// Manager ties together path generation, storage and public URLs.
type Manager struct {
	generator interfaces.PathGenerator
	store     interfaces.Adapter
	cdn       *cdn.Server
	log       *slog.Logger
}

func NewManager(generator interfaces.PathGenerator, store interfaces.Adapter, server *cdn.Server, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if server == nil {
		server = cdn.New("/")
	}
	return &Manager{
		generator: generator,
		store:     store,
		cdn:       server,
		log:       log,
	}
}

// StoragePath returns the directory the asset is stored in. An assigned Path
// wins over the generator.
func (m *Manager) StoragePath(asset *Asset) (string, error) {
	if asset.Path != "" {
		return asset.Path, nil
	}
	if asset.Context == "" || asset.ID == "" {
		return "", fmt.Errorf("%w: context and id are required", ErrInvalidAsset)
	}
	return m.generator.GeneratePath(asset.Context, asset.ID), nil
}

// ReferenceKey returns the full storage key of the asset's file.
func (m *Manager) ReferenceKey(asset *Asset) (string, error) {
	if asset.Reference == "" {
		return "", fmt.Errorf("%w: reference is required", ErrInvalidAsset)
	}
	dir, err := m.StoragePath(asset)
	if err != nil {
		return "", err
	}
	return path.Join(dir, asset.Reference), nil
}

// Save writes content for the asset, assigning its Path on first save.
func (m *Manager) Save(ctx context.Context, asset *Asset, content []byte) (int, error) {
	key, err := m.ReferenceKey(asset)
	if err != nil {
		return 0, err
	}
	dir, err := m.StoragePath(asset)
	if err != nil {
		return 0, err
	}

	n, err := m.store.Write(ctx, key, content)
	if err != nil {
		return n, err
	}

	asset.Path = dir

	m.log.Debug("Saved media",
		slog.String("context", asset.Context),
		slog.String("id", asset.ID),
		slog.String("key", key),
		slog.Int("size", n))

	return n, nil
}

func (m *Manager) Open(ctx context.Context, asset *Asset) ([]byte, error) {
	key, err := m.ReferenceKey(asset)
	if err != nil {
		return nil, err
	}
	return m.store.Read(ctx, key)
}

func (m *Manager) Remove(ctx context.Context, asset *Asset) error {
	key, err := m.ReferenceKey(asset)
	if err != nil {
		return err
	}
	return m.store.Delete(ctx, key)
}

func (m *Manager) Exists(ctx context.Context, asset *Asset) (bool, error) {
	key, err := m.ReferenceKey(asset)
	if err != nil {
		return false, err
	}
	return m.store.Exists(ctx, key)
}

// Modified returns the modification time of the asset's file.
func (m *Manager) Modified(ctx context.Context, asset *Asset) (time.Time, error) {
	key, err := m.ReferenceKey(asset)
	if err != nil {
		return time.Time{}, err
	}
	return m.store.Mtime(ctx, key)
}

// PublicURL returns the CDN location of the asset's file.
func (m *Manager) PublicURL(asset *Asset) (string, error) {
	key, err := m.ReferenceKey(asset)
	if err != nil {
		return "", err
	}
	return m.cdn.GetPath(key), nil
}
