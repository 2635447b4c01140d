package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/sonata-project/mediastore/interfaces"
)

// VaultBackend implements a storage backend on a HashiCorp Vault KV v2 engine.
// Content is base64-encoded under the "content" field of each secret.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "media")
//   - clientCert: optional TLS client certificate; nil uses the token from the environment
//   - log: Structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath string, clientCert *tls.Certificate, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address

	if clientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*clientCert},
				},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	return newVaultBackendWithClient(client, address, mountPath, dataPath, log), nil
}

func newVaultBackendWithClient(client *api.Client, address, mountPath, dataPath string, log *slog.Logger) *VaultBackend {
	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}
}

// Read retrieves the content stored under key.
func (b *VaultBackend) Read(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	secretPath := b.dataAPIPath(key)

	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil || secret.Data["data"] == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}

	encoded, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	b.log.Debug("Fetched content from Vault",
		slog.String("path", secretPath),
		slog.Int("size", len(content)),
		slog.Duration("duration", time.Since(start)))

	return content, nil
}

// Write stores content under key as a new secret version.
func (b *VaultBackend) Write(ctx context.Context, key string, content []byte) (int, error) {
	if strings.Trim(key, "/") == "" {
		return 0, interfaces.ErrInvalidKey
	}
	secretPath := b.dataAPIPath(key)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(content),
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, secretPath, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return 0, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	return len(content), nil
}

// Delete removes every version of the secret under key.
func (b *VaultBackend) Delete(ctx context.Context, key string) error {
	exists, err := b.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
	}

	if _, err := b.client.Logical().DeleteWithContext(ctx, b.metadataAPIPath(key)); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Rename copies the secret to targetKey and deletes the source. Vault has no
// native move.
func (b *VaultBackend) Rename(ctx context.Context, sourceKey, targetKey string) error {
	content, err := b.Read(ctx, sourceKey)
	if err != nil {
		return err
	}
	if _, err := b.Write(ctx, targetKey, content); err != nil {
		return err
	}
	return b.Delete(ctx, sourceKey)
}

func (b *VaultBackend) Exists(ctx context.Context, key string) (bool, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.metadataAPIPath(key))
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return secret != nil && secret.Data != nil, nil
}

// Mtime returns the metadata updated_time of the secret.
func (b *VaultBackend) Mtime(ctx context.Context, key string) (time.Time, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.metadataAPIPath(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return time.Time{}, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
	}

	updated, _ := secret.Data["updated_time"].(string)
	mtime, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid updated_time in Vault metadata: %w", err)
	}
	return mtime, nil
}

// Keys recursively lists the metadata tree below the data path.
func (b *VaultBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := b.walk(ctx, "", &keys); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *VaultBackend) walk(ctx context.Context, dir string, keys *[]string) error {
	entries, err := b.list(ctx, dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		key := path.Join(dir, entry)
		*keys = append(*keys, key)
		if strings.HasSuffix(entry, "/") {
			if err := b.walk(ctx, key, keys); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsDirectory reports whether listing key returns any entry.
func (b *VaultBackend) IsDirectory(ctx context.Context, key string) (bool, error) {
	entries, err := b.list(ctx, key)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) list(ctx context.Context, dir string) ([]string, error) {
	secret, err := b.client.Logical().ListWithContext(ctx, b.metadataAPIPath(dir)+"/")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	entries := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			entries = append(entries, s)
		}
	}
	return entries, nil
}

func (b *VaultBackend) dataAPIPath(key string) string {
	return path.Join(b.mountPath, "data", b.dataPath, key)
}

func (b *VaultBackend) metadataAPIPath(key string) string {
	return path.Join(b.mountPath, "metadata", b.dataPath, key)
}
