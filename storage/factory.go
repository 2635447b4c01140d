package storage

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/metrics"
)

// StorageBackendFactory creates storage backends from location URIs and wraps
// pairs of them into replicated stores.
type StorageBackendFactory struct {
	log        *slog.Logger
	metrics    *metrics.StorageMetrics
	getTLSCert func() (tls.Certificate, error)
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageBackendFactory{
		log: logger,
	}
}

// WithTLSAuth sets the client certificate source used by Vault backends.
func (sf *StorageBackendFactory) WithTLSAuth(getTLSCert func() (tls.Certificate, error)) interfaces.StorageBackendFactory {
	return &StorageBackendFactory{
		log:        sf.log,
		metrics:    sf.metrics,
		getTLSCert: getTLSCert,
	}
}

// WithMetrics makes replicated backends created by the factory record into m.
func (sf *StorageBackendFactory) WithMetrics(m *metrics.StorageMetrics) *StorageBackendFactory {
	return &StorageBackendFactory{
		log:        sf.log,
		metrics:    m,
		getTLSCert: sf.getTLSCert,
	}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:///var/lib/media - Local filesystem storage
//   - memory://name - Process-local storage, lost on exit
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=...&endpoint=...
//   - ipfs://host:port/root?timeout=30s - IPFS mutable file system
//   - vault://host:port/mount/path?tls=false - Vault KV v2
//   - pebble:///var/lib/media.db?compress=zstd - Embedded key-value store
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating storage backend",
		slog.String("scheme", location.Scheme),
		slog.String("host", location.Host))

	switch strings.ToLower(location.Scheme) {
	case "file":
		return sf.createFileBackend(location)
	case "memory":
		return NewMemoryBackend(location.Host+location.Path, sf.log), nil
	case "s3":
		return sf.createS3Backend(location)
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "pebble":
		return sf.createPebbleBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateReplicatedBackend creates both backends and wraps them in a
// ReplicatedBackend. Failing to create either one is an error.
func (sf *StorageBackendFactory) CreateReplicatedBackend(primary, secondary interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	primaryBackend, err := sf.StorageBackendFor(primary)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary backend: %w", err)
	}

	secondaryBackend, err := sf.StorageBackendFor(secondary)
	if err != nil {
		if closer, ok := primaryBackend.(io.Closer); ok {
			if closeErr := closer.Close(); closeErr != nil {
				sf.log.Warn("Failed to close primary backend",
					slog.String("primary", primaryBackend.LocationURI()),
					"err", closeErr)
			}
		}
		return nil, fmt.Errorf("failed to create secondary backend: %w", err)
	}

	sf.log.Info("Created replicated storage backend",
		slog.String("primary", primaryBackend.LocationURI()),
		slog.String("secondary", secondaryBackend.LocationURI()))

	return NewReplicatedBackend(primaryBackend, secondaryBackend, sf.log).WithMetrics(sf.metrics), nil
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, location)
	}

	return NewFileBackend(path, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// Without credentials in the URI the SDK's default credential chain is used.
func (sf *StorageBackendFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in %s", interfaces.ErrInvalidLocationURI, location)
	}

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	accessKey, secretKey := location.Credentials()

	return NewS3Backend(location.Host, strings.TrimPrefix(location.Path, "/"), region,
		location.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createIPFSBackend creates an IPFS MFS storage backend.
// URI format: ipfs://host:port/root?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	host, port := splitHostPort(location.Host, "5001")
	if host == "" {
		host = "localhost"
	}

	timeout := 30 * time.Second
	if raw := location.GetParam("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, location.Path, timeout, sf.log)
}

// createVaultBackend creates a Vault KV v2 storage backend.
// URI format: vault://host:port/mount/path. The first path segment is the KV
// mount, the rest is the data path inside it.
func (sf *StorageBackendFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing vault host in %s", interfaces.ErrInvalidLocationURI, location)
	}

	mountPath, dataPath := splitMount(location.Path)
	if mountPath == "" {
		mountPath = "secret"
	}

	scheme := "https"
	if location.GetParam("tls") == "false" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, location.Host)

	var clientCert *tls.Certificate
	if sf.getTLSCert != nil {
		cert, err := sf.getTLSCert()
		if err != nil {
			return nil, fmt.Errorf("failed to get TLS client certificate: %w", err)
		}
		clientCert = &cert
	}

	return NewVaultBackend(address, mountPath, dataPath, clientCert, sf.log)
}

// createPebbleBackend opens an embedded Pebble store.
// URI format: pebble:///var/lib/media.db?compress=zstd
func (sf *StorageBackendFactory) createPebbleBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	dir := location.Path
	if location.Host != "" {
		dir = location.Host + "/" + strings.TrimPrefix(dir, "/")
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path in pebble URI %s", interfaces.ErrInvalidLocationURI, location)
	}

	compress := location.GetParam("compress")
	switch compress {
	case "", codecNone, codecZstd:
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", interfaces.ErrInvalidLocationURI, compress)
	}

	return NewPebbleBackend(dir, compress == codecZstd, sf.log)
}

func splitHostPort(hostport, defaultPort string) (string, string) {
	host, port, found := strings.Cut(hostport, ":")
	if !found || port == "" {
		return host, defaultPort
	}
	return host, port
}

func splitMount(p string) (string, string) {
	mount, rest, _ := strings.Cut(strings.Trim(p, "/"), "/")
	return mount, rest
}

var _ interfaces.StorageBackendFactory = (*StorageBackendFactory)(nil)
