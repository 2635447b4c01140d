package interfaces

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := parsed.Scheme
	switch scheme {
	case "file", "memory", "s3", "ipfs", "vault", "pebble":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// Credentials splits the user info part of the URI into username and password.
func (loc StorageBackendLocation) Credentials() (string, string) {
	if loc.Auth == "" {
		return "", ""
	}
	info, err := url.Parse("scheme://" + loc.Auth + "@host")
	if err != nil || info.User == nil {
		return "", ""
	}
	password, _ := info.User.Password()
	return info.User.Username(), password
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrKeyNotFound is returned when no content is stored under the requested key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrInvalidKey is returned for empty keys or keys escaping the backend root.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrUnsupported is returned by backends that cannot serve an operation.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// Adapter is the capability set every backing store exposes. All keys are
// slash-separated relative paths, usually produced by a PathGenerator.
type Adapter interface {
	// Read returns the content stored under key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores content under key, replacing any previous content, and
	// returns the number of bytes written.
	Write(ctx context.Context, key string, content []byte) (int, error)

	// Delete removes the content stored under key.
	Delete(ctx context.Context, key string) error

	// Rename moves content from sourceKey to targetKey.
	Rename(ctx context.Context, sourceKey, targetKey string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Mtime returns the last modification time of key.
	Mtime(ctx context.Context, key string) (time.Time, error)

	// Keys lists every key in the store.
	Keys(ctx context.Context) ([]string, error)

	// IsDirectory reports whether key names a directory rather than content.
	IsDirectory(ctx context.Context, key string) (bool, error)
}

// StorageBackend is an Adapter with an identity, used for logging and wiring.
type StorageBackend interface {
	Adapter

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	// StorageBackendFor creates backend from URI.
	// Supports file://, memory://, s3://, ipfs://, vault://, pebble://
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)

	// CreateReplicatedBackend wraps two backends into a dual-write store.
	CreateReplicatedBackend(primary, secondary StorageBackendLocation) (StorageBackend, error)

	// WithTLSAuth configures TLS client authentication.
	WithTLSAuth(func() (tls.Certificate, error)) StorageBackendFactory
}
