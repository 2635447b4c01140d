package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/sonata-project/mediastore/interfaces"
)

// IPFSBackend implements a storage backend on the mutable file system (MFS) of
// an IPFS node. Keys are paths below a root directory in MFS.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the node API at
// host:port, storing content below root in MFS.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	root = "/" + strings.Trim(root, "/")

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, root),
	}, nil
}

// Read returns the content of the MFS file under key.
func (b *IPFSBackend) Read(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	mfsPath := b.getMFSPath(key)

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if isIPFSNotFound(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
		}

		b.log.Error("Failed to read from IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Write stores content in MFS, creating parent directories and truncating any
// previous content.
func (b *IPFSBackend) Write(ctx context.Context, key string, content []byte) (int, error) {
	if strings.Trim(key, "/") == "" {
		return 0, interfaces.ErrInvalidKey
	}
	mfsPath := b.getMFSPath(key)

	err := b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(content),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return 0, fmt.Errorf("failed to write to IPFS: %w", err)
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(content)))

	return len(content), nil
}

func (b *IPFSBackend) Delete(ctx context.Context, key string) error {
	if err := b.shell.FilesRm(ctx, b.getMFSPath(key), false); err != nil {
		if isIPFSNotFound(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
		}
		return fmt.Errorf("failed to remove from IPFS: %w", err)
	}
	return nil
}

func (b *IPFSBackend) Rename(ctx context.Context, sourceKey, targetKey string) error {
	targetPath := b.getMFSPath(targetKey)

	if err := b.shell.FilesMkdir(ctx, path.Dir(targetPath), shell.FilesMkdir.Parents(true)); err != nil {
		return fmt.Errorf("failed to create directory in IPFS: %w", err)
	}

	if err := b.shell.FilesMv(ctx, b.getMFSPath(sourceKey), targetPath); err != nil {
		if isIPFSNotFound(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, sourceKey)
		}
		return fmt.Errorf("failed to move in IPFS: %w", err)
	}
	return nil
}

func (b *IPFSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.shell.FilesStat(ctx, b.getMFSPath(key))
	if err != nil {
		if isIPFSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat in IPFS: %w", err)
	}
	return true, nil
}

// Mtime is not tracked by MFS.
func (b *IPFSBackend) Mtime(ctx context.Context, key string) (time.Time, error) {
	return time.Time{}, fmt.Errorf("%w: ipfs mtime", interfaces.ErrUnsupported)
}

// Keys walks the MFS tree below the root.
func (b *IPFSBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := b.walk(ctx, "", &keys); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *IPFSBackend) walk(ctx context.Context, dir string, keys *[]string) error {
	entries, err := b.shell.FilesLs(ctx, b.getMFSPath(dir), shell.FilesLs.Stat(true))
	if err != nil {
		if isIPFSNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to list IPFS directory: %w", err)
	}

	for _, entry := range entries {
		key := path.Join(dir, entry.Name)
		*keys = append(*keys, key)
		if entry.Type == shell.TDirectory {
			if err := b.walk(ctx, key, keys); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *IPFSBackend) IsDirectory(ctx context.Context, key string) (bool, error) {
	stat, err := b.shell.FilesStat(ctx, b.getMFSPath(key))
	if err != nil {
		if isIPFSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat in IPFS: %w", err)
	}
	return stat.Type == "directory", nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// getMFSPath resolves key below the MFS root.
func (b *IPFSBackend) getMFSPath(key string) string {
	return path.Join(b.root, key)
}

func isIPFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no link named")
}
