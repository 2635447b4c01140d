package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sonata-project/mediastore/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Keys are slash-separated paths relative to the base directory.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory,
// creating it if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     filepath.Clean(baseDir),
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Read returns the content of the file stored under key.
// Returns ErrKeyNotFound if the file doesn't exist.
func (b *FileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Read content from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Write saves content under key, creating parent directories as needed.
func (b *FileBackend) Write(ctx context.Context, key string, content []byte) (int, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.Int("size", len(content)))

	return len(content), nil
}

// Delete removes the file stored under key.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", interfaces.ErrInvalidKey, key)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Rename moves sourceKey to targetKey, creating the target's parent directory.
func (b *FileBackend) Rename(ctx context.Context, sourceKey, targetKey string) error {
	sourcePath, err := b.getFilePath(sourceKey)
	if err != nil {
		return err
	}
	targetPath, err := b.getFilePath(targetKey)
	if err != nil {
		return err
	}

	if _, err := os.Stat(sourcePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, sourceKey)
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.Rename(sourcePath, targetPath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

func (b *FileBackend) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat file: %w", err)
}

func (b *FileBackend) Mtime(ctx context.Context, key string) (time.Time, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
		}
		return time.Time{}, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.ModTime(), nil
}

// Keys lists files and directories below the base directory, sorted.
func (b *FileBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == b.baseDir {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (b *FileBackend) IsDirectory(ctx context.Context, key string) (bool, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.IsDir(), nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// getFilePath resolves key below the base directory, rejecting keys that
// would escape it.
func (b *FileBackend) getFilePath(key string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimSpace(key))
	if cleaned == "/" {
		return "", fmt.Errorf("%w: %q", interfaces.ErrInvalidKey, key)
	}
	if strings.Contains(key, "..") {
		for _, segment := range strings.Split(filepath.ToSlash(key), "/") {
			if segment == ".." {
				return "", fmt.Errorf("%w: %q", interfaces.ErrInvalidKey, key)
			}
		}
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(cleaned)), nil
}
