package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/sonata-project/mediastore/interfaces"
)

const (
	codecNone = "none"
	codecZstd = "zstd"
)

// pebbleRecord is the CBOR value stored for every key.
type pebbleRecord struct {
	Content []byte `cbor:"1,keyasint"`
	Mtime   int64  `cbor:"2,keyasint"`
	Codec   string `cbor:"3,keyasint,omitempty"`
}

// PebbleBackend stores content in an embedded Pebble key-value store. Values
// are CBOR records holding the content (optionally zstd-compressed) and its
// modification time.
type PebbleBackend struct {
	db          *pebble.DB
	dir         string
	codec       string
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	encMode     cbor.EncMode
	now         func() time.Time
	log         *slog.Logger
	locationURI string
}

// NewPebbleBackend opens (or creates) a Pebble store in dir. When compress is
// true, content is zstd-compressed before it is stored.
func NewPebbleBackend(dir string, compress bool, log *slog.Logger) (*PebbleBackend, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}

	b := &PebbleBackend{
		db:          db,
		dir:         dir,
		codec:       codecNone,
		decoder:     decoder,
		encMode:     encMode,
		now:         time.Now,
		log:         log,
		locationURI: fmt.Sprintf("pebble://%s", dir),
	}

	if compress {
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			decoder.Close()
			db.Close()
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		b.encoder = encoder
		b.codec = codecZstd
		b.locationURI += "?compress=zstd"
	}

	return b, nil
}

// Close releases the underlying database.
func (b *PebbleBackend) Close() error {
	b.decoder.Close()
	if b.encoder != nil {
		b.encoder.Close()
	}
	return b.db.Close()
}

func (b *PebbleBackend) Read(ctx context.Context, key string) ([]byte, error) {
	record, err := b.get(key)
	if err != nil {
		return nil, err
	}
	return b.decode(record)
}

func (b *PebbleBackend) Write(ctx context.Context, key string, content []byte) (int, error) {
	if key == "" {
		return 0, interfaces.ErrInvalidKey
	}

	record := pebbleRecord{Content: content, Mtime: b.now().UnixNano(), Codec: b.codec}
	if b.encoder != nil {
		record.Content = b.encoder.EncodeAll(content, nil)
	}

	if err := b.put(key, record); err != nil {
		return 0, err
	}

	b.log.Debug("Stored content in pebble",
		slog.String("key", key),
		slog.Int("size", len(content)),
		slog.Int("stored_size", len(record.Content)))

	return len(content), nil
}

func (b *PebbleBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.get(key); err != nil {
		return err
	}
	if err := b.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Rename rewrites the record under targetKey and removes sourceKey in one batch.
func (b *PebbleBackend) Rename(ctx context.Context, sourceKey, targetKey string) error {
	if targetKey == "" {
		return interfaces.ErrInvalidKey
	}

	record, err := b.get(sourceKey)
	if err != nil {
		return err
	}
	record.Mtime = b.now().UnixNano()

	value, err := b.encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	batch := b.db.NewBatch()
	defer batch.Close()

	if err := batch.Set([]byte(targetKey), value, nil); err != nil {
		return fmt.Errorf("failed to stage rename: %w", err)
	}
	if err := batch.Delete([]byte(sourceKey), nil); err != nil {
		return fmt.Errorf("failed to stage rename: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit rename: %w", err)
	}
	return nil
}

func (b *PebbleBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, closer, err := b.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get key: %w", err)
	}
	closer.Close()
	return true, nil
}

func (b *PebbleBackend) Mtime(ctx context.Context, key string) (time.Time, error) {
	record, err := b.get(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, record.Mtime), nil
}

func (b *PebbleBackend) Keys(ctx context.Context) ([]string, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

// IsDirectory reports whether any key lives under key + "/".
func (b *PebbleBackend) IsDirectory(ctx context.Context, key string) (bool, error) {
	prefix := []byte(strings.TrimSuffix(key, "/") + "/")

	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	return iter.First(), nil
}

func (b *PebbleBackend) Available(ctx context.Context) bool {
	return true
}

func (b *PebbleBackend) Name() string {
	return fmt.Sprintf("pebble-%s", b.dir)
}

func (b *PebbleBackend) LocationURI() string {
	return b.locationURI
}

func (b *PebbleBackend) get(key string) (pebbleRecord, error) {
	value, closer, err := b.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return pebbleRecord{}, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, key)
		}
		return pebbleRecord{}, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()

	var record pebbleRecord
	if err := cbor.Unmarshal(value, &record); err != nil {
		return pebbleRecord{}, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return record, nil
}

func (b *PebbleBackend) put(key string, record pebbleRecord) error {
	value, err := b.encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := b.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// decode returns the plain content of record, whichever codec wrote it.
func (b *PebbleBackend) decode(record pebbleRecord) ([]byte, error) {
	switch record.Codec {
	case codecNone, "":
		return record.Content, nil
	case codecZstd:
		content, err := b.decoder.DecodeAll(record.Content, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress content: %w", err)
		}
		return content, nil
	default:
		return nil, fmt.Errorf("unknown content codec %q", record.Codec)
	}
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
