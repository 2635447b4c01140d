// Package interfaces defines core interfaces and types for the media storage
// system, separating interface definitions from implementations.
//
// # Storage Interfaces
//
// Adapter: The capability set of a backing store addressed by string keys
// (read, write, delete, rename, exists, mtime, keys, isDirectory).
//
// StorageBackend: An Adapter with an identity (name, location URI, availability),
// implemented by the file, memory, S3, IPFS, Vault and Pebble backends as well as
// by the replicated dual-write backend.
//
// StorageBackendFactory: Creates storage backends from URI strings and wraps
// pairs of them into replicated backends.
//
// # Path Generation
//
// PathGenerator: Maps (context, identifier) to the storage path under which an
// asset's files are kept.
//
// # Errors
//
//   - ErrKeyNotFound: nothing stored under the key
//   - ErrBackendUnavailable: backend not reachable
//   - ErrInvalidLocationURI: malformed or unsupported backend URI
//   - ErrInvalidKey: empty key or key escaping the backend root
//   - ErrUnsupported: operation the backend cannot serve
package interfaces
