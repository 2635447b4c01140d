// Package storage provides path-keyed storage backends and a replicated
// dual-write store built on top of them.
//
// Every backend implements interfaces.StorageBackend. Keys are slash-separated
// relative paths such as "user/1234/12/photo.jpg", usually produced by a
// PathGenerator:
//
//   - MemoryBackend for tests and throwaway deployments
//   - FileBackend for a local directory tree
//   - S3Backend for Amazon S3 or compatible object storage
//   - IPFSBackend for the mutable file system of an IPFS node
//   - VaultBackend for a HashiCorp Vault KV v2 engine
//   - PebbleBackend for an embedded Pebble key-value store
//
// # Storage URI Format
//
// Backends are created from location URIs by StorageBackendFactory:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/media/
//   - memory://name
//   - s3://bucket-name/prefix/?region=us-west-2&endpoint=http://minio:9000
//   - ipfs://ipfs.example.com:5001/media?timeout=30s
//   - vault://vault.example.com:8200/secret/media
//   - pebble:///var/lib/media.db?compress=zstd
//
// # Replication
//
// ReplicatedBackend pairs a primary and a secondary backend. Reads and
// metadata queries go to the primary only. Writes go to the primary first and
// reach the secondary only when the primary succeeded. Deletes go to the
// secondary first and reach the primary only when the secondary succeeded.
// Renames are applied to both. A failure on the secondary leg of a write or
// rename is logged and dropped.
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateReplicatedBackend(primaryLoc, secondaryLoc)
//
// Nothing reconciles the two stores after a partial failure.
//
// # Vault Storage with TLS Authentication
//
// The VaultBackend stores base64-encoded content under the "content" field of
// KV v2 secrets at {mount}/data/{path}/{key}. Authentication uses either the
// VAULT_TOKEN environment variable or a TLS client certificate configured
// through StorageBackendFactory.WithTLSAuth.
//
// # Error Handling
//
// Backends wrap the sentinel errors from the interfaces package:
//
//   - ErrKeyNotFound: nothing is stored under the key
//   - ErrInvalidKey: the key is empty or escapes the backend root
//   - ErrBackendUnavailable: the backend could not be reached
//   - ErrUnsupported: the backend cannot serve the operation
package storage
