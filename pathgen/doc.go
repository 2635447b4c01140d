// Package pathgen computes deterministic storage paths for media assets.
//
// Every generator maps a context (a namespace such as "user" or "product") and an
// asset identifier to a relative path. The path is computed once, when an asset
// is first stored, and persisted by the caller next to the asset record; it must
// stay stable for the lifetime of the scheme, so the exact string operations below
// are part of the storage format.
//
// # Numeric shards
//
// NumericGenerator takes the decimal identifier and uses its first four and the
// next two characters as directory names:
//
//	user, "12341230" -> user/1234/12
//	user, "10"       -> user/10/
//
// # Hierarchical identifiers
//
// HierarchicalGenerator mirrors a slash-delimited identifier into the directory
// tree, placing the leaf inside its parent's directory:
//
//	user, "/media/sub/path/nodename" -> user/media/sub/path
//	user, "nodename"                 -> user
//
// # Buckets
//
// BucketGenerator divides integer identifiers into fixed-size buckets and
// zero-pads the bucket numbers:
//
//	user, "1"      -> user/0001/01
//	user, "100000" -> user/0002/01
package pathgen
