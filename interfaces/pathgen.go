package interfaces

// PathGenerator maps an asset identifier within a context to a deterministic,
// sharded storage path. Implementations are pure and never fail: malformed
// identifiers degrade to a shorter path.
type PathGenerator interface {
	GeneratePath(context, identifier string) string
}
