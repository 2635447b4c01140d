package pathgen

import (
	"strings"
)

// HierarchicalGenerator maps slash-delimited identifiers (document tree paths)
// onto the directory tree.
type HierarchicalGenerator struct{}

// GeneratePath drops the leaf segment of identifier and prefixes the remaining
// segments with context. Identifiers with one segment or none map to context.
func (HierarchicalGenerator) GeneratePath(context, identifier string) string {
	segments := strings.FieldsFunc(identifier, func(r rune) bool { return r == '/' })
	if len(segments) <= 1 {
		return context
	}
	return context + "/" + strings.Join(segments[:len(segments)-1], "/")
}
