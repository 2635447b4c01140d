package pathgen

import (
	"strconv"
)

// NumericGenerator shards auto-increment identifiers by their leading digits.
// Shard A is characters [0,4) of the identifier and shard B characters [4,6);
// short identifiers yield short or empty shards, never padding.
type NumericGenerator struct{}

// GeneratePath returns "<context>/<shard A>/<shard B>".
func (NumericGenerator) GeneratePath(context, identifier string) string {
	return context + "/" + substr(identifier, 0, 4) + "/" + substr(identifier, 4, 2)
}

// GeneratePathForID formats id in base 10 and generates its path.
func (g NumericGenerator) GeneratePathForID(context string, id int64) string {
	return g.GeneratePath(context, strconv.FormatInt(id, 10))
}

// substr returns up to length bytes of s starting at offset, clamped to the
// bounds of s.
func substr(s string, offset, length int) string {
	if offset >= len(s) {
		return ""
	}
	end := offset + length
	if end > len(s) {
		end = len(s)
	}
	return s[offset:end]
}
