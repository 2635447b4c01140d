package pathgen

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultFirstLevel  = 100000
	DefaultSecondLevel = 1000
)

// BucketGenerator groups integer identifiers into numbered buckets: the first
// level holds FirstLevel identifiers, each split into sub-buckets of
// SecondLevel identifiers. Bucket numbers start at 1.
type BucketGenerator struct {
	FirstLevel  int64
	SecondLevel int64
}

// NewBucketGenerator validates the bucket sizes.
func NewBucketGenerator(firstLevel, secondLevel int64) (*BucketGenerator, error) {
	if firstLevel <= 0 || secondLevel <= 0 {
		return nil, fmt.Errorf("bucket levels must be positive, got %d and %d", firstLevel, secondLevel)
	}
	return &BucketGenerator{FirstLevel: firstLevel, SecondLevel: secondLevel}, nil
}

// GeneratePath returns "<context>/<first:%04d>/<second:%02d>". Identifiers that
// are not non-negative integers are treated as 0.
func (g *BucketGenerator) GeneratePath(context, identifier string) string {
	id, err := strconv.ParseInt(strings.TrimSpace(identifier), 10, 64)
	if err != nil || id < 0 {
		id = 0
	}

	first := id / g.FirstLevel
	second := (id - first*g.FirstLevel) / g.SecondLevel

	return fmt.Sprintf("%s/%04d/%02d", context, first+1, second+1)
}
