package pathgen

import (
	"fmt"

	"github.com/sonata-project/mediastore/interfaces"
)

// Generator names accepted by New.
const (
	NumericName      = "numeric"
	HierarchicalName = "hierarchical"
	BucketName       = "bucket"
)

// New returns the generator registered under name, using default settings.
func New(name string) (interfaces.PathGenerator, error) {
	switch name {
	case NumericName, "":
		return NumericGenerator{}, nil
	case HierarchicalName:
		return HierarchicalGenerator{}, nil
	case BucketName:
		g, err := NewBucketGenerator(DefaultFirstLevel, DefaultSecondLevel)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown path generator: %s", name)
	}
}
