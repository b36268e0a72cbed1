// Package vector provides approximate nearest-neighbor indexes over fixed-dimension float32 vectors.
package vector

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrDimensionMismatch is returned when a vector's length disagrees with the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// DimensionError reports which length was offered and which the index requires.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Got, e.Want)
}

// Is lets errors.Is match ErrDimensionMismatch.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Index is an approximate k-nearest-neighbor index. IDs are insertion positions 0..Len()-1,
// which callers use to align external metadata with the stored vectors.
type Index interface {
	// Add appends vectors. Every vector is validated before any is inserted.
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k neighbors ordered by ascending distance. An empty index yields no results.
	// Results are approximate: on large indexes a stored vector queried exactly is usually, not
	// always, its own first hit. Small indexes and larger efSearch values narrow the gap.
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Len() int
	Dimension() int
	Type() string
	// Clone returns an independent copy; mutating the copy never affects the receiver.
	Clone() (Index, error)
	Save(w io.Writer) error
	Close() error
}

// Neighbor is a single search hit. Distance is squared L2.
type Neighbor struct {
	ID       int64
	Distance float32
}

// Score maps a raw distance into (0, 1]: 1 for an identical vector, approaching 0 as distance grows.
func Score(distance float32) float64 {
	d := float64(distance)
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}

func checkDimension(v []float32, want int) error {
	if len(v) != want {
		return &DimensionError{Got: len(v), Want: want}
	}
	return nil
}
