package vector

import (
	"fmt"
	"io"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeHNSW is the in-process HNSW graph. It is the default.
	IndexTypeHNSW IndexType = "hnsw"
	// IndexTypeFAISS uses FAISS's HNSW32,Flat index.
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an empty index of the specified type.
// Supported types: "hnsw" (default), "faiss".
func NewIndex(indexType string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeHNSW, "":
		return NewHNSWIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: hnsw, faiss)", indexType)
	}
}

// Load reads an index of the specified type previously written with Index.Save.
func Load(indexType string, r io.Reader) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeHNSW, "":
		return LoadHNSW(r)
	case IndexTypeFAISS:
		return LoadFAISS(r)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: hnsw, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
