//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestFAISSIndex_AddSearch(t *testing.T) {
	idx, err := NewFAISSIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 3 {
		t.Errorf("Len=%d, want 3", idx.Len())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 0 || results[0].Distance != 0 {
		t.Errorf("top result = %+v, want id 0 at distance 0", results[0])
	}
}

func TestFAISSIndex_SearchEmpty(t *testing.T) {
	idx, err := NewFAISSIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestFAISSIndex_DimensionMismatch(t *testing.T) {
	idx, err := NewFAISSIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	err = idx.Add(context.Background(), [][]float32{{1, 0}, {1, 0, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Add err = %v, want ErrDimensionMismatch", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len=%d after rejected batch, want 0", idx.Len())
	}
}

func TestFAISSIndex_CloneAndSaveLoad(t *testing.T) {
	idx, err := NewFAISSIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()
	_ = idx.Add(ctx, [][]float32{{1, 0}, {0, 1}})

	clone, err := idx.Clone()
	if err != nil {
		t.Fatal(err)
	}
	defer clone.Close()
	_ = clone.Add(ctx, [][]float32{{1, 1}})
	if idx.Len() != 2 || clone.Len() != 3 {
		t.Errorf("Len original=%d clone=%d, want 2 and 3", idx.Len(), clone.Len())
	}

	var buf bytes.Buffer
	if err := clone.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadFAISS(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()
	if loaded.Len() != 3 || loaded.Dimension() != 2 {
		t.Errorf("loaded Len=%d Dimension=%d", loaded.Len(), loaded.Dimension())
	}
}
