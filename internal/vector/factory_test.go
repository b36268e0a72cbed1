package vector

import (
	"bytes"
	"context"
	"testing"
)

func TestNewIndex_HNSW(t *testing.T) {
	idx, err := NewIndex("hnsw", 3)
	if err != nil {
		t.Fatalf("NewIndex(hnsw): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len=%d, want 1", idx.Len())
	}
	if idx.Type() != "hnsw" {
		t.Errorf("Type=%q, want hnsw", idx.Type())
	}
}

func TestNewIndex_Empty(t *testing.T) {
	// Empty string should default to hnsw
	idx, err := NewIndex("", 3)
	if err != nil {
		t.Fatalf("NewIndex(''): %v", err)
	}
	defer idx.Close()

	if idx.Len() != 0 {
		t.Errorf("Len=%d, want 0", idx.Len())
	}
	if idx.Type() != string(IndexTypeHNSW) {
		t.Errorf("Type=%q", idx.Type())
	}
}

func TestNewIndex_Unknown(t *testing.T) {
	if _, err := NewIndex("unknown", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
	if _, err := Load("unknown", bytes.NewReader(nil)); err == nil {
		t.Error("expected error loading unknown index type")
	}
}

func TestNewIndex_InvalidDimension(t *testing.T) {
	if _, err := NewIndex("hnsw", 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex("", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load("", &buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 2 || loaded.Dimension() != 2 {
		t.Errorf("loaded Len=%d Dimension=%d", loaded.Len(), loaded.Dimension())
	}
}

func TestIsFAISSAvailable(t *testing.T) {
	// The result depends on build tags
	t.Logf("FAISS available: %v", IsFAISSAvailable())
}

func TestNewIndex_FAISS(t *testing.T) {
	if !IsFAISSAvailable() {
		t.Skip("FAISS not available (build with -tags=faiss)")
	}

	idx, err := NewIndex("faiss", 3)
	if err != nil {
		t.Fatalf("NewIndex(faiss): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len=%d, want 1", idx.Len())
	}
}
