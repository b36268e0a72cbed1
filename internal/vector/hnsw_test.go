package vector

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()
		}
		out[i] = v
	}
	return out
}

func bruteForce(vectors [][]float32, q []float32, k int) []int64 {
	ids := make([]int64, len(vectors))
	for i := range ids {
		ids[i] = int64(i)
	}
	sort.Slice(ids, func(a, b int) bool {
		return L2Squared(q, vectors[ids[a]]) < L2Squared(q, vectors[ids[b]])
	})
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

func TestHNSWIndex_AddSearch(t *testing.T) {
	idx, err := NewHNSWIndex(3)
	if err != nil {
		t.Fatal(err)
	}
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
	if results[0].ID != 0 {
		t.Errorf("top result should be 0, got %d", results[0].ID)
	}
	if Score(results[0].Distance) != 1 {
		t.Errorf("exact match score = %v, want 1", Score(results[0].Distance))
	}
	if results[1].ID != 1 {
		t.Errorf("second result should be 1, got %d", results[1].ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not ordered by ascending distance")
	}
}

func TestHNSWIndex_SearchEmpty(t *testing.T) {
	idx, _ := NewHNSWIndex(3)
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestHNSWIndex_KLargerThanSize(t *testing.T) {
	idx, _ := NewHNSWIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, [][]float32{{0, 0}, {1, 1}, {2, 2}})

	results, err := idx.Search(ctx, []float32{0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewHNSWIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, [][]float32{{1, 0}})

	err := idx.Add(ctx, [][]float32{{0, 1}, {1, 2, 3}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Add err = %v, want ErrDimensionMismatch", err)
	}
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) || dimErr.Got != 3 || dimErr.Want != 2 {
		t.Errorf("DimensionError = %+v", dimErr)
	}
	if idx.Len() != 1 {
		t.Errorf("Len=%d after rejected batch, want 1", idx.Len())
	}

	if _, err := idx.Search(ctx, []float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search err = %v, want ErrDimensionMismatch", err)
	}
}

func TestHNSWIndex_CanceledContext(t *testing.T) {
	idx, _ := NewHNSWIndex(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := idx.Add(ctx, [][]float32{{1, 0}}); !errors.Is(err, context.Canceled) {
		t.Errorf("Add err = %v, want context.Canceled", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len=%d, want 0", idx.Len())
	}
}

func TestHNSWIndex_IDsFollowInsertionOrder(t *testing.T) {
	vecs := randomVectors(50, 4, 1)
	idx, _ := NewHNSWIndex(4)
	ctx := context.Background()
	_ = idx.Add(ctx, vecs[:20])
	_ = idx.Add(ctx, vecs[20:])

	for _, i := range []int{0, 19, 20, 49} {
		results, err := idx.Search(ctx, vecs[i], 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].ID != int64(i) {
			t.Errorf("search for vector %d returned %+v", i, results)
		}
	}
}

func TestHNSWIndex_FanOutBounded(t *testing.T) {
	idx, _ := NewHNSWIndex(8, WithM(4))
	_ = idx.Add(context.Background(), randomVectors(300, 8, 2))

	for node, layers := range idx.links {
		for lc, ids := range layers {
			if len(ids) > idx.maxConn(lc) {
				t.Fatalf("node %d layer %d has %d links, max %d", node, lc, len(ids), idx.maxConn(lc))
			}
		}
	}
}

func TestHNSWIndex_Recall(t *testing.T) {
	const (
		n   = 2000
		dim = 16
		k   = 10
	)
	vecs := randomVectors(n, dim, 3)
	idx, _ := NewHNSWIndex(dim, WithEfSearch(64))
	ctx := context.Background()
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}

	queries := randomVectors(50, dim, 4)
	hits := 0
	for _, q := range queries {
		want := make(map[int64]bool)
		for _, id := range bruteForce(vecs, q, k) {
			want[id] = true
		}
		got, err := idx.Search(ctx, q, k)
		if err != nil {
			t.Fatal(err)
		}
		for _, nb := range got {
			if want[nb.ID] {
				hits++
			}
		}
	}
	recall := float64(hits) / float64(len(queries)*k)
	if recall < 0.9 {
		t.Errorf("recall@%d = %.3f, want >= 0.9", k, recall)
	}
}

func TestHNSWIndex_SelfQuery(t *testing.T) {
	ctx := context.Background()

	// With efSearch above the index size every stored vector is its own first hit with score 1.
	small := randomVectors(40, 8, 5)
	idx, _ := NewHNSWIndex(8, WithEfSearch(64))
	if err := idx.Add(ctx, small); err != nil {
		t.Fatal(err)
	}
	for i, v := range small {
		got, err := idx.Search(ctx, v, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != int64(i) || Score(got[0].Distance) != 1 {
			t.Fatalf("self-query %d = %+v", i, got)
		}
	}

	// Large graphs at the default efSearch are approximate but stay close.
	large := randomVectors(1500, 32, 6)
	idx, _ = NewHNSWIndex(32)
	if err := idx.Add(ctx, large); err != nil {
		t.Fatal(err)
	}
	found := 0
	for i, v := range large {
		got, err := idx.Search(ctx, v, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) == 1 && got[0].ID == int64(i) {
			found++
		}
	}
	if rate := float64(found) / float64(len(large)); rate < 0.95 {
		t.Errorf("self-query hit rate = %.3f, want >= 0.95", rate)
	}
}

func TestHNSWIndex_DeterministicBuild(t *testing.T) {
	vecs := randomVectors(200, 8, 5)
	a, _ := NewHNSWIndex(8)
	b, _ := NewHNSWIndex(8)
	ctx := context.Background()
	_ = a.Add(ctx, vecs)
	_ = b.Add(ctx, vecs)

	var bufA, bufB bytes.Buffer
	_ = a.Save(&bufA)
	_ = b.Save(&bufB)
	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Error("identical inserts produced different graphs")
	}
}

func TestHNSWIndex_Clone(t *testing.T) {
	idx, _ := NewHNSWIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, [][]float32{{1, 0}, {0, 1}})

	cloned, err := idx.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if err := cloned.Add(ctx, [][]float32{{5, 5}}); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 {
		t.Errorf("original Len=%d after clone mutation, want 2", idx.Len())
	}
	if cloned.Len() != 3 {
		t.Errorf("clone Len=%d, want 3", cloned.Len())
	}

	results, _ := idx.Search(ctx, []float32{5, 5}, 3)
	for _, r := range results {
		if r.ID == 2 {
			t.Error("original index returned a vector added to the clone")
		}
	}
}

func TestHNSWIndex_SaveLoad(t *testing.T) {
	vecs := randomVectors(300, 8, 6)
	idx, _ := NewHNSWIndex(8)
	ctx := context.Background()
	_ = idx.Add(ctx, vecs)

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadHNSW(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("LoadHNSW: %v", err)
	}
	if loaded.Len() != idx.Len() || loaded.Dimension() != 8 {
		t.Fatalf("loaded Len=%d Dimension=%d", loaded.Len(), loaded.Dimension())
	}

	q := vecs[42]
	want, _ := idx.Search(ctx, q, 5)
	got, _ := loaded.Search(ctx, q, 5)
	if len(got) != len(want) {
		t.Fatalf("loaded returned %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d: got %+v, want %+v", i, got[i], want[i])
		}
	}

	// Loaded graph keeps accepting inserts
	if err := loaded.Add(ctx, [][]float32{make([]float32, 8)}); err != nil {
		t.Fatal(err)
	}
}

func TestLoadHNSW_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("NOPE0000000000000000000000000000000000")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadHNSW(bytes.NewReader(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}

	idx, _ := NewHNSWIndex(4)
	_ = idx.Add(context.Background(), randomVectors(10, 4, 7))
	var buf bytes.Buffer
	_ = idx.Save(&buf)
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, err := LoadHNSW(bytes.NewReader(truncated)); err == nil {
		t.Error("expected error for truncated index")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		distance float32
		want     float64
	}{
		{0, 1},
		{1, 0.5},
		{3, 0.25},
		{-0.5, 1},
	}
	for _, tt := range tests {
		if got := Score(tt.distance); got != tt.want {
			t.Errorf("Score(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func BenchmarkHNSWIndex_Search(b *testing.B) {
	vecs := randomVectors(5000, 64, 8)
	idx, _ := NewHNSWIndex(64)
	ctx := context.Background()
	_ = idx.Add(ctx, vecs)
	q := randomVectors(1, 64, 9)[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, q, 5)
	}
}

func BenchmarkHNSWIndex_Add(b *testing.B) {
	vecs := randomVectors(b.N, 64, 10)
	idx, _ := NewHNSWIndex(64)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Add(ctx, vecs[i:i+1])
	}
}
