package vector

import (
	"bufio"
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
)

const (
	// DefaultM is the fan-out on layers above 0. Layer 0 keeps up to 2*M neighbors.
	DefaultM = 32
	// DefaultEfConstruction is the candidate list size used while inserting.
	DefaultEfConstruction = 40
	// DefaultEfSearch is the minimum candidate list size used while searching. Searches use
	// max(efSearch, k), so recall on large indexes trades against latency here.
	DefaultEfSearch = 16

	hnswSeed    = 12345
	hnswVersion = 1
	maxLevels   = 32
)

var hnswMagic = [4]byte{'H', 'N', 'S', 'W'}

// HNSWIndex is a hierarchical navigable small-world graph over squared-L2 distance.
// It is safe for concurrent use: searches share a read lock, inserts take the write lock.
type HNSWIndex struct {
	dimensions     int
	m              int
	efConstruction int
	efSearch       int
	levelMult      float64
	rng            *rand.Rand

	vectors  [][]float32
	levels   []int
	links    [][][]int32 // links[node][layer] -> neighbor ids
	entry    int32
	maxLevel int
	mu       sync.RWMutex
}

// HNSWOption configures an HNSWIndex.
type HNSWOption func(*HNSWIndex)

// WithM sets the graph fan-out.
func WithM(m int) HNSWOption {
	return func(h *HNSWIndex) { h.m = m }
}

// WithEfConstruction sets the insert-time candidate list size.
func WithEfConstruction(ef int) HNSWOption {
	return func(h *HNSWIndex) { h.efConstruction = ef }
}

// WithEfSearch sets the minimum query-time candidate list size.
func WithEfSearch(ef int) HNSWOption {
	return func(h *HNSWIndex) { h.efSearch = ef }
}

// NewHNSWIndex creates an empty graph for vectors of the given dimension.
func NewHNSWIndex(dimensions int, opts ...HNSWOption) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	h := &HNSWIndex{
		dimensions:     dimensions,
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearch:       DefaultEfSearch,
		entry:          -1,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.m < 2 {
		return nil, fmt.Errorf("hnsw M must be at least 2, got %d", h.m)
	}
	if h.efConstruction < 1 || h.efSearch < 1 {
		return nil, fmt.Errorf("hnsw ef parameters must be positive")
	}
	h.levelMult = 1 / math.Log(float64(h.m))
	h.rng = rand.New(rand.NewSource(hnswSeed))
	return h, nil
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Dimension returns the vector length every insert and query must match.
func (h *HNSWIndex) Dimension() int {
	return h.dimensions
}

// Len returns the number of vectors in the graph.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.vectors)
}

// Add inserts vectors in order; the i-th vector of the first batch gets ID 0.
// The batch is rejected as a whole if any vector has the wrong length.
func (h *HNSWIndex) Add(ctx context.Context, vectors [][]float32) error {
	for _, v := range vectors {
		if err := checkDimension(v, h.dimensions); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range vectors {
		vec := make([]float32, h.dimensions)
		copy(vec, v)
		h.insert(vec)
	}
	return nil
}

// Search returns up to k approximate nearest neighbors by ascending squared-L2 distance.
// An exact self-query can miss its own vector on large graphs; see WithEfSearch.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := checkDimension(query, h.dimensions); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || h.entry < 0 {
		return nil, nil
	}
	ep := h.entry
	epDist := L2Squared(query, h.vectors[ep])
	for lc := h.maxLevel; lc > 0; lc-- {
		ep, epDist = h.greedy(query, ep, epDist, lc)
	}
	ef := h.efSearch
	if k > ef {
		ef = k
	}
	found := h.searchLayer(query, []candidate{{id: ep, dist: epDist}}, ef, 0)
	if len(found) > k {
		found = found[:k]
	}
	result := make([]Neighbor, len(found))
	for i, c := range found {
		result[i] = Neighbor{ID: int64(c.id), Distance: c.dist}
	}
	return result, nil
}

// Clone returns a deep copy of the graph.
func (h *HNSWIndex) Clone() (Index, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := &HNSWIndex{
		dimensions:     h.dimensions,
		m:              h.m,
		efConstruction: h.efConstruction,
		efSearch:       h.efSearch,
		levelMult:      h.levelMult,
		rng:            rand.New(rand.NewSource(hnswSeed + int64(len(h.vectors)))),
		vectors:        make([][]float32, len(h.vectors)),
		levels:         make([]int, len(h.levels)),
		links:          make([][][]int32, len(h.links)),
		entry:          h.entry,
		maxLevel:       h.maxLevel,
	}
	copy(c.levels, h.levels)
	for i, v := range h.vectors {
		c.vectors[i] = append([]float32(nil), v...)
	}
	for i, layers := range h.links {
		c.links[i] = make([][]int32, len(layers))
		for lc, ids := range layers {
			c.links[i][lc] = append([]int32(nil), ids...)
		}
	}
	return c, nil
}

// Close is a no-op for HNSWIndex.
func (h *HNSWIndex) Close() error {
	return nil
}

func (h *HNSWIndex) maxConn(layer int) int {
	if layer == 0 {
		return 2 * h.m
	}
	return h.m
}

func (h *HNSWIndex) randomLevel() int {
	level := int(-math.Log(1-h.rng.Float64()) * h.levelMult)
	if level >= maxLevels {
		level = maxLevels - 1
	}
	return level
}

func (h *HNSWIndex) insert(vec []float32) {
	id := int32(len(h.vectors))
	level := h.randomLevel()
	h.vectors = append(h.vectors, vec)
	h.levels = append(h.levels, level)
	h.links = append(h.links, make([][]int32, level+1))
	if h.entry < 0 {
		h.entry = id
		h.maxLevel = level
		return
	}

	ep := h.entry
	epDist := L2Squared(vec, h.vectors[ep])
	for lc := h.maxLevel; lc > level; lc-- {
		ep, epDist = h.greedy(vec, ep, epDist, lc)
	}
	top := level
	if h.maxLevel < top {
		top = h.maxLevel
	}
	entries := []candidate{{id: ep, dist: epDist}}
	for lc := top; lc >= 0; lc-- {
		found := h.searchLayer(vec, entries, h.efConstruction, lc)
		neighbors := h.selectNeighbors(found, h.maxConn(lc))
		ids := make([]int32, len(neighbors))
		for i, n := range neighbors {
			ids[i] = n.id
		}
		h.links[id][lc] = ids
		for _, n := range neighbors {
			h.connect(n.id, id, lc)
		}
		entries = found
	}
	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = id
	}
}

// greedy walks layer towards q until no neighbor is closer.
func (h *HNSWIndex) greedy(q []float32, ep int32, epDist float32, layer int) (int32, float32) {
	for changed := true; changed; {
		changed = false
		for _, n := range h.links[ep][layer] {
			if d := L2Squared(q, h.vectors[n]); d < epDist {
				ep, epDist, changed = n, d, true
			}
		}
	}
	return ep, epDist
}

// searchLayer is the ef-bounded best-first search of one layer. The result is sorted ascending.
func (h *HNSWIndex) searchLayer(q []float32, entries []candidate, ef int, layer int) []candidate {
	visited := make(map[int32]struct{}, ef*4)
	cands := &minHeap{}
	results := &maxHeap{}
	for _, e := range entries {
		if _, ok := visited[e.id]; ok {
			continue
		}
		visited[e.id] = struct{}{}
		heap.Push(cands, e)
		heap.Push(results, e)
		if results.Len() > ef {
			heap.Pop(results)
		}
	}
	for cands.Len() > 0 {
		c := heap.Pop(cands).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		for _, n := range h.links[c.id][layer] {
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}
			d := L2Squared(q, h.vectors[n])
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(cands, candidate{id: n, dist: d})
				heap.Push(results, candidate{id: n, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}
	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// selectNeighbors applies the diversity heuristic to candidates sorted by ascending distance,
// then tops up with the pruned candidates so nodes keep their full degree.
func (h *HNSWIndex) selectNeighbors(cands []candidate, max int) []candidate {
	if len(cands) <= max {
		return cands
	}
	selected := make([]candidate, 0, max)
	var pruned []candidate
	for _, c := range cands {
		if len(selected) >= max {
			break
		}
		keep := true
		for _, s := range selected {
			if L2Squared(h.vectors[c.id], h.vectors[s.id]) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}
	for _, c := range pruned {
		if len(selected) >= max {
			break
		}
		selected = append(selected, c)
	}
	return selected
}

// connect adds a back-link from -> to on layer, shrinking from's list when it overflows.
func (h *HNSWIndex) connect(from, to int32, layer int) {
	links := append(h.links[from][layer], to)
	maxConn := h.maxConn(layer)
	if len(links) > maxConn {
		base := h.vectors[from]
		cands := make([]candidate, len(links))
		for i, n := range links {
			cands[i] = candidate{id: n, dist: L2Squared(base, h.vectors[n])}
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
		kept := h.selectNeighbors(cands, maxConn)
		links = make([]int32, len(kept))
		for i, c := range kept {
			links[i] = c.id
		}
	}
	h.links[from][layer] = links
}

type hnswHeader struct {
	Magic          [4]byte
	Version        uint32
	Dimensions     uint32
	M              uint32
	EfConstruction uint32
	EfSearch       uint32
	Count          uint32
	Entry          int32
	MaxLevel       int32
}

// Save writes the graph in little-endian binary: header, then per node its level,
// vector and per-layer neighbor lists.
func (h *HNSWIndex) Save(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bw := bufio.NewWriter(w)
	hdr := hnswHeader{
		Magic:          hnswMagic,
		Version:        hnswVersion,
		Dimensions:     uint32(h.dimensions),
		M:              uint32(h.m),
		EfConstruction: uint32(h.efConstruction),
		EfSearch:       uint32(h.efSearch),
		Count:          uint32(len(h.vectors)),
		Entry:          h.entry,
		MaxLevel:       int32(h.maxLevel),
	}
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, vec := range h.vectors {
		if err := binary.Write(bw, binary.LittleEndian, uint32(h.levels[i])); err != nil {
			return fmt.Errorf("write level: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		for _, ids := range h.links[i] {
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(ids))); err != nil {
				return fmt.Errorf("write link count: %w", err)
			}
			if err := binary.Write(bw, binary.LittleEndian, ids); err != nil {
				return fmt.Errorf("write links: %w", err)
			}
		}
	}
	return bw.Flush()
}

// LoadHNSW reads a graph written by Save.
func LoadHNSW(r io.Reader) (*HNSWIndex, error) {
	br := bufio.NewReader(r)
	var hdr hnswHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr.Magic != hnswMagic {
		return nil, fmt.Errorf("not an hnsw index")
	}
	if hdr.Version != hnswVersion {
		return nil, fmt.Errorf("unsupported hnsw version %d", hdr.Version)
	}
	h, err := NewHNSWIndex(int(hdr.Dimensions),
		WithM(int(hdr.M)),
		WithEfConstruction(int(hdr.EfConstruction)),
		WithEfSearch(int(hdr.EfSearch)),
	)
	if err != nil {
		return nil, err
	}
	n := int(hdr.Count)
	if (n == 0) != (hdr.Entry < 0) || int(hdr.Entry) >= n || hdr.MaxLevel < 0 || hdr.MaxLevel >= maxLevels {
		return nil, fmt.Errorf("corrupt hnsw header")
	}
	h.vectors = make([][]float32, 0, n)
	h.levels = make([]int, 0, n)
	h.links = make([][][]int32, 0, n)
	for i := 0; i < n; i++ {
		var level uint32
		if err := binary.Read(br, binary.LittleEndian, &level); err != nil {
			return nil, fmt.Errorf("read level: %w", err)
		}
		if level >= maxLevels {
			return nil, fmt.Errorf("corrupt level %d for node %d", level, i)
		}
		vec := make([]float32, h.dimensions)
		if err := binary.Read(br, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		layers := make([][]int32, level+1)
		for lc := range layers {
			var count uint32
			if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
				return nil, fmt.Errorf("read link count: %w", err)
			}
			if int(count) > h.maxConn(lc) {
				return nil, fmt.Errorf("corrupt link count %d for node %d", count, i)
			}
			ids := make([]int32, count)
			if err := binary.Read(br, binary.LittleEndian, ids); err != nil {
				return nil, fmt.Errorf("read links: %w", err)
			}
			for _, id := range ids {
				if id < 0 || int(id) >= n {
					return nil, fmt.Errorf("corrupt link %d for node %d", id, i)
				}
			}
			layers[lc] = ids
		}
		h.vectors = append(h.vectors, vec)
		h.levels = append(h.levels, int(level))
		h.links = append(h.links, layers)
	}
	h.entry = hdr.Entry
	h.maxLevel = int(hdr.MaxLevel)
	h.rng = rand.New(rand.NewSource(hnswSeed + int64(n)))
	return h, nil
}

type candidate struct {
	id   int32
	dist float32
}

// minHeap pops the closest candidate first.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxHeap pops the farthest candidate first.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
