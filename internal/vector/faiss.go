//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/index_factory_c.h>
#include <faiss/c_api/clone_index_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"
)

const faissDescription = "HNSW32,Flat"

// FAISSIndex wraps a FAISS HNSW32,Flat index over L2 distance.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSIndex creates an empty FAISS HNSW index with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	desc := C.CString(faissDescription)
	defer C.free(unsafe.Pointer(desc))

	var index *C.FaissIndex
	if ret := C.faiss_index_factory(&index, C.int(dimensions), desc, C.METRIC_L2); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: index, dimensions: dimensions}, nil
}

// LoadFAISS reads an index written by Save. FAISS only reads from files, so the
// stream is spooled through a temporary file.
func LoadFAISS(r io.Reader) (*FAISSIndex, error) {
	tmp, err := os.CreateTemp("", "ragcore-faiss-*.index")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("spool index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	cPath := C.CString(tmp.Name())
	defer C.free(unsafe.Pointer(cPath))
	var index *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &index); ret != 0 {
		return nil, fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: index, dimensions: int(C.faiss_Index_d(index))}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vectors; FAISS assigns sequential IDs starting at the current size.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) error {
	for _, v := range vectors {
		if err := checkDimension(v, f.dimensions); err != nil {
			return err
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Flatten vectors into contiguous array for FAISS
	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// Search returns up to k neighbors by ascending L2 distance.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := checkDimension(query, f.dimensions); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || ntotal == 0 {
		return nil, nil
	}
	if k > ntotal {
		k = ntotal
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	results := make([]Neighbor, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		results = append(results, Neighbor{ID: labels[i], Distance: distances[i]})
	}
	return results, nil
}

// Clone returns a deep copy made by faiss_clone_index.
func (f *FAISSIndex) Clone() (Index, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var clone *C.FaissIndex
	if ret := C.faiss_clone_index(f.index, &clone); ret != 0 {
		return nil, fmt.Errorf("failed to clone FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: clone, dimensions: f.dimensions}, nil
}

// Save writes the native FAISS serialization to w.
func (f *FAISSIndex) Save(w io.Writer) error {
	tmp, err := os.CreateTemp("", "ragcore-faiss-*.index")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	tmp.Close()
	defer os.Remove(name)

	cPath := C.CString(name)
	defer C.free(unsafe.Pointer(cPath))
	f.mu.RLock()
	ret := C.faiss_write_index_fname(f.index, cPath)
	f.mu.RUnlock()
	if ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}

	in, err := os.Open(name)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}

// Len returns the number of stored vectors.
func (f *FAISSIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimension returns the vector length.
func (f *FAISSIndex) Dimension() int {
	return f.dimensions
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
