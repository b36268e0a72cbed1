package indexstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/vector"
)

// Snapshot is a tenant's index together with its metadata sequence.
// Records[i] describes vector i. A snapshot with a nil Index has no committed
// dimension yet; the first Add fixes it.
//
// Snapshots held by the cache are treated as immutable. Writers build a new
// Snapshot and replace the cached one.
type Snapshot struct {
	Dimension int
	Model     string
	Index     vector.Index
	Records   []models.ChunkRecord
}

// Len returns the number of stored vectors.
func (s *Snapshot) Len() int {
	if s == nil || s.Index == nil {
		return 0
	}
	return s.Index.Len()
}

type metaBlob struct {
	Dimension int                  `json:"dimension"`
	Model     string               `json:"model"`
	IndexType string               `json:"index_type"`
	Records   []models.ChunkRecord `json:"records"`
}

// encodeSnapshot serializes s into the index blob (type line followed by index bytes)
// and the JSON metadata blob.
func encodeSnapshot(s *Snapshot) (indexData, metaData []byte, err error) {
	var buf bytes.Buffer
	indexType := ""
	if s.Index != nil {
		indexType = s.Index.Type()
	}
	buf.WriteString(indexType)
	buf.WriteByte('\n')
	if s.Index != nil {
		if err := s.Index.Save(&buf); err != nil {
			return nil, nil, fmt.Errorf("encode index: %w", err)
		}
	}

	records := s.Records
	if records == nil {
		records = []models.ChunkRecord{}
	}
	metaData, err = json.Marshal(metaBlob{
		Dimension: s.Dimension,
		Model:     s.Model,
		IndexType: indexType,
		Records:   records,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), metaData, nil
}

// decodeSnapshot restores a snapshot and checks that vectors and records line up.
func decodeSnapshot(indexData, metaData []byte) (*Snapshot, error) {
	var meta metaBlob
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	r := bufio.NewReader(bytes.NewReader(indexData))
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("decode index header: %w", err)
	}
	indexType := strings.TrimSuffix(header, "\n")

	snap := &Snapshot{Dimension: meta.Dimension, Model: meta.Model, Records: meta.Records}
	if indexType != "" {
		idx, err := vector.Load(indexType, r)
		if err != nil {
			return nil, fmt.Errorf("decode index: %w", err)
		}
		snap.Index = idx
		if idx.Dimension() != meta.Dimension {
			return nil, fmt.Errorf("corrupt snapshot: index dimension %d, metadata dimension %d", idx.Dimension(), meta.Dimension)
		}
	} else if _, err := r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("corrupt snapshot: index bytes without index type")
	}
	if snap.Len() != len(snap.Records) {
		return nil, fmt.Errorf("corrupt snapshot: %d vectors, %d records", snap.Len(), len(snap.Records))
	}
	return snap, nil
}
