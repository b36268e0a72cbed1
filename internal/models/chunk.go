// Package models defines the records that flow between ingest, retrieval and generation.
package models

import "strconv"

// ChunkInput is one chunk handed to the ingest entry point by the chunking subsystem.
type ChunkInput struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChunkRecord is the metadata stored at position i of a tenant's metadata sequence,
// aligned with vector i of the tenant's index.
type ChunkRecord struct {
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata"`
	DocumentID string                 `json:"document_id"`
	ChunkIndex int                    `json:"chunk_index"`
}

// RetrievedChunk is a chunk returned by the retriever, scored by 1/(1+distance).
type RetrievedChunk struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

// Filename returns metadata["filename"] or "unknown".
func (c RetrievedChunk) Filename() string {
	return MetadataString(c.Metadata, "filename", "unknown")
}

// MetadataString returns m[key] when it is a non-empty string, else def.
func MetadataString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// MetadataInt returns m[key] as an int. Values decoded from JSON arrive as float64;
// strings holding integers are accepted too.
func MetadataInt(m map[string]interface{}, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		x, err := strconv.Atoi(n)
		if err != nil {
			return def
		}
		return x
	default:
		return def
	}
}
