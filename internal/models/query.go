package models

import (
	"fmt"
	"strings"
)

// Plan tiers understood by the generation policy.
const (
	PlanStarter = "starter"
	PlanGrowth  = "growth"
	PlanScale   = "scale"
)

const (
	// DefaultTopK is the number of chunks retrieved when a request does not say.
	DefaultTopK = 5
	// MaxTopK caps how many chunks one request may retrieve.
	MaxTopK = 50
)

// QueryRequest is a query as received from the request-handling subsystem.
type QueryRequest struct {
	Query string `json:"query"`
	Plan  string `json:"plan_type,omitempty"`
	TopK  int    `json:"top_k,omitempty"`
}

// Normalize fills defaults. A blank query is left blank; the pipeline answers it with a canned response.
func (q *QueryRequest) Normalize() {
	if q.Plan == "" {
		q.Plan = PlanStarter
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
}

// IngestRequest is one logical ingest: every chunk of one document. Raw Text may be sent
// instead of Chunks, in which case it is chunked server-side.
type IngestRequest struct {
	DocumentID string       `json:"document_id,omitempty"`
	Chunks     []ChunkInput `json:"chunks,omitempty"`
	Text       string       `json:"text,omitempty"`
	Filename   string       `json:"filename,omitempty"`
}

// Validate rejects chunks without text and requests carrying both chunks and raw text.
// An empty request is valid and ingests nothing.
func (r *IngestRequest) Validate() error {
	if len(r.Chunks) > 0 && r.Text != "" {
		return fmt.Errorf("send either chunks or text, not both")
	}
	for i, ch := range r.Chunks {
		if strings.TrimSpace(ch.Text) == "" {
			return fmt.Errorf("chunk %d has empty text", i)
		}
	}
	return nil
}
