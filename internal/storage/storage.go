// Package storage keeps the per-tenant document catalog: which documents were ingested,
// how many chunks each contributed, and the embedding space they were indexed in.
// The vector index stays the source of truth for retrieval.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDocumentNotFound is returned when a catalog lookup misses.
var ErrDocumentNotFound = errors.New("document not found")

// Document is one ingested document of a tenant.
type Document struct {
	ClientID   string    `json:"client_id"`
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename,omitempty"`
	Chunks     int       `json:"chunks"`
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Catalog records ingested documents per tenant.
type Catalog interface {
	// RecordDocument inserts doc, or adds doc.Chunks to an existing entry with the same IDs.
	RecordDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, clientID, documentID string) (*Document, error)
	ListDocuments(ctx context.Context, clientID string, offset, limit int) ([]*Document, error)

	CountDocuments(ctx context.Context, clientID string) (int64, error)
	CountChunks(ctx context.Context, clientID string) (int64, error)

	Close() error
}
