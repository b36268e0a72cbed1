package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		client_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		filename TEXT,
		chunks INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (client_id, document_id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_client_created ON documents(client_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordDocument upserts doc. A repeated ingest of the same document adds its chunks
// to the existing count and refreshes model and dimension.
func (s *SQLiteCatalog) RecordDocument(ctx context.Context, doc *Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (client_id, document_id, filename, chunks, model, dimension, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_id, document_id) DO UPDATE SET
		   chunks = documents.chunks + excluded.chunks,
		   filename = COALESCE(NULLIF(excluded.filename, ''), documents.filename),
		   model = excluded.model,
		   dimension = excluded.dimension,
		   updated_at = excluded.updated_at`,
		doc.ClientID, doc.DocumentID, doc.Filename, doc.Chunks, doc.Model, doc.Dimension, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns one document of a tenant.
func (s *SQLiteCatalog) GetDocument(ctx context.Context, clientID, documentID string) (*Document, error) {
	var doc Document
	var filename sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT client_id, document_id, filename, chunks, model, dimension, created_at, updated_at
		 FROM documents WHERE client_id = ? AND document_id = ?`, clientID, documentID,
	).Scan(&doc.ClientID, &doc.DocumentID, &filename, &doc.Chunks, &doc.Model, &doc.Dimension, &doc.CreatedAt, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, clientID, documentID)
	}
	if err != nil {
		return nil, err
	}
	doc.Filename = filename.String
	return &doc, nil
}

// ListDocuments returns a tenant's documents, newest first.
func (s *SQLiteCatalog) ListDocuments(ctx context.Context, clientID string, offset, limit int) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, document_id, filename, chunks, model, dimension, created_at, updated_at
		 FROM documents WHERE client_id = ? ORDER BY created_at DESC, document_id LIMIT ? OFFSET ?`,
		clientID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var filename sql.NullString
		if err := rows.Scan(&doc.ClientID, &doc.DocumentID, &filename, &doc.Chunks, &doc.Model, &doc.Dimension, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Filename = filename.String
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of documents of a tenant.
func (s *SQLiteCatalog) CountDocuments(ctx context.Context, clientID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE client_id = ?`, clientID).Scan(&count)
	return count, err
}

// CountChunks returns the number of chunks recorded for a tenant.
func (s *SQLiteCatalog) CountChunks(ctx context.Context, clientID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(chunks), 0) FROM documents WHERE client_id = ?`, clientID).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
