package indexer

import (
	"strings"
	"unicode"

	"github.com/cortexlayer/ragcore/internal/models"
)

// Default chunk window, in words.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 40
)

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into ChunkInputs with overlapping windows. Each chunk's metadata
// carries filename (when non-empty) and its chunk_index.
func (c *Chunker) Chunk(filename, text string) []models.ChunkInput {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]models.ChunkInput, 0)
	chunkIndex := 0
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		meta := map[string]interface{}{"chunk_index": chunkIndex}
		if filename != "" {
			meta["filename"] = filename
		}
		chunks = append(chunks, models.ChunkInput{
			Text:     strings.Join(words[i:end], " "),
			Metadata: meta,
		})
		chunkIndex++
		if end >= len(words) {
			break
		}
	}
	return chunks
}

// Preprocess cleans extracted text before chunking: control characters and U+FFFD left by
// lossy decoding are dropped, and whitespace runs collapse to one space.
func Preprocess(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}
