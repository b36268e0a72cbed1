// Package prompt assembles generation prompts. It performs no I/O.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cortexlayer/ragcore/internal/models"
)

// NoInformation is the admission the model must use when the context lacks an answer.
const NoInformation = "I don't have information about that in my knowledge base."

// BuildGrounded lists each chunk under a [Document: name, Chunk: index] header, then
// instructs the model to answer only from that context with citations. A chunk without
// a chunk_index is labelled by its position.
func BuildGrounded(query string, chunks []models.RetrievedChunk) string {
	var ctx strings.Builder
	for i, ch := range chunks {
		fmt.Fprintf(&ctx, "\n[Document: %s, Chunk: %s]\n%s\n", ch.Filename(), chunkLabel(ch.Metadata, i), ch.Text)
	}

	var b strings.Builder
	b.WriteString("You are a helpful customer support assistant.\n")
	b.WriteString("Answer the user's question using ONLY the information provided\n")
	b.WriteString("in the context below.\n\n")
	b.WriteString("CONTEXT:\n")
	b.WriteString(ctx.String())
	b.WriteString("\nRULES:\n")
	b.WriteString("1. Only use information from the context above\n")
	b.WriteString("2. If the answer is not in the context, say\n")
	b.WriteString("   \"" + NoInformation + "\"\n")
	b.WriteString("3. Include citations in format [doc: filename#chunk_number]\n")
	b.WriteString("4. Be concise and accurate\n")
	b.WriteString("5. If multiple sources support your answer, cite all relevant ones\n\n")
	b.WriteString("USER QUESTION:\n")
	b.WriteString(query)
	b.WriteString("\n\nANSWER:")
	return b.String()
}

// BuildFallback is used when retrieval found nothing. The model is told to admit the gap
// and point the user at human support instead of guessing.
func BuildFallback(query string) string {
	var b strings.Builder
	b.WriteString("You are a customer support assistant.\n")
	fmt.Fprintf(&b, "The user asked: %q\n\n", query)
	b.WriteString("Unfortunately, I don't have specific information about that\n")
	b.WriteString("in my current knowledge base.\n\n")
	b.WriteString("Please provide a helpful response that:\n")
	b.WriteString("1. Acknowledges the question\n")
	b.WriteString("2. Explains you don't have that specific information\n")
	b.WriteString("3. Suggests they contact support directly for detailed help\n\n")
	b.WriteString("Keep it professional and empathetic.")
	return b.String()
}

func chunkLabel(meta map[string]interface{}, position int) string {
	v, ok := meta["chunk_index"]
	if !ok || v == nil {
		return strconv.Itoa(position)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return strconv.Itoa(models.MetadataInt(meta, "chunk_index", position))
}
