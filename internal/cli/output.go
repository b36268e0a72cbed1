// Package cli provides output helpers for the ragcore command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cortexlayer/ragcore/internal/indexstore"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// Status is the tenant status printed by `ragcore status`.
type Status struct {
	Index          *indexstore.Stats `json:"index"`
	Documents      int64             `json:"documents"`
	Chunks         int64             `json:"chunks"`
	DiskUsageBytes *int64            `json:"disk_usage_bytes,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResult writes a query result to w in the given format.
func WriteResult(w io.Writer, res *models.PipelineResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\n%s\n\n", res.Answer)
	fmt.Fprintf(w, "confidence: %.3f | latency: %dms | model: %s | tokens: %d in / %d out | cost: $%.6f\n",
		res.Confidence, res.LatencyMs, res.UsageStats.Model,
		res.UsageStats.InputTokens, res.UsageStats.OutputTokens, res.UsageStats.CostUSD)
	if res.ShouldEscalate && res.EscalationReason != nil {
		fmt.Fprintf(w, "escalate: %s\n", *res.EscalationReason)
	}
	if len(res.Citations) > 0 {
		fmt.Fprintln(w, "\nsources:")
		for i, c := range res.Citations {
			fmt.Fprintf(w, "  %d. %s#%d (relevance %.3f)\n", i+1, utils.Truncate(c.Document, 60), c.ChunkIndex, c.RelevanceScore)
		}
	}
	return nil
}

// WriteIngest reports an ingest to w.
func WriteIngest(w io.Writer, documentID string, usage models.Usage, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{
			"document_id": documentID,
			"status":      "indexed",
			"usage_stats": usage,
		})
	}
	fmt.Fprintf(w, "indexed document %s (model %s, %d tokens, $%.6f)\n", documentID, usage.Model, usage.Tokens, usage.CostUSD)
	return nil
}

// WriteStatus writes tenant status to w.
func WriteStatus(w io.Writer, st *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # documents in the catalog\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d   # chunks in the catalog\n", st.Chunks)
	if st.Index != nil {
		fmt.Fprintf(w, "vectors:            %d   # vectors in the tenant index\n", st.Index.Vectors)
		fmt.Fprintf(w, "records:            %d\n", st.Index.Records)
		fmt.Fprintf(w, "dimension:          %d\n", st.Index.Dimension)
		if st.Index.Model != "" {
			fmt.Fprintf(w, "model:              %s\n", st.Index.Model)
		}
		if st.Index.IndexType != "" {
			fmt.Fprintf(w, "index_type:         %s\n", st.Index.IndexType)
		}
		fmt.Fprintf(w, "mirrored:           %t\n", st.Index.Mirrored)
	}
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # mirror + catalog on disk\n", *st.DiskUsageBytes)
	}
	return nil
}
