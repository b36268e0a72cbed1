// Package fileid derives stable document IDs for ingested files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "file:"

// FromContent returns an ID that changes whenever the file's bytes do. The base name is
// kept readable in front of the hash: "file:handbook.pdf:3f2a...".
func FromContent(path string, content []byte) string {
	sum := sha256.Sum256(content)
	return prefix + filepath.Base(path) + ":" + hex.EncodeToString(sum[:8])
}

// IsFileID reports whether id was produced by FromContent.
func IsFileID(id string) bool {
	return strings.HasPrefix(id, prefix)
}
