// Package extract turns uploaded documents into plain text for chunking.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned for binary content with an extension no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

type decoder func(content []byte) (string, error)

var decoders = map[string]decoder{
	".pdf":  decodePDF,
	".docx": decodeDOCX,
	".pptx": decodePPTX,
	".xlsx": decodeXLSX,
	".odp":  decodeODP,
	".ods":  decodeODS,
	".odt":  decodeCat,
	".rtf":  decodeCat,
}

// Formats lists the binary extensions with a dedicated decoder, sorted.
func Formats() []string {
	out := make([]string, 0, len(decoders))
	for ext := range decoders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Text reads the file at path and returns its text.
func Text(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return FromBytes(content, filepath.Ext(path))
}

// FromBytes decodes content by extension (with the leading dot, any case). Extensions
// without a decoder are read as UTF-8 text; NUL bytes mark them as binary and unsupported.
func FromBytes(content []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if dec, ok := decoders[ext]; ok {
		text, err := dec(content)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", ext, err)
		}
		return text, nil
	}
	if strings.IndexByte(string(content), 0) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd"), nil
	}
	return string(content), nil
}
