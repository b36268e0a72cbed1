package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// zipOf builds an archive from name/content pairs.
func zipOf(t *testing.T, parts ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := 0; i+1 < len(parts); i += 2 {
		fw, err := w.Create(parts[i])
		require.NoError(t, err)
		_, err = fw.Write([]byte(parts[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func wordBody(text string) string {
	return `<w:document><w:body><w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`
}

func slide(text string) string {
	return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestFromBytes_plain(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ext     string
		want    string
	}{
		{"txt", "Refunds within 30 days\nLine 2", ".txt", "Refunds within 30 days\nLine 2"},
		{"utf8", "caf\xc3\xa9", ".md", "café"},
		{"invalid utf8 replaced", "hello\x80world", ".rst", "hello�world"},
		{"unknown extension", "raw content", ".xyz", "raw content"},
		{"no extension", "raw content", "", "raw content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromBytes([]byte(tt.content), tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromBytes_binaryUnknown(t *testing.T) {
	_, err := FromBytes([]byte{0x7f, 'E', 'L', 'F', 0, 0, 1}, ".bin")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFromBytes_xlsx(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Plan"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "growth"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "premium fallback"))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	got, err := FromBytes(buf.Bytes(), ".XLSX")
	require.NoError(t, err)
	assert.Equal(t, "Plan\ngrowth\tpremium fallback", got)
}

func TestFromBytes_docx(t *testing.T) {
	t.Run("default part", func(t *testing.T) {
		got, err := FromBytes(zipOf(t, "word/document.xml", wordBody("Warranty lasts two years")), ".docx")
		require.NoError(t, err)
		assert.Equal(t, "Warranty lasts two years", got)
	})
	t.Run("content types override", func(t *testing.T) {
		ct := `<Types><Override PartName="/word/document2.xml" ContentType="` + docxMainType + `"/></Types>`
		got, err := FromBytes(zipOf(t, contentTypesPart, ct, "word/document2.xml", wordBody("From document2")), ".docx")
		require.NoError(t, err)
		assert.Equal(t, "From document2", got)
	})
	t.Run("content type before part name", func(t *testing.T) {
		ct := `<Types><Override ContentType="` + docxMainType + `" PartName="/word/document3.xml"/></Types>`
		got, err := FromBytes(zipOf(t, contentTypesPart, ct, "word/document3.xml", wordBody("Reversed order")), ".docx")
		require.NoError(t, err)
		assert.Equal(t, "Reversed order", got)
	})
	t.Run("missing body", func(t *testing.T) {
		_, err := FromBytes(zipOf(t, "other.xml", "<x/>"), ".docx")
		assert.Error(t, err)
	})
}

func TestFromBytes_pptx(t *testing.T) {
	t.Run("slides in numeric order", func(t *testing.T) {
		content := zipOf(t,
			"ppt/slides/slide10.xml", slide("Tenth"),
			"ppt/slides/slide2.xml", slide("Second"),
			"ppt/slides/slide1.xml", slide("First"),
		)
		got, err := FromBytes(content, ".pptx")
		require.NoError(t, err)
		assert.Equal(t, "First Second Tenth", got)
	})
	t.Run("no slides", func(t *testing.T) {
		got, err := FromBytes(zipOf(t, "ppt/slides/other.xml", "", "docProps/core.xml", ""), ".pptx")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
	t.Run("not a zip", func(t *testing.T) {
		_, err := FromBytes([]byte("not a zip"), ".pptx")
		assert.Error(t, err)
	})
}

func TestFromBytes_odf(t *testing.T) {
	t.Run("odp paragraphs spans then headers", func(t *testing.T) {
		xml := `<office:document><draw:page><text:h>Slide title</text:h><text:p>Body text</text:p></draw:page></office:document>`
		got, err := FromBytes(zipOf(t, "content.xml", xml), ".odp")
		require.NoError(t, err)
		assert.Equal(t, "Body text Slide title", got)
	})
	t.Run("ods cells", func(t *testing.T) {
		xml := `<table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:span>Cell B</text:span></table:table-cell></table:table-row>`
		got, err := FromBytes(zipOf(t, "content.xml", xml), ".ods")
		require.NoError(t, err)
		assert.Equal(t, "Cell A Cell B", got)
	})
	for _, ext := range []string{".odp", ".ods"} {
		t.Run("missing content "+ext, func(t *testing.T) {
			_, err := FromBytes(zipOf(t, "other.xml", ""), ext)
			assert.Error(t, err)
		})
	}
}

func TestText(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "faq.txt")
	require.NoError(t, os.WriteFile(txt, []byte("File content"), 0600))
	deck := filepath.Join(dir, "deck.pptx")
	require.NoError(t, os.WriteFile(deck, zipOf(t, "ppt/slides/slide1.xml", slide("From deck")), 0600))

	got, err := Text(txt)
	require.NoError(t, err)
	assert.Equal(t, "File content", got)

	got, err = Text(deck)
	require.NoError(t, err)
	assert.Equal(t, "From deck", got)

	_, err = Text(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestFormats(t *testing.T) {
	assert.Equal(t, []string{".docx", ".odp", ".ods", ".odt", ".pdf", ".pptx", ".rtf", ".xlsx"}, Formats())
}
