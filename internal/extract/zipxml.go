package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

const (
	contentTypesPart = "[Content_Types].xml"
	docxDefaultPart  = "word/document.xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	odfContentPart   = "content.xml"
	pptxSlidePrefix  = "ppt/slides/slide"
)

var (
	wordText  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	drawText  = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfPara   = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfSpan   = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfHeader = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)

	// The main document override may list its attributes in either order.
	docxPartNames = []*regexp.Regexp{
		regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"`),
		regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]+PartName="([^"]+)"`),
	}
)

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip: %w", err)
	}
	return zr, nil
}

// readPart returns the named entry, or nil when the archive has none.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// collect appends the first group of every match of each pattern, in pattern order.
func collect(b *strings.Builder, xml string, patterns ...*regexp.Regexp) {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(xml, -1) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(m[1]))
		}
	}
}

// docxMainPart resolves the body part from [Content_Types].xml. Some writers emit
// word/document2.xml.
func docxMainPart(zr *zip.Reader) string {
	ct, err := readPart(zr, contentTypesPart)
	if err != nil || ct == nil {
		return docxDefaultPart
	}
	for _, re := range docxPartNames {
		if m := re.FindSubmatch(ct); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultPart
}

// decodeDOCX reads every <w:t> run so paragraph and run attributes never hide text.
func decodeDOCX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	part := docxMainPart(zr)
	body, err := readPart(zr, part)
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", fmt.Errorf("%s not found", part)
	}
	var b strings.Builder
	collect(&b, string(body), wordText)
	return strings.TrimSpace(b.String()), nil
}

func decodePPTX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	var slides []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, pptxSlidePrefix) && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slideNumber(slides[i]) < slideNumber(slides[j]) })

	var b strings.Builder
	for _, name := range slides {
		xml, err := readPart(zr, name)
		if err != nil {
			return "", err
		}
		collect(&b, string(xml), drawText)
	}
	return strings.TrimSpace(b.String()), nil
}

// slideNumber orders slide10 after slide9.
func slideNumber(name string) int {
	n := 0
	for _, r := range strings.TrimSuffix(strings.TrimPrefix(name, pptxSlidePrefix), ".xml") {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func decodeODF(content []byte, patterns ...*regexp.Regexp) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	xml, err := readPart(zr, odfContentPart)
	if err != nil {
		return "", err
	}
	if xml == nil {
		return "", fmt.Errorf("%s not found", odfContentPart)
	}
	var b strings.Builder
	collect(&b, string(xml), patterns...)
	return strings.TrimSpace(b.String()), nil
}

func decodeODP(content []byte) (string, error) {
	return decodeODF(content, odfPara, odfSpan, odfHeader)
}

func decodeODS(content []byte) (string, error) {
	return decodeODF(content, odfPara, odfSpan)
}
