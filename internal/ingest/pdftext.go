package ingest

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// headingPattern matches numbered or bare section headings on their own line.
var headingPattern = regexp.MustCompile(`^(?:\d+\.?\d*\s+)?(introduction|background|materials and methods|methods|results|results and discussion|discussion|conclusions?|references)\s*$`)

// captionPattern matches figure and table caption lines.
var captionPattern = regexp.MustCompile(`^(?:Figure|Fig\.?|Table)\s+\d+[.:)]`)

// ParsePDF extracts a Document from PDF bytes. PDF text has no markup, so
// sections are recovered heuristically from heading lines and captions from
// "Figure N." prefixes. The reference list is dropped.
func ParsePDF(r io.ReaderAt, size int64) (*Document, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	doc := &Document{}
	current := Section{Type: SectionOther}
	var body strings.Builder

	flush := func() {
		current.Text = strings.TrimSpace(body.String())
		if current.Text != "" && current.Type != "references" {
			doc.Sections = append(doc.Sections, current)
		}
		body.Reset()
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		pageNum := int64(i)
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if captionPattern.MatchString(line) {
				doc.Captions = append(doc.Captions, line)
				continue
			}

			if m := headingPattern.FindStringSubmatch(strings.ToLower(line)); m != nil {
				flush()
				heading := m[1]
				typ := sectionTypeFor(heading)
				if heading == "references" {
					typ = "references"
				}
				current = Section{Type: typ, Heading: line, Page: &pageNum}
				continue
			}

			if body.Len() > 0 {
				body.WriteString(" ")
			}
			body.WriteString(line)
		}
	}
	flush()

	// Abstract is whatever precedes the first recognized heading.
	if len(doc.Sections) > 0 && doc.Sections[0].Type == SectionOther && doc.Sections[0].Heading == "" {
		doc.Abstract = clipAbstract(doc.Sections[0].Text)
		doc.Sections = doc.Sections[1:]
	}

	return doc, nil
}

// clipAbstract trims front-matter text to a plausible abstract length.
func clipAbstract(text string) string {
	const maxLen = 4000
	if idx := strings.Index(strings.ToLower(text), "abstract"); idx >= 0 {
		text = strings.TrimSpace(text[idx+len("abstract"):])
	}
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return strings.TrimSpace(text)
}
