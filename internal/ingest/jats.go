package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ParseJATS parses a JATS full-text XML article (the PMC OA format) into a
// Document. Section types are mapped from sec-type attributes and headings;
// figures become caption chunks; tables are flattened into labeled rows.
func ParseJATS(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	doc := &Document{}
	var (
		elemStack []string
		secStack  []*Section
		abstract  strings.Builder
		caption   strings.Builder
		table     *tableState
		inFig     bool
		inCaption bool
		inTitle   bool
	)

	inside := func(name string) bool {
		for _, e := range elemStack {
			if e == name {
				return true
			}
		}
		return false
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing JATS: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			elemStack = append(elemStack, t.Name.Local)
			switch t.Name.Local {
			case "sec":
				sec := &Section{Type: SectionOther}
				for _, a := range t.Attr {
					if a.Name.Local == "sec-type" {
						sec.Type = sectionTypeFor(a.Value)
					}
				}
				secStack = append(secStack, sec)
			case "title":
				inTitle = true
			case "fig":
				inFig = true
				caption.Reset()
			case "caption":
				inCaption = true
			case "table-wrap":
				table = &tableState{}
			case "tr":
				if table != nil {
					table.startRow()
				}
			case "th", "td":
				if table != nil {
					table.startCell(t.Name.Local == "th")
				}
			}

		case xml.EndElement:
			if len(elemStack) > 0 {
				elemStack = elemStack[:len(elemStack)-1]
			}
			switch t.Name.Local {
			case "sec":
				if len(secStack) > 0 {
					sec := secStack[len(secStack)-1]
					secStack = secStack[:len(secStack)-1]
					sec.Text = strings.TrimSpace(sec.Text)
					if sec.Text != "" {
						doc.Sections = append(doc.Sections, *sec)
					}
				}
			case "title":
				inTitle = false
			case "fig":
				inFig = false
				if text := strings.TrimSpace(caption.String()); text != "" {
					doc.Captions = append(doc.Captions, text)
				}
			case "caption":
				inCaption = false
			case "table-wrap":
				if table != nil {
					if text := table.flatten(); text != "" {
						doc.Sections = append(doc.Sections, Section{Type: SectionTable, Text: text})
					}
					table = nil
				}
			case "th", "td":
				if table != nil {
					table.endCell()
				}
			}

		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) == "" {
				continue
			}
			switch {
			case table != nil && table.inCell:
				table.write(text)
			case inFig && inCaption:
				caption.WriteString(text)
			case inside("abstract"):
				abstract.WriteString(text)
			case inTitle && len(secStack) > 0:
				sec := secStack[len(secStack)-1]
				if sec.Heading == "" {
					sec.Heading = strings.TrimSpace(text)
					if sec.Type == SectionOther {
						sec.Type = sectionTypeFor(sec.Heading)
					}
				}
			case len(secStack) > 0 && inside("p"):
				sec := secStack[len(secStack)-1]
				if sec.Text != "" && !strings.HasSuffix(sec.Text, " ") {
					sec.Text += " "
				}
				sec.Text += text
			}
		}
	}

	doc.Abstract = strings.Join(strings.Fields(abstract.String()), " ")
	return doc, nil
}

// sectionTypeFor maps a sec-type attribute or heading to a section type.
func sectionTypeFor(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "intro"):
		return SectionIntroduction
	case strings.Contains(l, "method"), strings.Contains(l, "material"):
		return SectionMethods
	case strings.Contains(l, "result"), strings.Contains(l, "finding"):
		return SectionResults
	case strings.Contains(l, "discussion"):
		return SectionDiscussion
	case strings.Contains(l, "conclusion"):
		return SectionConclusion
	default:
		return SectionOther
	}
}

// tableState accumulates a table as header-labeled row groups, one line per
// row: "header: value | header: value".
type tableState struct {
	headers    []string
	rows       [][]string
	current    []string
	cell       strings.Builder
	inCell     bool
	headerCell bool
}

func (t *tableState) startRow() {
	if t.current != nil {
		t.rows = append(t.rows, t.current)
	}
	t.current = nil
}

func (t *tableState) startCell(header bool) {
	t.inCell = true
	t.headerCell = header
	t.cell.Reset()
}

func (t *tableState) write(s string) {
	t.cell.WriteString(s)
}

func (t *tableState) endCell() {
	t.inCell = false
	text := strings.TrimSpace(t.cell.String())
	if t.headerCell {
		t.headers = append(t.headers, text)
		return
	}
	t.current = append(t.current, text)
}

func (t *tableState) flatten() string {
	if t.current != nil {
		t.rows = append(t.rows, t.current)
		t.current = nil
	}
	var lines []string
	for _, row := range t.rows {
		var parts []string
		for i, val := range row {
			if val == "" {
				continue
			}
			if i < len(t.headers) && t.headers[i] != "" {
				parts = append(parts, t.headers[i]+": "+val)
			} else {
				parts = append(parts, val)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " | "))
		}
	}
	return strings.Join(lines, "\n")
}
