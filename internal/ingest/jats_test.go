package ingest

import (
	"strings"
	"testing"
)

const sampleJATS = `<?xml version="1.0"?>
<article>
  <front>
    <article-meta>
      <abstract><p>KRAS G12D confers dependency in PDAC.</p></abstract>
    </article-meta>
  </front>
  <body>
    <sec sec-type="intro">
      <title>Introduction</title>
      <p>Pancreatic cancer remains lethal.</p>
    </sec>
    <sec>
      <title>Materials and Methods</title>
      <p>We performed CRISPR screens.</p>
      <sec>
        <title>Cell culture</title>
        <p>Lines were cultured in RPMI.</p>
      </sec>
    </sec>
    <sec sec-type="results">
      <title>Results</title>
      <p>Dependency was strongest in G12D lines.</p>
      <fig id="f1">
        <caption><p>Figure 1. CERES scores by genotype.</p></caption>
      </fig>
      <table-wrap>
        <table>
          <thead><tr><th>Cell line</th><th>CERES</th></tr></thead>
          <tbody>
            <tr><td>MIAPACA2</td><td>-1.8</td></tr>
            <tr><td>PANC1</td><td>-1.5</td></tr>
          </tbody>
        </table>
      </table-wrap>
    </sec>
  </body>
</article>`

func TestParseJATS(t *testing.T) {
	doc, err := ParseJATS(strings.NewReader(sampleJATS))
	if err != nil {
		t.Fatalf("ParseJATS: %v", err)
	}

	if doc.Abstract != "KRAS G12D confers dependency in PDAC." {
		t.Errorf("abstract = %q", doc.Abstract)
	}

	types := make(map[string]string)
	for _, s := range doc.Sections {
		types[s.Type] += s.Text + " "
	}
	if !strings.Contains(types[SectionIntroduction], "remains lethal") {
		t.Errorf("introduction missing: %v", types)
	}
	if !strings.Contains(types[SectionMethods], "CRISPR screens") {
		t.Errorf("methods missing: %v", types)
	}
	if !strings.Contains(types[SectionResults], "strongest in G12D") {
		t.Errorf("results missing: %v", types)
	}

	if len(doc.Captions) != 1 || !strings.Contains(doc.Captions[0], "CERES scores") {
		t.Errorf("captions = %v", doc.Captions)
	}
}

func TestParseJATSNestedSection(t *testing.T) {
	doc, err := ParseJATS(strings.NewReader(sampleJATS))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, s := range doc.Sections {
		if s.Heading == "Cell culture" && strings.Contains(s.Text, "RPMI") {
			found = true
		}
	}
	if !found {
		t.Errorf("nested section lost: %+v", doc.Sections)
	}
}

func TestParseJATSTableRows(t *testing.T) {
	doc, err := ParseJATS(strings.NewReader(sampleJATS))
	if err != nil {
		t.Fatal(err)
	}
	var table string
	for _, s := range doc.Sections {
		if s.Type == SectionTable {
			table = s.Text
		}
	}
	if table == "" {
		t.Fatal("no table section")
	}
	// Each row is flattened as "header: value | header: value".
	if !strings.Contains(table, "Cell line: MIAPACA2 | CERES: -1.8") {
		t.Errorf("table = %q", table)
	}
	if !strings.Contains(table, "Cell line: PANC1 | CERES: -1.5") {
		t.Errorf("table = %q", table)
	}
}

func TestParseJATSEmptyBody(t *testing.T) {
	doc, err := ParseJATS(strings.NewReader(`<article><front><article-meta><abstract><p>Only this.</p></abstract></article-meta></front></article>`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Abstract != "Only this." {
		t.Errorf("abstract = %q", doc.Abstract)
	}
	if len(doc.Sections) != 0 {
		t.Errorf("sections = %v", doc.Sections)
	}
}
