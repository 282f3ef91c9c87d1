// Package ingest turns discovery requests into deduplicated, parsed, chunked
// papers ready for embedding and extraction.
package ingest

import (
	"strings"
	"time"

	"github.com/oncoscout/oncoscout/internal/storage"
)

// Source names, in canonical-record priority order.
const (
	SourcePubMed          = "pubmed"
	SourceEuropePMC       = "europepmc"
	SourceBioRxiv         = "biorxiv"
	SourceCrossref        = "crossref"
	SourceSemanticScholar = "semanticscholar"
)

// sourcePriority orders sources for picking the canonical record when
// duplicates arrive from several places. Lower is better.
var sourcePriority = map[string]int{
	SourcePubMed:          0,
	SourceEuropePMC:       1,
	SourceBioRxiv:         2,
	SourceCrossref:        3,
	SourceSemanticScholar: 3,
}

// SourcePriority returns the priority rank for a source, unknown sources
// ranking last.
func SourcePriority(source string) int {
	if p, ok := sourcePriority[source]; ok {
		return p
	}
	return len(sourcePriority)
}

// Record is one search hit from any source, normalized to a common shape
// before dedup.
type Record struct {
	DOI           string
	PMID          string
	PMCID         string
	Title         string
	Abstract      string
	Authors       []storage.Author
	Journal       string
	PubDate       *time.Time
	Source        string
	OAURL         string
	CitationCount *int64
	IsPreprint    bool
	RawPayload    string
}

// NormalizeDOI lowercases a DOI and strips resolver prefixes so the same
// identifier from different sources compares equal.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}

// FirstAuthorFamily returns the lowercased family name of the first author,
// or empty when authors are unknown.
func (r *Record) FirstAuthorFamily() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(r.Authors[0].Family))
}

// Year returns the publication year, or 0 when unknown.
func (r *Record) Year() int {
	if r.PubDate == nil {
		return 0
	}
	return r.PubDate.Year()
}
