package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/oncoscout/oncoscout/internal/ingest"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// SemanticScholarBaseURL is the Semantic Scholar Graph API root.
const SemanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1"

// s2Fields are the paper fields requested on every search.
const s2Fields = "title,abstract,externalIds,authors,venue,publicationDate,citationCount,openAccessPdf,isOpenAccess"

// SemanticScholar searches the Semantic Scholar graph. Unauthenticated use
// is limited to ~1 req/s; an API key raises the limit.
type SemanticScholar struct {
	*client
}

// NewSemanticScholar creates a Semantic Scholar client.
func NewSemanticScholar(rps float64, opts ...Option) *SemanticScholar {
	return &SemanticScholar{client: applyOptions(newClient(SemanticScholarBaseURL, rps), opts)}
}

// Name implements Source.
func (s *SemanticScholar) Name() string { return ingest.SourceSemanticScholar }

type s2SearchResponse struct {
	Data []struct {
		Title       string `json:"title"`
		Abstract    string `json:"abstract"`
		ExternalIDs struct {
			DOI    string `json:"DOI"`
			PubMed string `json:"PubMed"`
		} `json:"externalIds"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
		Venue           string `json:"venue"`
		PublicationDate string `json:"publicationDate"`
		CitationCount   int64  `json:"citationCount"`
		OpenAccessPdf   struct {
			URL string `json:"url"`
		} `json:"openAccessPdf"`
	} `json:"data"`
}

// Search implements Source.
func (s *SemanticScholar) Search(ctx context.Context, query string, limit, fromYear int) ([]ingest.Record, error) {
	params := url.Values{
		"query":  {query},
		"fields": {s2Fields},
		"limit":  {strconv.Itoa(limit)},
	}
	if fromYear > 0 {
		params.Set("year", fmt.Sprintf("%d-", fromYear))
	}

	var header map[string]string
	if s.apiKey != "" {
		header = map[string]string{"x-api-key": s.apiKey}
	}

	var resp s2SearchResponse
	if err := s.getJSON(ctx, s.baseURL+"/paper/search?"+params.Encode(), header, &resp); err != nil {
		return nil, fmt.Errorf("semanticscholar search: %w", err)
	}

	records := make([]ingest.Record, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.Title == "" {
			continue
		}
		rec := ingest.Record{
			DOI:      ingest.NormalizeDOI(p.ExternalIDs.DOI),
			PMID:     p.ExternalIDs.PubMed,
			Title:    p.Title,
			Abstract: p.Abstract,
			Journal:  p.Venue,
			PubDate:  parseDate(p.PublicationDate),
			Source:   ingest.SourceSemanticScholar,
			OAURL:    p.OpenAccessPdf.URL,
		}
		if p.CitationCount > 0 {
			count := p.CitationCount
			rec.CitationCount = &count
		}
		for _, a := range p.Authors {
			rec.Authors = append(rec.Authors, storage.Author{Family: a.Name})
		}
		records = append(records, rec)
	}
	return records, nil
}
