package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/oncoscout/oncoscout/internal/ingest"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// CrossrefBaseURL is the Crossref REST API root.
const CrossrefBaseURL = "https://api.crossref.org"

// crossrefMailto identifies the caller for Crossref's polite pool.
const crossrefMailto = "oncoscout@users.noreply.github.com"

// Crossref searches the Crossref works index. Crossref carries no abstracts
// for most records; its value is DOI-complete metadata and citation counts.
type Crossref struct {
	*client
}

// NewCrossref creates a Crossref client.
func NewCrossref(rps float64, opts ...Option) *Crossref {
	return &Crossref{client: applyOptions(newClient(CrossrefBaseURL, rps), opts)}
}

// Name implements Source.
func (c *Crossref) Name() string { return ingest.SourceCrossref }

type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	DOI      string     `json:"DOI"`
	Title    []string   `json:"title"`
	Abstract string     `json:"abstract"`
	Author   []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	ContainerTitle []string `json:"container-title"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	IsReferencedByCount int64 `json:"is-referenced-by-count"`
	Link                []struct {
		URL         string `json:"URL"`
		ContentType string `json:"content-type"`
	} `json:"link"`
}

// Search implements Source.
func (c *Crossref) Search(ctx context.Context, query string, limit, fromYear int) ([]ingest.Record, error) {
	params := url.Values{
		"query":  {query},
		"rows":   {strconv.Itoa(limit)},
		"mailto": {crossrefMailto},
	}
	if fromYear > 0 {
		params.Set("filter", fmt.Sprintf("from-pub-date:%d-01-01", fromYear))
	}

	var resp crossrefResponse
	if err := c.getJSON(ctx, c.baseURL+"/works?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("crossref search: %w", err)
	}

	records := make([]ingest.Record, 0, len(resp.Message.Items))
	for _, w := range resp.Message.Items {
		if len(w.Title) == 0 || w.Title[0] == "" {
			continue
		}
		rec := ingest.Record{
			DOI:      ingest.NormalizeDOI(w.DOI),
			Title:    w.Title[0],
			Abstract: stripJATSMarkup(w.Abstract),
			Source:   ingest.SourceCrossref,
		}
		if len(w.ContainerTitle) > 0 {
			rec.Journal = w.ContainerTitle[0]
		}
		if w.IsReferencedByCount > 0 {
			count := w.IsReferencedByCount
			rec.CitationCount = &count
		}
		for _, a := range w.Author {
			rec.Authors = append(rec.Authors, storage.Author{Given: a.Given, Family: a.Family})
		}
		if parts := w.Issued.DateParts; len(parts) > 0 && len(parts[0]) > 0 {
			date := strconv.Itoa(parts[0][0])
			for _, p := range parts[0][1:] {
				date += fmt.Sprintf("-%02d", p)
			}
			rec.PubDate = parseDate(date)
		}
		for _, l := range w.Link {
			if l.ContentType == "application/pdf" {
				rec.OAURL = l.URL
				break
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// stripJATSMarkup removes the inline JATS tags Crossref embeds in abstracts.
func stripJATSMarkup(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
