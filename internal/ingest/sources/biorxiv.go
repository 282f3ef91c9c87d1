package sources

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oncoscout/oncoscout/internal/ingest"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// BioRxivBaseURL is the bioRxiv API root.
const BioRxivBaseURL = "https://api.biorxiv.org"

// biorxivWindowDays is how far back the recency scan reaches. The bioRxiv
// API exposes no keyword search, only date-windowed listings, so Search
// scans a recent window and filters locally.
const biorxivWindowDays = 120

// biorxivPageSize is the API's fixed page size.
const biorxivPageSize = 100

// BioRxiv lists recent preprints and filters them against the query terms.
type BioRxiv struct {
	*client
	windowDays int
}

// NewBioRxiv creates a bioRxiv client.
func NewBioRxiv(rps float64, opts ...Option) *BioRxiv {
	return &BioRxiv{
		client:     applyOptions(newClient(BioRxivBaseURL, rps), opts),
		windowDays: biorxivWindowDays,
	}
}

// Name implements Source.
func (b *BioRxiv) Name() string { return ingest.SourceBioRxiv }

type biorxivResponse struct {
	Collection []struct {
		DOI      string `json:"doi"`
		Title    string `json:"title"`
		Authors  string `json:"authors"`
		Abstract string `json:"abstract"`
		Date     string `json:"date"`
		Version  string `json:"version"`
	} `json:"collection"`
	Messages []struct {
		Cursor any    `json:"cursor"`
		Count  int    `json:"count"`
		Total  int    `json:"total"`
		Status string `json:"status"`
	} `json:"messages"`
}

// Search implements Source. The query is reduced to its bare terms; a
// preprint matches when its title or abstract contains every AND group.
func (b *BioRxiv) Search(ctx context.Context, query string, limit, fromYear int) ([]ingest.Record, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -b.windowDays)
	if fromYear > 0 {
		yearStart := time.Date(fromYear, 1, 1, 0, 0, 0, 0, time.UTC)
		if yearStart.After(from) {
			from = yearStart
		}
	}

	groups := parseQueryGroups(query)
	var records []ingest.Record

	for cursor := 0; len(records) < limit; cursor += biorxivPageSize {
		url := fmt.Sprintf("%s/details/biorxiv/%s/%s/%d",
			b.baseURL, from.Format("2006-01-02"), to.Format("2006-01-02"), cursor)

		var resp biorxivResponse
		if err := b.getJSON(ctx, url, nil, &resp); err != nil {
			return nil, fmt.Errorf("biorxiv listing: %w", err)
		}
		if len(resp.Collection) == 0 {
			break
		}

		for _, p := range resp.Collection {
			if !matchesGroups(p.Title+" "+p.Abstract, groups) {
				continue
			}
			rec := ingest.Record{
				DOI:        ingest.NormalizeDOI(p.DOI),
				Title:      p.Title,
				Abstract:   p.Abstract,
				PubDate:    parseDate(p.Date),
				Source:     ingest.SourceBioRxiv,
				IsPreprint: true,
				OAURL:      PDFLink(p.DOI, p.Version),
				Authors:    parseBiorxivAuthors(p.Authors),
			}
			records = append(records, rec)
			if len(records) >= limit {
				break
			}
		}

		if len(resp.Collection) < biorxivPageSize {
			break
		}
	}
	return records, nil
}

// PDFLink builds the canonical full-text PDF URL for a bioRxiv DOI.
func PDFLink(doi, version string) string {
	if doi == "" {
		return ""
	}
	if version == "" {
		version = "1"
	}
	return fmt.Sprintf("https://www.biorxiv.org/content/%sv%s.full.pdf", ingest.NormalizeDOI(doi), version)
}

// FetchPDF streams a preprint PDF. The caller closes the reader.
func (b *BioRxiv) FetchPDF(ctx context.Context, pdfURL string) (io.ReadCloser, error) {
	if pdfURL == "" {
		return nil, ErrNotFound
	}
	return b.get(ctx, pdfURL, nil)
}

// parseQueryGroups splits a boolean query into AND groups of OR alternatives.
// "(KRAS OR KRAS2) AND G12D" becomes [[kras kras2] [g12d]].
func parseQueryGroups(query string) [][]string {
	var groups [][]string
	for _, part := range strings.Split(query, " AND ") {
		part = strings.Trim(strings.TrimSpace(part), "()")
		var terms []string
		for _, alt := range strings.Split(part, " OR ") {
			alt = strings.ToLower(strings.Trim(strings.TrimSpace(alt), `"`))
			if alt != "" {
				terms = append(terms, alt)
			}
		}
		if len(terms) > 0 {
			groups = append(groups, terms)
		}
	}
	return groups
}

// matchesGroups reports whether text contains at least one alternative from
// every group.
func matchesGroups(text string, groups [][]string) bool {
	lower := strings.ToLower(text)
	for _, group := range groups {
		found := false
		for _, term := range group {
			if strings.Contains(lower, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// parseBiorxivAuthors splits the API's "Family, G.; Family, G." author string.
func parseBiorxivAuthors(s string) []storage.Author {
	var out []storage.Author
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, ","); idx > 0 {
			out = append(out, storage.Author{
				Family: strings.TrimSpace(part[:idx]),
				Given:  strings.TrimSpace(part[idx+1:]),
			})
		} else {
			out = append(out, storage.Author{Family: part})
		}
	}
	return out
}
