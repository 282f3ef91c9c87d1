package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Retrieval tiers, best first. The tier records how much of a paper we
// actually obtained.
const (
	TierPMCXML       = 1
	TierPreprintXML  = 2
	TierOAPDF        = 3
	TierBioRxivPDF   = 4
	TierPublisherPDF = 5
	TierAbstract     = 6
)

// maxPDFBytes caps PDF downloads.
const maxPDFBytes = 64 << 20

// FullTextSource serves JATS XML for open access articles.
type FullTextSource interface {
	FullTextXML(ctx context.Context, pmcid string) (io.ReadCloser, error)
}

// Fetcher retrieves the best available text for a record, walking the tier
// ladder: PMC JATS, then an open access PDF, then the abstract alone.
type Fetcher struct {
	fullText   FullTextSource
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. fullText may be nil, which skips the XML
// tiers.
func NewFetcher(fullText FullTextSource) *Fetcher {
	return &Fetcher{
		fullText:   fullText,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Fetch returns the parsed document and the tier it came from. Failures
// degrade to the next tier rather than aborting; only a record with no
// abstract and no retrievable text errors.
func (f *Fetcher) Fetch(ctx context.Context, rec *Record) (*Document, int, error) {
	if f.fullText != nil && rec.PMCID != "" {
		body, err := f.fullText.FullTextXML(ctx, rec.PMCID)
		if err == nil {
			doc, parseErr := ParseJATS(body)
			body.Close()
			if parseErr == nil && len(doc.Sections) > 0 {
				if doc.Abstract == "" {
					doc.Abstract = rec.Abstract
				}
				tier := TierPMCXML
				if rec.IsPreprint {
					tier = TierPreprintXML
				}
				return doc, tier, nil
			}
		}
	}

	if rec.OAURL != "" {
		doc, err := f.fetchPDF(ctx, rec.OAURL)
		if err == nil && len(doc.Sections) > 0 {
			if doc.Abstract == "" {
				doc.Abstract = rec.Abstract
			}
			return doc, pdfTier(rec.Source), nil
		}
	}

	if rec.Abstract == "" {
		return nil, 0, errors.New("no retrievable text")
	}
	return &Document{Abstract: rec.Abstract}, TierAbstract, nil
}

func (f *Fetcher) fetchPDF(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading pdf: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}
	return ParsePDF(bytes.NewReader(data), int64(len(data)))
}

func pdfTier(source string) int {
	switch source {
	case SourceBioRxiv:
		return TierBioRxivPDF
	case SourceCrossref:
		return TierPublisherPDF
	default:
		return TierOAPDF
	}
}
