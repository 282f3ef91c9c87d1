package sources

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/oncoscout/oncoscout/internal/ingest"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// EuropePMCBaseURL is the Europe PMC REST API root.
const EuropePMCBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

// EuropePMC searches the Europe PMC index and serves JATS full text for open
// access articles.
type EuropePMC struct {
	*client
}

// NewEuropePMC creates a Europe PMC client at the given rate limit.
func NewEuropePMC(rps float64, opts ...Option) *EuropePMC {
	return &EuropePMC{client: applyOptions(newClient(EuropePMCBaseURL, rps), opts)}
}

// Name implements Source.
func (e *EuropePMC) Name() string { return ingest.SourceEuropePMC }

type epmcSearchResponse struct {
	ResultList struct {
		Result []epmcResult `json:"result"`
	} `json:"resultList"`
}

type epmcResult struct {
	PMID        string `json:"pmid"`
	PMCID       string `json:"pmcid"`
	DOI         string `json:"doi"`
	Title       string `json:"title"`
	AbstractTxt string `json:"abstractText"`
	AuthorList  struct {
		Author []struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"author"`
	} `json:"authorList"`
	JournalInfo struct {
		Journal struct {
			Title string `json:"title"`
		} `json:"journal"`
	} `json:"journalInfo"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	CitedByCount         int64  `json:"citedByCount"`
	Source               string `json:"source"`
}

// Search implements Source.
func (e *EuropePMC) Search(ctx context.Context, query string, limit, fromYear int) ([]ingest.Record, error) {
	q := query
	if fromYear > 0 {
		q = fmt.Sprintf("(%s) AND PUB_YEAR:[%d TO 3000]", q, fromYear)
	}

	params := url.Values{
		"query":      {q},
		"format":     {"json"},
		"resultType": {"core"},
		"pageSize":   {strconv.Itoa(limit)},
	}

	var resp epmcSearchResponse
	if err := e.getJSON(ctx, e.baseURL+"/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("europepmc search: %w", err)
	}

	records := make([]ingest.Record, 0, len(resp.ResultList.Result))
	for _, r := range resp.ResultList.Result {
		rec := ingest.Record{
			DOI:        ingest.NormalizeDOI(r.DOI),
			PMID:       r.PMID,
			PMCID:      r.PMCID,
			Title:      r.Title,
			Abstract:   r.AbstractTxt,
			Journal:    r.JournalInfo.Journal.Title,
			PubDate:    parseDate(r.FirstPublicationDate),
			Source:     ingest.SourceEuropePMC,
			IsPreprint: strings.EqualFold(r.Source, "PPR"),
		}
		if r.CitedByCount > 0 {
			count := r.CitedByCount
			rec.CitationCount = &count
		}
		for _, a := range r.AuthorList.Author {
			rec.Authors = append(rec.Authors, storage.Author{Given: a.FirstName, Family: a.LastName})
		}
		records = append(records, rec)
	}
	return records, nil
}

// FullTextXML streams the JATS full text of an open access article. The
// caller closes the reader. Returns ErrNotFound for closed-access articles.
func (e *EuropePMC) FullTextXML(ctx context.Context, pmcid string) (io.ReadCloser, error) {
	if pmcid == "" {
		return nil, ErrNotFound
	}
	return e.get(ctx, fmt.Sprintf("%s/%s/fullTextXML", e.baseURL, url.PathEscape(pmcid)), nil)
}
