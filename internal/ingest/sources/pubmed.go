package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/oncoscout/oncoscout/internal/ingest"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// PubMedBaseURL is the NCBI E-utilities root.
const PubMedBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMed searches MEDLINE through the E-utilities pipeline: esearch for
// PMIDs, then efetch for the article records.
type PubMed struct {
	*client
}

// NewPubMed creates a PubMed client. NCBI allows 3 req/s without an API key
// and 10 req/s with one.
func NewPubMed(rps float64, opts ...Option) *PubMed {
	return &PubMed{client: applyOptions(newClient(PubMedBaseURL, rps), opts)}
}

// Name implements Source.
func (p *PubMed) Name() string { return ingest.SourcePubMed }

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// efetch XML article structure, reduced to the fields ingestion uses.
type pubmedArticleSet struct {
	Articles []struct {
		MedlineCitation struct {
			PMID    string `xml:"PMID"`
			Article struct {
				Journal struct {
					Title string `xml:"Title"`
				} `xml:"Journal"`
				ArticleTitle string `xml:"ArticleTitle"`
				Abstract     struct {
					Text []string `xml:"AbstractText"`
				} `xml:"Abstract"`
				AuthorList struct {
					Authors []struct {
						LastName string `xml:"LastName"`
						ForeName string `xml:"ForeName"`
					} `xml:"Author"`
				} `xml:"AuthorList"`
				ELocationIDs []struct {
					Type  string `xml:"EIdType,attr"`
					Value string `xml:",chardata"`
				} `xml:"ELocationID"`
			} `xml:"Article"`
		} `xml:"MedlineCitation"`
		PubmedData struct {
			ArticleIDs []struct {
				Type  string `xml:"IdType,attr"`
				Value string `xml:",chardata"`
			} `xml:"ArticleIdList>ArticleId"`
			History []struct {
				Status string `xml:"PubStatus,attr"`
				Year   string `xml:"Year"`
				Month  string `xml:"Month"`
				Day    string `xml:"Day"`
			} `xml:"History>PubMedPubDate"`
		} `xml:"PubmedData"`
	} `xml:"PubmedArticle"`
}

// Search implements Source.
func (p *PubMed) Search(ctx context.Context, query string, limit, fromYear int) ([]ingest.Record, error) {
	term := query
	if fromYear > 0 {
		term = fmt.Sprintf("(%s) AND %d:3000[dp]", term, fromYear)
	}

	params := url.Values{
		"db":      {"pubmed"},
		"term":    {term},
		"retmax":  {strconv.Itoa(limit)},
		"retmode": {"json"},
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	var search esearchResponse
	if err := p.getJSON(ctx, p.baseURL+"/esearch.fcgi?"+params.Encode(), nil, &search); err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	if len(search.ESearchResult.IDList) == 0 {
		return nil, nil
	}

	return p.fetch(ctx, search.ESearchResult.IDList)
}

// fetch retrieves full article records for a batch of PMIDs.
func (p *PubMed) fetch(ctx context.Context, pmids []string) ([]ingest.Record, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	body, err := p.get(ctx, p.baseURL+"/efetch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("pubmed efetch: %w", err)
	}
	defer body.Close()

	var set pubmedArticleSet
	dec := xml.NewDecoder(body)
	dec.Strict = false
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: parsing efetch: %v", ErrInvalidResponse, err)
	}

	records := make([]ingest.Record, 0, len(set.Articles))
	for _, a := range set.Articles {
		art := a.MedlineCitation.Article
		rec := ingest.Record{
			PMID:     a.MedlineCitation.PMID,
			Title:    strings.TrimSpace(art.ArticleTitle),
			Abstract: strings.TrimSpace(strings.Join(art.Abstract.Text, " ")),
			Journal:  art.Journal.Title,
			Source:   ingest.SourcePubMed,
		}
		for _, id := range a.PubmedData.ArticleIDs {
			switch id.Type {
			case "doi":
				rec.DOI = ingest.NormalizeDOI(id.Value)
			case "pmc":
				rec.PMCID = id.Value
			}
		}
		if rec.DOI == "" {
			for _, loc := range art.ELocationIDs {
				if loc.Type == "doi" {
					rec.DOI = ingest.NormalizeDOI(loc.Value)
				}
			}
		}
		for _, au := range art.AuthorList.Authors {
			rec.Authors = append(rec.Authors, storage.Author{Given: au.ForeName, Family: au.LastName})
		}
		for _, h := range a.PubmedData.History {
			if h.Status == "pubmed" {
				rec.PubDate = parseDate(fmt.Sprintf("%s-%s-%s", h.Year, h.Month, h.Day))
				break
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
