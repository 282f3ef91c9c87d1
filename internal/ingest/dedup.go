package ingest

import (
	"fmt"

	"github.com/oncoscout/oncoscout/internal/storage"
)

// TitleSimilarityThreshold is the minimum trigram Jaccard similarity for the
// fuzzy title rung of the dedup ladder.
const TitleSimilarityThreshold = 0.92

// Match reasons, in ladder order.
const (
	MatchDOI     = "doi"
	MatchPMID    = "pmid"
	MatchSimHash = "simhash"
	MatchTitle   = "title_author_year"
)

// Deduper decides whether an incoming record duplicates a stored paper.
// The ladder runs cheapest check first: exact external ids, then abstract
// signature, then fuzzy title plus first author plus publication year.
type Deduper struct {
	db *storage.DB
}

// NewDeduper creates a Deduper backed by the given store.
func NewDeduper(db *storage.DB) *Deduper {
	return &Deduper{db: db}
}

// Match returns the stored duplicate of r and the rung that matched, or nil
// when r is new.
func (d *Deduper) Match(r *Record) (*storage.Paper, string, error) {
	if doi := NormalizeDOI(r.DOI); doi != "" {
		p, err := d.db.FindPaperByDOI(doi)
		if err != nil {
			return nil, "", fmt.Errorf("matching DOI: %w", err)
		}
		if p != nil {
			return p, MatchDOI, nil
		}
	}

	if r.PMID != "" {
		p, err := d.db.FindPaperByPMID(r.PMID)
		if err != nil {
			return nil, "", fmt.Errorf("matching PMID: %w", err)
		}
		if p != nil {
			return p, MatchPMID, nil
		}
	}

	if r.Abstract != "" {
		hash := SimHash(r.Abstract)
		entries, err := d.db.ListSimHashes()
		if err != nil {
			return nil, "", fmt.Errorf("matching simhash: %w", err)
		}
		for _, e := range entries {
			if HammingDistance(hash, uint64(e.SimHash)) <= HammingThreshold {
				p, err := d.db.GetPaper(e.PaperID)
				if err != nil {
					return nil, "", err
				}
				if p != nil {
					return p, MatchSimHash, nil
				}
			}
		}
	}

	if year := r.Year(); year != 0 && r.Title != "" {
		candidates, err := d.db.ListPapersByYearRange(year-1, year+1)
		if err != nil {
			return nil, "", fmt.Errorf("matching title: %w", err)
		}
		family := r.FirstAuthorFamily()
		for i := range candidates {
			c := &candidates[i]
			if TitleSimilarity(r.Title, c.Title) < TitleSimilarityThreshold {
				continue
			}
			if family == "" || len(c.Authors) == 0 {
				continue
			}
			if family != (&Record{Authors: c.Authors}).FirstAuthorFamily() {
				continue
			}
			return c, MatchTitle, nil
		}
	}

	return nil, "", nil
}

// Merge folds a duplicate record's identifiers into the stored paper and
// records the dedup decision in the audit log.
func (d *Deduper) Merge(existing *storage.Paper, r *Record, reason string) error {
	from := &storage.Paper{
		DOI:           NormalizeDOI(r.DOI),
		PMID:          r.PMID,
		PMCID:         r.PMCID,
		OAURL:         r.OAURL,
		CitationCount: r.CitationCount,
	}
	if err := d.db.MergePaperIDs(existing.ID, from); err != nil {
		return err
	}
	detail := fmt.Sprintf("match=%s incoming=%s", reason, r.Source)
	return d.db.Audit(storage.AuditPaperDedup, &existing.ID, existing.Source, detail)
}
