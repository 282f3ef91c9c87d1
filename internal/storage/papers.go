package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Parse status values for a Paper.
const (
	ParsePending = "pending"
	ParseParsed  = "parsed"
	ParseFailed  = "failed"
)

// ErrDuplicate is returned when an insert would violate a unique DOI or
// PubMed-ID constraint. Dedup normally catches these first; hitting the
// constraint is the backstop.
var ErrDuplicate = errors.New("duplicate paper")

// Author is one structured author entry.
type Author struct {
	Given  string `json:"given,omitempty"`
	Family string `json:"family"`
}

// Paper is an ingested publication. Papers are created by the ingestion
// pipeline and never deleted; only parse_status, retrieval_tier, and merged
// external ids change after insert.
type Paper struct {
	ID              uuid.UUID
	DOI             string
	PMID            string
	PMCID           string
	Title           string
	Abstract        string
	Authors         []Author
	Journal         string
	PubDate         *time.Time
	Source          string
	RetrievalTier   int
	ParseStatus     string
	IngestedAt      time.Time
	AbstractSimHash *int64
	OAURL           string
	CitationCount   *int64
	RawPayload      string
}

// Chunk is one ordered retrieval unit of a Paper.
type Chunk struct {
	ID             uuid.UUID
	PaperID        uuid.UUID
	ChunkIndex     int
	SectionType    string
	SectionHeading string
	Content        string
	TokenCount     int
	PageNumber     *int64
	Embedding      []float32
}

const paperFields = `id, doi, pmid, pmcid, title, abstract, authors_json, journal,
	pub_date, source, retrieval_tier, parse_status, ingested_at,
	abstract_simhash, oa_url, citation_count, raw_payload`

// InsertPaper inserts a Paper together with all of its Chunks and their
// lexical index entries in one transaction. Either everything becomes
// visible or nothing does; no partial chunks are ever queryable.
func (d *DB) InsertPaper(p *Paper, chunks []Chunk) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.IngestedAt.IsZero() {
		p.IngestedAt = now()
	}
	if p.ParseStatus == "" {
		p.ParseStatus = ParsePending
	}

	authorsJSON, err := json.Marshal(p.Authors)
	if err != nil {
		return fmt.Errorf("marshaling authors: %w", err)
	}

	return d.tx(func(tx *sql.Tx) error {
		var pubDate sql.NullString
		if p.PubDate != nil {
			pubDate = sql.NullString{String: p.PubDate.Format("2006-01-02"), Valid: true}
		}

		_, err := tx.Exec(`
			INSERT INTO papers (`+paperFields+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID.String(), nullString(p.DOI), nullString(p.PMID), nullString(p.PMCID),
			p.Title, nullString(p.Abstract), string(authorsJSON), nullString(p.Journal),
			pubDate, p.Source, p.RetrievalTier, p.ParseStatus,
			p.IngestedAt.Format(timeFormat), nullInt(p.AbstractSimHash),
			nullString(p.OAURL), nullInt(p.CitationCount), nullString(p.RawPayload),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicate, p.Title)
			}
			return fmt.Errorf("inserting paper: %w", err)
		}

		for i := range chunks {
			if err := insertChunkTx(tx, &chunks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPaper retrieves a paper by id. Returns nil when not found.
func (d *DB) GetPaper(id uuid.UUID) (*Paper, error) {
	row := d.db.QueryRow(`SELECT `+paperFields+` FROM papers WHERE id = ?`, id.String())
	return scanPaper(row)
}

// FindPaperByDOI retrieves a paper by normalized DOI. Returns nil when not
// found.
func (d *DB) FindPaperByDOI(doi string) (*Paper, error) {
	row := d.db.QueryRow(`SELECT `+paperFields+` FROM papers WHERE doi = ?`, doi)
	return scanPaper(row)
}

// FindPaperByPMID retrieves a paper by PubMed id. Returns nil when not found.
func (d *DB) FindPaperByPMID(pmid string) (*Paper, error) {
	row := d.db.QueryRow(`SELECT `+paperFields+` FROM papers WHERE pmid = ?`, pmid)
	return scanPaper(row)
}

// SimHashEntry pairs a paper id with its abstract similarity signature.
type SimHashEntry struct {
	PaperID uuid.UUID
	SimHash int64
}

// ListSimHashes returns every stored abstract signature. Hamming distance
// is computed by the caller; the signature space is small enough to scan.
func (d *DB) ListSimHashes() ([]SimHashEntry, error) {
	rows, err := d.db.Query(`SELECT id, abstract_simhash FROM papers WHERE abstract_simhash IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing simhashes: %w", err)
	}
	defer rows.Close()

	var out []SimHashEntry
	for rows.Next() {
		var idStr string
		var hash int64
		if err := rows.Scan(&idStr, &hash); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parsing paper id: %w", err)
		}
		out = append(out, SimHashEntry{PaperID: id, SimHash: hash})
	}
	return out, rows.Err()
}

// ListPapersByYearRange returns papers published within [from, to]
// inclusive, for fuzzy title dedup restricted to publication year plus or
// minus one.
func (d *DB) ListPapersByYearRange(from, to int) ([]Paper, error) {
	rows, err := d.db.Query(`
		SELECT `+paperFields+` FROM papers
		WHERE pub_date IS NOT NULL
		  AND CAST(substr(pub_date, 1, 4) AS INTEGER) BETWEEN ? AND ?`, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing papers by year: %w", err)
	}
	defer rows.Close()
	return scanPapers(rows)
}

// UpdateParseStatus records the parse outcome and retrieval tier for a paper.
func (d *DB) UpdateParseStatus(id uuid.UUID, status string, tier int) error {
	_, err := d.db.Exec(`UPDATE papers SET parse_status = ?, retrieval_tier = ? WHERE id = ?`,
		status, tier, id.String())
	if err != nil {
		return fmt.Errorf("updating parse status: %w", err)
	}
	return nil
}

// MergePaperIDs fills missing external identifiers, open-access URL, and
// citation count on the canonical record during cross-source dedup. Existing
// values are never overwritten.
func (d *DB) MergePaperIDs(id uuid.UUID, from *Paper) error {
	return d.tx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE papers SET
				doi = COALESCE(doi, ?),
				pmid = COALESCE(pmid, ?),
				pmcid = COALESCE(pmcid, ?),
				oa_url = COALESCE(oa_url, ?),
				citation_count = MAX(COALESCE(citation_count, 0), COALESCE(?, 0))
			WHERE id = ?`,
			nullString(from.DOI), nullString(from.PMID), nullString(from.PMCID),
			nullString(from.OAURL), nullInt(from.CitationCount), id.String())
		if err != nil {
			return fmt.Errorf("merging paper ids: %w", err)
		}
		return nil
	})
}

// ListPapers returns every paper, most recently ingested first.
func (d *DB) ListPapers() ([]Paper, error) {
	rows, err := d.db.Query(`SELECT ` + paperFields + ` FROM papers ORDER BY ingested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()
	return scanPapers(rows)
}

// CountPapers returns the total number of papers.
func (d *DB) CountPapers() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM papers").Scan(&n)
	return n, err
}

func scanPaper(s interface{ Scan(...any) error }) (*Paper, error) {
	var p Paper
	var idStr, authorsJSON string
	var doi, pmid, pmcid, abstract, journal, pubDate, oaURL, rawPayload sql.NullString
	var simhash, citations sql.NullInt64
	var ingestedAt string

	err := s.Scan(
		&idStr, &doi, &pmid, &pmcid, &p.Title, &abstract, &authorsJSON, &journal,
		&pubDate, &p.Source, &p.RetrievalTier, &p.ParseStatus, &ingestedAt,
		&simhash, &oaURL, &citations, &rawPayload,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	p.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing paper id: %w", err)
	}
	p.DOI = doi.String
	p.PMID = pmid.String
	p.PMCID = pmcid.String
	p.Abstract = abstract.String
	p.Journal = journal.String
	p.OAURL = oaURL.String
	p.RawPayload = rawPayload.String
	p.AbstractSimHash = intPtr(simhash)
	p.CitationCount = intPtr(citations)

	if pubDate.Valid {
		if t, err := time.Parse("2006-01-02", pubDate.String); err == nil {
			p.PubDate = &t
		}
	}
	if t, err := time.Parse(timeFormat, ingestedAt); err == nil {
		p.IngestedAt = t
	}
	if err := json.Unmarshal([]byte(authorsJSON), &p.Authors); err != nil {
		return nil, fmt.Errorf("parsing authors for %s: %w", idStr, err)
	}

	return &p, nil
}

func scanPapers(rows *sql.Rows) ([]Paper, error) {
	var out []Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, rows.Err()
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
