package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fact is one knowledge-graph assertion. Facts are append-only: a fact is
// never updated or deleted, only superseded by setting valid_until.
type Fact struct {
	ID                uuid.UUID
	SubjectID         string
	Predicate         string
	ObjectID          string
	Confidence        float64
	EvidenceType      string
	EvidenceWeight    float64
	SourcePMID        string
	SourceDOI         string
	SourceDB          string
	SampleSize        *int64
	StudyType         string
	ContradictionFlag bool
	ValidFrom         time.Time
	ValidUntil        *time.Time
}

const factFields = `id, subject_id, predicate, object_id, confidence, evidence_type,
	evidence_weight, source_pmid, source_doi, source_db, sample_size, study_type,
	contradiction_flag, valid_from, valid_until`

// InsertFact appends one fact. ValidFrom defaults to now; ValidUntil must be
// unset on insert.
func (d *DB) InsertFact(f *Fact) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.ValidFrom.IsZero() {
		f.ValidFrom = now()
	}
	if f.ValidUntil != nil {
		return fmt.Errorf("%w: new fact carries valid_until", ErrInvariant)
	}

	contradiction := 0
	if f.ContradictionFlag {
		contradiction = 1
	}
	_, err := d.db.Exec(`
		INSERT INTO kg_facts (`+factFields+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		f.ID.String(), f.SubjectID, f.Predicate, f.ObjectID, f.Confidence,
		f.EvidenceType, f.EvidenceWeight, nullString(f.SourcePMID),
		nullString(f.SourceDOI), nullString(f.SourceDB), nullInt(f.SampleSize),
		nullString(f.StudyType), contradiction, f.ValidFrom.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting fact: %w", err)
	}
	return nil
}

// GetFact retrieves a fact by id. Returns nil when not found.
func (d *DB) GetFact(id uuid.UUID) (*Fact, error) {
	row := d.db.QueryRow(`SELECT `+factFields+` FROM kg_facts WHERE id = ?`, id.String())
	f, err := scanFact(row)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ActiveFacts returns the live facts for one (subject, predicate, object)
// triple, ordered oldest first.
func (d *DB) ActiveFacts(subjectID, predicate, objectID string) ([]Fact, error) {
	rows, err := d.db.Query(`
		SELECT `+factFields+` FROM kg_facts
		WHERE subject_id = ? AND predicate = ? AND object_id = ? AND valid_until IS NULL
		ORDER BY valid_from`, subjectID, predicate, objectID)
	if err != nil {
		return nil, fmt.Errorf("listing active facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ActiveFactsBySubject returns all live facts with the given subject, across
// predicates and objects.
func (d *DB) ActiveFactsBySubject(subjectID string) ([]Fact, error) {
	rows, err := d.db.Query(`
		SELECT `+factFields+` FROM kg_facts
		WHERE subject_id = ? AND valid_until IS NULL
		ORDER BY predicate, object_id, valid_from`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("listing facts by subject: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FactsBySourcePMID returns all facts, live or superseded, derived from one
// paper. Used for retraction cascades.
func (d *DB) FactsBySourcePMID(pmid string) ([]Fact, error) {
	rows, err := d.db.Query(`
		SELECT `+factFields+` FROM kg_facts WHERE source_pmid = ? ORDER BY valid_from`, pmid)
	if err != nil {
		return nil, fmt.Errorf("listing facts by pmid: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// SupersedeFacts closes the given facts at the given time. A fact already
// closed is an invariant violation: valid_until is set exactly once.
func (d *DB) SupersedeFacts(ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return d.tx(func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.Exec(`
				UPDATE kg_facts SET valid_until = ?
				WHERE id = ? AND valid_until IS NULL`,
				at.Format(timeFormat), id.String())
			if err != nil {
				return fmt.Errorf("superseding fact %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n != 1 {
				return fmt.Errorf("%w: fact %s already superseded or missing", ErrInvariant, id)
			}
		}
		return nil
	})
}

// SetContradictionFlag marks or clears the contradiction flag on a fact.
func (d *DB) SetContradictionFlag(id uuid.UUID, flagged bool) error {
	v := 0
	if flagged {
		v = 1
	}
	_, err := d.db.Exec(`UPDATE kg_facts SET contradiction_flag = ? WHERE id = ?`, v, id.String())
	if err != nil {
		return fmt.Errorf("setting contradiction flag: %w", err)
	}
	return nil
}

// CountActiveFacts returns the number of live facts.
func (d *DB) CountActiveFacts() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM kg_facts WHERE valid_until IS NULL").Scan(&n)
	return n, err
}

func scanFact(s interface{ Scan(...any) error }) (*Fact, error) {
	var f Fact
	var idStr, validFrom string
	var pmid, doi, sourceDB, studyType, validUntil sql.NullString
	var sampleSize sql.NullInt64
	var contradiction int

	err := s.Scan(&idStr, &f.SubjectID, &f.Predicate, &f.ObjectID, &f.Confidence,
		&f.EvidenceType, &f.EvidenceWeight, &pmid, &doi, &sourceDB, &sampleSize,
		&studyType, &contradiction, &validFrom, &validUntil)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if f.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing fact id: %w", err)
	}
	f.SourcePMID = pmid.String
	f.SourceDOI = doi.String
	f.SourceDB = sourceDB.String
	f.StudyType = studyType.String
	f.SampleSize = intPtr(sampleSize)
	f.ContradictionFlag = contradiction != 0
	if t, err := time.Parse(timeFormat, validFrom); err == nil {
		f.ValidFrom = t
	}
	if validUntil.Valid {
		if t, err := time.Parse(timeFormat, validUntil.String); err == nil {
			f.ValidUntil = &t
		}
	}
	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, rows.Err()
}
