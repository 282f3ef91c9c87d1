package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Shortlist tiers.
const (
	TierPrimary   = "primary"
	TierSecondary = "secondary"
	TierExcluded  = "excluded"
	TierNone      = "none"
)

// TargetScore is one versioned scoring result for a (gene, cancer) pair.
// Exactly one row per pair carries is_current; history is never deleted.
type TargetScore struct {
	ID            uuid.UUID
	GeneID        string
	CancerID      string
	ScoreVersion  int
	Composite     float64
	ConfAdjusted  float64
	Components    map[string]float64
	Weights       map[string]float64
	Penalty       float64
	ShortlistTier string
	Flags         []string
	Warnings      []string
	IsCurrent     bool
	ScoredAt      time.Time
}

// InsertScore appends a new score version for the pair and atomically moves
// the is_current marker to it. The version must be one greater than the
// stored maximum (zero history means version 1).
func (d *DB) InsertScore(s *TargetScore) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.ScoredAt.IsZero() {
		s.ScoredAt = now()
	}

	componentsJSON, err := json.Marshal(s.Components)
	if err != nil {
		return fmt.Errorf("marshaling components: %w", err)
	}
	weightsJSON, err := json.Marshal(s.Weights)
	if err != nil {
		return fmt.Errorf("marshaling weights: %w", err)
	}
	flagsJSON, _ := json.Marshal(sliceOrEmpty(s.Flags))
	warningsJSON, _ := json.Marshal(sliceOrEmpty(s.Warnings))

	return d.tx(func(tx *sql.Tx) error {
		var maxVersion int
		err := tx.QueryRow(`
			SELECT COALESCE(MAX(score_version), 0) FROM target_scores
			WHERE gene_id = ? AND cancer_id = ?`, s.GeneID, s.CancerID).Scan(&maxVersion)
		if err != nil {
			return fmt.Errorf("reading score version: %w", err)
		}
		if s.ScoreVersion == 0 {
			s.ScoreVersion = maxVersion + 1
		}
		if s.ScoreVersion != maxVersion+1 {
			return fmt.Errorf("%w: score version %d for %s/%s, expected %d",
				ErrInvariant, s.ScoreVersion, s.GeneID, s.CancerID, maxVersion+1)
		}

		if _, err := tx.Exec(`
			UPDATE target_scores SET is_current = 0
			WHERE gene_id = ? AND cancer_id = ? AND is_current = 1`,
			s.GeneID, s.CancerID); err != nil {
			return fmt.Errorf("clearing current score: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO target_scores (id, gene_id, cancer_id, score_version, composite_score,
				confidence_adjusted_score, components_json, weights_json, penalty,
				shortlist_tier, flags_json, warnings_json, is_current, scored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			s.ID.String(), s.GeneID, s.CancerID, s.ScoreVersion, s.Composite,
			s.ConfAdjusted, string(componentsJSON), string(weightsJSON), s.Penalty,
			s.ShortlistTier, string(flagsJSON), string(warningsJSON),
			s.ScoredAt.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("inserting score: %w", err)
		}

		var current int
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM target_scores
			WHERE gene_id = ? AND cancer_id = ? AND is_current = 1`,
			s.GeneID, s.CancerID).Scan(&current)
		if err != nil {
			return err
		}
		if current != 1 {
			return fmt.Errorf("%w: %d current scores for %s/%s",
				ErrInvariant, current, s.GeneID, s.CancerID)
		}
		s.IsCurrent = true
		return nil
	})
}

// CurrentScore returns the live score for a pair, or nil when never scored.
func (d *DB) CurrentScore(geneID, cancerID string) (*TargetScore, error) {
	row := d.db.QueryRow(scoreSelect+`
		WHERE gene_id = ? AND cancer_id = ? AND is_current = 1`, geneID, cancerID)
	return scanScore(row)
}

// ScoreHistory returns all versions for a pair, oldest first.
func (d *DB) ScoreHistory(geneID, cancerID string) ([]TargetScore, error) {
	rows, err := d.db.Query(scoreSelect+`
		WHERE gene_id = ? AND cancer_id = ? ORDER BY score_version`, geneID, cancerID)
	if err != nil {
		return nil, fmt.Errorf("listing score history: %w", err)
	}
	defer rows.Close()
	return scanScores(rows)
}

// CurrentScoresForCancer returns the live scores for all genes in a cancer
// type, best adjusted score first.
func (d *DB) CurrentScoresForCancer(cancerID string) ([]TargetScore, error) {
	rows, err := d.db.Query(scoreSelect+`
		WHERE cancer_id = ? AND is_current = 1
		ORDER BY confidence_adjusted_score DESC`, cancerID)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	defer rows.Close()
	return scanScores(rows)
}

// ScoredPairs returns every (gene, cancer) pair with a current score.
func (d *DB) ScoredPairs() ([][2]string, error) {
	rows, err := d.db.Query(`
		SELECT gene_id, cancer_id FROM target_scores WHERE is_current = 1
		ORDER BY cancer_id, gene_id`)
	if err != nil {
		return nil, fmt.Errorf("listing scored pairs: %w", err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var gene, cancer string
		if err := rows.Scan(&gene, &cancer); err != nil {
			return nil, err
		}
		out = append(out, [2]string{gene, cancer})
	}
	return out, rows.Err()
}

const scoreSelect = `
	SELECT id, gene_id, cancer_id, score_version, composite_score,
		confidence_adjusted_score, components_json, weights_json, penalty,
		shortlist_tier, flags_json, warnings_json, is_current, scored_at
	FROM target_scores`

func scanScore(s interface{ Scan(...any) error }) (*TargetScore, error) {
	var t TargetScore
	var idStr, componentsJSON, weightsJSON, flagsJSON, warningsJSON, scoredAt string
	var current int

	err := s.Scan(&idStr, &t.GeneID, &t.CancerID, &t.ScoreVersion, &t.Composite,
		&t.ConfAdjusted, &componentsJSON, &weightsJSON, &t.Penalty,
		&t.ShortlistTier, &flagsJSON, &warningsJSON, &current, &scoredAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing score id: %w", err)
	}
	if err := json.Unmarshal([]byte(componentsJSON), &t.Components); err != nil {
		return nil, fmt.Errorf("parsing components: %w", err)
	}
	if err := json.Unmarshal([]byte(weightsJSON), &t.Weights); err != nil {
		return nil, fmt.Errorf("parsing weights: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &t.Flags); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	if err := json.Unmarshal([]byte(warningsJSON), &t.Warnings); err != nil {
		return nil, fmt.Errorf("parsing warnings: %w", err)
	}
	t.IsCurrent = current != 0
	if ts, err := time.Parse(timeFormat, scoredAt); err == nil {
		t.ScoredAt = ts
	}
	return &t, nil
}

func scanScores(rows *sql.Rows) ([]TargetScore, error) {
	var out []TargetScore
	for rows.Next() {
		t, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, rows.Err()
}
