package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RankingImpact records how one target's position changed under a proposal.
type RankingImpact struct {
	GeneID   string `json:"gene_id"`
	CancerID string `json:"cancer_id"`
	OldRank  int    `json:"old_rank"`
	NewRank  int    `json:"new_rank"`
}

// WeightUpdate is one proposed change to the scoring weights. A proposal is
// inert until a named reviewer applies it; ApprovedBy and AppliedAt are nil
// until then.
type WeightUpdate struct {
	ID            uuid.UUID
	Previous      map[string]float64
	Proposed      map[string]float64
	TriggerReason string
	Algorithm     string
	DeltaSummary  string
	Impact        []RankingImpact
	ApprovedBy    string
	AppliedAt     *time.Time
	CreatedAt     time.Time
}

// InsertWeightUpdate records a new proposal in the pending state.
func (d *DB) InsertWeightUpdate(w *WeightUpdate) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now()
	}

	previousJSON, err := json.Marshal(w.Previous)
	if err != nil {
		return fmt.Errorf("marshaling previous weights: %w", err)
	}
	proposedJSON, err := json.Marshal(w.Proposed)
	if err != nil {
		return fmt.Errorf("marshaling proposed weights: %w", err)
	}
	impact := w.Impact
	if impact == nil {
		impact = []RankingImpact{}
	}
	impactJSON, err := json.Marshal(impact)
	if err != nil {
		return fmt.Errorf("marshaling impact: %w", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO weight_updates (id, previous_json, proposed_json, trigger_reason,
			algorithm, delta_summary, impact_json, approved_by, applied_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?)`,
		w.ID.String(), string(previousJSON), string(proposedJSON), w.TriggerReason,
		w.Algorithm, w.DeltaSummary, string(impactJSON), w.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting weight update: %w", err)
	}
	return nil
}

// ApplyWeightUpdate marks a pending proposal as applied by the given
// reviewer. Applying an already applied proposal fails.
func (d *DB) ApplyWeightUpdate(id uuid.UUID, approvedBy string) error {
	return d.tx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE weight_updates SET approved_by = ?, applied_at = ?
			WHERE id = ? AND applied_at IS NULL`,
			approvedBy, now().Format(timeFormat), id.String())
		if err != nil {
			return fmt.Errorf("applying weight update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%w: weight update %s already applied or missing", ErrInvariant, id)
		}
		return nil
	})
}

// GetWeightUpdate retrieves a proposal by id. Returns nil when not found.
func (d *DB) GetWeightUpdate(id uuid.UUID) (*WeightUpdate, error) {
	row := d.db.QueryRow(weightUpdateSelect+` WHERE id = ?`, id.String())
	return scanWeightUpdate(row)
}

// ListWeightUpdates returns proposals newest first. When pendingOnly is set,
// only unapplied proposals are returned.
func (d *DB) ListWeightUpdates(pendingOnly bool) ([]WeightUpdate, error) {
	q := weightUpdateSelect
	if pendingOnly {
		q += ` WHERE applied_at IS NULL`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := d.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("listing weight updates: %w", err)
	}
	defer rows.Close()

	var out []WeightUpdate
	for rows.Next() {
		w, err := scanWeightUpdate(rows)
		if err != nil {
			return nil, err
		}
		if w != nil {
			out = append(out, *w)
		}
	}
	return out, rows.Err()
}

// CurrentWeights returns the weights of the most recently applied proposal,
// or nil when no proposal has ever been applied.
func (d *DB) CurrentWeights() (map[string]float64, error) {
	var proposedJSON string
	err := d.db.QueryRow(`
		SELECT proposed_json FROM weight_updates
		WHERE applied_at IS NOT NULL ORDER BY applied_at DESC LIMIT 1`).Scan(&proposedJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading current weights: %w", err)
	}

	var weights map[string]float64
	if err := json.Unmarshal([]byte(proposedJSON), &weights); err != nil {
		return nil, fmt.Errorf("parsing current weights: %w", err)
	}
	return weights, nil
}

const weightUpdateSelect = `
	SELECT id, previous_json, proposed_json, trigger_reason, algorithm,
		delta_summary, impact_json, approved_by, applied_at, created_at
	FROM weight_updates`

func scanWeightUpdate(s interface{ Scan(...any) error }) (*WeightUpdate, error) {
	var w WeightUpdate
	var idStr, previousJSON, proposedJSON, impactJSON, createdAt string
	var approvedBy, appliedAt sql.NullString

	err := s.Scan(&idStr, &previousJSON, &proposedJSON, &w.TriggerReason,
		&w.Algorithm, &w.DeltaSummary, &impactJSON, &approvedBy, &appliedAt, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if w.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing weight update id: %w", err)
	}
	if err := json.Unmarshal([]byte(previousJSON), &w.Previous); err != nil {
		return nil, fmt.Errorf("parsing previous weights: %w", err)
	}
	if err := json.Unmarshal([]byte(proposedJSON), &w.Proposed); err != nil {
		return nil, fmt.Errorf("parsing proposed weights: %w", err)
	}
	if err := json.Unmarshal([]byte(impactJSON), &w.Impact); err != nil {
		return nil, fmt.Errorf("parsing impact: %w", err)
	}
	w.ApprovedBy = approvedBy.String
	if appliedAt.Valid {
		if t, err := time.Parse(timeFormat, appliedAt.String); err == nil {
			w.AppliedAt = &t
		}
	}
	if t, err := time.Parse(timeFormat, createdAt); err == nil {
		w.CreatedAt = t
	}
	return &w, nil
}
