package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conflict resolution states. Disputed and resolved are terminal; unresolved
// and manual_review are open.
const (
	ResolutionUnresolved   = "unresolved"
	ResolutionDisputed     = "disputed"
	ResolutionResolved     = "resolved"
	ResolutionManualReview = "manual_review"
)

// Conflict records a detected contradiction between two facts.
type Conflict struct {
	ID            uuid.UUID
	FactAID       uuid.UUID
	FactBID       uuid.UUID
	ConflictType  string
	NetConfidence float64
	Resolution    string
	DetectedAt    time.Time
}

// InsertConflict records a new conflict.
func (d *DB) InsertConflict(c *Conflict) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = now()
	}
	if c.Resolution == "" {
		c.Resolution = ResolutionUnresolved
	}
	_, err := d.db.Exec(`
		INSERT INTO kg_conflicts (id, fact_a_id, fact_b_id, conflict_type, net_confidence, resolution, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.FactAID.String(), c.FactBID.String(), c.ConflictType,
		c.NetConfidence, c.Resolution, c.DetectedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting conflict: %w", err)
	}
	return nil
}

// UpdateConflictResolution moves a conflict to a new resolution state.
func (d *DB) UpdateConflictResolution(id uuid.UUID, resolution string) error {
	_, err := d.db.Exec(`UPDATE kg_conflicts SET resolution = ? WHERE id = ?`,
		resolution, id.String())
	if err != nil {
		return fmt.Errorf("updating conflict resolution: %w", err)
	}
	return nil
}

// ListConflicts returns conflicts in a resolution state, newest first, or all
// conflicts when state is empty.
func (d *DB) ListConflicts(state string) ([]Conflict, error) {
	q := `SELECT id, fact_a_id, fact_b_id, conflict_type, net_confidence, resolution, detected_at FROM kg_conflicts`
	var args []any
	if state != "" {
		q += ` WHERE resolution = ?`
		args = append(args, state)
	}
	q += ` ORDER BY detected_at DESC`

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var c Conflict
		var idStr, aStr, bStr, detected string
		if err := rows.Scan(&idStr, &aStr, &bStr, &c.ConflictType, &c.NetConfidence, &c.Resolution, &detected); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing conflict id: %w", err)
		}
		if c.FactAID, err = uuid.Parse(aStr); err != nil {
			return nil, fmt.Errorf("parsing fact id: %w", err)
		}
		if c.FactBID, err = uuid.Parse(bStr); err != nil {
			return nil, fmt.Errorf("parsing fact id: %w", err)
		}
		if t, err := time.Parse(timeFormat, detected); err == nil {
			c.DetectedAt = t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConflictsForFact returns all conflicts involving the given fact.
func (d *DB) ConflictsForFact(factID uuid.UUID) ([]Conflict, error) {
	rows, err := d.db.Query(`
		SELECT id, fact_a_id, fact_b_id, conflict_type, net_confidence, resolution, detected_at
		FROM kg_conflicts WHERE fact_a_id = ? OR fact_b_id = ?`,
		factID.String(), factID.String())
	if err != nil {
		return nil, fmt.Errorf("listing conflicts for fact: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var c Conflict
		var idStr, aStr, bStr, detected string
		if err := rows.Scan(&idStr, &aStr, &bStr, &c.ConflictType, &c.NetConfidence, &c.Resolution, &detected); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing conflict id: %w", err)
		}
		if c.FactAID, err = uuid.Parse(aStr); err != nil {
			return nil, fmt.Errorf("parsing fact id: %w", err)
		}
		if c.FactBID, err = uuid.Parse(bStr); err != nil {
			return nil, fmt.Errorf("parsing fact id: %w", err)
		}
		if t, err := time.Parse(timeFormat, detected); err == nil {
			c.DetectedAt = t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
