package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit event names used across the pipeline.
const (
	AuditPaperIngested  = "paper_ingested"
	AuditPaperDedup     = "paper_dedup"
	AuditParseFailed    = "parse_failed"
	AuditEmbedPending   = "embedding_pending"
	AuditRetraction     = "retraction"
	AuditRescoreQueued  = "rescore_queued"
	AuditWeightProposed = "weight_proposed"
	AuditWeightApplied  = "weight_applied"
	AuditQueryPlan      = "query_plan"
)

// AuditEntry is one append-only provenance record.
type AuditEntry struct {
	ID         uuid.UUID
	Event      string
	PaperID    *uuid.UUID
	Source     string
	Detail     string
	RecordedAt time.Time
}

// Audit appends one entry to the audit log.
func (d *DB) Audit(event string, paperID *uuid.UUID, source, detail string) error {
	var paperStr sql.NullString
	if paperID != nil {
		paperStr = sql.NullString{String: paperID.String(), Valid: true}
	}
	_, err := d.db.Exec(`
		INSERT INTO audit_log (id, event, paper_id, source, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), event, paperStr, nullString(source), nullString(detail),
		now().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// ListAudit returns entries for an event newest first, up to limit. An empty
// event returns all entries.
func (d *DB) ListAudit(event string, limit int) ([]AuditEntry, error) {
	q := `SELECT id, event, paper_id, source, detail, recorded_at FROM audit_log`
	var args []any
	if event != "" {
		q += ` WHERE event = ?`
		args = append(args, event)
	}
	q += ` ORDER BY recorded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var idStr, recorded string
		var paper, source, detail sql.NullString
		if err := rows.Scan(&idStr, &e.Event, &paper, &source, &detail, &recorded); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing audit id: %w", err)
		}
		if paper.Valid {
			id, err := uuid.Parse(paper.String)
			if err != nil {
				return nil, fmt.Errorf("parsing paper id: %w", err)
			}
			e.PaperID = &id
		}
		e.Source = source.String
		e.Detail = detail.String
		if t, err := time.Parse(timeFormat, recorded); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
