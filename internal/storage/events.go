package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Feedback event types.
const (
	EventBenchmark  = "benchmark"
	EventValidation = "validation"
	EventLiterature = "literature"
)

// FeedbackEvent is one recorded outcome signal: a benchmark metric, an
// external validation result, or a literature confirmation.
type FeedbackEvent struct {
	ID             uuid.UUID
	EventType      string
	MetricName     string
	MetricValue    float64
	GeneID         string
	CancerID       string
	EvidenceSource string
	RecordedAt     time.Time
}

// InsertFeedbackEvent records one event.
func (d *DB) InsertFeedbackEvent(e *FeedbackEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = now()
	}
	_, err := d.db.Exec(`
		INSERT INTO feedback_events (id, event_type, metric_name, metric_value,
			gene_id, cancer_id, evidence_source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.EventType, e.MetricName, e.MetricValue,
		nullString(e.GeneID), nullString(e.CancerID), nullString(e.EvidenceSource),
		e.RecordedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting feedback event: %w", err)
	}
	return nil
}

// ListFeedbackEvents returns events for a metric newest first, up to limit.
// An empty metric returns events of every metric.
func (d *DB) ListFeedbackEvents(metricName string, limit int) ([]FeedbackEvent, error) {
	q := `SELECT id, event_type, metric_name, metric_value, gene_id, cancer_id,
		evidence_source, recorded_at FROM feedback_events`
	var args []any
	if metricName != "" {
		q += ` WHERE metric_name = ?`
		args = append(args, metricName)
	}
	q += ` ORDER BY recorded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing feedback events: %w", err)
	}
	defer rows.Close()

	var out []FeedbackEvent
	for rows.Next() {
		var e FeedbackEvent
		var idStr, recorded string
		var gene, cancer, source sql.NullString
		err := rows.Scan(&idStr, &e.EventType, &e.MetricName, &e.MetricValue,
			&gene, &cancer, &source, &recorded)
		if err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing event id: %w", err)
		}
		e.GeneID = gene.String
		e.CancerID = cancer.String
		e.EvidenceSource = source.String
		if t, err := time.Parse(timeFormat, recorded); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
