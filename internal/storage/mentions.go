package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Mention is one detected entity occurrence inside a chunk. NormalizedID is
// empty when normalization failed; the raw mention text is still kept.
type Mention struct {
	ID                  uuid.UUID
	ChunkID             uuid.UUID
	MentionText         string
	StartOffset         int
	EndOffset           int
	EntityType          string
	NormalizedID        string
	NormalizationSource string
	Confidence          float64
	Extractor           string
}

// InsertMentions stores all mentions for a chunk in one transaction.
func (d *DB) InsertMentions(mentions []Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	return d.tx(func(tx *sql.Tx) error {
		for i := range mentions {
			m := &mentions[i]
			if m.ID == uuid.Nil {
				m.ID = uuid.New()
			}
			_, err := tx.Exec(`
				INSERT INTO entity_mentions (id, chunk_id, mention_text, start_offset, end_offset,
					entity_type, normalized_id, normalization_source, confidence, extractor)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID.String(), m.ChunkID.String(), m.MentionText, m.StartOffset, m.EndOffset,
				m.EntityType, nullString(m.NormalizedID), nullString(m.NormalizationSource),
				m.Confidence, m.Extractor)
			if err != nil {
				return fmt.Errorf("inserting mention %q: %w", m.MentionText, err)
			}
		}
		return nil
	})
}

// ListMentionsByChunk returns a chunk's mentions in offset order.
func (d *DB) ListMentionsByChunk(chunkID uuid.UUID) ([]Mention, error) {
	rows, err := d.db.Query(`
		SELECT id, chunk_id, mention_text, start_offset, end_offset,
			entity_type, normalized_id, normalization_source, confidence, extractor
		FROM entity_mentions WHERE chunk_id = ? ORDER BY start_offset`,
		chunkID.String())
	if err != nil {
		return nil, fmt.Errorf("listing mentions: %w", err)
	}
	defer rows.Close()
	return scanMentions(rows)
}

// ListMentionsByEntity returns mentions normalized to the given entity id.
func (d *DB) ListMentionsByEntity(normalizedID string, limit int) ([]Mention, error) {
	rows, err := d.db.Query(`
		SELECT id, chunk_id, mention_text, start_offset, end_offset,
			entity_type, normalized_id, normalization_source, confidence, extractor
		FROM entity_mentions WHERE normalized_id = ? LIMIT ?`,
		normalizedID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing mentions by entity: %w", err)
	}
	defer rows.Close()
	return scanMentions(rows)
}

func scanMentions(rows *sql.Rows) ([]Mention, error) {
	var out []Mention
	for rows.Next() {
		var m Mention
		var idStr, chunkStr string
		var normalized, normSource sql.NullString
		err := rows.Scan(&idStr, &chunkStr, &m.MentionText, &m.StartOffset, &m.EndOffset,
			&m.EntityType, &normalized, &normSource, &m.Confidence, &m.Extractor)
		if err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing mention id: %w", err)
		}
		if m.ChunkID, err = uuid.Parse(chunkStr); err != nil {
			return nil, fmt.Errorf("parsing chunk id: %w", err)
		}
		m.NormalizedID = normalized.String
		m.NormalizationSource = normSource.String
		out = append(out, m)
	}
	return out, rows.Err()
}
