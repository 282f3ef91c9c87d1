package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EntityRow is the persisted form of a catalog entity.
type EntityRow struct {
	ID          uuid.UUID
	CanonicalID string
	EntityType  string
	Name        string
	Aliases     []string
	ExternalIDs map[string]string
}

// UpsertEntity inserts an entity or, when (canonical_id, entity_type) already
// exists, merges aliases and external ids into the stored row. The stored id
// is returned either way.
func (d *DB) UpsertEntity(e *EntityRow) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	var out uuid.UUID
	err := d.tx(func(tx *sql.Tx) error {
		var idStr string
		var aliasesJSON, externalJSON string
		err := tx.QueryRow(`
			SELECT id, aliases_json, external_ids_json FROM entities
			WHERE canonical_id = ? AND entity_type = ?`,
			e.CanonicalID, e.EntityType).Scan(&idStr, &aliasesJSON, &externalJSON)

		switch {
		case err == sql.ErrNoRows:
			aliases, _ := json.Marshal(sliceOrEmpty(e.Aliases))
			external, _ := json.Marshal(mapOrEmpty(e.ExternalIDs))
			_, err := tx.Exec(`
				INSERT INTO entities (id, canonical_id, entity_type, name, aliases_json, external_ids_json)
				VALUES (?, ?, ?, ?, ?, ?)`,
				e.ID.String(), e.CanonicalID, e.EntityType, e.Name,
				string(aliases), string(external))
			if err != nil {
				return fmt.Errorf("inserting entity %s: %w", e.CanonicalID, err)
			}
			out = e.ID
			return nil
		case err != nil:
			return fmt.Errorf("looking up entity %s: %w", e.CanonicalID, err)
		}

		existing, err := uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("parsing entity id: %w", err)
		}

		var aliases []string
		var external map[string]string
		if err := json.Unmarshal([]byte(aliasesJSON), &aliases); err != nil {
			return fmt.Errorf("parsing aliases for %s: %w", e.CanonicalID, err)
		}
		if err := json.Unmarshal([]byte(externalJSON), &external); err != nil {
			return fmt.Errorf("parsing external ids for %s: %w", e.CanonicalID, err)
		}
		if external == nil {
			external = make(map[string]string)
		}

		seen := make(map[string]bool, len(aliases))
		for _, a := range aliases {
			seen[a] = true
		}
		for _, a := range e.Aliases {
			if !seen[a] {
				aliases = append(aliases, a)
				seen[a] = true
			}
		}
		for k, v := range e.ExternalIDs {
			if _, ok := external[k]; !ok {
				external[k] = v
			}
		}

		mergedAliases, _ := json.Marshal(sliceOrEmpty(aliases))
		mergedExternal, _ := json.Marshal(external)
		_, err = tx.Exec(`UPDATE entities SET aliases_json = ?, external_ids_json = ? WHERE id = ?`,
			string(mergedAliases), string(mergedExternal), idStr)
		if err != nil {
			return fmt.Errorf("merging entity %s: %w", e.CanonicalID, err)
		}
		out = existing
		return nil
	})
	return out, err
}

// ListEntities returns all entities of a type, or all entities when typ is
// empty.
func (d *DB) ListEntities(typ string) ([]EntityRow, error) {
	q := `SELECT id, canonical_id, entity_type, name, aliases_json, external_ids_json FROM entities`
	var args []any
	if typ != "" {
		q += ` WHERE entity_type = ?`
		args = append(args, typ)
	}
	q += ` ORDER BY canonical_id`

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var out []EntityRow
	for rows.Next() {
		var e EntityRow
		var idStr, aliasesJSON, externalJSON string
		if err := rows.Scan(&idStr, &e.CanonicalID, &e.EntityType, &e.Name, &aliasesJSON, &externalJSON); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing entity id: %w", err)
		}
		if err := json.Unmarshal([]byte(aliasesJSON), &e.Aliases); err != nil {
			return nil, fmt.Errorf("parsing aliases: %w", err)
		}
		if err := json.Unmarshal([]byte(externalJSON), &e.ExternalIDs); err != nil {
			return nil, fmt.Errorf("parsing external ids: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func mapOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
