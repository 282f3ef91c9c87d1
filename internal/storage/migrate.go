package storage

import (
	"database/sql"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// migration is one versioned schema change. Applied migrations are recorded
// with a blake2b checksum of their SQL; a checksum mismatch on startup means
// the migration text was edited after being applied, which is refused.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "papers_and_chunks", `
		CREATE TABLE papers (
			id TEXT PRIMARY KEY,
			doi TEXT,
			pmid TEXT,
			pmcid TEXT,
			title TEXT NOT NULL,
			abstract TEXT,
			authors_json TEXT NOT NULL DEFAULT '[]',
			journal TEXT,
			pub_date TEXT,
			source TEXT NOT NULL,
			retrieval_tier INTEGER NOT NULL DEFAULT 6,
			parse_status TEXT NOT NULL DEFAULT 'pending',
			ingested_at TEXT NOT NULL,
			abstract_simhash INTEGER,
			oa_url TEXT,
			citation_count INTEGER,
			raw_payload TEXT
		);
		CREATE UNIQUE INDEX idx_papers_doi ON papers(doi) WHERE doi IS NOT NULL;
		CREATE UNIQUE INDEX idx_papers_pmid ON papers(pmid) WHERE pmid IS NOT NULL;
		CREATE INDEX idx_papers_simhash ON papers(abstract_simhash) WHERE abstract_simhash IS NOT NULL;
		CREATE INDEX idx_papers_source ON papers(source);

		CREATE TABLE chunks (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			chunk_index INTEGER NOT NULL,
			section_type TEXT NOT NULL,
			section_heading TEXT,
			content TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			page_number INTEGER,
			embedding BLOB,
			UNIQUE (paper_id, chunk_index)
		);
		CREATE INDEX idx_chunks_paper ON chunks(paper_id);

		CREATE VIRTUAL TABLE chunks_fts USING fts5(
			chunk_id UNINDEXED,
			paper_id UNINDEXED,
			content
		);
	`},
	{2, "entities_and_mentions", `
		CREATE TABLE entities (
			id TEXT PRIMARY KEY,
			canonical_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			name TEXT NOT NULL,
			aliases_json TEXT NOT NULL DEFAULT '[]',
			external_ids_json TEXT NOT NULL DEFAULT '{}',
			UNIQUE (canonical_id, entity_type)
		);
		CREATE INDEX idx_entities_type ON entities(entity_type);

		CREATE TABLE entity_mentions (
			id TEXT PRIMARY KEY,
			chunk_id TEXT NOT NULL REFERENCES chunks(id),
			mention_text TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			entity_type TEXT NOT NULL,
			normalized_id TEXT,
			normalization_source TEXT,
			confidence REAL NOT NULL,
			extractor TEXT NOT NULL
		);
		CREATE INDEX idx_mentions_chunk ON entity_mentions(chunk_id);
		CREATE INDEX idx_mentions_normalized ON entity_mentions(normalized_id) WHERE normalized_id IS NOT NULL;
	`},
	{3, "knowledge_graph", `
		CREATE TABLE kg_facts (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			predicate TEXT NOT NULL,
			object_id TEXT NOT NULL,
			confidence REAL NOT NULL,
			evidence_type TEXT NOT NULL,
			evidence_weight REAL NOT NULL,
			source_pmid TEXT,
			source_doi TEXT,
			source_db TEXT,
			sample_size INTEGER,
			study_type TEXT,
			contradiction_flag INTEGER NOT NULL DEFAULT 0,
			valid_from TEXT NOT NULL,
			valid_until TEXT
		);
		CREATE INDEX idx_facts_triple ON kg_facts(subject_id, predicate, object_id);
		CREATE INDEX idx_facts_subject ON kg_facts(subject_id);
		CREATE INDEX idx_facts_object ON kg_facts(object_id);
		CREATE INDEX idx_facts_source_pmid ON kg_facts(source_pmid) WHERE source_pmid IS NOT NULL;

		CREATE TABLE kg_conflicts (
			id TEXT PRIMARY KEY,
			fact_a_id TEXT NOT NULL REFERENCES kg_facts(id),
			fact_b_id TEXT NOT NULL REFERENCES kg_facts(id),
			conflict_type TEXT NOT NULL,
			net_confidence REAL NOT NULL,
			resolution TEXT NOT NULL DEFAULT 'unresolved',
			detected_at TEXT NOT NULL
		);
	`},
	{4, "evidence_extensions", `
		CREATE TABLE gene_dependency (
			gene_id TEXT NOT NULL,
			cancer_code TEXT NOT NULL,
			cell_line TEXT NOT NULL,
			ceres REAL NOT NULL,
			source_version TEXT NOT NULL,
			PRIMARY KEY (gene_id, cancer_code, cell_line)
		);
		CREATE TABLE mutation_frequency (
			gene_id TEXT NOT NULL,
			cancer_code TEXT NOT NULL,
			frequency REAL NOT NULL,
			sample_count INTEGER,
			source_version TEXT NOT NULL,
			PRIMARY KEY (gene_id, cancer_code)
		);
		CREATE TABLE survival_stats (
			gene_id TEXT NOT NULL,
			cancer_code TEXT NOT NULL,
			correlation REAL NOT NULL,
			p_value REAL,
			source_version TEXT NOT NULL,
			PRIMARY KEY (gene_id, cancer_code)
		);
		CREATE TABLE expression_ratio (
			gene_id TEXT NOT NULL,
			cancer_code TEXT NOT NULL,
			tumor_tpm REAL,
			normal_tpm REAL,
			ratio REAL NOT NULL,
			source_version TEXT NOT NULL,
			PRIMARY KEY (gene_id, cancer_code)
		);
		CREATE TABLE structure_info (
			gene_id TEXT PRIMARY KEY,
			pdb_count INTEGER NOT NULL DEFAULT 0,
			predicted_plddt REAL,
			pocket_druggability REAL,
			source_version TEXT NOT NULL
		);
		CREATE TABLE compound_info (
			gene_id TEXT PRIMARY KEY,
			inhibitor_count INTEGER NOT NULL DEFAULT 0,
			source_version TEXT NOT NULL
		);
		CREATE TABLE pathway_membership (
			gene_id TEXT NOT NULL,
			pathway_id TEXT NOT NULL,
			escape_routes INTEGER NOT NULL DEFAULT 0,
			source_version TEXT NOT NULL,
			PRIMARY KEY (gene_id, pathway_id)
		);
		CREATE TABLE adapter_runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			version TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			row_count INTEGER NOT NULL
		);
	`},
	{5, "scoring_and_feedback", `
		CREATE TABLE target_scores (
			id TEXT PRIMARY KEY,
			gene_id TEXT NOT NULL,
			cancer_id TEXT NOT NULL,
			score_version INTEGER NOT NULL,
			composite_score REAL NOT NULL,
			confidence_adjusted_score REAL NOT NULL,
			components_json TEXT NOT NULL,
			weights_json TEXT NOT NULL,
			penalty REAL NOT NULL,
			shortlist_tier TEXT NOT NULL,
			flags_json TEXT NOT NULL DEFAULT '[]',
			warnings_json TEXT NOT NULL DEFAULT '[]',
			is_current INTEGER NOT NULL DEFAULT 1,
			scored_at TEXT NOT NULL,
			UNIQUE (gene_id, cancer_id, score_version)
		);
		CREATE INDEX idx_scores_pair ON target_scores(gene_id, cancer_id);
		CREATE UNIQUE INDEX idx_scores_current ON target_scores(gene_id, cancer_id) WHERE is_current = 1;

		CREATE TABLE weight_updates (
			id TEXT PRIMARY KEY,
			previous_json TEXT NOT NULL,
			proposed_json TEXT NOT NULL,
			trigger_reason TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			delta_summary TEXT NOT NULL,
			impact_json TEXT NOT NULL DEFAULT '[]',
			approved_by TEXT,
			applied_at TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE feedback_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			metric_value REAL NOT NULL,
			gene_id TEXT,
			cancer_id TEXT,
			evidence_source TEXT,
			recorded_at TEXT NOT NULL
		);
	`},
	{6, "audit_log", `
		CREATE TABLE audit_log (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			paper_id TEXT,
			source TEXT,
			detail TEXT,
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX idx_audit_event ON audit_log(event);
		CREATE INDEX idx_audit_paper ON audit_log(paper_id) WHERE paper_id IS NOT NULL;
	`},
}

// checksum returns the hex blake2b-256 digest of a migration's SQL.
func checksum(sqlText string) string {
	sum := blake2b.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}

// migrate applies pending migrations in order, verifying checksums of the
// already applied ones.
func (d *DB) migrate() error {
	if _, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied := make(map[int]string)
	rows, err := d.db.Query("SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	for rows.Next() {
		var version int
		var sum string
		if err := rows.Scan(&version, &sum); err != nil {
			rows.Close()
			return err
		}
		applied[version] = sum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		sum := checksum(m.sql)
		if existing, ok := applied[m.version]; ok {
			if existing != sum {
				return fmt.Errorf("migration %d (%s): checksum mismatch, refusing to continue", m.version, m.name)
			}
			continue
		}

		err := d.tx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.sql); err != nil {
				return fmt.Errorf("applying migration %d (%s): %w", m.version, m.name, err)
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
				m.version, m.name, sum, now().Format(timeFormat),
			)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}
