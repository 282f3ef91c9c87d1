package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DependencyRow is one cell-line dependency measurement (CERES-style score,
// more negative means more essential).
type DependencyRow struct {
	GeneID        string  `json:"gene_id"`
	CancerCode    string  `json:"cancer_code"`
	CellLine      string  `json:"cell_line"`
	CERES         float64 `json:"ceres"`
	SourceVersion string  `json:"source_version,omitempty"`
}

// MutationFrequencyRow is the mutation frequency of a gene in a cancer cohort.
type MutationFrequencyRow struct {
	GeneID        string  `json:"gene_id"`
	CancerCode    string  `json:"cancer_code"`
	Frequency     float64 `json:"frequency"`
	SampleCount   *int64  `json:"sample_count,omitempty"`
	SourceVersion string  `json:"source_version,omitempty"`
}

// SurvivalRow is a survival-correlation statistic for a gene in a cancer type.
type SurvivalRow struct {
	GeneID        string   `json:"gene_id"`
	CancerCode    string   `json:"cancer_code"`
	Correlation   float64  `json:"correlation"`
	PValue        *float64 `json:"p_value,omitempty"`
	SourceVersion string   `json:"source_version,omitempty"`
}

// ExpressionRow holds tumor/normal expression for a gene in a cancer type.
// TumorTPM and NormalTPM are nil when the upstream source omitted them; the
// precomputed ratio is always present.
type ExpressionRow struct {
	GeneID        string   `json:"gene_id"`
	CancerCode    string   `json:"cancer_code"`
	TumorTPM      *float64 `json:"tumor_tpm,omitempty"`
	NormalTPM     *float64 `json:"normal_tpm,omitempty"`
	Ratio         float64  `json:"ratio"`
	SourceVersion string   `json:"source_version,omitempty"`
}

// StructureRow summarizes structural coverage for a gene. PredictedPLDDT is
// nil when no predicted structure exists, which is distinct from a low score.
type StructureRow struct {
	GeneID             string   `json:"gene_id"`
	PDBCount           int      `json:"pdb_count"`
	PredictedPLDDT     *float64 `json:"predicted_plddt,omitempty"`
	PocketDruggability *float64 `json:"pocket_druggability,omitempty"`
	SourceVersion      string   `json:"source_version,omitempty"`
}

// CompoundRow counts known inhibitors for a gene.
type CompoundRow struct {
	GeneID         string `json:"gene_id"`
	InhibitorCount int    `json:"inhibitor_count"`
	SourceVersion  string `json:"source_version,omitempty"`
}

// PathwayRow records a gene's pathway membership and redundancy.
type PathwayRow struct {
	GeneID        string `json:"gene_id"`
	PathwayID     string `json:"pathway_id"`
	EscapeRoutes  int    `json:"escape_routes"`
	SourceVersion string `json:"source_version,omitempty"`
}

// AdapterRun records one completed evidence-source sync.
type AdapterRun struct {
	ID        uuid.UUID
	Source    string
	Version   string
	FetchedAt time.Time
	RowCount  int
}

// ReplaceDependencies replaces all dependency rows for a source version in
// one transaction, keeping adapter syncs idempotent.
func (d *DB) ReplaceDependencies(rows []DependencyRow, source, version string) error {
	return d.replaceEvidence("gene_dependency", source, version, len(rows), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO gene_dependency (gene_id, cancer_code, cell_line, ceres, source_version)
				VALUES (?, ?, ?, ?, ?)`,
				r.GeneID, r.CancerCode, r.CellLine, r.CERES, version)
			if err != nil {
				return fmt.Errorf("inserting dependency row: %w", err)
			}
		}
		return nil
	})
}

// ReplaceMutationFrequencies replaces all mutation-frequency rows for a
// source version.
func (d *DB) ReplaceMutationFrequencies(rows []MutationFrequencyRow, source, version string) error {
	return d.replaceEvidence("mutation_frequency", source, version, len(rows), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO mutation_frequency (gene_id, cancer_code, frequency, sample_count, source_version)
				VALUES (?, ?, ?, ?, ?)`,
				r.GeneID, r.CancerCode, r.Frequency, nullInt(r.SampleCount), version)
			if err != nil {
				return fmt.Errorf("inserting frequency row: %w", err)
			}
		}
		return nil
	})
}

// ReplaceSurvivalStats replaces all survival rows for a source version.
func (d *DB) ReplaceSurvivalStats(rows []SurvivalRow, source, version string) error {
	return d.replaceEvidence("survival_stats", source, version, len(rows), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO survival_stats (gene_id, cancer_code, correlation, p_value, source_version)
				VALUES (?, ?, ?, ?, ?)`,
				r.GeneID, r.CancerCode, r.Correlation, nullFloat(r.PValue), version)
			if err != nil {
				return fmt.Errorf("inserting survival row: %w", err)
			}
		}
		return nil
	})
}

// ReplaceExpressionRatios replaces all expression rows for a source version.
func (d *DB) ReplaceExpressionRatios(rows []ExpressionRow, source, version string) error {
	return d.replaceEvidence("expression_ratio", source, version, len(rows), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO expression_ratio (gene_id, cancer_code, tumor_tpm, normal_tpm, ratio, source_version)
				VALUES (?, ?, ?, ?, ?, ?)`,
				r.GeneID, r.CancerCode, nullFloat(r.TumorTPM), nullFloat(r.NormalTPM), r.Ratio, version)
			if err != nil {
				return fmt.Errorf("inserting expression row: %w", err)
			}
		}
		return nil
	})
}

// ReplaceStructures replaces all structure rows for a source version.
func (d *DB) ReplaceStructures(rows []StructureRow, source, version string) error {
	return d.replaceEvidence("structure_info", source, version, len(rows), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO structure_info (gene_id, pdb_count, predicted_plddt, pocket_druggability, source_version)
				VALUES (?, ?, ?, ?, ?)`,
				r.GeneID, r.PDBCount, nullFloat(r.PredictedPLDDT), nullFloat(r.PocketDruggability), version)
			if err != nil {
				return fmt.Errorf("inserting structure row: %w", err)
			}
		}
		return nil
	})
}

// ReplaceCompounds replaces all compound rows for a source version.
func (d *DB) ReplaceCompounds(rows []CompoundRow, source, version string) error {
	return d.replaceEvidence("compound_info", source, version, len(rows), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO compound_info (gene_id, inhibitor_count, source_version)
				VALUES (?, ?, ?)`,
				r.GeneID, r.InhibitorCount, version)
			if err != nil {
				return fmt.Errorf("inserting compound row: %w", err)
			}
		}
		return nil
	})
}

// ReplacePathways replaces all pathway rows for a source version.
func (d *DB) ReplacePathways(rows []PathwayRow, source, version string) error {
	return d.replaceEvidence("pathway_membership", source, version, len(rows), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO pathway_membership (gene_id, pathway_id, escape_routes, source_version)
				VALUES (?, ?, ?, ?)`,
				r.GeneID, r.PathwayID, r.EscapeRoutes, version)
			if err != nil {
				return fmt.Errorf("inserting pathway row: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) replaceEvidence(table, source, version string, rowCount int, insert func(tx *sql.Tx) error) error {
	return d.tx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		if err := insert(tx); err != nil {
			return err
		}
		_, err := tx.Exec(`
			INSERT INTO adapter_runs (id, source, version, fetched_at, row_count)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), source, version, now().Format(timeFormat), rowCount)
		if err != nil {
			return fmt.Errorf("recording adapter run: %w", err)
		}
		return nil
	})
}

// LatestAdapterRun returns the most recent sync for a source, or nil when the
// source has never been synced.
func (d *DB) LatestAdapterRun(source string) (*AdapterRun, error) {
	row := d.db.QueryRow(`
		SELECT id, source, version, fetched_at, row_count FROM adapter_runs
		WHERE source = ? ORDER BY fetched_at DESC LIMIT 1`, source)

	var r AdapterRun
	var idStr, fetched string
	err := row.Scan(&idStr, &r.Source, &r.Version, &fetched, &r.RowCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading adapter run: %w", err)
	}
	if r.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing run id: %w", err)
	}
	if t, err := time.Parse(timeFormat, fetched); err == nil {
		r.FetchedAt = t
	}
	return &r, nil
}

// DependenciesForGene returns all dependency rows for a gene in a cancer
// cohort.
func (d *DB) DependenciesForGene(geneID, cancerCode string) ([]DependencyRow, error) {
	rows, err := d.db.Query(`
		SELECT gene_id, cancer_code, cell_line, ceres, source_version
		FROM gene_dependency WHERE gene_id = ? AND cancer_code = ?`,
		geneID, cancerCode)
	if err != nil {
		return nil, fmt.Errorf("listing dependencies: %w", err)
	}
	defer rows.Close()

	var out []DependencyRow
	for rows.Next() {
		var r DependencyRow
		if err := rows.Scan(&r.GeneID, &r.CancerCode, &r.CellLine, &r.CERES, &r.SourceVersion); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MutationFrequencyFor returns a gene's mutation frequency in a cancer
// cohort, or nil when unmeasured.
func (d *DB) MutationFrequencyFor(geneID, cancerCode string) (*MutationFrequencyRow, error) {
	row := d.db.QueryRow(`
		SELECT gene_id, cancer_code, frequency, sample_count, source_version
		FROM mutation_frequency WHERE gene_id = ? AND cancer_code = ?`,
		geneID, cancerCode)

	var r MutationFrequencyRow
	var samples sql.NullInt64
	err := row.Scan(&r.GeneID, &r.CancerCode, &r.Frequency, &samples, &r.SourceVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mutation frequency: %w", err)
	}
	r.SampleCount = intPtr(samples)
	return &r, nil
}

// SurvivalFor returns a gene's survival statistic in a cancer cohort, or nil
// when unmeasured.
func (d *DB) SurvivalFor(geneID, cancerCode string) (*SurvivalRow, error) {
	row := d.db.QueryRow(`
		SELECT gene_id, cancer_code, correlation, p_value, source_version
		FROM survival_stats WHERE gene_id = ? AND cancer_code = ?`,
		geneID, cancerCode)

	var r SurvivalRow
	var p sql.NullFloat64
	err := row.Scan(&r.GeneID, &r.CancerCode, &r.Correlation, &p, &r.SourceVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading survival stats: %w", err)
	}
	r.PValue = floatPtr(p)
	return &r, nil
}

// ExpressionFor returns a gene's expression row in a cancer cohort, or nil
// when unmeasured.
func (d *DB) ExpressionFor(geneID, cancerCode string) (*ExpressionRow, error) {
	row := d.db.QueryRow(`
		SELECT gene_id, cancer_code, tumor_tpm, normal_tpm, ratio, source_version
		FROM expression_ratio WHERE gene_id = ? AND cancer_code = ?`,
		geneID, cancerCode)

	var r ExpressionRow
	var tumor, normal sql.NullFloat64
	err := row.Scan(&r.GeneID, &r.CancerCode, &tumor, &normal, &r.Ratio, &r.SourceVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading expression ratio: %w", err)
	}
	r.TumorTPM = floatPtr(tumor)
	r.NormalTPM = floatPtr(normal)
	return &r, nil
}

// StructureFor returns a gene's structure summary, or nil when unknown.
func (d *DB) StructureFor(geneID string) (*StructureRow, error) {
	row := d.db.QueryRow(`
		SELECT gene_id, pdb_count, predicted_plddt, pocket_druggability, source_version
		FROM structure_info WHERE gene_id = ?`, geneID)

	var r StructureRow
	var plddt, pocket sql.NullFloat64
	err := row.Scan(&r.GeneID, &r.PDBCount, &plddt, &pocket, &r.SourceVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading structure info: %w", err)
	}
	r.PredictedPLDDT = floatPtr(plddt)
	r.PocketDruggability = floatPtr(pocket)
	return &r, nil
}

// CompoundFor returns a gene's compound summary, or nil when unknown.
func (d *DB) CompoundFor(geneID string) (*CompoundRow, error) {
	row := d.db.QueryRow(`
		SELECT gene_id, inhibitor_count, source_version
		FROM compound_info WHERE gene_id = ?`, geneID)

	var r CompoundRow
	err := row.Scan(&r.GeneID, &r.InhibitorCount, &r.SourceVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading compound info: %w", err)
	}
	return &r, nil
}

// PathwaysFor returns a gene's pathway memberships.
func (d *DB) PathwaysFor(geneID string) ([]PathwayRow, error) {
	rows, err := d.db.Query(`
		SELECT gene_id, pathway_id, escape_routes, source_version
		FROM pathway_membership WHERE gene_id = ?`, geneID)
	if err != nil {
		return nil, fmt.Errorf("listing pathways: %w", err)
	}
	defer rows.Close()

	var out []PathwayRow
	for rows.Next() {
		var r PathwayRow
		if err := rows.Scan(&r.GeneID, &r.PathwayID, &r.EscapeRoutes, &r.SourceVersion); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DependencyGenes returns the distinct gene ids with dependency data for a
// cancer cohort. Used for rank normalization across the cohort.
func (d *DB) DependencyGenes(cancerCode string) ([]string, error) {
	rows, err := d.db.Query(`
		SELECT DISTINCT gene_id FROM gene_dependency WHERE cancer_code = ? ORDER BY gene_id`,
		cancerCode)
	if err != nil {
		return nil, fmt.Errorf("listing dependency genes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
