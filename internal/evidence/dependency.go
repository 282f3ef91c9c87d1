package evidence

import (
	"sort"

	"github.com/oncoscout/oncoscout/internal/storage"
)

// DependencySummary aggregates a gene's per-cell-line CERES scores within one
// cancer cohort. Mean feeds the scoring component; median is kept for
// diagnostics because single outlier lines can drag the mean.
type DependencySummary struct {
	GeneID     string  `json:"gene_id"`
	CancerCode string  `json:"cancer_code"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	CellLines  int     `json:"cell_lines"`
}

// SummarizeDependency returns the cohort summary for a gene, or nil when the
// gene has no dependency rows in the cohort.
func SummarizeDependency(db *storage.DB, geneID, cancerCode string) (*DependencySummary, error) {
	rows, err := db.DependenciesForGene(geneID, cancerCode)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(rows))
	sum := 0.0
	for i, r := range rows {
		scores[i] = r.CERES
		sum += r.CERES
	}
	sort.Float64s(scores)

	median := scores[len(scores)/2]
	if len(scores)%2 == 0 {
		median = (scores[len(scores)/2-1] + scores[len(scores)/2]) / 2
	}

	return &DependencySummary{
		GeneID:     geneID,
		CancerCode: cancerCode,
		Mean:       sum / float64(len(scores)),
		Median:     median,
		CellLines:  len(scores),
	}, nil
}
