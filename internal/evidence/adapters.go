package evidence

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/oncoscout/oncoscout/internal/storage"
)

// Adapter names double as adapter_runs source keys.
const (
	SourceDependency = "dependency"
	SourceMutation   = "mutation_frequency"
	SourceSurvival   = "survival"
	SourceExpression = "expression"
	SourceStructure  = "structure"
	SourceCompound   = "compound"
	SourcePathway    = "pathway"
)

// DefaultRateLimit is the per-source request budget when the config does not
// set one.
const DefaultRateLimit = 2.0

// Adapter is one evidence source sync.
type Adapter interface {
	Name() string
	Sync(ctx context.Context, db *storage.DB) (int, error)
}

// payload is the envelope every evidence endpoint serves: a dataset version
// and its rows.
type payload[T any] struct {
	Version string `json:"version"`
	Rows    []T    `json:"rows"`
}

// adapter binds a client and endpoint to a row decoder and a storage replace.
type adapter[T any] struct {
	name    string
	path    string
	client  *client
	replace func(db *storage.DB, rows []T, version string) error
}

func (a *adapter[T]) Name() string { return a.name }

// Sync fetches the full dataset and replaces the table in one transaction.
// Missing values stay null; the adapter never fabricates zeros.
func (a *adapter[T]) Sync(ctx context.Context, db *storage.DB) (int, error) {
	var body payload[T]
	if err := a.client.getJSON(ctx, a.path, &body); err != nil {
		return 0, err
	}
	if body.Version == "" {
		return 0, fmt.Errorf("%w: %s payload has no version", ErrInvalidResponse, a.name)
	}
	if err := a.replace(db, body.Rows, body.Version); err != nil {
		return 0, err
	}
	return len(body.Rows), nil
}

// NewDependencyAdapter syncs CERES-style gene dependency rows.
func NewDependencyAdapter(baseURL string, rps float64, opts ...Option) Adapter {
	return &adapter[storage.DependencyRow]{
		name:   SourceDependency,
		path:   "/dependency",
		client: newClient(baseURL, rps, opts...),
		replace: func(db *storage.DB, rows []storage.DependencyRow, version string) error {
			return db.ReplaceDependencies(rows, SourceDependency, version)
		},
	}
}

// NewMutationAdapter syncs somatic mutation frequencies per cancer cohort.
func NewMutationAdapter(baseURL string, rps float64, opts ...Option) Adapter {
	return &adapter[storage.MutationFrequencyRow]{
		name:   SourceMutation,
		path:   "/mutation-frequency",
		client: newClient(baseURL, rps, opts...),
		replace: func(db *storage.DB, rows []storage.MutationFrequencyRow, version string) error {
			return db.ReplaceMutationFrequencies(rows, SourceMutation, version)
		},
	}
}

// NewSurvivalAdapter syncs survival-correlation statistics.
func NewSurvivalAdapter(baseURL string, rps float64, opts ...Option) Adapter {
	return &adapter[storage.SurvivalRow]{
		name:   SourceSurvival,
		path:   "/survival",
		client: newClient(baseURL, rps, opts...),
		replace: func(db *storage.DB, rows []storage.SurvivalRow, version string) error {
			return db.ReplaceSurvivalStats(rows, SourceSurvival, version)
		},
	}
}

// NewExpressionAdapter syncs tumor/normal expression ratios.
func NewExpressionAdapter(baseURL string, rps float64, opts ...Option) Adapter {
	return &adapter[storage.ExpressionRow]{
		name:   SourceExpression,
		path:   "/expression",
		client: newClient(baseURL, rps, opts...),
		replace: func(db *storage.DB, rows []storage.ExpressionRow, version string) error {
			return db.ReplaceExpressionRatios(rows, SourceExpression, version)
		},
	}
}

// NewStructureAdapter syncs structure availability (PDB counts, predicted
// pLDDT, pocket druggability).
func NewStructureAdapter(baseURL string, rps float64, opts ...Option) Adapter {
	return &adapter[storage.StructureRow]{
		name:   SourceStructure,
		path:   "/structure",
		client: newClient(baseURL, rps, opts...),
		replace: func(db *storage.DB, rows []storage.StructureRow, version string) error {
			return db.ReplaceStructures(rows, SourceStructure, version)
		},
	}
}

// NewCompoundAdapter syncs known inhibitor counts per gene.
func NewCompoundAdapter(baseURL string, rps float64, opts ...Option) Adapter {
	return &adapter[storage.CompoundRow]{
		name:   SourceCompound,
		path:   "/compounds",
		client: newClient(baseURL, rps, opts...),
		replace: func(db *storage.DB, rows []storage.CompoundRow, version string) error {
			return db.ReplaceCompounds(rows, SourceCompound, version)
		},
	}
}

// NewPathwayAdapter syncs pathway membership and escape-route counts.
func NewPathwayAdapter(baseURL string, rps float64, opts ...Option) Adapter {
	return &adapter[storage.PathwayRow]{
		name:   SourcePathway,
		path:   "/pathways",
		client: newClient(baseURL, rps, opts...),
		replace: func(db *storage.DB, rows []storage.PathwayRow, version string) error {
			return db.ReplacePathways(rows, SourcePathway, version)
		},
	}
}

// SyncResult is one adapter's outcome within a Service run.
type SyncResult struct {
	Source string `json:"source"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

// Service runs a set of adapters against the store.
type Service struct {
	db       *storage.DB
	adapters []Adapter
	logger   *log.Logger
}

// NewService assembles an adapter runner.
func NewService(db *storage.DB, logger *log.Logger, adapters ...Adapter) *Service {
	return &Service{db: db, adapters: adapters, logger: logger}
}

// SyncAll runs every adapter sequentially. A failing adapter is recorded and
// skipped; the rest still sync. Adapters share one writer, so there is no
// gain in fanning out.
func (s *Service) SyncAll(ctx context.Context) []SyncResult {
	results := make([]SyncResult, 0, len(s.adapters))
	for _, a := range s.adapters {
		if err := ctx.Err(); err != nil {
			results = append(results, SyncResult{Source: a.Name(), Error: err.Error()})
			continue
		}
		n, err := a.Sync(ctx, s.db)
		res := SyncResult{Source: a.Name(), Rows: n}
		if err != nil {
			res.Error = err.Error()
			s.logger.Warn("adapter sync failed", "source", a.Name(), "err", err)
		} else {
			s.logger.Info("adapter synced", "source", a.Name(), "rows", n)
		}
		results = append(results, res)
	}
	return results
}
