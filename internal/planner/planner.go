// Package planner translates structured queries into execution plans and
// materializes ranked, cited target bundles from the scoring engine, the
// knowledge graph, and the document store.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/oncoscout/oncoscout/internal/catalog"
	doc "github.com/oncoscout/oncoscout/internal/docstore"
	"github.com/oncoscout/oncoscout/internal/kg"
	"github.com/oncoscout/oncoscout/internal/scoring"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// Query types.
const (
	QueryTargetPrioritization = "target_prioritization"
	QueryEvidenceLookup       = "evidence_lookup"
	QuerySimilarity           = "similarity"
)

// Defaults for output preferences.
const (
	DefaultTopN     = 10
	DefaultExcerpts = 3
)

// inferredConfidenceCap bounds the confidence of any claim that carries no
// traceable source.
const inferredConfidenceCap = 0.3

// planHistory bounds how many executed plans stay explainable.
const planHistory = 128

// Errors surfaced to callers.
var (
	ErrUnknownQueryType = errors.New("unknown query type")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrMissingEntity    = errors.New("query references no resolvable entity")
)

// Constraints filter the candidate set before ranking.
type Constraints struct {
	MinStructural   float64 `json:"min_structural,omitempty"`
	MaxInhibitors   int     `json:"max_inhibitors,omitempty"`
	MinConfidence   float64 `json:"min_confidence,omitempty"`
	IncludeExcluded bool    `json:"include_excluded,omitempty"`
}

// Query is a structured request. Gene takes a symbol, alias, or HGNC id;
// CancerType takes a name or OncoTree code.
type Query struct {
	Type              string      `json:"query_type"`
	Text              string      `json:"query_text,omitempty"`
	Gene              string      `json:"gene,omitempty"`
	CancerType        string      `json:"cancer_type,omitempty"`
	Constraints       Constraints `json:"constraints,omitempty"`
	TopN              int         `json:"top_n,omitempty"`
	ExcerptsPerTarget int         `json:"excerpts_per_target,omitempty"`
}

// PlanNode is one step of an execution plan.
type PlanNode struct {
	Op       string      `json:"op"`
	Detail   string      `json:"detail,omitempty"`
	Children []*PlanNode `json:"children,omitempty"`
}

// Plan records how a query was executed, for reproducibility.
type Plan struct {
	ID        uuid.UUID `json:"plan_id"`
	Query     Query     `json:"query"`
	Root      *PlanNode `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Plan) step(op, format string, args ...any) *PlanNode {
	node := &PlanNode{Op: op, Detail: fmt.Sprintf(format, args...)}
	p.Root.Children = append(p.Root.Children, node)
	return node
}

// Planner executes queries. Safe for concurrent use.
type Planner struct {
	db     *storage.DB
	cat    *catalog.Catalog
	graph  *kg.Graph
	engine *scoring.Engine
	store  *doc.Store
	logger *log.Logger

	mu    sync.Mutex
	plans map[uuid.UUID]*Plan
	order []uuid.UUID
}

// New creates a planner. The document store may be nil, in which case
// supporting excerpts are omitted.
func New(db *storage.DB, cat *catalog.Catalog, graph *kg.Graph, engine *scoring.Engine,
	store *doc.Store, logger *log.Logger) *Planner {
	return &Planner{
		db:     db,
		cat:    cat,
		graph:  graph,
		engine: engine,
		store:  store,
		logger: logger,
		plans:  make(map[uuid.UUID]*Plan),
	}
}

// Execute runs a query and returns its bundle. The executed plan stays
// retrievable through Explain.
func (p *Planner) Execute(ctx context.Context, q Query) (*Bundle, error) {
	if q.TopN <= 0 {
		q.TopN = DefaultTopN
	}
	if q.ExcerptsPerTarget <= 0 {
		q.ExcerptsPerTarget = DefaultExcerpts
	}

	plan := &Plan{
		ID:        uuid.New(),
		Query:     q,
		Root:      &PlanNode{Op: "query", Detail: q.Type},
		CreatedAt: time.Now().UTC(),
	}

	var bundle *Bundle
	var err error
	switch q.Type {
	case QueryTargetPrioritization:
		bundle, err = p.prioritize(ctx, q, plan)
	case QueryEvidenceLookup:
		bundle, err = p.lookupEvidence(ctx, q, plan)
	case QuerySimilarity:
		bundle, err = p.similarity(ctx, q, plan)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueryType, q.Type)
	}
	if err != nil {
		return nil, err
	}

	bundle.QueryID = plan.ID.String()
	bundle.QueryText = q.Text
	bundle.GeneratedAt = plan.CreatedAt
	p.remember(plan)
	p.logger.Info("query executed", "plan", plan.ID, "type", q.Type, "targets", len(bundle.RankedTargets))
	return bundle, nil
}

// Explain returns the plan tree of a previously executed query. Plans not in
// process memory are recovered from the audit log.
func (p *Planner) Explain(planID uuid.UUID) (*Plan, error) {
	p.mu.Lock()
	plan, ok := p.plans[planID]
	p.mu.Unlock()
	if ok {
		return plan, nil
	}

	entries, err := p.db.ListAudit(storage.AuditQueryPlan, 10000)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		var stored Plan
		if json.Unmarshal([]byte(e.Detail), &stored) != nil {
			continue
		}
		if stored.ID == planID {
			return &stored, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
}

func (p *Planner) remember(plan *Plan) {
	p.mu.Lock()
	p.plans[plan.ID] = plan
	p.order = append(p.order, plan.ID)
	for len(p.order) > planHistory {
		delete(p.plans, p.order[0])
		p.order = p.order[1:]
	}
	p.mu.Unlock()

	if data, err := json.Marshal(plan); err == nil {
		if err := p.db.Audit(storage.AuditQueryPlan, nil, "planner", string(data)); err != nil {
			p.logger.Warn("plan audit failed", "plan", plan.ID, "err", err)
		}
	}
}

// resolveCancer accepts an OncoTree code, a name, or an alias.
func (p *Planner) resolveCancer(term string) (*catalog.Entity, error) {
	if term == "" {
		return nil, fmt.Errorf("%w: cancer type required", ErrMissingEntity)
	}
	if e, err := p.cat.GetByCanonical(catalog.TypeCancerType, term); err == nil {
		return e, nil
	}
	e, _, err := p.cat.Resolve(catalog.TypeCancerType, term)
	if err != nil {
		return nil, fmt.Errorf("%w: cancer type %q", ErrMissingEntity, term)
	}
	return e, nil
}

// resolveGene accepts an HGNC id, a symbol, or an alias.
func (p *Planner) resolveGene(term string) (*catalog.Entity, error) {
	if term == "" {
		return nil, fmt.Errorf("%w: gene required", ErrMissingEntity)
	}
	if e, err := p.cat.GetByCanonical(catalog.TypeGene, term); err == nil {
		return e, nil
	}
	e, _, err := p.cat.Resolve(catalog.TypeGene, term)
	if err != nil {
		return nil, fmt.Errorf("%w: gene %q", ErrMissingEntity, term)
	}
	return e, nil
}

// geneSymbol maps a gene id back to its symbol, falling back to the id when
// the catalog does not know it.
func (p *Planner) geneSymbol(geneID string) string {
	if e, err := p.cat.GetByCanonical(catalog.TypeGene, geneID); err == nil {
		return e.Name
	}
	return geneID
}
