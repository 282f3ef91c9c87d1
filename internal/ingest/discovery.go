package ingest

import (
	"fmt"
	"strings"

	"github.com/oncoscout/oncoscout/internal/catalog"
)

// Request is one discovery task: find literature about a gene (optionally a
// specific mutation) in a cancer type. Aliases supplement the catalog's
// expansion for symbols the caller knows under other names. An empty Sources
// list means every registered source.
type Request struct {
	Gene       string   `json:"gene"`
	Aliases    []string `json:"aliases,omitempty"`
	Mutation   string   `json:"mutation,omitempty"`
	CancerType string   `json:"cancer_type"`
	MaxPapers  int      `json:"max_papers"`
	FromYear   int      `json:"from_year,omitempty"`
	ToYear     int      `json:"to_year,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

// DefaultMaxPapers bounds a discovery run when the request does not.
const DefaultMaxPapers = 200

// Expansion is a request expanded through the catalog: every known notation
// of each term, so no source misses a paper over naming.
type Expansion struct {
	GeneTerms     []string `json:"gene_terms"`
	MutationTerms []string `json:"mutation_terms,omitempty"`
	CancerTerms   []string `json:"cancer_terms"`
}

// Expand resolves the request's terms against the catalog. An unknown gene
// or cancer type falls back to the raw term rather than failing: discovery
// should still search even when the catalog has a gap.
func Expand(c *catalog.Catalog, tree *catalog.OncoTree, req *Request) (*Expansion, error) {
	if req.Gene == "" || req.CancerType == "" {
		return nil, fmt.Errorf("discovery request needs gene and cancer_type")
	}

	exp := &Expansion{}

	exp.GeneTerms = catalog.GeneAliases(c, req.Gene)
	if len(exp.GeneTerms) == 0 {
		exp.GeneTerms = []string{req.Gene}
	}
	exp.GeneTerms = mergeTerms(exp.GeneTerms, req.Aliases)

	if req.Mutation != "" {
		exp.MutationTerms = catalog.MutationNotations(req.Mutation, req.Gene)
	}

	if node, ok := tree.Get(req.CancerType); ok {
		exp.CancerTerms = cancerTerms(tree, node.Code)
	} else if e, _, err := c.Resolve(catalog.TypeCancerType, req.CancerType); err == nil {
		exp.CancerTerms = cancerTerms(tree, e.CanonicalID)
	}
	if len(exp.CancerTerms) == 0 {
		exp.CancerTerms = []string{req.CancerType}
	}

	return exp, nil
}

// cancerTerms collects subtree names plus the ICD-O codes of every node in
// the subtree, deduplicated.
func cancerTerms(tree *catalog.OncoTree, code string) []string {
	terms := tree.SubtreeNames(code)
	for _, c := range tree.Subtree(code) {
		if node, ok := tree.Get(c); ok && node.ICDO != "" {
			terms = append(terms, node.ICDO)
		}
	}
	return mergeTerms(nil, terms)
}

// mergeTerms appends extra terms onto base, skipping case-insensitive
// duplicates while preserving order.
func mergeTerms(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, t := range append(base, extra...) {
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// Queries renders the expansion as boolean search strings, one per source
// call. Terms with spaces are quoted.
func (e *Expansion) Queries() []string {
	gene := orClause(e.GeneTerms)
	cancer := orClause(e.CancerTerms)

	if len(e.MutationTerms) == 0 {
		return []string{fmt.Sprintf("%s AND %s", gene, cancer)}
	}
	return []string{fmt.Sprintf("%s AND %s AND %s", gene, orClause(e.MutationTerms), cancer)}
}

func orClause(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		if strings.ContainsRune(t, ' ') {
			quoted[i] = `"` + t + `"`
		} else {
			quoted[i] = t
		}
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "(" + strings.Join(quoted, " OR ") + ")"
}
