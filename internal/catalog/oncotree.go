package catalog

import "strings"

// OncoTreeNode is one cancer subtype in the OncoTree hierarchy.
type OncoTreeNode struct {
	Code     string   // e.g. "PAAD"
	Name     string   // e.g. "Pancreatic Adenocarcinoma"
	Parent   string   // parent code, "" for the root tissue level
	ICDO     string   // ICD-O morphology/topography mapping, may be empty
	Synonyms []string // alternate disease names used in query expansion
}

// OncoTree is a code-keyed cancer subtype hierarchy.
type OncoTree struct {
	nodes    map[string]*OncoTreeNode
	children map[string][]string
}

// NewOncoTree builds a hierarchy from nodes. Parent links to unknown codes
// are tolerated (partial trees load fine).
func NewOncoTree(nodes []OncoTreeNode) *OncoTree {
	t := &OncoTree{
		nodes:    make(map[string]*OncoTreeNode, len(nodes)),
		children: make(map[string][]string),
	}
	for i := range nodes {
		n := nodes[i]
		t.nodes[n.Code] = &n
		if n.Parent != "" {
			t.children[n.Parent] = append(t.children[n.Parent], n.Code)
		}
	}
	return t
}

// Get returns a node by code.
func (t *OncoTree) Get(code string) (*OncoTreeNode, bool) {
	n, ok := t.nodes[strings.ToUpper(code)]
	return n, ok
}

// Subtree returns the code and all transitive descendant codes.
// Unknown codes return nil.
func (t *OncoTree) Subtree(code string) []string {
	code = strings.ToUpper(code)
	if _, ok := t.nodes[code]; !ok {
		return nil
	}
	var out []string
	stack := []string{code}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		stack = append(stack, t.children[cur]...)
	}
	return out
}

// SubtreeNames returns every name and synonym in the subtree, for discovery
// query expansion.
func (t *OncoTree) SubtreeNames(code string) []string {
	var names []string
	for _, c := range t.Subtree(code) {
		n := t.nodes[c]
		names = append(names, n.Name)
		names = append(names, n.Synonyms...)
	}
	return names
}

// DefaultOncoTree returns the built-in subset of the OncoTree hierarchy
// covering the tumor types exercised by the evidence adapters. Deployments
// replace this with a full OncoTree release via the pathway/cancer adapter.
func DefaultOncoTree() *OncoTree {
	return NewOncoTree([]OncoTreeNode{
		{Code: "TISSUE", Name: "Tissue"},
		{Code: "PANCREAS", Name: "Pancreas", Parent: "TISSUE"},
		{Code: "PAAD", Name: "Pancreatic Adenocarcinoma", Parent: "PANCREAS", ICDO: "8500/3",
			Synonyms: []string{"pancreatic ductal adenocarcinoma", "PDAC", "pancreatic cancer"}},
		{Code: "PANET", Name: "Pancreatic Neuroendocrine Tumor", Parent: "PANCREAS", ICDO: "8150/3"},
		{Code: "LUNG", Name: "Lung", Parent: "TISSUE"},
		{Code: "NSCLC", Name: "Non-Small Cell Lung Cancer", Parent: "LUNG",
			Synonyms: []string{"non small cell lung carcinoma"}},
		{Code: "LUAD", Name: "Lung Adenocarcinoma", Parent: "NSCLC", ICDO: "8140/3"},
		{Code: "LUSC", Name: "Lung Squamous Cell Carcinoma", Parent: "NSCLC", ICDO: "8070/3"},
		{Code: "SCLC", Name: "Small Cell Lung Cancer", Parent: "LUNG", ICDO: "8041/3"},
		{Code: "BOWEL", Name: "Bowel", Parent: "TISSUE"},
		{Code: "COADREAD", Name: "Colorectal Adenocarcinoma", Parent: "BOWEL",
			Synonyms: []string{"colorectal cancer", "CRC"}},
		{Code: "COAD", Name: "Colon Adenocarcinoma", Parent: "COADREAD", ICDO: "8140/3"},
		{Code: "READ", Name: "Rectal Adenocarcinoma", Parent: "COADREAD", ICDO: "8140/3"},
		{Code: "BREAST", Name: "Breast", Parent: "TISSUE"},
		{Code: "BRCA", Name: "Invasive Breast Carcinoma", Parent: "BREAST",
			Synonyms: []string{"breast cancer"}},
		{Code: "SKIN", Name: "Skin", Parent: "TISSUE"},
		{Code: "SKCM", Name: "Cutaneous Melanoma", Parent: "SKIN", ICDO: "8720/3",
			Synonyms: []string{"melanoma"}},
	})
}
