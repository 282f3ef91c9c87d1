package catalog

import "testing"

func TestSubtree(t *testing.T) {
	tree := DefaultOncoTree()

	tests := []struct {
		code string
		want map[string]bool
	}{
		{"PAAD", map[string]bool{"PAAD": true}},
		{"NSCLC", map[string]bool{"NSCLC": true, "LUAD": true, "LUSC": true}},
		{"LUNG", map[string]bool{"LUNG": true, "NSCLC": true, "LUAD": true, "LUSC": true, "SCLC": true}},
		{"COADREAD", map[string]bool{"COADREAD": true, "COAD": true, "READ": true}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := tree.Subtree(tt.code)
			if len(got) != len(tt.want) {
				t.Fatalf("Subtree(%s) = %v, want %d codes", tt.code, got, len(tt.want))
			}
			for _, c := range got {
				if !tt.want[c] {
					t.Errorf("unexpected code %s in subtree", c)
				}
			}
		})
	}
}

func TestSubtreeUnknownCode(t *testing.T) {
	if got := DefaultOncoTree().Subtree("NOPE"); got != nil {
		t.Errorf("unknown code should return nil, got %v", got)
	}
}

func TestSubtreeCaseInsensitive(t *testing.T) {
	got := DefaultOncoTree().Subtree("paad")
	if len(got) != 1 || got[0] != "PAAD" {
		t.Errorf("Subtree(paad) = %v", got)
	}
}

func TestSubtreeNamesIncludeSynonyms(t *testing.T) {
	names := DefaultOncoTree().SubtreeNames("PAAD")
	found := false
	for _, n := range names {
		if n == "PDAC" {
			found = true
		}
	}
	if !found {
		t.Errorf("PAAD subtree names missing PDAC synonym: %v", names)
	}
}

func TestLoadOncoTreeRegistersEntities(t *testing.T) {
	c := New()
	n := LoadOncoTree(c, DefaultOncoTree())
	if n == 0 {
		t.Fatal("no nodes registered")
	}

	e, _, err := c.Resolve(TypeCancerType, "pancreatic ductal adenocarcinoma")
	if err != nil {
		t.Fatalf("Resolve by synonym: %v", err)
	}
	if e.CanonicalID != "PAAD" {
		t.Errorf("resolved to %s, want PAAD", e.CanonicalID)
	}
}
