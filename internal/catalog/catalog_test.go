package catalog

import (
	"errors"
	"testing"
)

func TestRegisterOrGetIdempotent(t *testing.T) {
	c := New()

	a := c.RegisterOrGet(TypeGene, "HGNC:6407", "KRAS", []string{"KRAS2"}, nil)
	b := c.RegisterOrGet(TypeGene, "HGNC:6407", "KRAS", []string{"K-RAS"}, map[string]string{"uniprot": "P01116"})

	if a.ID != b.ID {
		t.Fatalf("re-registration created a new entity: %s != %s", a.ID, b.ID)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entity, got %d", c.Len())
	}

	// Merged alias should resolve.
	got, _, err := c.Resolve(TypeGene, "k-ras")
	if err != nil {
		t.Fatalf("Resolve merged alias: %v", err)
	}
	if got.ID != a.ID {
		t.Error("merged alias resolved to wrong entity")
	}
	if b.ExternalIDs["uniprot"] != "P01116" {
		t.Error("external ids not merged")
	}
}

func TestRegisterSameCanonicalDifferentType(t *testing.T) {
	c := New()
	g := c.RegisterOrGet(TypeGene, "X:1", "thing", nil, nil)
	d := c.RegisterOrGet(TypeDisease, "X:1", "thing", nil, nil)
	if g.ID == d.ID {
		t.Error("(canonical_id, type) key collapsed across types")
	}
}

func TestResolve(t *testing.T) {
	c := New()
	LoadHGNC(c)

	tests := []struct {
		name    string
		typ     EntityType
		text    string
		wantCan string
		wantErr error
	}{
		{"symbol exact", TypeGene, "KRAS", "HGNC:6407", nil},
		{"symbol lowercase", TypeGene, "kras", "HGNC:6407", nil},
		{"alias", TypeGene, "HER2", "HGNC:3430", nil},
		{"alias case-insensitive", TypeGene, "her-2", "HGNC:3430", nil},
		{"unknown", TypeGene, "NOTAGENE", "", ErrNotFound},
		{"wrong type", TypeCancerType, "KRAS", "", ErrNotFound},
		{"empty", TypeGene, "  ", "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, err := c.Resolve(tt.typ, tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.text, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.text, err)
			}
			if e.CanonicalID != tt.wantCan {
				t.Errorf("Resolve(%q) = %s, want %s", tt.text, e.CanonicalID, tt.wantCan)
			}
		})
	}
}

func TestResolveAmbiguousReturnsAllCandidates(t *testing.T) {
	c := New()
	c.RegisterOrGet(TypeGene, "HGNC:1", "GENE1", []string{"SHARED"}, nil)
	c.RegisterOrGet(TypeGene, "HGNC:2", "GENE2", []string{"SHARED"}, nil)

	_, candidates, err := c.Resolve(TypeGene, "shared")
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(candidates))
	}
}

func TestResolveMutationNotationEquivalence(t *testing.T) {
	c := New()
	norm := NormalizeMutation("G12D", "KRAS")
	if norm == nil {
		t.Fatal("G12D should normalize")
	}
	c.RegisterOrGet(TypeMutation, "KRAS:p.Gly12Asp", norm.HGVSProtein, norm.Notations(), nil)

	for _, notation := range []string{"G12D", "p.Gly12Asp", "Gly12Asp", "rs121913529"} {
		e, _, err := c.Resolve(TypeMutation, notation)
		if err != nil {
			t.Errorf("Resolve(%q): %v", notation, err)
			continue
		}
		if e.CanonicalID != "KRAS:p.Gly12Asp" {
			t.Errorf("Resolve(%q) = %s", notation, e.CanonicalID)
		}
	}
}

func TestIsAmbiguousSymbol(t *testing.T) {
	for _, sym := range []string{"CAT", "set", "Max"} {
		if !IsAmbiguousSymbol(sym) {
			t.Errorf("%s should be ambiguous", sym)
		}
	}
	if IsAmbiguousSymbol("KRAS") {
		t.Error("KRAS should not be ambiguous")
	}
}

func TestGeneAliases(t *testing.T) {
	c := New()
	LoadHGNC(c)

	aliases := GeneAliases(c, "ERBB2")
	found := false
	for _, a := range aliases {
		if a == "HER2" {
			found = true
		}
	}
	if !found {
		t.Errorf("ERBB2 aliases missing HER2: %v", aliases)
	}

	unknown := GeneAliases(c, "ZZZ9")
	if len(unknown) != 1 || unknown[0] != "ZZZ9" {
		t.Errorf("unknown gene should return itself, got %v", unknown)
	}
}
