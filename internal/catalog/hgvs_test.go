package catalog

import "testing"

func TestNormalizeMutation(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		gene     string
		wantHGVS string
		wantRsID string
		wantNil  bool
	}{
		{name: "short G12D with gene", raw: "G12D", gene: "KRAS", wantHGVS: "p.Gly12Asp", wantRsID: "rs121913529"},
		{name: "short V600E", raw: "V600E", gene: "BRAF", wantHGVS: "p.Val600Glu", wantRsID: "rs113488022"},
		{name: "hgvs triple letter", raw: "p.Gly12Asp", gene: "KRAS", wantHGVS: "p.Gly12Asp", wantRsID: "rs121913529"},
		{name: "hgvs without prefix", raw: "Gly12Asp", gene: "KRAS", wantHGVS: "p.Gly12Asp", wantRsID: "rs121913529"},
		{name: "hgvs single letter with prefix", raw: "p.G12D", gene: "KRAS", wantHGVS: "p.Gly12Asp", wantRsID: "rs121913529"},
		{name: "no gene means no rsid", raw: "G12D", wantHGVS: "p.Gly12Asp"},
		{name: "lowercase gene still matches", raw: "G12D", gene: "kras", wantHGVS: "p.Gly12Asp", wantRsID: "rs121913529"},
		{name: "nonsense mutation", raw: "R213*", wantHGVS: "p.Arg213Ter"},
		{name: "wild type text", raw: "wild-type", wantNil: true},
		{name: "deletion text", raw: "exon 2 deletion", wantNil: true},
		{name: "empty", raw: "", wantNil: true},
		{name: "coding notation not protein", raw: "c.35G>A", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMutation(tt.raw, tt.gene)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("NormalizeMutation(%q) = %+v, want nil", tt.raw, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("NormalizeMutation(%q) = nil", tt.raw)
			}
			if got.HGVSProtein != tt.wantHGVS {
				t.Errorf("HGVSProtein = %s, want %s", got.HGVSProtein, tt.wantHGVS)
			}
			if got.RsID != tt.wantRsID {
				t.Errorf("RsID = %q, want %q", got.RsID, tt.wantRsID)
			}
		})
	}
}

func TestNormalizedShortForm(t *testing.T) {
	m := NormalizeMutation("p.Gly12Asp", "")
	if m == nil {
		t.Fatal("should normalize")
	}
	if m.Short != "G12D" {
		t.Errorf("Short = %s, want G12D", m.Short)
	}
	if m.Position != 12 {
		t.Errorf("Position = %d, want 12", m.Position)
	}
}

func TestMutationNotations(t *testing.T) {
	notations := MutationNotations("G12D", "KRAS")
	want := map[string]bool{"G12D": true, "p.Gly12Asp": true, "Gly12Asp": true, "rs121913529": true}
	if len(notations) != len(want) {
		t.Fatalf("Notations = %v", notations)
	}
	for _, n := range notations {
		if !want[n] {
			t.Errorf("unexpected notation %q", n)
		}
	}

	raw := MutationNotations("amplification", "")
	if len(raw) != 1 || raw[0] != "amplification" {
		t.Errorf("unparseable input should pass through, got %v", raw)
	}
}

func TestIsHGVSCodingAndRsID(t *testing.T) {
	if !IsHGVSCoding("c.35G>A") {
		t.Error("c.35G>A is coding notation")
	}
	if IsHGVSCoding("p.Gly12Asp") {
		t.Error("protein notation is not coding")
	}
	if !IsRsID("rs121913529") {
		t.Error("rs121913529 is an rsID")
	}
	if IsRsID("rsX") {
		t.Error("rsX is not an rsID")
	}
}
