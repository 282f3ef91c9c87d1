package ingest

import "testing"

func TestSimHashNearDuplicates(t *testing.T) {
	a := "KRAS G12D is the most common driver mutation in pancreatic ductal adenocarcinoma and confers dependency on downstream MAPK signaling in preclinical models."
	// Same text as a mirrored record would carry it: different casing and
	// punctuation, identical words.
	b := "KRAS-G12D is the most common driver mutation in pancreatic ductal adenocarcinoma, and confers dependency on downstream MAPK signaling in preclinical models"
	c := "Checkpoint blockade combined with radiotherapy improves survival in metastatic melanoma patients enrolled in a phase three randomized trial."

	if d := HammingDistance(SimHash(a), SimHash(b)); d > HammingThreshold {
		t.Errorf("near-duplicate distance = %d, want <= %d", d, HammingThreshold)
	}
	if d := HammingDistance(SimHash(a), SimHash(c)); d <= HammingThreshold {
		t.Errorf("unrelated distance = %d, should exceed %d", d, HammingThreshold)
	}
}

func TestSimHashDeterministic(t *testing.T) {
	text := "Reproducible signatures for identical input."
	if SimHash(text) != SimHash(text) {
		t.Error("signature not deterministic")
	}
}

func TestSimHashStopWordsIgnored(t *testing.T) {
	if SimHash("KRAS dependency in the tumor") != SimHash("KRAS dependency of a tumor") {
		t.Error("stop-word-only differences should not change the signature")
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0b1011, 0b1001, 1},
		{0, ^uint64(0), 64},
	}
	for _, tt := range tests {
		if got := HammingDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("HammingDistance(%b, %b) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTitleSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		wantMin float64
		wantMax float64
	}{
		{"identical", "KRAS G12D in PDAC", "KRAS G12D in PDAC", 1, 1},
		{"case and punctuation", "KRAS(G12D) in PDAC", "kras g12d in pdac", 0.99, 1},
		{"different", "KRAS in PDAC", "EGFR resistance in NSCLC", 0, 0.3},
		{"empty", "", "anything", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TitleSimilarity(tt.a, tt.b)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TitleSimilarity = %f, want [%f, %f]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct{ in, want string }{
		{"10.1038/S41586", "10.1038/s41586"},
		{"https://doi.org/10.1038/x", "10.1038/x"},
		{"doi:10.1/Y", "10.1/y"},
		{"  10.1/z  ", "10.1/z"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDOI(tt.in); got != tt.want {
			t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
