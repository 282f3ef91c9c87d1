package vecindex

import (
	"errors"
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched length", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("Cosine = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	idx := New("nomic-embed-text", 3)
	err := idx.Add("c1", "p1", []float32{1, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestSearchOrderAndLimit(t *testing.T) {
	idx := New("nomic-embed-text", 2)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(idx.Add("exact", "p1", []float32{1, 0}))
	must(idx.Add("close", "p2", []float32{0.9, 0.1}))
	must(idx.Add("far", "p3", []float32{0, 1}))

	hits := idx.Search([]float32{1, 0}, 2, 0.5)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ChunkID != "exact" || hits[1].ChunkID != "close" {
		t.Errorf("order = %s, %s", hits[0].ChunkID, hits[1].ChunkID)
	}
	if hits[0].PaperID != "p1" {
		t.Errorf("paper id = %s", hits[0].PaperID)
	}
}

func TestSearchThresholdFilters(t *testing.T) {
	idx := New("m", 2)
	if err := idx.Add("a", "p", []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	if hits := idx.Search([]float32{1, 0}, 10, 0.5); len(hits) != 0 {
		t.Errorf("below-threshold hit returned: %v", hits)
	}
}

func TestRemovePaper(t *testing.T) {
	idx := New("m", 2)
	for _, c := range []struct{ chunk, paper string }{
		{"c1", "p1"}, {"c2", "p1"}, {"c3", "p2"},
	} {
		if err := idx.Add(c.chunk, c.paper, []float32{1, 0}); err != nil {
			t.Fatal(err)
		}
	}
	if n := idx.Remove("p1"); n != 2 {
		t.Errorf("removed %d chunks, want 2", n)
	}
	if idx.Len() != 1 {
		t.Errorf("len = %d, want 1", idx.Len())
	}
	if idx.Has("c1") {
		t.Error("removed chunk still present")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	idx := New("nomic-embed-text", 2)
	if err := idx.Add("c1", "p1", []float32{0.5, 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("loaded len = %d, want 1", loaded.Len())
	}
	st := loaded.Stats()
	if st.ModelName != "nomic-embed-text" || st.Dimensions != 2 {
		t.Errorf("stats = %+v", st)
	}

	hits := loaded.Search([]float32{0.5, 0.5}, 1, 0.9)
	if len(hits) != 1 || hits[0].ChunkID != "c1" {
		t.Errorf("search after load = %v", hits)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("err = %v, want ErrIndexNotFound", err)
	}
}
