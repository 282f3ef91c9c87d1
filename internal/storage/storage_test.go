package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	d.Close()

	d, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	d.Close()
}

func TestInsertPaperRoundTrip(t *testing.T) {
	d := openTestDB(t)

	pub := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hash := int64(0x1234)
	p := &Paper{
		DOI:             "10.1000/xyz",
		PMID:            "12345678",
		Title:           "KRAS G12D dependency in pancreatic cancer",
		Abstract:        "We show KRAS dependency.",
		Authors:         []Author{{Given: "A", Family: "Smith"}},
		Journal:         "Nature",
		PubDate:         &pub,
		Source:          "pubmed",
		RetrievalTier:   1,
		AbstractSimHash: &hash,
	}
	if err := d.InsertPaper(p, nil); err != nil {
		t.Fatalf("InsertPaper: %v", err)
	}

	got, err := d.FindPaperByDOI("10.1000/xyz")
	if err != nil {
		t.Fatalf("FindPaperByDOI: %v", err)
	}
	if got == nil {
		t.Fatal("paper not found by DOI")
	}
	if got.ID != p.ID {
		t.Errorf("id = %s, want %s", got.ID, p.ID)
	}
	if got.PubDate == nil || !got.PubDate.Equal(pub) {
		t.Errorf("pub date = %v, want %v", got.PubDate, pub)
	}
	if got.AbstractSimHash == nil || *got.AbstractSimHash != hash {
		t.Errorf("simhash = %v, want %d", got.AbstractSimHash, hash)
	}
	if len(got.Authors) != 1 || got.Authors[0].Family != "Smith" {
		t.Errorf("authors = %v", got.Authors)
	}
}

func TestInsertPaperAtomicWithChunks(t *testing.T) {
	d := openTestDB(t)

	p := &Paper{Title: "chunked paper", Source: "pubmed"}
	p.ID = uuid.New()
	chunks := []Chunk{
		{PaperID: p.ID, ChunkIndex: 0, SectionType: "abstract", Content: "abstract text", TokenCount: 2},
		{PaperID: p.ID, ChunkIndex: 1, SectionType: "methods", Content: "methods text", TokenCount: 2},
	}
	if err := d.InsertPaper(p, chunks); err != nil {
		t.Fatalf("InsertPaper: %v", err)
	}

	got, err := d.ListChunksByPaper(p.ID)
	if err != nil {
		t.Fatalf("ListChunksByPaper: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].ChunkIndex != 0 || got[1].ChunkIndex != 1 {
		t.Errorf("chunks out of order: %v", got)
	}

	hits, err := d.SearchLexical("methods", 10)
	if err != nil {
		t.Fatalf("SearchLexical: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d lexical hits, want 1", len(hits))
	}
	if hits[0].ChunkID != got[1].ID {
		t.Errorf("hit chunk = %s, want %s", hits[0].ChunkID, got[1].ID)
	}
}

func TestInsertPaperDuplicateDOI(t *testing.T) {
	d := openTestDB(t)

	if err := d.InsertPaper(&Paper{DOI: "10.1/a", Title: "one", Source: "pubmed"}, nil); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := d.InsertPaper(&Paper{DOI: "10.1/a", Title: "two", Source: "crossref"}, nil)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate DOI error = %v, want ErrDuplicate", err)
	}
}

func TestMergePaperIDs(t *testing.T) {
	d := openTestDB(t)

	p := &Paper{DOI: "10.1/merge", Title: "merge target", Source: "biorxiv"}
	if err := d.InsertPaper(p, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	citations := int64(42)
	err := d.MergePaperIDs(p.ID, &Paper{PMID: "999", OAURL: "https://x/pdf", CitationCount: &citations})
	if err != nil {
		t.Fatalf("MergePaperIDs: %v", err)
	}

	got, err := d.GetPaper(p.ID)
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if got.PMID != "999" {
		t.Errorf("PMID = %q, want 999", got.PMID)
	}
	if got.DOI != "10.1/merge" {
		t.Errorf("DOI overwritten: %q", got.DOI)
	}
	if got.CitationCount == nil || *got.CitationCount != 42 {
		t.Errorf("citation count = %v, want 42", got.CitationCount)
	}
}

func TestChunkEmbeddingRoundTrip(t *testing.T) {
	d := openTestDB(t)

	p := &Paper{Title: "vectors", Source: "pubmed"}
	p.ID = uuid.New()
	chunks := []Chunk{{PaperID: p.ID, ChunkIndex: 0, SectionType: "abstract", Content: "text", TokenCount: 1}}
	if err := d.InsertPaper(p, chunks); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := d.ListChunksPendingEmbedding(10)
	if err != nil {
		t.Fatalf("ListChunksPendingEmbedding: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending chunks, want 1", len(pending))
	}

	vec := []float32{0.1, -0.5, 2.25}
	if err := d.UpdateChunkEmbedding(pending[0].ID, vec); err != nil {
		t.Fatalf("UpdateChunkEmbedding: %v", err)
	}

	got, err := d.GetChunk(pending[0].ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if len(got.Embedding) != 3 {
		t.Fatalf("embedding length = %d", len(got.Embedding))
	}
	for i := range vec {
		if got.Embedding[i] != vec[i] {
			t.Errorf("embedding[%d] = %f, want %f", i, got.Embedding[i], vec[i])
		}
	}

	pending, err = d.ListChunksPendingEmbedding(10)
	if err != nil {
		t.Fatalf("second ListChunksPendingEmbedding: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("still %d pending after embedding", len(pending))
	}
}

func TestUpsertEntityMerges(t *testing.T) {
	d := openTestDB(t)

	id1, err := d.UpsertEntity(&EntityRow{
		CanonicalID: "HGNC:6407", EntityType: "gene", Name: "KRAS",
		Aliases: []string{"KRAS2"}, ExternalIDs: map[string]string{"ensembl": "ENSG00000133703"},
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	id2, err := d.UpsertEntity(&EntityRow{
		CanonicalID: "HGNC:6407", EntityType: "gene", Name: "KRAS",
		Aliases: []string{"KRAS2", "KI-RAS"}, ExternalIDs: map[string]string{"uniprot": "P01116"},
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("upsert created a second row: %s vs %s", id1, id2)
	}

	rows, err := d.ListEntities("gene")
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d entities, want 1", len(rows))
	}
	e := rows[0]
	if len(e.Aliases) != 2 {
		t.Errorf("aliases = %v, want merged pair", e.Aliases)
	}
	if e.ExternalIDs["ensembl"] == "" || e.ExternalIDs["uniprot"] == "" {
		t.Errorf("external ids not merged: %v", e.ExternalIDs)
	}
}

func TestFactSupersession(t *testing.T) {
	d := openTestDB(t)

	f := &Fact{
		SubjectID: "HGNC:6407", Predicate: "dependency_of", ObjectID: "PAAD",
		Confidence: 0.8, EvidenceType: "experimental_in_vivo", EvidenceWeight: 1.0,
		SourcePMID: "111",
	}
	if err := d.InsertFact(f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}

	active, err := d.ActiveFacts("HGNC:6407", "dependency_of", "PAAD")
	if err != nil {
		t.Fatalf("ActiveFacts: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active facts, want 1", len(active))
	}

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := d.SupersedeFacts([]uuid.UUID{f.ID}, at); err != nil {
		t.Fatalf("SupersedeFacts: %v", err)
	}

	active, err = d.ActiveFacts("HGNC:6407", "dependency_of", "PAAD")
	if err != nil {
		t.Fatalf("second ActiveFacts: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("superseded fact still active")
	}

	got, err := d.GetFact(f.ID)
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if got.ValidUntil == nil || !got.ValidUntil.Equal(at) {
		t.Errorf("valid_until = %v, want %v", got.ValidUntil, at)
	}

	// Closing an already closed fact violates the write-once rule.
	err = d.SupersedeFacts([]uuid.UUID{f.ID}, at.Add(time.Hour))
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("double supersede error = %v, want ErrInvariant", err)
	}
}

func TestInsertFactRejectsPreclosed(t *testing.T) {
	d := openTestDB(t)
	until := time.Now()
	err := d.InsertFact(&Fact{
		SubjectID: "a", Predicate: "p", ObjectID: "b",
		Confidence: 0.5, EvidenceType: "text_mined", EvidenceWeight: 0.3,
		ValidUntil: &until,
	})
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("error = %v, want ErrInvariant", err)
	}
}

func TestScoreVersioning(t *testing.T) {
	d := openTestDB(t)

	mk := func() *TargetScore {
		return &TargetScore{
			GeneID: "HGNC:6407", CancerID: "PAAD",
			Composite: 0.7, ConfAdjusted: 0.65,
			Components: map[string]float64{"dependency": 0.9},
			Weights:    map[string]float64{"dependency": 0.2},
			Penalty:    0, ShortlistTier: TierPrimary,
		}
	}

	s1 := mk()
	if err := d.InsertScore(s1); err != nil {
		t.Fatalf("first InsertScore: %v", err)
	}
	if s1.ScoreVersion != 1 {
		t.Errorf("first version = %d, want 1", s1.ScoreVersion)
	}

	s2 := mk()
	s2.ConfAdjusted = 0.70
	if err := d.InsertScore(s2); err != nil {
		t.Fatalf("second InsertScore: %v", err)
	}
	if s2.ScoreVersion != 2 {
		t.Errorf("second version = %d, want 2", s2.ScoreVersion)
	}

	cur, err := d.CurrentScore("HGNC:6407", "PAAD")
	if err != nil {
		t.Fatalf("CurrentScore: %v", err)
	}
	if cur == nil || cur.ScoreVersion != 2 {
		t.Fatalf("current = %+v, want version 2", cur)
	}
	if cur.ConfAdjusted != 0.70 {
		t.Errorf("ConfAdjusted = %f", cur.ConfAdjusted)
	}

	hist, err := d.ScoreHistory("HGNC:6407", "PAAD")
	if err != nil {
		t.Fatalf("ScoreHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].IsCurrent {
		t.Error("old version still marked current")
	}

	// Explicit out-of-sequence version is refused.
	s3 := mk()
	s3.ScoreVersion = 5
	if err := d.InsertScore(s3); !errors.Is(err, ErrInvariant) {
		t.Errorf("out-of-sequence insert error = %v, want ErrInvariant", err)
	}
}

func TestWeightUpdateLifecycle(t *testing.T) {
	d := openTestDB(t)

	w := &WeightUpdate{
		Previous:      map[string]float64{"dependency": 0.20},
		Proposed:      map[string]float64{"dependency": 0.22},
		TriggerReason: "recall_at_20 below threshold",
		Algorithm:     "bounded_gradient",
		DeltaSummary:  "dependency +0.02",
	}
	if err := d.InsertWeightUpdate(w); err != nil {
		t.Fatalf("InsertWeightUpdate: %v", err)
	}

	// Pending proposals do not change the live weights.
	cur, err := d.CurrentWeights()
	if err != nil {
		t.Fatalf("CurrentWeights: %v", err)
	}
	if cur != nil {
		t.Errorf("weights live before approval: %v", cur)
	}

	pending, err := d.ListWeightUpdates(true)
	if err != nil {
		t.Fatalf("ListWeightUpdates: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if err := d.ApplyWeightUpdate(w.ID, "reviewer@example.org"); err != nil {
		t.Fatalf("ApplyWeightUpdate: %v", err)
	}

	cur, err = d.CurrentWeights()
	if err != nil {
		t.Fatalf("second CurrentWeights: %v", err)
	}
	if cur["dependency"] != 0.22 {
		t.Errorf("applied weights = %v", cur)
	}

	if err := d.ApplyWeightUpdate(w.ID, "other"); !errors.Is(err, ErrInvariant) {
		t.Errorf("double apply error = %v, want ErrInvariant", err)
	}
}

func TestReplaceEvidenceIdempotent(t *testing.T) {
	d := openTestDB(t)

	rows := []DependencyRow{
		{GeneID: "HGNC:6407", CancerCode: "PAAD", CellLine: "MIAPACA2", CERES: -1.8},
		{GeneID: "HGNC:6407", CancerCode: "PAAD", CellLine: "PANC1", CERES: -1.5},
	}
	if err := d.ReplaceDependencies(rows, "depmap", "24Q4"); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := d.ReplaceDependencies(rows, "depmap", "24Q4"); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := d.DependenciesForGene("HGNC:6407", "PAAD")
	if err != nil {
		t.Fatalf("DependenciesForGene: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d rows after double sync, want 2", len(got))
	}

	run, err := d.LatestAdapterRun("depmap")
	if err != nil {
		t.Fatalf("LatestAdapterRun: %v", err)
	}
	if run == nil || run.Version != "24Q4" || run.RowCount != 2 {
		t.Errorf("run = %+v", run)
	}
}

func TestStructureNullsStayNull(t *testing.T) {
	d := openTestDB(t)

	err := d.ReplaceStructures([]StructureRow{{GeneID: "HGNC:6407", PDBCount: 0}}, "pdb", "v1")
	if err != nil {
		t.Fatalf("ReplaceStructures: %v", err)
	}

	got, err := d.StructureFor("HGNC:6407")
	if err != nil {
		t.Fatalf("StructureFor: %v", err)
	}
	if got.PredictedPLDDT != nil {
		t.Errorf("missing pLDDT materialized as %v", *got.PredictedPLDDT)
	}
	if got.PocketDruggability != nil {
		t.Errorf("missing druggability materialized as %v", *got.PocketDruggability)
	}
}

func TestMentionsRoundTrip(t *testing.T) {
	d := openTestDB(t)

	p := &Paper{Title: "mentions", Source: "pubmed"}
	p.ID = uuid.New()
	chunks := []Chunk{{PaperID: p.ID, ChunkIndex: 0, SectionType: "abstract", Content: "KRAS G12D in PDAC", TokenCount: 4}}
	if err := d.InsertPaper(p, chunks); err != nil {
		t.Fatalf("insert paper: %v", err)
	}
	stored, err := d.ListChunksByPaper(p.ID)
	if err != nil {
		t.Fatalf("ListChunksByPaper: %v", err)
	}

	mentions := []Mention{
		{ChunkID: stored[0].ID, MentionText: "KRAS", StartOffset: 0, EndOffset: 4,
			EntityType: "gene", NormalizedID: "HGNC:6407", NormalizationSource: "hgnc",
			Confidence: 0.95, Extractor: "dictionary"},
		{ChunkID: stored[0].ID, MentionText: "G12D", StartOffset: 5, EndOffset: 9,
			EntityType: "mutation", Confidence: 0.8, Extractor: "dictionary"},
	}
	if err := d.InsertMentions(mentions); err != nil {
		t.Fatalf("InsertMentions: %v", err)
	}

	got, err := d.ListMentionsByChunk(stored[0].ID)
	if err != nil {
		t.Fatalf("ListMentionsByChunk: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d mentions, want 2", len(got))
	}
	// Failed normalization keeps the raw text with an empty normalized id.
	if got[1].NormalizedID != "" {
		t.Errorf("unnormalized mention has id %q", got[1].NormalizedID)
	}
}

func TestConflictLifecycle(t *testing.T) {
	d := openTestDB(t)

	a := &Fact{SubjectID: "g", Predicate: "dependency_of", ObjectID: "c",
		Confidence: 0.8, EvidenceType: "experimental_in_vivo", EvidenceWeight: 1.0}
	b := &Fact{SubjectID: "g", Predicate: "dependency_of", ObjectID: "c",
		Confidence: 0.75, EvidenceType: "experimental_in_vitro", EvidenceWeight: 0.85}
	if err := d.InsertFact(a); err != nil {
		t.Fatal(err)
	}
	if err := d.InsertFact(b); err != nil {
		t.Fatal(err)
	}

	c := &Conflict{FactAID: a.ID, FactBID: b.ID, ConflictType: "directional", NetConfidence: 0.1}
	if err := d.InsertConflict(c); err != nil {
		t.Fatalf("InsertConflict: %v", err)
	}

	open, err := d.ListConflicts(ResolutionUnresolved)
	if err != nil {
		t.Fatalf("ListConflicts: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open conflicts = %d, want 1", len(open))
	}

	if err := d.UpdateConflictResolution(c.ID, ResolutionManualReview); err != nil {
		t.Fatalf("UpdateConflictResolution: %v", err)
	}
	open, err = d.ListConflicts(ResolutionUnresolved)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Error("conflict still unresolved after update")
	}
}

func TestAuditLog(t *testing.T) {
	d := openTestDB(t)

	id := uuid.New()
	if err := d.Audit(AuditPaperIngested, &id, "pubmed", "tier=1"); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if err := d.Audit(AuditRetraction, nil, "", "pmid=42"); err != nil {
		t.Fatalf("Audit retraction: %v", err)
	}

	got, err := d.ListAudit(AuditPaperIngested, 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if got[0].PaperID == nil || *got[0].PaperID != id {
		t.Errorf("paper id = %v, want %s", got[0].PaperID, id)
	}
}
