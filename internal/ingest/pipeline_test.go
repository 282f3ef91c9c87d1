package ingest

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oncoscout/oncoscout/internal/embedding"
	"github.com/oncoscout/oncoscout/internal/storage"
)

type fakeSource struct {
	name    string
	records []Record
	err     error
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Search(_ context.Context, _ string, _ int, _ int) ([]Record, error) {
	return s.records, s.err
}

type fakeExtractor struct{ perChunk int }

func (e *fakeExtractor) ExtractChunk(chunk *storage.Chunk) []storage.Mention {
	out := make([]storage.Mention, e.perChunk)
	for i := range out {
		out[i] = storage.Mention{
			ID:          uuid.New(),
			ChunkID:     chunk.ID,
			MentionText: "KRAS",
			EntityType:  "gene",
			Confidence:  0.9,
			Extractor:   "fake",
		}
	}
	return out
}

type fakeEmbedder struct {
	db *storage.DB
}

func (e *fakeEmbedder) EmbedPending(_ context.Context) (embedding.BatchStats, error) {
	chunks, err := e.db.ListChunksPendingEmbedding(1000)
	if err != nil {
		return embedding.BatchStats{}, err
	}
	for i := range chunks {
		if err := e.db.UpdateChunkEmbedding(chunks[i].ID, []float32{1, 0, 0}); err != nil {
			return embedding.BatchStats{}, err
		}
	}
	return embedding.BatchStats{Embedded: len(chunks)}, nil
}

func newTestPipeline(t *testing.T, srcs []Searcher, opts ...PipelineOption) (*Pipeline, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, tree := testCatalog()
	chunker := newTestChunker(t)
	logger := log.New(io.Discard)

	return NewPipeline(db, c, tree, srcs, NewFetcher(nil), chunker, logger, opts...), db
}

func TestDiscoverAbstractOnly(t *testing.T) {
	src := &fakeSource{name: "pubmed", records: []Record{
		{DOI: "10.1/a", Title: "Paper A", Abstract: "KRAS dependency in PDAC.", Source: SourcePubMed},
		{DOI: "10.1/b", Title: "Paper B", Abstract: "MAPK signaling downstream of KRAS.", Source: SourcePubMed},
	}}
	p, db := newTestPipeline(t, []Searcher{src})

	run, err := p.Discover(context.Background(), &Request{Gene: "KRAS", CancerType: "PAAD"})
	require.NoError(t, err)
	require.Equal(t, StageComplete, run.Stage)
	require.Equal(t, 2, run.Found)
	require.Equal(t, 2, run.New)
	require.Zero(t, run.Duplicates)
	require.False(t, run.FinishedAt.IsZero())

	paper, err := db.FindPaperByDOI("10.1/a")
	require.NoError(t, err)
	require.NotNil(t, paper)
	require.Equal(t, TierAbstract, paper.RetrievalTier)

	chunks, err := db.ListChunksByPaper(paper.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, SectionAbstract, chunks[0].SectionType)
}

func TestDiscoverDeduplicatesAcrossSources(t *testing.T) {
	pubmed := &fakeSource{name: "pubmed", records: []Record{
		{DOI: "10.1/same", PMID: "111", Title: "Shared paper", Abstract: "KRAS dependency in PDAC.", Source: SourcePubMed},
	}}
	epmc := &fakeSource{name: "europepmc", records: []Record{
		{DOI: "https://doi.org/10.1/SAME", Title: "Shared paper", Abstract: "KRAS dependency in PDAC.", Source: SourceEuropePMC},
	}}
	p, db := newTestPipeline(t, []Searcher{pubmed, epmc})

	run, err := p.Discover(context.Background(), &Request{Gene: "KRAS", CancerType: "PAAD"})
	require.NoError(t, err)
	require.Equal(t, 2, run.Found)
	require.Equal(t, 1, run.New)
	require.Equal(t, 1, run.Duplicates)

	// The canonical record came from the higher-priority source.
	n, err := db.CountPapers()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	paper, err := db.FindPaperByDOI("10.1/same")
	require.NoError(t, err)
	require.NotNil(t, paper)
	require.Equal(t, SourcePubMed, paper.Source)
	require.Equal(t, "111", paper.PMID)
}

func TestDiscoverFailingSourceSkipped(t *testing.T) {
	good := &fakeSource{name: "pubmed", records: []Record{
		{DOI: "10.1/ok", Title: "Fine", Abstract: "KRAS.", Source: SourcePubMed},
	}}
	bad := &fakeSource{name: "crossref", err: errors.New("upstream down")}
	p, _ := newTestPipeline(t, []Searcher{good, bad})

	run, err := p.Discover(context.Background(), &Request{Gene: "KRAS", CancerType: "PAAD"})
	require.NoError(t, err)
	require.Equal(t, StageComplete, run.Stage)
	require.Equal(t, 1, run.New)
}

func TestDiscoverRecordWithoutTextCountsFailed(t *testing.T) {
	src := &fakeSource{name: "pubmed", records: []Record{
		{DOI: "10.1/empty", Title: "No text at all", Source: SourcePubMed},
	}}
	p, db := newTestPipeline(t, []Searcher{src})

	run, err := p.Discover(context.Background(), &Request{Gene: "KRAS", CancerType: "PAAD"})
	require.NoError(t, err)
	require.Equal(t, 1, run.Failed)
	require.Zero(t, run.New)

	n, err := db.CountPapers()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDiscoverEmbedAndExtractStages(t *testing.T) {
	src := &fakeSource{name: "pubmed", records: []Record{
		{DOI: "10.1/x", Title: "Paper", Abstract: "KRAS dependency in PDAC.", Source: SourcePubMed},
	}}

	emb := &fakeEmbedder{}
	p, db := newTestPipeline(t, []Searcher{src},
		WithEmbedder(emb), WithExtractor(&fakeExtractor{perChunk: 2}))
	emb.db = db

	run, err := p.Discover(context.Background(), &Request{Gene: "KRAS", CancerType: "PAAD"})
	require.NoError(t, err)
	require.Equal(t, 1, run.Embedded)
	require.Equal(t, 2, run.Mentions)

	pending, err := db.ListChunksPendingEmbedding(10)
	require.NoError(t, err)
	require.Empty(t, pending)

	// A second run must not re-extract chunks that already have mentions.
	run2, err := p.Discover(context.Background(), &Request{Gene: "KRAS", CancerType: "PAAD"})
	require.NoError(t, err)
	require.Zero(t, run2.Mentions)
}

func TestDiscoverMaxPapersTruncates(t *testing.T) {
	var records []Record
	for _, d := range []string{"10.1/1", "10.1/2", "10.1/3"} {
		records = append(records, Record{DOI: d, Title: d, Abstract: "KRAS.", Source: SourcePubMed})
	}
	p, _ := newTestPipeline(t, []Searcher{&fakeSource{name: "pubmed", records: records}})

	run, err := p.Discover(context.Background(), &Request{Gene: "KRAS", CancerType: "PAAD", MaxPapers: 2})
	require.NoError(t, err)
	require.Equal(t, 2, run.Found)
	require.Equal(t, 2, run.New)
}

func TestDiscoverSourceSubset(t *testing.T) {
	pubmed := &fakeSource{name: "pubmed", records: []Record{
		{DOI: "10.1/pm", Title: "From PubMed", Abstract: "KRAS.", Source: SourcePubMed},
	}}
	epmc := &fakeSource{name: "europepmc", records: []Record{
		{DOI: "10.1/ep", Title: "From Europe PMC", Abstract: "KRAS.", Source: SourceEuropePMC},
	}}
	p, db := newTestPipeline(t, []Searcher{pubmed, epmc})

	run, err := p.Discover(context.Background(), &Request{
		Gene:       "KRAS",
		CancerType: "PAAD",
		Sources:    []string{"pubmed"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, run.Found)

	paper, err := db.FindPaperByDOI("10.1/ep")
	require.NoError(t, err)
	require.Nil(t, paper)
}

func TestDiscoverYearWindow(t *testing.T) {
	date := func(year int) *time.Time {
		d := time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC)
		return &d
	}
	src := &fakeSource{name: "pubmed", records: []Record{
		{DOI: "10.1/old", Title: "Old", Abstract: "KRAS.", Source: SourcePubMed, PubDate: date(2018)},
		{DOI: "10.1/new", Title: "New", Abstract: "KRAS.", Source: SourcePubMed, PubDate: date(2024)},
		{DOI: "10.1/undated", Title: "Undated", Abstract: "KRAS.", Source: SourcePubMed},
	}}
	p, db := newTestPipeline(t, []Searcher{src})

	run, err := p.Discover(context.Background(), &Request{
		Gene:       "KRAS",
		CancerType: "PAAD",
		ToYear:     2020,
	})
	require.NoError(t, err)
	require.Equal(t, 2, run.Found)

	paper, err := db.FindPaperByDOI("10.1/new")
	require.NoError(t, err)
	require.Nil(t, paper)

	// Records without a publication date survive the cutoff.
	paper, err = db.FindPaperByDOI("10.1/undated")
	require.NoError(t, err)
	require.NotNil(t, paper)
}

func TestAdvanceStageOnce(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	p.current = &Run{Stage: StageUpsert}

	p.advanceStage(StageUpsert, StageChunk)
	require.Equal(t, StageChunk, p.current.Stage)

	// A second worker hitting the same boundary is a no-op.
	p.advanceStage(StageUpsert, StageChunk)
	require.Equal(t, StageChunk, p.current.Stage)

	// Later stages are never rewound.
	p.current.Stage = StageEmbed
	p.advanceStage(StageUpsert, StageChunk)
	require.Equal(t, StageEmbed, p.current.Stage)
}

func TestCurrentNilWhenIdle(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	require.Nil(t, p.Current())
}
