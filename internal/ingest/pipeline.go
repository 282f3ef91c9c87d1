package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oncoscout/oncoscout/internal/catalog"
	"github.com/oncoscout/oncoscout/internal/embedding"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// Run stages, in order.
const (
	StageSearch   = "search"
	StageUpsert   = "upsert"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageNER      = "ner"
	StageComplete = "complete"
	StageError    = "error"
)

// Searcher is one discovery source. Satisfied by the clients in the sources
// package; declared here so the pipeline does not import them.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, limit, fromYear int) ([]Record, error)
}

// Embedder embeds pending chunks after insert.
type Embedder interface {
	EmbedPending(ctx context.Context) (embedding.BatchStats, error)
}

// Extractor finds entity mentions in a chunk.
type Extractor interface {
	ExtractChunk(chunk *storage.Chunk) []storage.Mention
}

// Run tracks one discovery execution.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Request    Request   `json:"request"`
	Stage      string    `json:"stage"`
	Found      int       `json:"found"`
	New        int       `json:"new"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	Embedded   int       `json:"embedded"`
	Mentions   int       `json:"mentions"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Pipeline runs discovery end to end: expand, search every source, dedup,
// fetch and parse, chunk, insert, embed, extract.
type Pipeline struct {
	db        *storage.DB
	catalog   *catalog.Catalog
	tree      *catalog.OncoTree
	sources   []Searcher
	fetcher   *Fetcher
	chunker   *Chunker
	deduper   *Deduper
	embedder  Embedder
	extractor Extractor
	parallel  int
	logger    *log.Logger

	mu      sync.Mutex
	current *Run
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithEmbedder sets the post-insert embedding stage.
func WithEmbedder(e Embedder) PipelineOption {
	return func(p *Pipeline) { p.embedder = e }
}

// WithExtractor sets the mention extraction stage.
func WithExtractor(e Extractor) PipelineOption {
	return func(p *Pipeline) { p.extractor = e }
}

// WithParallelism bounds concurrent fetch/parse work.
func WithParallelism(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallel = n
		}
	}
}

// NewPipeline assembles a discovery pipeline.
func NewPipeline(db *storage.DB, c *catalog.Catalog, tree *catalog.OncoTree,
	srcs []Searcher, fetcher *Fetcher, chunker *Chunker, logger *log.Logger,
	opts ...PipelineOption) *Pipeline {

	p := &Pipeline{
		db:       db,
		catalog:  c,
		tree:     tree,
		sources:  srcs,
		fetcher:  fetcher,
		chunker:  chunker,
		deduper:  NewDeduper(db),
		parallel: 4,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns a copy of the in-flight run, or nil when idle.
func (p *Pipeline) Current() *Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	r := *p.current
	return &r
}

func (p *Pipeline) setStage(stage string) {
	p.mu.Lock()
	p.current.Stage = stage
	p.mu.Unlock()
	p.logger.Info("pipeline stage", "stage", stage)
}

// advanceStage moves the run from one stage to the next exactly once.
// Workers race through ingestOne; only the first to reach the boundary
// reports the transition.
func (p *Pipeline) advanceStage(from, to string) {
	p.mu.Lock()
	if p.current == nil || p.current.Stage != from {
		p.mu.Unlock()
		return
	}
	p.current.Stage = to
	p.mu.Unlock()
	p.logger.Info("pipeline stage", "stage", to)
}

// Discover executes one discovery request and returns the finished run.
// Per-paper failures are counted and logged, not fatal; only stage-level
// failures abort the run.
func (p *Pipeline) Discover(ctx context.Context, req *Request) (*Run, error) {
	run := &Run{ID: uuid.New(), Request: *req, Stage: StageSearch, StartedAt: time.Now().UTC()}
	p.mu.Lock()
	p.current = run
	p.mu.Unlock()

	finish := func(err error) (*Run, error) {
		p.mu.Lock()
		run.FinishedAt = time.Now().UTC()
		if err != nil {
			run.Stage = StageError
			run.Error = err.Error()
		} else {
			run.Stage = StageComplete
		}
		out := *run
		p.current = nil
		p.mu.Unlock()
		return &out, err
	}

	if req.MaxPapers <= 0 {
		req.MaxPapers = DefaultMaxPapers
	}

	exp, err := Expand(p.catalog, p.tree, req)
	if err != nil {
		return finish(err)
	}

	records, err := p.search(ctx, exp, req)
	if err != nil {
		return finish(err)
	}
	p.mu.Lock()
	run.Found = len(records)
	p.mu.Unlock()

	p.setStage(StageUpsert)
	if err := p.upsert(ctx, run, records); err != nil {
		return finish(err)
	}

	if p.embedder != nil {
		p.setStage(StageEmbed)
		stats, err := p.embedder.EmbedPending(ctx)
		p.mu.Lock()
		run.Embedded = stats.Embedded
		p.mu.Unlock()
		if err != nil {
			// Chunks left unembedded stay queued for the next pass.
			p.logger.Warn("embedding incomplete", "embedded", stats.Embedded, "err", err)
		}
	}

	if p.extractor != nil {
		p.setStage(StageNER)
		if err := p.extract(ctx, run); err != nil {
			return finish(err)
		}
	}

	return finish(nil)
}

// search fans out over every source in parallel. A failing source is logged
// and skipped; discovery proceeds on the rest.
func (p *Pipeline) search(ctx context.Context, exp *Expansion, req *Request) ([]Record, error) {
	queries := exp.Queries()
	perSource := req.MaxPapers

	var mu sync.Mutex
	var all []Record

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range p.selectSources(req) {
		g.Go(func() error {
			for _, q := range queries {
				records, err := src.Search(gctx, q, perSource, req.FromYear)
				if err != nil {
					p.logger.Warn("source search failed", "source", src.Name(), "err", err)
					return nil
				}
				mu.Lock()
				all = append(all, records...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	all = filterByYear(all, req.ToYear)

	// Higher-priority sources first, so the canonical record for any
	// duplicate set comes from the best source.
	sort.SliceStable(all, func(i, j int) bool {
		return SourcePriority(all[i].Source) < SourcePriority(all[j].Source)
	})
	if len(all) > req.MaxPapers {
		all = all[:req.MaxPapers]
	}
	return all, nil
}

// selectSources narrows the registered sources to the request's set. An
// empty set means all; unknown names are ignored.
func (p *Pipeline) selectSources(req *Request) []Searcher {
	if len(req.Sources) == 0 {
		return p.sources
	}
	wanted := make(map[string]bool, len(req.Sources))
	for _, name := range req.Sources {
		wanted[name] = true
	}
	var out []Searcher
	for _, src := range p.sources {
		if wanted[src.Name()] {
			out = append(out, src)
		}
	}
	return out
}

// filterByYear drops records published after toYear. Records without a
// publication date are kept; the cutoff only excludes what it can prove.
func filterByYear(records []Record, toYear int) []Record {
	if toYear <= 0 {
		return records
	}
	out := records[:0]
	for _, rec := range records {
		if y := rec.Year(); y > 0 && y > toYear {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// upsert runs the dedup ladder and inserts new papers with their chunks.
// Fetch and parse fan out; inserts serialize through the database.
func (p *Pipeline) upsert(ctx context.Context, run *Run, records []Record) error {
	var dbMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)

	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			dbMu.Lock()
			existing, reason, err := p.deduper.Match(rec)
			if err != nil {
				dbMu.Unlock()
				return err
			}
			if existing != nil {
				err := p.deduper.Merge(existing, rec, reason)
				dbMu.Unlock()
				if err != nil {
					return err
				}
				p.mu.Lock()
				run.Duplicates++
				p.mu.Unlock()
				return nil
			}
			dbMu.Unlock()

			if err := p.ingestOne(gctx, rec, &dbMu); err != nil {
				p.logger.Warn("paper ingest failed", "title", rec.Title, "err", err)
				p.mu.Lock()
				run.Failed++
				p.mu.Unlock()
				return nil
			}
			p.mu.Lock()
			run.New++
			p.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) ingestOne(ctx context.Context, rec *Record, dbMu *sync.Mutex) error {
	doc, tier, err := p.fetcher.Fetch(ctx, rec)
	if err != nil {
		return fmt.Errorf("fetching text: %w", err)
	}

	p.advanceStage(StageUpsert, StageChunk)
	chunks := p.chunker.Chunk(doc)
	status := storage.ParseParsed
	if len(chunks) == 0 {
		status = storage.ParseFailed
	}

	paper := &storage.Paper{
		ID:            uuid.New(),
		DOI:           NormalizeDOI(rec.DOI),
		PMID:          rec.PMID,
		PMCID:         rec.PMCID,
		Title:         rec.Title,
		Abstract:      doc.Abstract,
		Authors:       rec.Authors,
		Journal:       rec.Journal,
		PubDate:       rec.PubDate,
		Source:        rec.Source,
		RetrievalTier: tier,
		ParseStatus:   status,
		OAURL:         rec.OAURL,
		CitationCount: rec.CitationCount,
		RawPayload:    rec.RawPayload,
	}
	if doc.Abstract != "" {
		hash := int64(SimHash(doc.Abstract))
		paper.AbstractSimHash = &hash
	}
	for i := range chunks {
		chunks[i].PaperID = paper.ID
	}

	dbMu.Lock()
	defer dbMu.Unlock()

	// The ladder ran before fetch; a racing worker may have inserted the
	// same paper meanwhile, which the unique indexes catch.
	if err := p.db.InsertPaper(paper, chunks); err != nil {
		return err
	}
	detail := fmt.Sprintf("tier=%d chunks=%d", tier, len(chunks))
	return p.db.Audit(storage.AuditPaperIngested, &paper.ID, rec.Source, detail)
}

// extract runs mention extraction over every chunk that has none yet.
func (p *Pipeline) extract(ctx context.Context, run *Run) error {
	papers, err := p.db.ListPapers()
	if err != nil {
		return err
	}
	for i := range papers {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunks, err := p.db.ListChunksByPaper(papers[i].ID)
		if err != nil {
			return err
		}
		for j := range chunks {
			existing, err := p.db.ListMentionsByChunk(chunks[j].ID)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				continue
			}
			mentions := p.extractor.ExtractChunk(&chunks[j])
			if err := p.db.InsertMentions(mentions); err != nil {
				return err
			}
			p.mu.Lock()
			run.Mentions += len(mentions)
			p.mu.Unlock()
		}
	}
	return nil
}
