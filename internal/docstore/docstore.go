// Package docstore answers text queries over the ingested corpus with
// hybrid retrieval: dense vector search and BM25 full-text search fused by
// reciprocal rank.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/oncoscout/oncoscout/internal/embedding"
	"github.com/oncoscout/oncoscout/internal/storage"
	"github.com/oncoscout/oncoscout/internal/vecindex"
)

// Fusion parameters. Both retrieval arms rank independently; the fused score
// of a chunk is the weighted sum of 1/(k+rank) over the arms that found it.
const (
	RRFK          = 60
	VectorWeight  = 0.7
	LexicalWeight = 0.3
)

// DefaultLimit bounds a search when the caller does not.
const DefaultLimit = 10

// candidateFactor widens each arm beyond the final limit so fusion has
// overlap to work with.
const candidateFactor = 4

// excerptRadius is how many characters of context surround the first query
// term hit in an excerpt.
const excerptRadius = 160

// Store runs hybrid search over stored chunks.
type Store struct {
	db       *storage.DB
	index    *vecindex.Index
	provider embedding.Provider
}

// Result is one fused search hit with enough paper context to cite it.
type Result struct {
	ChunkID     uuid.UUID `json:"chunk_id"`
	PaperID     uuid.UUID `json:"paper_id"`
	Title       string    `json:"title"`
	DOI         string    `json:"doi,omitempty"`
	PMID        string    `json:"pmid,omitempty"`
	SectionType string    `json:"section_type"`
	Excerpt     string    `json:"excerpt"`
	Score       float64   `json:"score"`
	VectorRank  int       `json:"vector_rank,omitempty"`
	LexicalRank int       `json:"lexical_rank,omitempty"`
}

// New creates a Store. index and provider may be nil, which degrades search
// to the lexical arm alone.
func New(db *storage.DB, index *vecindex.Index, provider embedding.Provider) *Store {
	return &Store{db: db, index: index, provider: provider}
}

// Search returns up to limit chunks ranked by reciprocal rank fusion of the
// vector and lexical arms. A failing embedding provider degrades to lexical
// search instead of erroring.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	wide := limit * candidateFactor

	var vecHits []vecindex.Hit
	if s.index != nil && s.provider != nil {
		vectors, err := s.provider.Embed(ctx, []string{query})
		if err == nil && len(vectors) == 1 {
			vecHits = s.index.Search(vectors[0], wide, 0)
		}
	}

	lexHits, err := s.db.SearchLexical(query, wide)
	if err != nil {
		return nil, fmt.Errorf("lexical arm: %w", err)
	}

	fused := fuse(vecHits, lexHits)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	return s.hydrate(query, fused)
}

type fusedHit struct {
	chunkID     uuid.UUID
	score       float64
	vectorRank  int
	lexicalRank int
}

// fuse combines both arms by reciprocal rank. Ranks are 1-based; a chunk
// absent from an arm contributes nothing for that arm.
func fuse(vecHits []vecindex.Hit, lexHits []storage.LexicalHit) []fusedHit {
	byChunk := make(map[uuid.UUID]*fusedHit)

	get := func(id uuid.UUID) *fusedHit {
		if h, ok := byChunk[id]; ok {
			return h
		}
		h := &fusedHit{chunkID: id}
		byChunk[id] = h
		return h
	}

	for i, hit := range vecHits {
		id, err := uuid.Parse(hit.ChunkID)
		if err != nil {
			continue
		}
		h := get(id)
		h.vectorRank = i + 1
		h.score += VectorWeight / float64(RRFK+i+1)
	}
	for i, hit := range lexHits {
		h := get(hit.ChunkID)
		h.lexicalRank = i + 1
		h.score += LexicalWeight / float64(RRFK+i+1)
	}

	out := make([]fusedHit, 0, len(byChunk))
	for _, h := range byChunk {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].chunkID.String() < out[j].chunkID.String()
	})
	return out
}

// hydrate loads chunk and paper rows for the fused hits and builds excerpts.
// Chunks deleted since the index was built are skipped.
func (s *Store) hydrate(query string, hits []fusedHit) ([]Result, error) {
	results := make([]Result, 0, len(hits))
	papers := make(map[uuid.UUID]*storage.Paper)

	for _, h := range hits {
		chunk, err := s.db.GetChunk(h.chunkID)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}

		paper, ok := papers[chunk.PaperID]
		if !ok {
			paper, err = s.db.GetPaper(chunk.PaperID)
			if err != nil {
				return nil, err
			}
			papers[chunk.PaperID] = paper
		}

		r := Result{
			ChunkID:     chunk.ID,
			PaperID:     chunk.PaperID,
			SectionType: chunk.SectionType,
			Excerpt:     Excerpt(chunk.Content, query),
			Score:       h.score,
			VectorRank:  h.vectorRank,
			LexicalRank: h.lexicalRank,
		}
		if paper != nil {
			r.Title = paper.Title
			r.DOI = paper.DOI
			r.PMID = paper.PMID
		}
		results = append(results, r)
	}
	return results, nil
}

// Excerpt returns a window of content centered on the first query term hit,
// or the head of the content when no term matches.
func Excerpt(content, query string) string {
	lower := strings.ToLower(content)
	pos := -1
	for _, term := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if i := strings.Index(lower, term); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - excerptRadius
	if start < 0 {
		start = 0
	}
	end := pos + excerptRadius
	if end > len(content) {
		end = len(content)
	}

	// Snap to rune boundaries so the window never splits a UTF-8 sequence.
	for start > 0 && !utf8Start(content[start]) {
		start--
	}
	for end < len(content) && !utf8Start(content[end]) {
		end++
	}

	excerpt := strings.TrimSpace(content[start:end])
	if start > 0 {
		excerpt = "…" + excerpt
	}
	if end < len(content) {
		excerpt += "…"
	}
	return excerpt
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
