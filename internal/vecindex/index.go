// Package vecindex provides chunk-level vector search over a gob-persisted
// in-memory index. The corpus is small enough that exact brute-force cosine
// scan beats the operational cost of an approximate index.
package vecindex

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Errors returned by index operations.
var (
	ErrIndexNotFound      = errors.New("vector index not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrUnsupportedVersion = errors.New("unsupported index version")
)

// CurrentVersion is the on-disk format version. Bump on breaking changes.
const CurrentVersion = 1

// FileName is the index file name inside the cache directory.
const FileName = "vectors.gob"

// entry pairs a chunk's embedding with its owning paper.
type entry struct {
	PaperID   string
	Embedding []float32
}

// snapshot is the gob-encoded on-disk form.
type snapshot struct {
	Version    int
	ModelName  string
	Dimensions int
	CreatedAt  time.Time
	Entries    map[string]entry
}

// Index holds chunk embeddings keyed by chunk id. Safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	modelName  string
	dimensions int
	createdAt  time.Time
	entries    map[string]entry
}

// Hit is one vector search result.
type Hit struct {
	ChunkID    string  `json:"chunk_id"`
	PaperID    string  `json:"paper_id"`
	Similarity float32 `json:"similarity"`
}

// Stats summarizes the index for status output.
type Stats struct {
	ModelName  string    `json:"model_name"`
	Dimensions int       `json:"dimensions"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// New creates an empty index for the given model and dimensionality.
func New(modelName string, dimensions int) *Index {
	return &Index{
		modelName:  modelName,
		dimensions: dimensions,
		createdAt:  time.Now().UTC(),
		entries:    make(map[string]entry),
	}
}

// Path returns the index file location under the cache directory.
func Path(cacheDir string) string {
	return filepath.Join(cacheDir, FileName)
}

// Add inserts or replaces a chunk's embedding.
func (idx *Index) Add(chunkID, paperID string, embedding []float32) error {
	if len(embedding) != idx.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), idx.dimensions)
	}
	idx.mu.Lock()
	idx.entries[chunkID] = entry{PaperID: paperID, Embedding: embedding}
	idx.mu.Unlock()
	return nil
}

// Remove drops all chunks belonging to a paper, for dedup merges and
// retractions.
func (idx *Index) Remove(paperID string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for id, e := range idx.entries {
		if e.PaperID == paperID {
			delete(idx.entries, id)
			n++
		}
	}
	return n
}

// Has reports whether a chunk is indexed.
func (idx *Index) Has(chunkID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.entries[chunkID]
	return ok
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Stats returns index metadata.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		ModelName:  idx.modelName,
		Dimensions: idx.dimensions,
		ChunkCount: len(idx.entries),
		CreatedAt:  idx.createdAt,
	}
}

// Search returns up to limit chunks by cosine similarity to the query,
// best first, dropping hits below threshold.
func (idx *Index) Search(query []float32, limit int, threshold float32) []Hit {
	if len(query) != idx.dimensions {
		return nil
	}

	idx.mu.RLock()
	hits := make([]Hit, 0, len(idx.entries))
	for chunkID, e := range idx.entries {
		sim := Cosine(query, e.Embedding)
		if sim >= threshold {
			hits = append(hits, Hit{ChunkID: chunkID, PaperID: e.PaperID, Similarity: sim})
		}
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Cosine computes cosine similarity in [-1, 1]. Mismatched or zero vectors
// score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	return dot / denom
}

// Save writes the index atomically: temp file then rename.
func (idx *Index) Save(cacheDir string) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	idx.mu.RLock()
	snap := snapshot{
		Version:    CurrentVersion,
		ModelName:  idx.modelName,
		Dimensions: idx.dimensions,
		CreatedAt:  idx.createdAt,
		Entries:    idx.entries,
	}
	idx.mu.RUnlock()

	path := Path(cacheDir)
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replacing index file: %w", err)
	}
	return nil
}

// Load reads an index from the cache directory.
func Load(cacheDir string) (*Index, error) {
	f, err := os.Open(Path(cacheDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	if snap.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, snap.Version, CurrentVersion)
	}
	if snap.Entries == nil {
		snap.Entries = make(map[string]entry)
	}

	return &Index{
		modelName:  snap.ModelName,
		dimensions: snap.Dimensions,
		createdAt:  snap.CreatedAt,
		entries:    snap.Entries,
	}, nil
}
