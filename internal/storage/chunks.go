package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

const chunkFields = `id, paper_id, chunk_index, section_type, section_heading,
	content, token_count, page_number, embedding`

func insertChunkTx(tx *sql.Tx, c *Chunk) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := tx.Exec(`
		INSERT INTO chunks (`+chunkFields+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.PaperID.String(), c.ChunkIndex, c.SectionType,
		nullString(c.SectionHeading), c.Content, c.TokenCount,
		nullInt(c.PageNumber), encodeEmbedding(c.Embedding),
	)
	if err != nil {
		return fmt.Errorf("inserting chunk %d: %w", c.ChunkIndex, err)
	}

	_, err = tx.Exec(`INSERT INTO chunks_fts (chunk_id, paper_id, content) VALUES (?, ?, ?)`,
		c.ID.String(), c.PaperID.String(), c.Content)
	if err != nil {
		return fmt.Errorf("indexing chunk %d: %w", c.ChunkIndex, err)
	}
	return nil
}

// GetChunk retrieves a chunk by id. Returns nil when not found.
func (d *DB) GetChunk(id uuid.UUID) (*Chunk, error) {
	row := d.db.QueryRow(`SELECT `+chunkFields+` FROM chunks WHERE id = ?`, id.String())
	return scanChunk(row)
}

// ListChunksByPaper returns a paper's chunks in reading order.
func (d *DB) ListChunksByPaper(paperID uuid.UUID) ([]Chunk, error) {
	rows, err := d.db.Query(`
		SELECT `+chunkFields+` FROM chunks WHERE paper_id = ? ORDER BY chunk_index`,
		paperID.String())
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListChunksPendingEmbedding returns chunks without a stored vector, oldest
// papers first, up to limit. Used to resume after embedding failures.
func (d *DB) ListChunksPendingEmbedding(limit int) ([]Chunk, error) {
	rows, err := d.db.Query(`
		SELECT `+chunkFields+` FROM chunks c
		WHERE c.embedding IS NULL
		ORDER BY (SELECT ingested_at FROM papers WHERE id = c.paper_id), c.chunk_index
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// UpdateChunkEmbedding stores the vector for a chunk.
func (d *DB) UpdateChunkEmbedding(id uuid.UUID, embedding []float32) error {
	_, err := d.db.Exec(`UPDATE chunks SET embedding = ? WHERE id = ?`,
		encodeEmbedding(embedding), id.String())
	if err != nil {
		return fmt.Errorf("updating chunk embedding: %w", err)
	}
	return nil
}

// LexicalHit is one full-text match with its BM25 rank score.
type LexicalHit struct {
	ChunkID uuid.UUID
	PaperID uuid.UUID
	Score   float64
}

// SearchLexical runs a full-text query against the chunk index and returns
// up to limit hits ordered best first.
func (d *DB) SearchLexical(query string, limit int) ([]LexicalHit, error) {
	rows, err := d.db.Query(`
		SELECT chunk_id, paper_id, bm25(chunks_fts) FROM chunks_fts
		WHERE chunks_fts MATCH ? ORDER BY bm25(chunks_fts) LIMIT ?`,
		ftsQuote(query), limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var chunkStr, paperStr string
		var score float64
		if err := rows.Scan(&chunkStr, &paperStr, &score); err != nil {
			return nil, err
		}
		chunkID, err := uuid.Parse(chunkStr)
		if err != nil {
			return nil, fmt.Errorf("parsing chunk id: %w", err)
		}
		paperID, err := uuid.Parse(paperStr)
		if err != nil {
			return nil, fmt.Errorf("parsing paper id: %w", err)
		}
		// bm25() returns negative values with best matches most negative.
		hits = append(hits, LexicalHit{ChunkID: chunkID, PaperID: paperID, Score: -score})
	}
	return hits, rows.Err()
}

// CountChunks returns the total number of chunks.
func (d *DB) CountChunks() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// ftsQuote wraps each whitespace-separated term in double quotes so FTS5
// treats hyphens and other punctuation literally instead of as syntax.
func ftsQuote(query string) string {
	terms := strings.Fields(strings.ReplaceAll(query, `"`, ""))
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " ")
}

func scanChunk(s interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	var idStr, paperStr string
	var heading sql.NullString
	var page sql.NullInt64
	var blob []byte

	err := s.Scan(&idStr, &paperStr, &c.ChunkIndex, &c.SectionType, &heading,
		&c.Content, &c.TokenCount, &page, &blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if c.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing chunk id: %w", err)
	}
	if c.PaperID, err = uuid.Parse(paperStr); err != nil {
		return nil, fmt.Errorf("parsing paper id: %w", err)
	}
	c.SectionHeading = heading.String
	c.PageNumber = intPtr(page)
	c.Embedding = decodeEmbedding(blob)
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, rows.Err()
}

// encodeEmbedding packs a vector as little-endian float32 bytes. Nil vectors
// stay NULL.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
