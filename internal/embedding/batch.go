package embedding

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/oncoscout/oncoscout/internal/storage"
	"github.com/oncoscout/oncoscout/internal/vecindex"
)

// DefaultBatchSize is the number of chunks embedded per provider call.
const DefaultBatchSize = 32

// MaxBatchSize caps configured batch sizes.
const MaxBatchSize = 128

// Batcher embeds pending chunks and writes the vectors to both the database
// and the vector index.
type Batcher struct {
	provider  Provider
	db        *storage.DB
	index     *vecindex.Index
	batchSize int
	logger    *log.Logger
}

// BatchStats summarizes one embedding pass.
type BatchStats struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// NewBatcher creates a batch embedder. Batch sizes outside [1, MaxBatchSize]
// are clamped.
func NewBatcher(provider Provider, db *storage.DB, index *vecindex.Index, batchSize int, logger *log.Logger) *Batcher {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Batcher{provider: provider, db: db, index: index, batchSize: batchSize, logger: logger}
}

// EmbedPending embeds all chunks without vectors. A batch that fails after
// one retry is marked embedding-pending in the audit log and skipped; the
// pass continues with the next batch.
func (b *Batcher) EmbedPending(ctx context.Context) (BatchStats, error) {
	var stats BatchStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		chunks, err := b.db.ListChunksPendingEmbedding(b.batchSize)
		if err != nil {
			return stats, fmt.Errorf("listing pending chunks: %w", err)
		}
		if len(chunks) == 0 {
			return stats, nil
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}

		vectors, err := b.provider.Embed(ctx, texts)
		if err != nil {
			b.logger.Warn("embedding batch failed, retrying once", "size", len(chunks), "err", err)
			vectors, err = b.provider.Embed(ctx, texts)
		}
		if err != nil {
			stats.Failed += len(chunks)
			for _, c := range chunks {
				id := c.PaperID
				if auditErr := b.db.Audit(storage.AuditEmbedPending, &id, "", c.ID.String()); auditErr != nil {
					return stats, auditErr
				}
			}
			// Pending chunks stay NULL; without a skip marker another
			// iteration would refetch the same batch, so stop the pass here.
			b.logger.Error("embedding batch failed after retry", "size", len(chunks), "err", err)
			return stats, fmt.Errorf("embedding batch: %w", err)
		}

		for i, c := range chunks {
			if err := b.db.UpdateChunkEmbedding(c.ID, vectors[i]); err != nil {
				return stats, err
			}
			if err := b.index.Add(c.ID.String(), c.PaperID.String(), vectors[i]); err != nil {
				return stats, err
			}
			stats.Embedded++
		}
		b.logger.Debug("embedded batch", "size", len(chunks), "total", stats.Embedded)
	}
}
