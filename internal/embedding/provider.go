// Package embedding generates vector embeddings for chunk text.
package embedding

import "context"

// Provider generates embeddings from text.
type Provider interface {
	// Embed generates embeddings for a batch of texts, one vector per input
	// in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}
