// Package genai provides the external model provider boundary: text
// embedding and (streaming) generation over the Gemini HTTP API.
package genai

import "context"

// Embedder produces vector embeddings for text. Implementations return
// unit-normalized vectors so that inner product equals cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts in one call; the returned vectors align
	// index-for-index with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// StreamToken is one fragment of a streaming generation, or a terminal error.
type StreamToken struct {
	Content string
	Err     error
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream returns a channel of tokens in production order.
	// The channel is closed when generation completes; a token with a
	// non-nil Err terminates the stream.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error)
}
