// Package llm adapts hosted language models to the small interfaces used by
// search and natural-language queries.
package llm

import (
	"context"
	"errors"
)

// Replies are short Cypher statements or rankings, so this is ample.
const defaultMaxTokens = 1024

var (
	ErrEmptyResponse = errors.New("llm returned no text")
	// A reply cut at the token limit is never a usable query.
	ErrTruncated = errors.New("llm response truncated at max tokens")
)

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedderClient turns material descriptions and search text into vectors
// for the waste_material_embedding index.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type RerankerClient interface {
	Rank(ctx context.Context, query string, documents []string) ([]int, error)
}
