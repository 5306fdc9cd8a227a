package llm

import (
	"context"
	"fmt"
)

// TextEmbedder embeds one text at a time through a Provider.
type TextEmbedder struct {
	provider Provider
}

// NewTextEmbedder wraps p. It returns nil when p is nil so callers can treat
// a missing provider as "no embedder".
func NewTextEmbedder(p Provider) *TextEmbedder {
	if p == nil {
		return nil
	}
	return &TextEmbedder{provider: p}
}

// Embed returns the embedding of text.
func (e *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%s embed: %w", e.provider.Name(), err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%s embed: got %d vectors for 1 text", e.provider.Name(), len(vecs))
	}
	if len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%s embed: empty vector", e.provider.Name())
	}
	return vecs[0], nil
}

// Name reports the underlying provider.
func (e *TextEmbedder) Name() string { return e.provider.Name() }
