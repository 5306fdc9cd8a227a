// Package llmutil wires the built-in provider constructors into a factory.
package llmutil

import (
	"github.com/efebarandurmaz/bujo/internal/llm"
	"github.com/efebarandurmaz/bujo/internal/llm/anthropic"
	"github.com/efebarandurmaz/bujo/internal/llm/openai"
)

// RegisterDefaultProviders registers anthropic and every OpenAI-compatible
// preset, plus "custom" for any other OpenAI-compatible endpoint. The factory
// has already applied preset URLs and embedding models by the time these
// constructors run.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	for _, name := range llm.PresetNames() {
		if name == "anthropic" {
			continue
		}
		factory.Register(name, newOpenAI)
	}
	factory.Register("custom", newOpenAI)
}

func newOpenAI(c llm.ProviderConfig) (llm.Provider, error) {
	return openai.New(openaiConfig(c)), nil
}

func openaiConfig(c llm.ProviderConfig) openai.Config {
	return openai.Config{
		APIKey:     c.APIKey,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		EmbedModel: c.EmbedModel,
		Dimensions: c.Dimensions,
	}
}
