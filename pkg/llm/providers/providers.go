// Package providers registers the built-in provider adapters. Importing it
// (usually for side effects) makes "openai" and "ollama" available through
// llm.New.
package providers

import (
	"github.com/parley-llm/parley/pkg/llm"
	"github.com/parley-llm/parley/pkg/llm/ollama"
	"github.com/parley-llm/parley/pkg/llm/openai"
)

func init() {
	llm.Register(openai.Name, func(opts llm.ProviderOptions) (llm.Provider, error) {
		return openai.New(opts)
	})
	llm.Register(ollama.Name, func(opts llm.ProviderOptions) (llm.Provider, error) {
		return ollama.New(opts)
	})
}
