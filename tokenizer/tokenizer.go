// Package tokenizer provides token counting for LLM context budgeting.
// A process-wide registry maps model names to tokenizers; tiktoken backs
// OpenAI-family models and a character estimator covers everything else.
package tokenizer

import (
	"sync"

	"github.com/BaSui01/llmguard/types"
)

// Tokenizer is the unified token counting interface.
type Tokenizer interface {
	// CountTokens returns the token count of the given text.
	CountTokens(text string) (int, error)

	// CountMessages returns the total token count of a message list,
	// including per-message overhead (role markers, separators).
	CountMessages(messages []types.Message) (int, error)

	// Encode converts text to a list of token IDs.
	Encode(text string) ([]int, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int) (string, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer's name.
	Name() string
}

// Process-wide model -> tokenizer registry.
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// Register registers a tokenizer for the given model name, replacing any
// existing registration.
func Register(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// Get returns the tokenizer registered for the given model.
// It also tries prefix matching (e.g. "gpt-4o-mini" matches "gpt-4o").
func Get(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	for prefix, t := range modelTokenizers {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return t, nil
		}
	}

	return nil, types.NewError(types.ErrTokenizer, "no tokenizer registered for model: "+model)
}

// ForModel returns the registered tokenizer for the model, falling back to
// a tiktoken tokenizer for OpenAI-family names and finally to the generic
// character estimator. It never returns nil.
func ForModel(model string) Tokenizer {
	if t, err := Get(model); err == nil {
		return t
	}
	if t, err := NewTiktoken(model); err == nil {
		return t
	}
	return NewEstimator(model, 0)
}
