package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/llmguard/types"
)

// Tiktoken adapts tiktoken for OpenAI-family models.
type Tiktoken struct {
	model     string
	encoding  string
	maxTokens int
	enc       *tiktoken.Tiktoken
	once      sync.Once
	initErr   error
}

// modelEncodings maps model names to their tiktoken encoding and context size.
var modelEncodings = map[string]struct {
	encoding  string
	maxTokens int
}{
	"gpt-4o":                 {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":            {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4-turbo":            {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":                  {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo":          {encoding: "cl100k_base", maxTokens: 16385},
	"text-embedding-3-large": {encoding: "cl100k_base", maxTokens: 8191},
	"text-embedding-3-small": {encoding: "cl100k_base", maxTokens: 8191},
}

// NewTiktoken creates a tiktoken-backed tokenizer for the given model.
// The model must be a known OpenAI-family name or share a known prefix
// (e.g. "gpt-4o-2024-11-20" matches "gpt-4o"); unknown models return an
// error so callers can fall back to the estimator.
func NewTiktoken(model string) (*Tiktoken, error) {
	info, ok := modelEncodings[model]
	if !ok {
		for prefix, i := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				info = i
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, types.NewError(types.ErrTokenizer, "unknown tiktoken model: "+model)
	}

	return &Tiktoken{
		model:     model,
		encoding:  info.encoding,
		maxTokens: info.maxTokens,
	}, nil
}

// NewTiktokenEncoding creates a tokenizer for an explicit tiktoken encoding
// name, for callers that know the encoding but not a model mapping.
func NewTiktokenEncoding(encoding string, maxTokens int) *Tiktoken {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Tiktoken{
		model:     encoding,
		encoding:  encoding,
		maxTokens: maxTokens,
	}
}

// init lazily initializes the tiktoken encoding (may download data on
// first use).
func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = types.NewError(types.ErrTokenizer,
				fmt.Sprintf("init tiktoken encoding %s", t.encoding)).WithCause(err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *Tiktoken) CountMessages(messages []types.Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		// Per-message overhead: <|start|>role\n content<|end|>\n
		total += 4
		total += len(t.enc.Encode(msg.Content, nil, nil))
		total += len(t.enc.Encode(string(msg.Role), nil, nil))
	}
	total += 3 // conversation-end overhead
	return total, nil
}

func (t *Tiktoken) Encode(text string) ([]int, error) {
	if err := t.init(); err != nil {
		return nil, err
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *Tiktoken) Decode(tokens []int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	return t.enc.Decode(tokens), nil
}

func (t *Tiktoken) MaxTokens() int {
	return t.maxTokens
}

func (t *Tiktoken) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// RegisterOpenAI registers tokenizers for all known OpenAI models.
func RegisterOpenAI() {
	for model := range modelEncodings {
		t, err := NewTiktoken(model)
		if err != nil {
			continue
		}
		Register(model, t)
	}
}
