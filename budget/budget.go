package budget

import (
	"go.uber.org/zap"

	"github.com/BaSui01/llmguard/tokenizer"
	"github.com/BaSui01/llmguard/types"
)

// Counter is the injected token-counting capability. The full
// tokenizer.Tokenizer interface satisfies it; so does any plain counting
// function via CounterFunc.
type Counter interface {
	CountTokens(text string) (int, error)
}

// CounterFunc adapts a text -> token count function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) CountTokens(text string) (int, error) {
	return f(text), nil
}

// encoder is optionally implemented by counters that can cut text on real
// token boundaries (e.g. tiktoken). Used for hard truncation.
type encoder interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
}

// MessageBudgeter fits a chat-style message history under a token budget,
// preferring the most recent context. It holds no mutable state and is
// safe for concurrent use.
type MessageBudgeter struct {
	counter    Counter
	logger     *zap.Logger
	onTruncate func(dropped int)
}

// New creates a budgeter delegating token counting to counter.
func New(counter Counter, logger *zap.Logger) (*MessageBudgeter, error) {
	if counter == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "token counter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageBudgeter{counter: counter, logger: logger}, nil
}

// NewForModel creates a budgeter counting with the tokenizer registered
// for model, falling back to tiktoken for OpenAI-family names and finally
// to the character estimator. It never fails.
func NewForModel(model string, logger *zap.Logger) *MessageBudgeter {
	b, _ := New(tokenizer.ForModel(model), logger)
	return b
}

// WithOnTruncate registers a callback fired whenever Truncate drops or
// cuts messages, with the number of messages dropped. Must be called
// before the budgeter is shared.
func (b *MessageBudgeter) WithOnTruncate(fn func(dropped int)) *MessageBudgeter {
	b.onTruncate = fn
	return b
}

// CountTokens returns the token count of text, for pre-flight budget
// checks without truncation.
func (b *MessageBudgeter) CountTokens(text string) (int, error) {
	return b.counter.CountTokens(text)
}

// CountMessages returns the total token count of the message contents.
// This is the budget basis used by Truncate; it carries no per-message
// role overhead.
func (b *MessageBudgeter) CountMessages(messages []types.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		n, err := b.counter.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Truncate returns an ordered subsequence of messages fitting maxTokens,
// preferring recency. The input is never mutated.
//
// If everything fits, the input is returned unchanged. Otherwise the last
// message is always preserved: when it alone exceeds the budget, its
// content is hard-truncated to the largest prefix that fits and it is
// returned as the only message. Remaining budget is then filled walking
// from most recent to oldest; the walk stops at the first message that
// does not fit.
func (b *MessageBudgeter) Truncate(messages []types.Message, maxTokens int) ([]types.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	total, err := b.CountMessages(messages)
	if err != nil {
		return nil, err
	}
	if total <= maxTokens {
		return messages, nil
	}

	last := messages[len(messages)-1]
	lastTokens, err := b.counter.CountTokens(last.Content)
	if err != nil {
		return nil, err
	}

	if lastTokens > maxTokens {
		content, err := b.hardTruncate(last.Content, maxTokens)
		if err != nil {
			return nil, err
		}
		b.logTruncation(len(messages)-1, total, maxTokens)
		return []types.Message{{Role: last.Role, Content: content}}, nil
	}

	// Walk from most recent to oldest, stopping at the first message that
	// does not fit: older messages are rejected because the budget is
	// exhausted in recency order.
	running := lastTokens
	start := len(messages) - 1
	for i := len(messages) - 2; i >= 0; i-- {
		n, err := b.counter.CountTokens(messages[i].Content)
		if err != nil {
			return nil, err
		}
		if running+n > maxTokens {
			break
		}
		running += n
		start = i
	}

	b.logTruncation(start, total, maxTokens)
	return messages[start:], nil
}

// hardTruncate cuts content to the largest prefix fitting maxTokens.
// Counters backed by a real tokenizer are cut on token boundaries;
// otherwise the cut is found by binary search over rune prefixes.
func (b *MessageBudgeter) hardTruncate(content string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}

	if enc, ok := b.counter.(encoder); ok {
		if cut, err := truncateByTokens(enc, content, maxTokens); err == nil {
			// Re-encoding a decoded prefix can shift boundaries; trust
			// the cut only if it still fits.
			if n, cerr := b.counter.CountTokens(cut); cerr == nil && n <= maxTokens {
				return cut, nil
			}
		}
	}

	return b.truncateByRunes(content, maxTokens)
}

func truncateByTokens(enc encoder, content string, maxTokens int) (string, error) {
	ids, err := enc.Encode(content)
	if err != nil {
		return "", err
	}
	if len(ids) <= maxTokens {
		return content, nil
	}
	return enc.Decode(ids[:maxTokens])
}

// truncateByRunes finds the longest rune prefix whose count fits, relying
// on token counts being non-decreasing in prefix length.
func (b *MessageBudgeter) truncateByRunes(content string, maxTokens int) (string, error) {
	runes := []rune(content)
	lo, hi := 0, len(runes) // lo always fits
	for lo < hi {
		mid := (lo + hi + 1) / 2
		n, err := b.counter.CountTokens(string(runes[:mid]))
		if err != nil {
			return "", err
		}
		if n <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]), nil
}

func (b *MessageBudgeter) logTruncation(dropped, total, maxTokens int) {
	if b.onTruncate != nil {
		b.onTruncate(dropped)
	}
	b.logger.Info("message history truncated",
		zap.Int("dropped_messages", dropped),
		zap.Int("total_tokens", total),
		zap.Int("max_tokens", maxTokens))
}

var _ Counter = (tokenizer.Tokenizer)(nil)
