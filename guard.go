// Package llmguard composes a circuit breaker, a token-bucket rate
// limiter and a message budgeter around outbound LLM calls. Each Guard
// protects one upstream dependency; the three components are orthogonal
// and can also be used individually via their own packages.
package llmguard

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/llmguard/breaker"
	"github.com/BaSui01/llmguard/budget"
	"github.com/BaSui01/llmguard/config"
	"github.com/BaSui01/llmguard/internal/metrics"
	"github.com/BaSui01/llmguard/ratelimit"
	"github.com/BaSui01/llmguard/types"
)

// CallFunc is the outbound call a Guard protects. The messages passed in
// are the budgeted history, already trimmed to the guard's token limit.
type CallFunc func(ctx context.Context, messages []types.Message) error

// Guard wraps a single upstream LLM dependency with a circuit breaker,
// a rate limiter and a message budgeter. A Guard is safe for concurrent
// use once constructed.
type Guard struct {
	name     string
	settings config.Guard

	breaker  *breaker.CircuitBreaker
	limiter  *ratelimit.Limiter
	budgeter *budget.MessageBudgeter
	logger   *zap.Logger

	onRejection func()
}

// NewGuard creates a standalone guard from the given settings. Guards
// managed by a Registry additionally report prometheus metrics; use
// NewRegistry when metrics are wanted.
func NewGuard(name string, settings config.Guard, logger *zap.Logger) (*Guard, error) {
	return newGuard(name, settings, logger, nil)
}

func newGuard(name string, settings config.Guard, logger *zap.Logger, collector *metrics.Collector) (*Guard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := breaker.Config{
		FailureThreshold: settings.FailureThreshold,
		RecoveryTimeout:  settings.RecoveryTimeout.Std(),
	}
	if collector != nil {
		cfg.OnStateChange = func(name string, from, to breaker.State) {
			collector.ObserveBreakerTransition(name, from.String(), to.String())
		}
	}
	cb, err := breaker.New(name, cfg, logger)
	if err != nil {
		return nil, err
	}

	lim, err := ratelimit.New(name, settings.RequestsPerMinute, logger)
	if err != nil {
		return nil, err
	}
	if collector != nil {
		lim.WithOnThrottle(collector.ObserveThrottle)
	}

	bud := budget.NewForModel(settings.Model, logger)
	if collector != nil {
		bud.WithOnTruncate(func(dropped int) {
			collector.ObserveTruncation(name, dropped)
		})
	}

	g := &Guard{
		name:     name,
		settings: settings,
		breaker:  cb,
		limiter:  lim,
		budgeter: bud,
		logger:   logger.With(zap.String("guard", name)),
	}
	if collector != nil {
		g.onRejection = func() { collector.ObserveBreakerRejection(name) }
	}
	return g, nil
}

// Call runs fn through the full protection pipeline: the message history
// is budgeted first, then a rate-limiter token is acquired, then the call
// itself runs under the circuit breaker. Budgeting happens before the
// wait so a throttled caller does not hold a stale view of the history.
func (g *Guard) Call(ctx context.Context, messages []types.Message, fn CallFunc) error {
	trimmed, err := g.budgeter.Truncate(messages, g.settings.MaxTokens)
	if err != nil {
		return err
	}

	if err := g.limiter.WaitForToken(ctx); err != nil {
		return err
	}

	err = g.breaker.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, trimmed)
	})
	if errors.Is(err, breaker.ErrOpen) && g.onRejection != nil {
		g.onRejection()
	}
	return err
}

// Name returns the guard's dependency name.
func (g *Guard) Name() string { return g.name }

// Breaker exposes the underlying circuit breaker, mainly for state
// inspection.
func (g *Guard) Breaker() *breaker.CircuitBreaker { return g.breaker }

// Limiter exposes the underlying rate limiter.
func (g *Guard) Limiter() *ratelimit.Limiter { return g.limiter }

// Budgeter exposes the underlying message budgeter.
func (g *Guard) Budgeter() *budget.MessageBudgeter { return g.budgeter }
