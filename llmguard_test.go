package llmguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/llmguard/breaker"
	"github.com/BaSui01/llmguard/config"
	"github.com/BaSui01/llmguard/types"
)

// Each registry registers prometheus collectors on the default registry,
// so every test needs its own namespace.
var testNamespace atomic.Int64

func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.MetricsNamespace = fmt.Sprintf("llmguard_test_%d", testNamespace.Add(1))
	cfg.Defaults.Model = "local-test"
	cfg.Defaults.RequestsPerMinute = 6000
	return cfg
}

func testSettings() config.Guard {
	return config.Guard{
		FailureThreshold:  3,
		RecoveryTimeout:   config.Duration(60 * time.Second),
		RequestsPerMinute: 6000,
		Model:             "local-test",
		MaxTokens:         8000,
	}
}

func TestGuardCallPassesBudgetedHistory(t *testing.T) {
	g, err := NewGuard("openai", testSettings(), zap.NewNop())
	require.NoError(t, err)

	history := []types.Message{
		types.NewSystemMessage("be brief"),
		types.NewUserMessage("hello"),
	}

	var got []types.Message
	err = g.Call(context.Background(), history, func(ctx context.Context, messages []types.Message) error {
		got = messages
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestGuardBudgetsBeforeCalling(t *testing.T) {
	settings := testSettings()
	settings.MaxTokens = 30

	g, err := NewGuard("openai", settings, zap.NewNop())
	require.NoError(t, err)

	old := strings.Repeat("x", 400)
	history := []types.Message{
		types.NewUserMessage(old),
		types.NewUserMessage("short tail"),
	}

	var got []types.Message
	err = g.Call(context.Background(), history, func(ctx context.Context, messages []types.Message) error {
		got = messages
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "short tail", got[0].Content)
}

func TestGuardPropagatesCallError(t *testing.T) {
	g, err := NewGuard("openai", testSettings(), zap.NewNop())
	require.NoError(t, err)

	upstream := errors.New("upstream 500")
	err = g.Call(context.Background(), nil, func(ctx context.Context, messages []types.Message) error {
		return upstream
	})
	assert.ErrorIs(t, err, upstream)
}

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	settings := testSettings()
	settings.FailureThreshold = 2

	g, err := NewGuard("openai", settings, zap.NewNop())
	require.NoError(t, err)

	fail := func(ctx context.Context, messages []types.Message) error {
		return errors.New("boom")
	}
	for i := 0; i < 2; i++ {
		require.Error(t, g.Call(context.Background(), nil, fail))
	}
	assert.Equal(t, breaker.StateOpen, g.Breaker().State())

	invoked := false
	err = g.Call(context.Background(), nil, func(ctx context.Context, messages []types.Message) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, types.ErrCircuitOpen, types.GetErrorCode(err))
}

func TestGuardWaitCancellation(t *testing.T) {
	settings := testSettings()
	settings.RequestsPerMinute = 1

	g, err := NewGuard("openai", settings, zap.NewNop())
	require.NoError(t, err)

	ok := func(ctx context.Context, messages []types.Message) error { return nil }
	require.NoError(t, g.Call(context.Background(), nil, ok))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = g.Call(ctx, nil, ok)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGuardRejectsInvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.FailureThreshold = 0

	_, err := NewGuard("openai", settings, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestRegistryReturnsSameGuard(t *testing.T) {
	r := NewRegistry(newTestConfig(), zap.NewNop())

	a, err := r.GetOrCreate("openai")
	require.NoError(t, err)
	b, err := r.GetOrCreate("openai")
	require.NoError(t, err)
	assert.Same(t, a, b)

	got, ok := r.Get("openai")
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Get("anthropic")
	assert.False(t, ok)
}

func TestRegistryAppliesPerGuardSettings(t *testing.T) {
	cfg := newTestConfig()
	cfg.Guards = map[string]config.Guard{
		"anthropic": {FailureThreshold: 9},
	}
	r := NewRegistry(cfg, zap.NewNop())

	g, err := r.GetOrCreate("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", g.Name())
	// Unset fields inherit the defaults.
	assert.Equal(t, cfg.Defaults.RequestsPerMinute, g.settings.RequestsPerMinute)
	assert.Equal(t, 9, g.settings.FailureThreshold)
}

func TestRegistryRejectsInvalidOverride(t *testing.T) {
	cfg := newTestConfig()
	cfg.Guards = map[string]config.Guard{
		"broken": {FailureThreshold: -1},
	}
	r := NewRegistry(cfg, zap.NewNop())

	_, err := r.GetOrCreate("broken")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
	_, ok := r.Get("broken")
	assert.False(t, ok)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry(newTestConfig(), zap.NewNop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := r.GetOrCreate(name)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())
	assert.Equal(t, 3, r.Len())
}
