package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/llmguard/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "llmguard", cfg.MetricsNamespace)
	assert.Equal(t, 5, cfg.Defaults.FailureThreshold)
	assert.Equal(t, Duration(60*time.Second), cfg.Defaults.RecoveryTimeout)
	assert.Equal(t, float64(60), cfg.Defaults.RequestsPerMinute)
	assert.Equal(t, "gpt-4o", cfg.Defaults.Model)
	assert.Equal(t, 8000, cfg.Defaults.MaxTokens)
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
metrics_namespace: myapp
defaults:
  failure_threshold: 3
  recovery_timeout: 30s
  requests_per_minute: 120
  model: gpt-4o-mini
  max_tokens: 4000
guards:
  anthropic:
    requests_per_minute: 50
    model: claude-sonnet
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myapp", cfg.MetricsNamespace)
	assert.Equal(t, 3, cfg.Defaults.FailureThreshold)
	assert.Equal(t, Duration(30*time.Second), cfg.Defaults.RecoveryTimeout)

	// Per-guard override inherits unset fields from defaults.
	g := cfg.ForGuard("anthropic")
	assert.Equal(t, float64(50), g.RequestsPerMinute)
	assert.Equal(t, "claude-sonnet", g.Model)
	assert.Equal(t, 3, g.FailureThreshold)
	assert.Equal(t, 4000, g.MaxTokens)

	// Unknown guard names resolve to the defaults.
	assert.Equal(t, cfg.Defaults, cfg.ForGuard("never-configured"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestLoadmalformedYAML(t *testing.T) {
	path := writeConfig(t, "defaults: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "zero threshold", yaml: "defaults: {failure_threshold: 0, recovery_timeout: 1s, requests_per_minute: 60, max_tokens: 100}"},
		{name: "negative rate", yaml: "defaults: {failure_threshold: 1, recovery_timeout: 1s, requests_per_minute: -2, max_tokens: 100}"},
		{name: "bad guard override", yaml: "guards: {x: {requests_per_minute: -1}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LLMGUARD_METRICS_NAMESPACE", "envspace")
	t.Setenv("LLMGUARD_FAILURE_THRESHOLD", "7")
	t.Setenv("LLMGUARD_RECOVERY_TIMEOUT", "90s")
	t.Setenv("LLMGUARD_REQUESTS_PER_MINUTE", "240")
	t.Setenv("LLMGUARD_MODEL", "gpt-4-turbo")
	t.Setenv("LLMGUARD_MAX_TOKENS", "16000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "envspace", cfg.MetricsNamespace)
	assert.Equal(t, 7, cfg.Defaults.FailureThreshold)
	assert.Equal(t, Duration(90*time.Second), cfg.Defaults.RecoveryTimeout)
	assert.Equal(t, float64(240), cfg.Defaults.RequestsPerMinute)
	assert.Equal(t, "gpt-4-turbo", cfg.Defaults.Model)
	assert.Equal(t, 16000, cfg.Defaults.MaxTokens)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfig(t, "defaults: {failure_threshold: 3, recovery_timeout: 30s, requests_per_minute: 60, max_tokens: 1000}")
	t.Setenv("LLMGUARD_FAILURE_THRESHOLD", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Defaults.FailureThreshold)
	assert.Equal(t, Duration(30*time.Second), cfg.Defaults.RecoveryTimeout)
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    Duration
		wantErr bool
	}{
		{name: "string duration", yaml: "recovery_timeout: 90s", want: Duration(90 * time.Second)},
		{name: "compound string", yaml: "recovery_timeout: 1m30s", want: Duration(90 * time.Second)},
		{name: "bare integer is seconds", yaml: "recovery_timeout: 45", want: Duration(45 * time.Second)},
		{name: "float seconds", yaml: "recovery_timeout: 1.5", want: Duration(1500 * time.Millisecond)},
		{name: "garbage", yaml: "recovery_timeout: ninety", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g Guard
			err := yaml.Unmarshal([]byte(tt.yaml), &g)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.RecoveryTimeout)
			assert.Equal(t, tt.want.Std(), time.Duration(g.RecoveryTimeout))
		})
	}
}
