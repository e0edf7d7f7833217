package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Search.Limit)
	assert.Equal(t, 0.3, cfg.Chat.HighQualityThreshold)
	assert.Equal(t, 3, cfg.Chat.MaxContextRecords)
	assert.Equal(t, 2*time.Second, cfg.Readiness.Interval)
	assert.Equal(t, 60, cfg.Readiness.MaxAttempts)
	assert.Equal(t, 120*time.Second, cfg.Readiness.WarmTimeout)
	assert.Equal(t, 3*time.Second, cfg.Readiness.OptimisticReadyAfter)
	assert.False(t, cfg.Gate.DisableInput)
	assert.Equal(t, "127.0.0.1:8090", cfg.Address())
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RECALLCHAT_SERVER_PORT", "9300")
	t.Setenv("RECALLCHAT_GATE_DISABLE_INPUT", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.True(t, cfg.Gate.DisableInput)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recallchat.yaml")
	content := `
server:
  port: 9000
search:
  mode: semantic
  limit: 10
gate:
  disable_input: true
  interval: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "semantic", cfg.Search.Mode)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.True(t, cfg.Gate.DisableInput)
	assert.Equal(t, 5*time.Second, cfg.Gate.Interval)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	for name, value := range map[string]string{"above one": "1.5", "zero": "0", "negative": "-0.2"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte("chat:\n  high_quality_threshold: "+value+"\n"), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "high_quality_threshold")
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Search:    SearchConfig{Limit: 0},
		Readiness: ReadinessConfig{Interval: time.Second, MaxAttempts: 1},
		Gate:      GateConfig{Interval: time.Second},
		Chat:      ChatConfig{HighQualityThreshold: 0.3},
	}
	assert.Error(t, cfg.Validate())

	cfg.Search.Limit = 25
	assert.NoError(t, cfg.Validate())

	cfg.Gate.Interval = 0
	assert.Error(t, cfg.Validate())
}
