package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `binance:
  testnet: true
llm:
  base_url: "http://localhost:8080/v1"
  api_key: "test-key"
  model: "test-model"
engine:
  dust_threshold: 2.5
logger:
  level: "debug"
  format: "console"
database:
  dsn: "test.db"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Binance.Testnet)
	assert.Equal(t, "test-key", cfg.LLM.ApiKey)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 2.5, cfg.Engine.DustThreshold)
	assert.Equal(t, "test.db", cfg.Database.DSN)

	// Defaults fill everything the file omits.
	assert.Equal(t, 0.70, cfg.Engine.SpotConfidenceFloor)
	assert.Equal(t, 0.65, cfg.Engine.FuturesConfidenceFloor)
	assert.Equal(t, 5.0, cfg.Engine.SpotMinNotional)
	assert.Equal(t, "1h", cfg.Engine.KlineInterval)
	assert.Equal(t, 15, cfg.Binance.TimeoutSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
