package trader

import (
	"context"
	"testing"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/config"
	"binance-ai-trader/internal/credentials"
	"binance-ai-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTradeEngine(t *testing.T) (*gorm.DB, *Engine) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.Decision{}, &models.Trade{}, &models.BalanceHistory{}))

	cfg := &config.Config{}
	cfg.Engine.SpotConfidenceFloor = 0.70
	cfg.Engine.FuturesConfidenceFloor = 0.65
	cfg.Engine.SpotMinNotional = 5.0
	cfg.Engine.DustThreshold = 1.0
	cfg.Engine.KlineInterval = "1h"
	cfg.Engine.KlineLimit = 100

	e := NewEngine(cfg, db, new(MockCompleter), credentials.AccountStore{}, zap.NewNop())
	e.newSpotClient = func(apiKey, secretKey string) binance.SpotClientInterface {
		return new(MockSpotClient)
	}
	return db, e
}

func TestTriggerCycle_UnknownAccount(t *testing.T) {
	_, e := setupTradeEngine(t)

	err := e.TriggerCycle(context.Background(), 99)
	assert.Error(t, err)
}

func TestTriggerCycle_RefusesOverlappingCycle(t *testing.T) {
	db, e := setupTradeEngine(t)

	account := &models.Account{
		Model: gorm.Model{ID: 1}, Mode: models.ModeSpot,
		ApiKey: "k", SecretKey: "s", AllowedSymbols: "BTCUSDT",
	}
	require.NoError(t, db.Create(account).Error)

	r, err := e.runnerFor(account)
	require.NoError(t, err)

	// Simulate an in-flight cycle holding the account lock.
	r.mu.Lock()
	defer r.mu.Unlock()

	err = e.TriggerCycle(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestRunnerFor_CachesPipelinePerAccount(t *testing.T) {
	db, e := setupTradeEngine(t)

	account := &models.Account{
		Model: gorm.Model{ID: 1}, Mode: models.ModeSpot,
		ApiKey: "k", SecretKey: "s", AllowedSymbols: "BTCUSDT",
	}
	require.NoError(t, db.Create(account).Error)

	first, err := e.runnerFor(account)
	require.NoError(t, err)
	second, err := e.runnerFor(account)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestBuildPipeline_MissingCredentials(t *testing.T) {
	_, e := setupTradeEngine(t)

	account := &models.Account{Model: gorm.Model{ID: 2}, Mode: models.ModeSpot}
	_, err := e.buildPipeline(account)
	assert.Error(t, err)
}
