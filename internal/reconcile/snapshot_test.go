package reconcile

import (
	"testing"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockSpotClient is a mock implementation of the SpotClientInterface.
type MockSpotClient struct {
	mock.Mock
}

func (m *MockSpotClient) GetServerTime() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSpotClient) GetTickerPrice(symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSpotClient) GetAllTickerPrices() (map[string]float64, error) {
	args := m.Called()
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockSpotClient) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(symbol, interval, limit)
	return args.Get(0).([]binance.Kline), args.Error(1)
}

func (m *MockSpotClient) GetSymbolRules(symbol string) (*binance.SymbolRules, error) {
	args := m.Called(symbol)
	return args.Get(0).(*binance.SymbolRules), args.Error(1)
}

func (m *MockSpotClient) GetAccount() (*binance.SpotAccountInfo, error) {
	args := m.Called()
	return args.Get(0).(*binance.SpotAccountInfo), args.Error(1)
}

func (m *MockSpotClient) CreateMarketOrder(symbol, side string, quantity float64) (*binance.CreateOrderResponse, error) {
	args := m.Called(symbol, side, quantity)
	return args.Get(0).(*binance.CreateOrderResponse), args.Error(1)
}

func setupSnapshots(t *testing.T) (*gorm.DB, *SnapshotRecorder) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BalanceHistory{}, &models.FuturesBalanceHistory{}))

	return db, NewSnapshotRecorder(db, zap.NewNop())
}

func TestSpotTotalValue(t *testing.T) {
	info := &binance.SpotAccountInfo{Balances: []binance.SpotBalance{
		{Asset: "USDT", Free: "1000", Locked: "0"},
		{Asset: "BTC", Free: "0.01", Locked: "0.01"},
		{Asset: "ETH", Free: "0", Locked: "0"},
		{Asset: "UNLISTED", Free: "5", Locked: "0"},
	}}
	prices := map[string]float64{"BTCUSDT": 60000, "ETHUSDT": 3000}

	// 1000 USDT at face + 0.02 BTC * 60000; UNLISTED has no ticker.
	assert.InDelta(t, 2200, SpotTotalValue(info, prices), 1e-6)
}

func TestRecordSpot_AppendsSnapshot(t *testing.T) {
	db, s := setupSnapshots(t)
	client := new(MockSpotClient)

	client.On("GetAccount").Return(&binance.SpotAccountInfo{Balances: []binance.SpotBalance{
		{Asset: "USDT", Free: "500", Locked: "0"},
	}}, nil)
	client.On("GetAllTickerPrices").Return(map[string]float64{}, nil)

	account := &models.Account{Model: gorm.Model{ID: 1}, Mode: models.ModeSpot}
	require.NoError(t, s.RecordSpot(account, client))

	var row models.BalanceHistory
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, uint(1), row.AccountID)
	assert.InDelta(t, 500, row.TotalValue, 1e-6)
}

func TestRecordFutures_AppendsSnapshot(t *testing.T) {
	db, s := setupSnapshots(t)
	client := new(MockFuturesClient)

	client.On("GetAccount").Return(&binance.FuturesAccountInfo{
		TotalWalletBalance:    "1500.5",
		TotalUnrealizedProfit: "-20.5",
	}, nil)

	account := &models.Account{Model: gorm.Model{ID: 2}, Mode: models.ModeFutures}
	require.NoError(t, s.RecordFutures(account, client))

	var row models.FuturesBalanceHistory
	require.NoError(t, db.First(&row).Error)
	assert.InDelta(t, 1500.5, row.WalletBalance, 1e-6)
	assert.InDelta(t, -20.5, row.UnrealizedPnl, 1e-6)
	assert.InDelta(t, 1480, row.TotalValue, 1e-6)
}
