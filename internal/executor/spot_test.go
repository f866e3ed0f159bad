package executor

import (
	"errors"
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

func setupSpotExecutor(t *testing.T) (*gorm.DB, *MockSpotClient, *SpotExecutor) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Decision{}))

	client := new(MockSpotClient)
	return db, client, NewSpotExecutor(client, db, zap.NewNop())
}

func spotDecision(t *testing.T, db *gorm.DB, action string, amount float64) *models.Decision {
	d := &models.Decision{Mode: models.ModeSpot, Action: action, Symbol: "BTCUSDT", Confidence: 0.9, Amount: amount}
	require.NoError(t, db.Create(d).Error)
	return d
}

func TestSpotExecute_BuySuccess(t *testing.T) {
	db, client, e := setupSpotExecutor(t)
	d := spotDecision(t, db, models.ActionBuy, 600)

	client.On("GetTickerPrice", "BTCUSDT").Return(60000.0, nil)
	client.On("GetSymbolRules", "BTCUSDT").Return(btcRules(), nil)
	client.On("CreateMarketOrder", "BTCUSDT", "BUY", 0.01).Return(&binance.CreateOrderResponse{
		OrderID:             42,
		ExecutedQuantity:    "0.01",
		CummulativeQuoteQty: "601",
	}, nil)

	res, err := e.Execute(d, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(42), res.OrderID)
	assert.Equal(t, 0.01, res.Quantity)
	assert.True(t, res.QuantityConfirmed)
	// Average fill price from the exchange response: 601 / 0.01.
	assert.InDelta(t, 60100, res.Price, 1e-6)
	assert.True(t, res.PriceConfirmed)

	var got models.Decision
	require.NoError(t, db.First(&got, d.ID).Error)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, models.OutcomeSuccess, *got.Outcome)
	assert.True(t, got.Executed)
	client.AssertExpectations(t)
}

func TestSpotExecute_SellCappedAtHolding(t *testing.T) {
	db, client, e := setupSpotExecutor(t)
	d := spotDecision(t, db, models.ActionSell, 600)

	client.On("GetTickerPrice", "BTCUSDT").Return(60000.0, nil)
	client.On("GetSymbolRules", "BTCUSDT").Return(btcRules(), nil)
	// 600/60000 = 0.01 requested, but only 0.005 is held.
	client.On("CreateMarketOrder", "BTCUSDT", "SELL", 0.005).Return(&binance.CreateOrderResponse{
		ExecutedQuantity:    "0.005",
		CummulativeQuoteQty: "300",
	}, nil)

	res, err := e.Execute(d, 0.005)
	require.NoError(t, err)
	assert.Equal(t, 0.005, res.Quantity)
	client.AssertExpectations(t)
}

func TestSpotExecute_FallbackWhenExchangeOmitsFills(t *testing.T) {
	db, client, e := setupSpotExecutor(t)
	d := spotDecision(t, db, models.ActionBuy, 600)

	client.On("GetTickerPrice", "BTCUSDT").Return(60000.0, nil)
	client.On("GetSymbolRules", "BTCUSDT").Return(btcRules(), nil)
	client.On("CreateMarketOrder", "BTCUSDT", "BUY", 0.01).Return(&binance.CreateOrderResponse{}, nil)

	res, err := e.Execute(d, 0)
	require.NoError(t, err)

	assert.Equal(t, 0.01, res.Quantity)
	assert.False(t, res.QuantityConfirmed)
	assert.Equal(t, 60000.0, res.Price)
	assert.False(t, res.PriceConfirmed)
	assert.InDelta(t, 600, res.QuoteQuantity, 1e-6)
}

func TestSpotExecute_OrderRejectedMarksFailed(t *testing.T) {
	db, client, e := setupSpotExecutor(t)
	d := spotDecision(t, db, models.ActionBuy, 600)

	client.On("GetTickerPrice", "BTCUSDT").Return(60000.0, nil)
	client.On("GetSymbolRules", "BTCUSDT").Return(btcRules(), nil)
	client.On("CreateMarketOrder", "BTCUSDT", "BUY", 0.01).
		Return((*binance.CreateOrderResponse)(nil), errors.New("insufficient balance"))

	_, err := e.Execute(d, 0)
	require.Error(t, err)

	var got models.Decision
	require.NoError(t, db.First(&got, d.ID).Error)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, models.OutcomeFailed, *got.Outcome)
	assert.False(t, got.Executed)
	assert.Contains(t, got.CancelReason, "insufficient balance")
}

func TestSpotExecute_QuantityBelowMinimumMarksFailed(t *testing.T) {
	db, client, e := setupSpotExecutor(t)
	d := spotDecision(t, db, models.ActionBuy, 0.06)

	client.On("GetTickerPrice", "BTCUSDT").Return(60000.0, nil)
	client.On("GetSymbolRules", "BTCUSDT").Return(btcRules(), nil)

	_, err := e.Execute(d, 0)
	require.Error(t, err)
	client.AssertNotCalled(t, "CreateMarketOrder", mock.Anything, mock.Anything, mock.Anything)

	var got models.Decision
	require.NoError(t, db.First(&got, d.ID).Error)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, models.OutcomeFailed, *got.Outcome)
}
