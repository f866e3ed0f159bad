package reconcile

import (
	"testing"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/executor"
	"binance-ai-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockFuturesClient is a mock implementation of the FuturesClientInterface.
type MockFuturesClient struct {
	mock.Mock
}

func (m *MockFuturesClient) GetMarkPrice(symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockFuturesClient) GetFundingRate(symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockFuturesClient) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(symbol, interval, limit)
	return args.Get(0).([]binance.Kline), args.Error(1)
}

func (m *MockFuturesClient) GetPositions(symbol string) ([]binance.PositionRisk, error) {
	args := m.Called(symbol)
	return args.Get(0).([]binance.PositionRisk), args.Error(1)
}

func (m *MockFuturesClient) GetSymbolRules(symbol string) (*binance.SymbolRules, error) {
	args := m.Called(symbol)
	return args.Get(0).(*binance.SymbolRules), args.Error(1)
}

func (m *MockFuturesClient) SetLeverage(symbol string, leverage int) error {
	args := m.Called(symbol, leverage)
	return args.Error(0)
}

func (m *MockFuturesClient) CreateMarketOrder(symbol, side string, quantity float64, positionSide string, reduceOnly bool) (*binance.FuturesOrderResponse, error) {
	args := m.Called(symbol, side, quantity, positionSide, reduceOnly)
	return args.Get(0).(*binance.FuturesOrderResponse), args.Error(1)
}

func (m *MockFuturesClient) GetAccount() (*binance.FuturesAccountInfo, error) {
	args := m.Called()
	return args.Get(0).(*binance.FuturesAccountInfo), args.Error(1)
}

func setupReconciler(t *testing.T) (*gorm.DB, *MockFuturesClient, *Reconciler) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Position{}, &models.FuturesOrder{}, &models.Decision{})
	require.NoError(t, err)

	client := new(MockFuturesClient)
	return db, client, NewReconciler(db, client, 1.0, zap.NewNop())
}

func testAccount() *models.Account {
	return &models.Account{Model: gorm.Model{ID: 1}, Mode: models.ModeFutures}
}

func openLongResult(qty, price float64) *executor.Result {
	return &executor.Result{
		Symbol:            "BTCUSDT",
		Side:              binance.OrderSideBuy,
		PositionSide:      models.PositionSideLong,
		Quantity:          qty,
		Price:             price,
		QuoteQuantity:     qty * price,
		Leverage:          5,
		QuantityConfirmed: true,
		PriceConfirmed:    true,
	}
}

func closeLongResult(qty, price float64) *executor.Result {
	return &executor.Result{
		Symbol:            "BTCUSDT",
		Side:              binance.OrderSideSell,
		PositionSide:      models.PositionSideLong,
		Quantity:          qty,
		Price:             price,
		QuoteQuantity:     qty * price,
		ReduceOnly:        true,
		QuantityConfirmed: true,
		PriceConfirmed:    true,
	}
}

func TestAfterOpen_CreatesPositionFromLiveState(t *testing.T) {
	db, client, r := setupReconciler(t)

	client.On("GetPositions", "BTCUSDT").Return([]binance.PositionRisk{
		{Symbol: "BTCUSDT", PositionAmt: "0.5", EntryPrice: "60010"},
	}, nil)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionOpenLong, Symbol: "BTCUSDT", Amount: 6000}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterOpen(testAccount(), d, openLongResult(0.5, 60000))
	require.NoError(t, err)

	var position models.Position
	require.NoError(t, db.First(&position).Error)
	assert.Equal(t, models.PositionStatusOpen, position.Status)
	assert.Equal(t, 0.5, position.Quantity)
	// Live entry price wins over the fill price.
	assert.Equal(t, 60010.0, position.EntryPrice)
	assert.Equal(t, 6000.0, position.Margin)

	var order models.FuturesOrder
	require.NoError(t, db.First(&order).Error)
	assert.Equal(t, "BTCUSDT", order.Symbol)
	assert.False(t, order.IsDustClose)
	client.AssertExpectations(t)
}

func TestAfterOpen_LiveMismatch_DoesNotFabricatePosition(t *testing.T) {
	db, client, r := setupReconciler(t)

	// Exchange reports nothing despite the fill response.
	client.On("GetPositions", "BTCUSDT").Return([]binance.PositionRisk{}, nil)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionOpenLong, Symbol: "BTCUSDT", Amount: 6000}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterOpen(testAccount(), d, openLongResult(0.5, 60000))
	require.NoError(t, err)

	var count int64
	db.Model(&models.Position{}).Count(&count)
	assert.Equal(t, int64(0), count)

	// The fill record itself is still kept.
	db.Model(&models.FuturesOrder{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAfterOpen_GrowsExistingPosition(t *testing.T) {
	db, client, r := setupReconciler(t)

	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		EntryPrice: 59000, Quantity: 0.3, Margin: 3540, Status: models.PositionStatusOpen,
	}).Error)

	client.On("GetPositions", "BTCUSDT").Return([]binance.PositionRisk{
		{Symbol: "BTCUSDT", PositionAmt: "0.8", EntryPrice: "59400"},
	}, nil)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionOpenLong, Symbol: "BTCUSDT", Amount: 6000}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterOpen(testAccount(), d, openLongResult(0.5, 60000))
	require.NoError(t, err)

	var position models.Position
	require.NoError(t, db.First(&position).Error)
	// Live aggregates win over local addition.
	assert.Equal(t, 0.8, position.Quantity)
	assert.Equal(t, 59400.0, position.EntryPrice)
	assert.Equal(t, 9540.0, position.Margin)
}

func TestAfterClose_FullClose(t *testing.T) {
	db, client, r := setupReconciler(t)

	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		EntryPrice: 60000, Quantity: 0.5, Status: models.PositionStatusOpen,
	}).Error)

	client.On("GetPositions", "BTCUSDT").Return([]binance.PositionRisk{}, nil)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionCloseLong, Symbol: "BTCUSDT", Amount: 30000}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterClose(testAccount(), d, closeLongResult(0.5, 62000))
	require.NoError(t, err)

	var position models.Position
	require.NoError(t, db.First(&position).Error)
	assert.Equal(t, models.PositionStatusClosed, position.Status)
	assert.Equal(t, 0.0, position.Quantity)
	assert.NotNil(t, position.ClosedAt)
	// (62000 - 60000) * 0.5
	assert.InDelta(t, 1000, position.RealizedPnl, 1e-6)

	var order models.FuturesOrder
	require.NoError(t, db.First(&order).Error)
	require.NotNil(t, order.RealizedPnl)
	assert.InDelta(t, 1000, *order.RealizedPnl, 1e-6)
	assert.False(t, order.IsDustClose)
}

func TestAfterClose_TinyLiveResidualCountsAsClosed(t *testing.T) {
	db, client, r := setupReconciler(t)

	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		EntryPrice: 4800, Quantity: 2, Status: models.PositionStatusOpen,
	}).Error)

	// 0.00001 remaining at $5000 is $0.05 of notional, under the epsilon.
	client.On("GetPositions", "BTCUSDT").Return([]binance.PositionRisk{
		{Symbol: "BTCUSDT", PositionAmt: "0.00001", EntryPrice: "4800"},
	}, nil)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionCloseLong, Symbol: "BTCUSDT", Amount: 10000}
	require.NoError(t, db.Create(d).Error)

	res := closeLongResult(2, 5000)
	res.Symbol = "BTCUSDT"
	err := r.AfterClose(testAccount(), d, res)
	require.NoError(t, err)

	var position models.Position
	require.NoError(t, db.First(&position).Error)
	assert.Equal(t, models.PositionStatusClosed, position.Status)
	assert.Equal(t, 0.0, position.Quantity)
	// (5000 - 4800) * 2, computed exactly once.
	assert.InDelta(t, 400, position.RealizedPnl, 1e-6)

	var order models.FuturesOrder
	require.NoError(t, db.First(&order).Error)
	assert.False(t, order.IsDustClose)
}

func TestAfterClose_PartialClose_LiveQuantityWins(t *testing.T) {
	db, client, r := setupReconciler(t)

	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		EntryPrice: 60000, Quantity: 1.0, Status: models.PositionStatusOpen,
	}).Error)

	// Local math says 0.6 should remain, the exchange says 0.55.
	client.On("GetPositions", "BTCUSDT").Return([]binance.PositionRisk{
		{Symbol: "BTCUSDT", PositionAmt: "0.55", EntryPrice: "60000"},
	}, nil)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionCloseLong, Symbol: "BTCUSDT", Amount: 24000}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterClose(testAccount(), d, closeLongResult(0.4, 61000))
	require.NoError(t, err)

	var position models.Position
	require.NoError(t, db.First(&position).Error)
	assert.Equal(t, models.PositionStatusOpen, position.Status)
	assert.Equal(t, 0.55, position.Quantity)
	// (61000 - 60000) * 0.4
	assert.InDelta(t, 400, position.RealizedPnl, 1e-6)
}

func TestAfterClose_AlreadyClosed_IsDustCloseWithZeroPnl(t *testing.T) {
	db, client, r := setupReconciler(t)

	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		EntryPrice: 60000, Quantity: 0, RealizedPnl: 500, Status: models.PositionStatusClosed,
	}).Error)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionCloseLong, Symbol: "BTCUSDT"}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterClose(testAccount(), d, closeLongResult(0.001, 61000))
	require.NoError(t, err)

	// Never resurrected, PnL never recomputed.
	var position models.Position
	require.NoError(t, db.First(&position).Error)
	assert.Equal(t, models.PositionStatusClosed, position.Status)
	assert.Equal(t, 0.0, position.Quantity)
	assert.InDelta(t, 500, position.RealizedPnl, 1e-6)

	var order models.FuturesOrder
	require.NoError(t, db.First(&order).Error)
	assert.True(t, order.IsDustClose)
	require.NotNil(t, order.RealizedPnl)
	assert.Equal(t, 0.0, *order.RealizedPnl)

	// No live read was needed.
	client.AssertNotCalled(t, "GetPositions", mock.Anything)
}

func TestAfterClose_DustRemnant_DoesNotMutateLedger(t *testing.T) {
	db, client, r := setupReconciler(t)

	// 0.00001 * 61000 = $0.61, below the $1 dust threshold.
	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		EntryPrice: 60000, Quantity: 0.00001, Status: models.PositionStatusOpen,
	}).Error)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionCloseLong, Symbol: "BTCUSDT"}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterClose(testAccount(), d, closeLongResult(0.00001, 61000))
	require.NoError(t, err)

	var position models.Position
	require.NoError(t, db.First(&position).Error)
	assert.Equal(t, models.PositionStatusOpen, position.Status)
	assert.Equal(t, 0.00001, position.Quantity)

	var order models.FuturesOrder
	require.NoError(t, db.First(&order).Error)
	assert.True(t, order.IsDustClose)
	client.AssertNotCalled(t, "GetPositions", mock.Anything)
}

func TestAfterClose_NoTrackedPosition_RecordsDustOrder(t *testing.T) {
	db, client, r := setupReconciler(t)

	d := &models.Decision{Mode: models.ModeFutures, Action: models.ActionCloseLong, Symbol: "BTCUSDT"}
	require.NoError(t, db.Create(d).Error)

	err := r.AfterClose(testAccount(), d, closeLongResult(0.1, 61000))
	require.NoError(t, err)

	var order models.FuturesOrder
	require.NoError(t, db.First(&order).Error)
	assert.True(t, order.IsDustClose)
	require.NotNil(t, order.RealizedPnl)
	assert.Equal(t, 0.0, *order.RealizedPnl)
	client.AssertNotCalled(t, "GetPositions", mock.Anything)
}

func TestSyncPositions_ClosesOrphans(t *testing.T) {
	db, client, r := setupReconciler(t)

	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		EntryPrice: 60000, Quantity: 0.5, Status: models.PositionStatusOpen,
	}).Error)
	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "ETHUSDT", Side: models.PositionSideShort,
		EntryPrice: 3000, Quantity: 2, Status: models.PositionStatusOpen,
	}).Error)

	// Only the BTC long is still alive on the exchange.
	client.On("GetPositions", "").Return([]binance.PositionRisk{
		{Symbol: "BTCUSDT", PositionAmt: "0.5", EntryPrice: "60000"},
	}, nil)

	require.NoError(t, r.SyncPositions(1))

	var btc, eth models.Position
	require.NoError(t, db.Where("symbol = ?", "BTCUSDT").First(&btc).Error)
	require.NoError(t, db.Where("symbol = ?", "ETHUSDT").First(&eth).Error)

	assert.Equal(t, models.PositionStatusOpen, btc.Status)
	assert.Equal(t, models.PositionStatusClosed, eth.Status)
	assert.Equal(t, 0.0, eth.Quantity)
	assert.NotNil(t, eth.ClosedAt)
}

func TestSyncPositions_NoOpenPositions_NoExchangeCall(t *testing.T) {
	db, client, r := setupReconciler(t)

	require.NoError(t, db.Create(&models.Position{
		AccountID: 1, Symbol: "BTCUSDT", Side: models.PositionSideLong,
		Status: models.PositionStatusClosed,
	}).Error)

	require.NoError(t, r.SyncPositions(1))
	client.AssertNotCalled(t, "GetPositions", mock.Anything)
}
