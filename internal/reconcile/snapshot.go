package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SnapshotRecorder appends one balance/value snapshot per completed cycle
// (or on a timer), independent of whether a trade executed. The snapshots
// are the time series portfolio valuation reads from.
type SnapshotRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSnapshotRecorder creates a SnapshotRecorder.
func NewSnapshotRecorder(db *gorm.DB, logger *zap.Logger) *SnapshotRecorder {
	return &SnapshotRecorder{
		db:     db,
		logger: logger.Named("snapshot"),
	}
}

// RecordSpot values the spot account's free+locked balances at live market
// prices and appends a BalanceHistory row.
func (s *SnapshotRecorder) RecordSpot(account *models.Account, client binance.SpotClientInterface) error {
	info, err := client.GetAccount()
	if err != nil {
		return fmt.Errorf("failed to fetch spot account for snapshot: %w", err)
	}
	prices, err := client.GetAllTickerPrices()
	if err != nil {
		return fmt.Errorf("failed to fetch prices for snapshot: %w", err)
	}

	total := SpotTotalValue(info, prices)

	row := &models.BalanceHistory{AccountID: account.ID, TotalValue: total}
	if err := s.db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to append balance snapshot: %w", err)
	}
	s.logger.Debug("Spot balance snapshot appended",
		zap.Uint("account_id", account.ID),
		zap.Float64("total_value", total),
	)
	return nil
}

// RecordFutures appends a FuturesBalanceHistory row from the live account
// wallet balance and unrealized PnL.
func (s *SnapshotRecorder) RecordFutures(account *models.Account, client binance.FuturesClientInterface) error {
	info, err := client.GetAccount()
	if err != nil {
		return fmt.Errorf("failed to fetch futures account for snapshot: %w", err)
	}

	wallet := info.WalletBalance()
	unrealized := info.UnrealizedPnl()

	row := &models.FuturesBalanceHistory{
		AccountID:     account.ID,
		WalletBalance: wallet,
		UnrealizedPnl: unrealized,
		TotalValue:    wallet + unrealized,
	}
	if err := s.db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to append futures balance snapshot: %w", err)
	}
	s.logger.Debug("Futures balance snapshot appended",
		zap.Uint("account_id", account.ID),
		zap.Float64("total_value", row.TotalValue),
	)
	return nil
}

// SpotTotalValue prices every balance in USDT terms. Stablecoin quote
// assets count at face value; assets with no USDT ticker are skipped.
func SpotTotalValue(info *binance.SpotAccountInfo, prices map[string]float64) float64 {
	total := 0.0
	for _, b := range info.Balances {
		qty := parseBalance(b.Free) + parseBalance(b.Locked)
		if qty <= 0 {
			continue
		}
		asset := strings.ToUpper(b.Asset)
		if asset == "USDT" || asset == "BUSD" || asset == "USDC" {
			total += qty
			continue
		}
		if price, ok := prices[asset+"USDT"]; ok && price > 0 {
			total += qty * price
		}
	}
	return total
}

func parseBalance(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
