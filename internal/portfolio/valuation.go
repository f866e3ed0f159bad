// Package portfolio derives account valuation from the ledger, snapshots
// and live exchange state. Everything here is a side-effect-free read.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/ledger"
	"binance-ai-trader/internal/models"
	"binance-ai-trader/internal/reconcile"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Valuation is the derived portfolio state for one account.
type Valuation struct {
	InitialInvestment float64
	CurrentValue      float64
	TotalRealizedPnl  float64
	UnrealizedPnl     float64
	ProfitLoss        float64 // CurrentValue - InitialInvestment
	ProfitPercent     float64
}

// Valuer computes valuations. The same initial-investment derivation is
// used for both modes and everywhere a valuation is needed: the snapshot
// taken right after the first trade (minus that trade's own PnL), falling
// back to reverse-solving from current state when no such snapshot exists.
type Valuer struct {
	db     *gorm.DB
	reader *ledger.Reader
	logger *zap.Logger
}

// NewValuer creates a Valuer.
func NewValuer(db *gorm.DB, reader *ledger.Reader, logger *zap.Logger) *Valuer {
	return &Valuer{
		db:     db,
		reader: reader,
		logger: logger.Named("portfolio"),
	}
}

// SpotValuation values the spot account: current free/locked balances at
// live market rates.
func (v *Valuer) SpotValuation(account *models.Account, client binance.SpotClientInterface) (*Valuation, error) {
	info, err := client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spot account: %w", err)
	}
	prices, err := client.GetAllTickerPrices()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	current := reconcile.SpotTotalValue(info, prices)

	realized, err := v.totalRealizedPnl(account.ID, models.ModeSpot)
	if err != nil {
		return nil, err
	}

	holdings, err := v.reader.SpotHoldings(account.ID, prices, 0)
	if err != nil {
		return nil, err
	}
	unrealized := 0.0
	for _, h := range holdings {
		unrealized += h.UnrealizedPnl
	}

	return v.build(account.ID, models.ModeSpot, current, realized, unrealized), nil
}

// FuturesValuation values the futures account: wallet balance plus
// unrealized PnL, both exchange-reported.
func (v *Valuer) FuturesValuation(account *models.Account, client binance.FuturesClientInterface) (*Valuation, error) {
	info, err := client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch futures account: %w", err)
	}

	current := info.WalletBalance() + info.UnrealizedPnl()

	realized, err := v.totalRealizedPnl(account.ID, models.ModeFutures)
	if err != nil {
		return nil, err
	}

	return v.build(account.ID, models.ModeFutures, current, realized, info.UnrealizedPnl()), nil
}

func (v *Valuer) build(accountID uint, mode string, current, realized, unrealized float64) *Valuation {
	initial := v.initialInvestment(accountID, mode, current, realized, unrealized)

	val := &Valuation{
		InitialInvestment: initial,
		CurrentValue:      current,
		TotalRealizedPnl:  realized,
		UnrealizedPnl:     unrealized,
		ProfitLoss:        current - initial,
	}
	if initial > 0 {
		val.ProfitPercent = val.ProfitLoss / initial * 100
	}
	return val
}

// initialInvestment reconstructs the pre-trading account value: the first
// snapshot taken at or after the first trade, minus that trade's own PnL.
// Without such a snapshot it reverse-solves
// initial = current − totalRealized − unrealized.
func (v *Valuer) initialInvestment(accountID uint, mode string, current, realized, unrealized float64) float64 {
	firstTradeAt, firstTradePnl, found := v.firstTrade(accountID, mode)
	if found {
		snapshotValue, ok := v.firstSnapshotAfter(accountID, mode, firstTradeAt)
		if ok {
			return snapshotValue - firstTradePnl
		}
	}
	return current - realized - unrealized
}

func (v *Valuer) firstTrade(accountID uint, mode string) (createdAt time.Time, pnl float64, found bool) {
	if mode == models.ModeFutures {
		var order models.FuturesOrder
		err := v.db.Where("account_id = ?", accountID).Order("created_at asc").First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, 0, false
		}
		if err != nil {
			v.logger.Error("Failed to load first order", zap.Uint("account_id", accountID), zap.Error(err))
			return time.Time{}, 0, false
		}
		if order.RealizedPnl != nil {
			pnl = *order.RealizedPnl
		}
		return order.CreatedAt, pnl, true
	}

	var trade models.Trade
	err := v.db.Where("account_id = ?", accountID).Order("created_at asc").First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, 0, false
	}
	if err != nil {
		v.logger.Error("Failed to load first trade", zap.Uint("account_id", accountID), zap.Error(err))
		return time.Time{}, 0, false
	}
	if trade.RealizedPnl != nil {
		pnl = *trade.RealizedPnl
	}
	return trade.CreatedAt, pnl, true
}

func (v *Valuer) firstSnapshotAfter(accountID uint, mode string, at time.Time) (float64, bool) {
	if mode == models.ModeFutures {
		var snap models.FuturesBalanceHistory
		err := v.db.Where("account_id = ? AND created_at >= ?", accountID, at).
			Order("created_at asc").First(&snap).Error
		if err != nil {
			return 0, false
		}
		return snap.TotalValue, true
	}

	var snap models.BalanceHistory
	err := v.db.Where("account_id = ? AND created_at >= ?", accountID, at).
		Order("created_at asc").First(&snap).Error
	if err != nil {
		return 0, false
	}
	return snap.TotalValue, true
}

func (v *Valuer) totalRealizedPnl(accountID uint, mode string) (float64, error) {
	var pnls []float64
	var err error
	if mode == models.ModeFutures {
		err = v.db.Model(&models.FuturesOrder{}).
			Where("account_id = ? AND realized_pnl IS NOT NULL", accountID).
			Pluck("realized_pnl", &pnls).Error
	} else {
		err = v.db.Model(&models.Trade{}).
			Where("account_id = ? AND realized_pnl IS NOT NULL", accountID).
			Pluck("realized_pnl", &pnls).Error
	}
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl for account %d: %w", accountID, err)
	}
	total := 0.0
	for _, p := range pnls {
		total += p
	}
	return total, nil
}
