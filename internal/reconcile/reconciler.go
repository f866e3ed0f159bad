// Package reconcile keeps the local ledger consistent with live exchange
// state after every execution. Live exchange state always wins over locally
// computed deltas when the two disagree.
package reconcile

import (
	"errors"
	"fmt"
	"time"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/executor"
	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// notionalEpsilon is the live remaining value (in quote currency) below
// which a position counts as fully closed on the exchange.
const notionalEpsilon = 0.1

// qtyEpsilon is the relative tolerance used when verifying an open against
// the live exchange quantity, absorbing step-size rounding.
const qtyEpsilon = 0.01

// Reconciler diffs live futures positions against the local Position ledger.
type Reconciler struct {
	db            *gorm.DB
	client        binance.FuturesClientInterface
	dustThreshold float64
	logger        *zap.Logger
}

// NewReconciler creates a Reconciler. dustThreshold is the notional value
// below which a tracked position no longer participates in close
// accounting.
func NewReconciler(db *gorm.DB, client binance.FuturesClientInterface, dustThreshold float64, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		db:            db,
		client:        client,
		dustThreshold: dustThreshold,
		logger:        logger.Named("reconcile"),
	}
}

// AfterOpen verifies the live exchange position reflects the executed open
// and creates or grows the local Position row. The fill itself is always
// recorded; the Position row is only written from verified live state —
// a Position the exchange does not hold is never fabricated.
func (r *Reconciler) AfterOpen(account *models.Account, d *models.Decision, res *executor.Result) error {
	r.recordOrder(account, d, res, nil, false)

	live, err := r.livePosition(res.Symbol, res.PositionSide)
	if err != nil {
		return fmt.Errorf("failed to verify open: %w", err)
	}
	if live == nil || live.Quantity() < res.Quantity*(1-qtyEpsilon) {
		liveQty := 0.0
		if live != nil {
			liveQty = live.Quantity()
		}
		r.logger.Error("Live position does not reflect executed open, not creating position row",
			zap.String("symbol", res.Symbol),
			zap.String("side", res.PositionSide),
			zap.Float64("executed_qty", res.Quantity),
			zap.Float64("live_qty", liveQty),
		)
		return nil
	}

	entry := live.Entry()
	if entry <= 0 {
		entry = res.Price
	}

	var position models.Position
	err = r.db.Where("account_id = ? AND symbol = ? AND side = ? AND status = ?",
		account.ID, res.Symbol, res.PositionSide, models.PositionStatusOpen).First(&position).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		position = models.Position{
			AccountID:  account.ID,
			Symbol:     res.Symbol,
			Side:       res.PositionSide,
			EntryPrice: entry,
			Quantity:   live.Quantity(),
			Margin:     d.Amount,
			Leverage:   res.Leverage,
			Status:     models.PositionStatusOpen,
		}
		if err := r.db.Create(&position).Error; err != nil {
			return fmt.Errorf("failed to create position row: %w", err)
		}
		r.logger.Info("Position opened",
			zap.Uint("position_id", position.ID),
			zap.String("symbol", position.Symbol),
			zap.String("side", position.Side),
			zap.Float64("quantity", position.Quantity),
		)
	case err != nil:
		return fmt.Errorf("failed to load position row: %w", err)
	default:
		// Adding to an existing position: live exchange aggregates win.
		updates := map[string]interface{}{
			"quantity":    live.Quantity(),
			"entry_price": entry,
			"margin":      position.Margin + d.Amount,
		}
		if err := r.db.Model(&position).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to grow position row: %w", err)
		}
		r.logger.Info("Position increased",
			zap.Uint("position_id", position.ID),
			zap.Float64("quantity", live.Quantity()),
		)
	}
	return nil
}

// AfterClose reconciles a close fill against the local Position row:
// computes realized PnL, classifies dust closes, and applies the live
// remaining quantity. The order row carries the PnL either way.
func (r *Reconciler) AfterClose(account *models.Account, d *models.Decision, res *executor.Result) error {
	var position models.Position
	err := r.db.Where("account_id = ? AND symbol = ? AND side = ?",
		account.ID, res.Symbol, res.PositionSide).Order("created_at desc").First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Nothing tracked at all: bookkeeping-only close.
		pnl := 0.0
		r.recordOrder(account, d, res, &pnl, true)
		r.logger.Warn("Close with no tracked position, recorded as dust close",
			zap.String("symbol", res.Symbol),
			zap.String("side", res.PositionSide),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load position row: %w", err)
	}

	matchedQty := res.Quantity
	if matchedQty > position.Quantity {
		matchedQty = position.Quantity
	}
	pnl := (res.Price - position.EntryPrice) * position.SideSign() * matchedQty

	// A close against an already-CLOSED position, or against a remnant the
	// ledger values below the dust threshold, must not mutate the ledger:
	// it can neither resurrect the row nor drive its quantity negative.
	remainingValue := position.Quantity * res.Price
	if position.Status == models.PositionStatusClosed || remainingValue < r.dustThreshold {
		if position.Status == models.PositionStatusClosed {
			pnl = 0
		}
		r.recordOrder(account, d, res, &pnl, true)
		r.logger.Info("Dust close recorded",
			zap.Uint("position_id", position.ID),
			zap.String("status", position.Status),
			zap.Float64("remaining_value", remainingValue),
		)
		return nil
	}

	r.recordOrder(account, d, res, &pnl, false)

	live, err := r.livePosition(res.Symbol, res.PositionSide)
	if err != nil {
		return fmt.Errorf("failed to read live position after close: %w", err)
	}

	liveQty := 0.0
	if live != nil {
		liveQty = live.Quantity()
	}

	if liveQty*res.Price < notionalEpsilon {
		// Fully closed on the exchange.
		now := time.Now()
		updates := map[string]interface{}{
			"status":       models.PositionStatusClosed,
			"closed_at":    now,
			"quantity":     0.0,
			"realized_pnl": position.RealizedPnl + pnl,
		}
		if err := r.db.Model(&position).Where("status = ?", models.PositionStatusOpen).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to close position row: %w", err)
		}
		r.logger.Info("Position closed",
			zap.Uint("position_id", position.ID),
			zap.Float64("realized_pnl", position.RealizedPnl+pnl),
		)
		return nil
	}

	// Partial close: the live exchange quantity wins over the naive local
	// subtraction.
	updates := map[string]interface{}{
		"quantity":     liveQty,
		"realized_pnl": position.RealizedPnl + pnl,
	}
	if err := r.db.Model(&position).Where("status = ?", models.PositionStatusOpen).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to reduce position row: %w", err)
	}
	if localRemaining := position.Quantity - res.Quantity; localRemaining != liveQty {
		r.logger.Warn("Local remaining quantity disagreed with exchange, live state applied",
			zap.Uint("position_id", position.ID),
			zap.Float64("local_remaining", localRemaining),
			zap.Float64("live_remaining", liveQty),
		)
	}
	return nil
}

// SyncPositions closes any local OPEN position the exchange no longer
// reports, e.g. after a manual exchange-side close. It only ever performs
// the OPEN→CLOSED transition — it never creates or resurrects rows — which
// keeps it safe to run concurrently with an order cycle.
func (r *Reconciler) SyncPositions(accountID uint) error {
	var open []models.Position
	err := r.db.Where("account_id = ? AND status = ?", accountID, models.PositionStatusOpen).Find(&open).Error
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	livePositions, err := r.client.GetPositions("")
	if err != nil {
		return fmt.Errorf("failed to fetch live positions: %w", err)
	}

	liveBySymbolSide := make(map[string]float64, len(livePositions))
	for _, p := range livePositions {
		if p.Quantity() > 0 {
			liveBySymbolSide[p.Symbol+"/"+p.Side()] = p.Quantity()
		}
	}

	for _, position := range open {
		if _, alive := liveBySymbolSide[position.Symbol+"/"+position.Side]; alive {
			continue
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":    models.PositionStatusClosed,
			"closed_at": now,
			"quantity":  0.0,
		}
		err := r.db.Model(&models.Position{}).
			Where("id = ? AND status = ?", position.ID, models.PositionStatusOpen).
			Updates(updates).Error
		if err != nil {
			r.logger.Error("Failed to close orphaned position", zap.Uint("position_id", position.ID), zap.Error(err))
			continue
		}
		r.logger.Warn("Closed local position with no live exchange counterpart",
			zap.Uint("position_id", position.ID),
			zap.String("symbol", position.Symbol),
			zap.String("side", position.Side),
		)
	}
	return nil
}

// recordOrder persists the immutable fill record for an executed order.
func (r *Reconciler) recordOrder(account *models.Account, d *models.Decision, res *executor.Result, pnl *float64, dust bool) *models.FuturesOrder {
	order := &models.FuturesOrder{
		AccountID:     account.ID,
		Symbol:        res.Symbol,
		Side:          res.Side,
		PositionSide:  res.PositionSide,
		Quantity:      res.Quantity,
		Price:         res.Price,
		QuoteQuantity: res.QuoteQuantity,
		ReduceOnly:    res.ReduceOnly,
		RealizedPnl:   pnl,
		IsDustClose:   dust,
	}
	if res.Leverage > 0 {
		lev := res.Leverage
		order.Leverage = &lev
	}
	if d != nil {
		id := d.ID
		order.DecisionID = &id
	}
	if err := r.db.Create(order).Error; err != nil {
		r.logger.Error("Failed to persist order row", zap.String("symbol", res.Symbol), zap.Error(err))
	}
	return order
}

// livePosition returns the live position for symbol/side, nil when the
// exchange reports none.
func (r *Reconciler) livePosition(symbol, side string) (*binance.PositionRisk, error) {
	positions, err := r.client.GetPositions(symbol)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		p := &positions[i]
		if p.Symbol == symbol && p.Side() == side && p.Quantity() > 0 {
			return p, nil
		}
	}
	return nil, nil
}
