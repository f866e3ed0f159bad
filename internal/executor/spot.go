// Package executor normalizes decision quantities to exchange rules and
// places market orders, returning best-effort execution results.
package executor

import (
	"fmt"
	"strconv"
	"time"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SpotExecutor places spot market orders for gated decisions.
type SpotExecutor struct {
	client binance.SpotClientInterface
	db     *gorm.DB
	logger *zap.Logger
}

// NewSpotExecutor creates a SpotExecutor.
func NewSpotExecutor(client binance.SpotClientInterface, db *gorm.DB, logger *zap.Logger) *SpotExecutor {
	return &SpotExecutor{
		client: client,
		db:     db,
		logger: logger.Named("executor"),
	}
}

// Execute places the market order for a decision that passed the risk gate.
// heldQty caps SELL quantities at the actual holding so a stale decision can
// never oversell. On any exchange error the decision is marked FAILED and
// no ledger row is written for the failed order.
func (e *SpotExecutor) Execute(d *models.Decision, heldQty float64) (*Result, error) {
	price, err := e.client.GetTickerPrice(d.Symbol)
	if err != nil {
		return nil, e.failed(d, fmt.Errorf("failed to resolve live price: %w", err))
	}
	if price <= 0 {
		return nil, e.failed(d, fmt.Errorf("invalid live price %.8f for %s", price, d.Symbol))
	}

	rules, err := e.client.GetSymbolRules(d.Symbol)
	if err != nil {
		return nil, e.failed(d, fmt.Errorf("failed to resolve symbol rules: %w", err))
	}

	quantity := d.Amount / price
	side := binance.OrderSideBuy
	if d.Action == models.ActionSell {
		side = binance.OrderSideSell
		if heldQty > 0 && quantity > heldQty {
			quantity = heldQty
		}
	}

	normalized, err := NormalizeQuantity(quantity, rules)
	if err != nil {
		return nil, e.failed(d, err)
	}
	if err := CheckNotional(normalized, price, rules); err != nil {
		return nil, e.failed(d, err)
	}

	e.logger.Info("Placing spot market order",
		zap.Uint("decision_id", d.ID),
		zap.String("symbol", d.Symbol),
		zap.String("side", side),
		zap.Float64("quantity", normalized),
	)

	order, err := e.client.CreateMarketOrder(d.Symbol, side, normalized)
	if err != nil {
		return nil, e.failed(d, fmt.Errorf("order rejected: %w", err))
	}

	result := &Result{
		Symbol:       d.Symbol,
		Side:         side,
		OrderID:      order.OrderID,
		RequestedQty: normalized,
	}

	// The exchange response is authoritative when present.
	executedQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQty, 64)
	if executedQty > 0 {
		result.Quantity = executedQty
		result.QuantityConfirmed = true
	} else {
		result.Quantity = normalized
	}
	if executedQty > 0 && quoteQty > 0 {
		result.Price = quoteQty / executedQty
		result.QuoteQuantity = quoteQty
		result.PriceConfirmed = true
	} else {
		result.Price = price
		result.QuoteQuantity = result.Quantity * price
	}

	if err := e.markExecuted(d); err != nil {
		return nil, err
	}
	return result, nil
}

// failed marks the decision FAILED with the error message and returns the
// error for the caller to surface.
func (e *SpotExecutor) failed(d *models.Decision, cause error) error {
	markFailed(e.db, e.logger, d, cause)
	return cause
}

func (e *SpotExecutor) markExecuted(d *models.Decision) error {
	return markExecuted(e.db, e.logger, d)
}

// markExecuted records a one-shot SUCCESS outcome.
func markExecuted(db *gorm.DB, logger *zap.Logger, d *models.Decision) error {
	now := time.Now()
	outcome := models.OutcomeSuccess
	err := db.Model(d).Where("outcome IS NULL").Updates(map[string]interface{}{
		"outcome":     outcome,
		"executed":    true,
		"executed_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark decision %d executed: %w", d.ID, err)
	}
	d.Outcome = &outcome
	d.Executed = true
	d.ExecutedAt = &now
	return nil
}

// markFailed records a one-shot FAILED outcome. A persistence error here is
// logged but not returned: the original execution error matters more.
func markFailed(db *gorm.DB, logger *zap.Logger, d *models.Decision, cause error) {
	now := time.Now()
	outcome := models.OutcomeFailed
	err := db.Model(d).Where("outcome IS NULL").Updates(map[string]interface{}{
		"outcome":       outcome,
		"cancel_reason": cause.Error(),
		"executed_at":   now,
	}).Error
	if err != nil {
		logger.Error("Failed to persist FAILED outcome", zap.Uint("decision_id", d.ID), zap.Error(err))
		return
	}
	d.Outcome = &outcome
	d.CancelReason = cause.Error()
	d.ExecutedAt = &now
}
