package executor

import (
	"fmt"
	"strconv"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FuturesExecutor places futures market orders for gated decisions.
type FuturesExecutor struct {
	client binance.FuturesClientInterface
	db     *gorm.DB
	logger *zap.Logger
}

// NewFuturesExecutor creates a FuturesExecutor.
func NewFuturesExecutor(client binance.FuturesClientInterface, db *gorm.DB, logger *zap.Logger) *FuturesExecutor {
	return &FuturesExecutor{
		client: client,
		db:     db,
		logger: logger.Named("executor"),
	}
}

// Execute places the futures market order for a gated decision. Opens set
// leverage on the exchange first; closes are capped at the live position
// size and submitted reduce-only so a close can never flip into an opposite
// position.
func (e *FuturesExecutor) Execute(d *models.Decision) (*Result, error) {
	price, err := e.client.GetMarkPrice(d.Symbol)
	if err != nil {
		return nil, e.failed(d, fmt.Errorf("failed to resolve mark price: %w", err))
	}
	if price <= 0 {
		return nil, e.failed(d, fmt.Errorf("invalid mark price %.8f for %s", price, d.Symbol))
	}

	rules, err := e.client.GetSymbolRules(d.Symbol)
	if err != nil {
		return nil, e.failed(d, fmt.Errorf("failed to resolve symbol rules: %w", err))
	}

	leverage := d.Leverage
	if leverage < 1 {
		leverage = 1
	}

	var side, positionSide string
	var quantity float64
	reduceOnly := false

	switch d.Action {
	case models.ActionOpenLong, models.ActionOpenShort:
		side = binance.OrderSideBuy
		positionSide = binance.PositionSideLong
		if d.Action == models.ActionOpenShort {
			side = binance.OrderSideSell
			positionSide = binance.PositionSideShort
		}
		// Leverage must be in place before sizing takes effect exchange-side.
		if err := e.client.SetLeverage(d.Symbol, leverage); err != nil {
			return nil, e.failed(d, fmt.Errorf("failed to set leverage: %w", err))
		}
		quantity = d.Amount * float64(leverage) / price

	case models.ActionCloseLong, models.ActionCloseShort:
		side = binance.OrderSideSell
		positionSide = binance.PositionSideLong
		if d.Action == models.ActionCloseShort {
			side = binance.OrderSideBuy
			positionSide = binance.PositionSideShort
		}
		reduceOnly = true

		liveQty, err := e.livePositionQty(d.Symbol, positionSide)
		if err != nil {
			return nil, e.failed(d, err)
		}
		if liveQty <= 0 {
			return nil, e.failed(d, fmt.Errorf("no live %s position for %s to close", positionSide, d.Symbol))
		}

		// Never request more than what is actually open.
		quantity = d.Amount / price
		if quantity <= 0 || quantity > liveQty {
			quantity = liveQty
		}

	default:
		return nil, e.failed(d, fmt.Errorf("unsupported futures action %s", d.Action))
	}

	normalized, err := NormalizeQuantity(quantity, rules)
	if err != nil {
		return nil, e.failed(d, err)
	}
	if !reduceOnly {
		// Closes may legitimately fall under the notional floor; reduce-only
		// orders are exempt exchange-side.
		if err := CheckNotional(normalized, price, rules); err != nil {
			return nil, e.failed(d, err)
		}
	}

	e.logger.Info("Placing futures market order",
		zap.Uint("decision_id", d.ID),
		zap.String("symbol", d.Symbol),
		zap.String("side", side),
		zap.String("position_side", positionSide),
		zap.Float64("quantity", normalized),
		zap.Int("leverage", leverage),
		zap.Bool("reduce_only", reduceOnly),
	)

	order, err := e.client.CreateMarketOrder(d.Symbol, side, normalized, "", reduceOnly)
	if err != nil {
		return nil, e.failed(d, fmt.Errorf("order rejected: %w", err))
	}

	result := &Result{
		Symbol:       d.Symbol,
		Side:         side,
		PositionSide: positionSide,
		OrderID:      order.OrderID,
		RequestedQty: normalized,
		Leverage:     leverage,
		ReduceOnly:   reduceOnly,
	}

	executedQty, _ := strconv.ParseFloat(order.ExecutedQty, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	quoteQty, _ := strconv.ParseFloat(order.CumQuote, 64)
	if executedQty > 0 {
		result.Quantity = executedQty
		result.QuantityConfirmed = true
	} else {
		result.Quantity = normalized
	}
	if avgPrice > 0 {
		result.Price = avgPrice
		result.PriceConfirmed = true
	} else {
		result.Price = price
	}
	if quoteQty > 0 {
		result.QuoteQuantity = quoteQty
	} else {
		result.QuoteQuantity = result.Quantity * result.Price
	}

	if err := markExecuted(e.db, e.logger, d); err != nil {
		return nil, err
	}
	return result, nil
}

// livePositionQty returns the absolute live quantity of the symbol/side
// position, 0 when the exchange reports none.
func (e *FuturesExecutor) livePositionQty(symbol, positionSide string) (float64, error) {
	positions, err := e.client.GetPositions(symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch live position: %w", err)
	}
	for _, p := range positions {
		if p.Symbol == symbol && p.Side() == positionSide && p.Quantity() > 0 {
			return p.Quantity(), nil
		}
	}
	return 0, nil
}

func (e *FuturesExecutor) failed(d *models.Decision, cause error) error {
	markFailed(e.db, e.logger, d, cause)
	return cause
}
