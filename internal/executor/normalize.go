package executor

import (
	"fmt"

	"binance-ai-trader/internal/binance"
	"github.com/shopspring/decimal"
)

// NormalizeQuantity rounds a requested quantity down to the symbol's step
// size and caps it at maxQty. A quantity that floors below minQty is an
// error rather than being bumped up, so normalization can never increase an
// order. The operation is idempotent: normalizing an already-normalized
// quantity returns it unchanged.
func NormalizeQuantity(quantity float64, rules *binance.SymbolRules) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity %.8f is not positive", quantity)
	}

	qty := decimal.NewFromFloat(quantity)

	if rules.MaxQty > 0 {
		max := decimal.NewFromFloat(rules.MaxQty)
		if qty.GreaterThan(max) {
			qty = max
		}
	}

	if rules.StepSize > 0 {
		step := decimal.NewFromFloat(rules.StepSize)
		qty = qty.Div(step).Floor().Mul(step)
	}

	result, _ := qty.Float64()
	if result < rules.MinQty || result <= 0 {
		return 0, fmt.Errorf("quantity %.8f floors below minQty %.8f for %s", quantity, rules.MinQty, rules.Symbol)
	}
	return result, nil
}

// CheckNotional verifies quantity*price against the exchange minimum. This
// runs at execution time with the live price, independent of the risk
// gate's static bound.
func CheckNotional(quantity, price float64, rules *binance.SymbolRules) error {
	notional := quantity * price
	if rules.MinNotional > 0 && notional < rules.MinNotional {
		return fmt.Errorf("notional $%.2f below exchange minimum $%.2f for %s", notional, rules.MinNotional, rules.Symbol)
	}
	return nil
}
