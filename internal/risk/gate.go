// Package risk implements the ordered account-limit checks a decision must
// pass before order placement.
package risk

import (
	"fmt"
	"strings"
	"time"

	"binance-ai-trader/internal/ledger"
	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result is the outcome of gate evaluation. A failed result carries the
// human-readable cancellation reason that gets persisted on the decision.
type Result struct {
	Passed bool
	Reason string
}

func pass() Result { return Result{Passed: true} }

func fail(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Gate evaluates decisions against account-level limits. Checks run in a
// fixed order and the first failure short-circuits.
type Gate struct {
	db           *gorm.DB
	reader       *ledger.Reader
	spotFloor    float64
	futuresFloor float64
	logger       *zap.Logger
}

// NewGate creates a risk Gate. spotFloor and futuresFloor are the
// mode-specific confidence minima.
func NewGate(db *gorm.DB, reader *ledger.Reader, spotFloor, futuresFloor float64, logger *zap.Logger) *Gate {
	return &Gate{
		db:           db,
		reader:       reader,
		spotFloor:    spotFloor,
		futuresFloor: futuresFloor,
		logger:       logger.Named("risk"),
	}
}

// Evaluate runs the check sequence for a non-HOLD decision. minAmount is
// the static notional floor for the mode (the $5 spot floor; the executor
// re-checks against live exchange rules either way). The caller is expected
// to have short-circuited HOLD decisions already.
func (g *Gate) Evaluate(d *models.Decision, account *models.Account, minAmount float64) Result {
	// 1. HOLD never trades. Callers handle HOLD before the gate; this check
	// is terminal if one slips through.
	if d.Action == models.ActionHold {
		return fail("HOLD 决策不执行交易")
	}

	// 2. Confidence floor.
	floor := g.spotFloor
	if d.Mode == models.ModeFutures {
		floor = g.futuresFloor
	}
	if d.Confidence < floor {
		return fail("信心指数过低 (%.2f < %.2f)", d.Confidence, floor)
	}

	// 3. Symbol whitelist.
	if d.Symbol == "" || !symbolAllowed(d.Symbol, account.AllowedSymbols) {
		return fail("交易币种 %s 不在允许交易列表中", d.Symbol)
	}

	// 4. Daily loss cap. Entries only: closing reduces exposure and stays
	// allowed even after the cap is hit.
	if models.IsEntry(d.Action) && account.MaxDailyLoss > 0 {
		loss, err := g.reader.DailyRealizedLoss(account.ID, d.Mode, time.Now())
		if err != nil {
			g.logger.Error("Failed to compute daily realized loss", zap.Uint("account_id", account.ID), zap.Error(err))
			return fail("无法计算当日已实现亏损")
		}
		if loss >= account.MaxDailyLoss {
			return fail("已达每日最大亏损限制 ($%.2f / $%.2f)", loss, account.MaxDailyLoss)
		}
	}

	// 5. Amount bounds. Closing actions are exempt from the upper bound:
	// closing risk is bounded by the existing holding, not a new commitment.
	if d.Amount <= 0 {
		return fail("交易金额无效 ($%.2f)", d.Amount)
	}
	if d.Amount < minAmount {
		return fail("交易金额过小 ($%.2f < $%.2f)", d.Amount, minAmount)
	}
	if models.IsEntry(d.Action) {
		if d.Mode == models.ModeFutures {
			if account.MaxPositionSize > 0 && d.Amount > account.MaxPositionSize {
				return fail("保证金超过单笔上限 $%.2f", account.MaxPositionSize)
			}
		} else {
			if account.MaxTradeAmount > 0 && d.Amount > account.MaxTradeAmount {
				return fail("交易金额超过单笔上限 $%.2f", account.MaxTradeAmount)
			}
		}
	}

	// 6. Leverage cap (futures only).
	if d.Mode == models.ModeFutures && account.MaxLeverage > 0 && d.Leverage > account.MaxLeverage {
		return fail("杠杆倍数超过上限 (%dx > %dx)", d.Leverage, account.MaxLeverage)
	}

	return pass()
}

// MarkCancelled persists a terminal CANCELLED outcome with the given
// reason. The guard on outcome keeps the transition one-shot.
func (g *Gate) MarkCancelled(d *models.Decision, reason string) error {
	now := time.Now()
	outcome := models.OutcomeCancelled
	err := g.db.Model(d).Where("outcome IS NULL").Updates(map[string]interface{}{
		"outcome":       outcome,
		"cancel_reason": reason,
		"executed_at":   now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark decision %d cancelled: %w", d.ID, err)
	}
	d.Outcome = &outcome
	d.CancelReason = reason
	d.ExecutedAt = &now

	g.logger.Info("Decision cancelled by risk gate",
		zap.Uint("decision_id", d.ID),
		zap.String("reason", reason),
	)
	return nil
}

func symbolAllowed(symbol, allowed string) bool {
	for _, s := range strings.Split(allowed, ",") {
		if strings.EqualFold(strings.TrimSpace(s), symbol) {
			return true
		}
	}
	return false
}
