package trader

import (
	"context"
	"fmt"
	"strings"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/decision"
	"binance-ai-trader/internal/executor"
	"binance-ai-trader/internal/ledger"
	"binance-ai-trader/internal/market"
	"binance-ai-trader/internal/models"
	"binance-ai-trader/internal/reconcile"
	"binance-ai-trader/internal/risk"
	"go.uber.org/zap"
)

// pipeline bundles the per-account wiring for one trading mode. Within one
// account the decision→risk→execute→reconcile steps are strictly
// sequential; the runner guarantees no two cycles overlap.
type pipeline struct {
	account *models.Account

	spotClient    binance.SpotClientInterface
	futuresClient binance.FuturesClientInterface

	gatherer *market.Gatherer
	reader   *ledger.Reader
	engine   *decision.Engine
	gate     *risk.Gate

	spotExecutor    *executor.SpotExecutor
	futuresExecutor *executor.FuturesExecutor
	spotRecorder    *reconcile.SpotRecorder
	reconciler      *reconcile.Reconciler
	snapshots       *reconcile.SnapshotRecorder

	spotMinNotional float64
	logger          *zap.Logger
}

// allowedSymbols splits the account whitelist.
func (p *pipeline) allowedSymbols() []string {
	parts := strings.Split(p.account.AllowedSymbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, s := range parts {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

// runSpotCycle runs one spot analysis/execution cycle. The balance snapshot
// at the end is appended regardless of whether a trade executed.
func (p *pipeline) runSpotCycle(ctx context.Context) error {
	symbols := p.allowedSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("account %d has no allowed symbols", p.account.ID)
	}

	snapshots := p.gatherer.GatherSpot(symbols)
	if len(snapshots) == 0 {
		return fmt.Errorf("no market data available for account %d", p.account.ID)
	}

	prices, err := p.spotClient.GetAllTickerPrices()
	if err != nil {
		return fmt.Errorf("failed to fetch prices: %w", err)
	}

	holdings, err := p.reader.SpotHoldings(p.account.ID, prices, p.spotMinNotional)
	if err != nil {
		return err
	}

	d, err := p.engine.AnalyzeSpot(ctx, p.account, snapshots, holdings)
	if err != nil {
		return err
	}

	p.settleSpot(d, holdings)

	if err := p.snapshots.RecordSpot(p.account, p.spotClient); err != nil {
		p.logger.Warn("Balance snapshot failed", zap.Uint("account_id", p.account.ID), zap.Error(err))
	}
	return nil
}

// settleSpot takes the decision through the gate and, on pass, through
// execution and ledger recording.
func (p *pipeline) settleSpot(d *models.Decision, holdings []ledger.Holding) {
	if d.Action == models.ActionHold {
		p.logger.Info("HOLD decision, nothing to execute", zap.Uint("decision_id", d.ID))
		return
	}

	if result := p.gate.Evaluate(d, p.account, p.spotMinNotional); !result.Passed {
		if err := p.gate.MarkCancelled(d, result.Reason); err != nil {
			p.logger.Error("Failed to persist cancellation", zap.Uint("decision_id", d.ID), zap.Error(err))
		}
		return
	}

	var avgCost, heldValue, heldQty float64
	for _, h := range holdings {
		if h.Symbol == d.Symbol {
			avgCost, heldValue, heldQty = h.AvgCost, h.Value, h.Quantity
			break
		}
	}

	res, err := p.spotExecutor.Execute(d, heldQty)
	if err != nil {
		// The executor has already marked the decision FAILED; no ledger row
		// is written for the failed order.
		p.logger.Error("Spot execution failed", zap.Uint("decision_id", d.ID), zap.Error(err))
		return
	}

	if err := p.spotRecorder.RecordFill(p.account, d, res, avgCost, heldValue); err != nil {
		p.logger.Error("Failed to record fill", zap.Uint("decision_id", d.ID), zap.Error(err))
	}
}

// runFuturesCycle runs one futures analysis/execution cycle. The position
// sync against live exchange state is fired asynchronously and never
// blocks the cycle; it only performs OPEN→CLOSED transitions so the race
// with this cycle is safe.
func (p *pipeline) runFuturesCycle(ctx context.Context) error {
	symbols := p.allowedSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("account %d has no allowed symbols", p.account.ID)
	}

	accountID := p.account.ID
	go func() {
		if err := p.reconciler.SyncPositions(accountID); err != nil {
			p.logger.Warn("Position sync failed", zap.Uint("account_id", accountID), zap.Error(err))
		}
	}()

	snapshots := p.gatherer.GatherFutures(symbols)
	if len(snapshots) == 0 {
		return fmt.Errorf("no market data available for account %d", p.account.ID)
	}

	marks := make(map[string]float64, len(snapshots))
	for _, s := range snapshots {
		marks[s.Symbol] = s.Price
	}

	positions, err := p.reader.OpenPositions(p.account.ID, marks)
	if err != nil {
		return err
	}
	// Positions outside the current whitelist still need a mark price for
	// the prompt's unrealized PnL.
	for i, v := range positions {
		if v.MarkPrice > 0 {
			continue
		}
		if mark, err := p.futuresClient.GetMarkPrice(v.Position.Symbol); err == nil && mark > 0 {
			positions[i].MarkPrice = mark
			positions[i].UnrealizedPnl = (mark - v.Position.EntryPrice) * v.Position.SideSign() * v.Position.Quantity
		}
	}

	d, err := p.engine.AnalyzeFutures(ctx, p.account, snapshots, positions)
	if err != nil {
		return err
	}

	p.settleFutures(d)

	if err := p.snapshots.RecordFutures(p.account, p.futuresClient); err != nil {
		p.logger.Warn("Balance snapshot failed", zap.Uint("account_id", p.account.ID), zap.Error(err))
	}
	return nil
}

func (p *pipeline) settleFutures(d *models.Decision) {
	if d.Action == models.ActionHold {
		p.logger.Info("HOLD decision, nothing to execute", zap.Uint("decision_id", d.ID))
		return
	}

	if result := p.gate.Evaluate(d, p.account, 0); !result.Passed {
		if err := p.gate.MarkCancelled(d, result.Reason); err != nil {
			p.logger.Error("Failed to persist cancellation", zap.Uint("decision_id", d.ID), zap.Error(err))
		}
		return
	}

	res, err := p.futuresExecutor.Execute(d)
	if err != nil {
		p.logger.Error("Futures execution failed", zap.Uint("decision_id", d.ID), zap.Error(err))
		return
	}

	var recErr error
	if models.IsEntry(d.Action) {
		recErr = p.reconciler.AfterOpen(p.account, d, res)
	} else {
		recErr = p.reconciler.AfterClose(p.account, d, res)
	}
	if recErr != nil {
		p.logger.Error("Reconciliation failed", zap.Uint("decision_id", d.ID), zap.Error(recErr))
	}
}
