// Package decision turns market and ledger state into a persisted, risk-
// gateable trade decision via one language-model call.
package decision

import (
	"context"
	"fmt"

	"binance-ai-trader/internal/ledger"
	"binance-ai-trader/internal/llm"
	"binance-ai-trader/internal/market"
	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine builds the analysis prompt, calls the model once and persists the
// parsed decision.
type Engine struct {
	completer llm.Completer
	db        *gorm.DB
	logger    *zap.Logger
}

// NewEngine creates a decision Engine.
func NewEngine(completer llm.Completer, db *gorm.DB, logger *zap.Logger) *Engine {
	return &Engine{
		completer: completer,
		db:        db,
		logger:    logger.Named("decision"),
	}
}

// AnalyzeSpot runs one spot analysis cycle: prompt, model call, parse,
// persist. A model-call failure aborts with no Decision persisted; a
// malformed reply degrades to HOLD with defaults.
func (e *Engine) AnalyzeSpot(ctx context.Context, account *models.Account, snapshots []market.Snapshot, holdings []ledger.Holding) (*models.Decision, error) {
	prompt := BuildSpotPrompt(snapshots, holdings, account)
	return e.analyze(ctx, account, models.ModeSpot, prompt)
}

// AnalyzeFutures runs one futures analysis cycle.
func (e *Engine) AnalyzeFutures(ctx context.Context, account *models.Account, snapshots []market.Snapshot, positions []ledger.PositionView) (*models.Decision, error) {
	prompt := BuildFuturesPrompt(snapshots, positions, account)
	return e.analyze(ctx, account, models.ModeFutures, prompt)
}

func (e *Engine) analyze(ctx context.Context, account *models.Account, mode, prompt string) (*models.Decision, error) {
	reply, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		// No partial state: the cycle aborts and no Decision row exists.
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	parsed := Parse(reply)
	if len(parsed.Missing) > 0 {
		e.logger.Warn("Model reply missing fields, defaults applied",
			zap.Uint("account_id", account.ID),
			zap.Strings("missing", parsed.Missing),
		)
	}

	d := &models.Decision{
		AccountID:  account.ID,
		Mode:       mode,
		Action:     parsed.Action,
		Symbol:     parsed.Symbol,
		Confidence: parsed.Confidence,
		RiskLevel:  parsed.RiskLevel,
		Amount:     parsed.Amount,
		Leverage:   parsed.Leverage,
		StopLoss:   parsed.StopLoss,
		TakeProfit: parsed.TakeProfit,
		Reasoning:  reply,
	}
	if err := e.db.Create(d).Error; err != nil {
		return nil, fmt.Errorf("failed to persist decision: %w", err)
	}

	e.logger.Info("Decision recorded",
		zap.Uint("decision_id", d.ID),
		zap.String("action", d.Action),
		zap.String("symbol", d.Symbol),
		zap.Float64("confidence", d.Confidence),
		zap.String("risk_level", d.RiskLevel),
	)
	return d, nil
}
