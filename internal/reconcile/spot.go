package reconcile

import (
	"fmt"

	"binance-ai-trader/internal/executor"
	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SpotRecorder writes spot fills to the trade ledger with realized PnL
// derived from the pre-trade cost basis.
type SpotRecorder struct {
	db            *gorm.DB
	dustThreshold float64
	logger        *zap.Logger
}

// NewSpotRecorder creates a SpotRecorder.
func NewSpotRecorder(db *gorm.DB, dustThreshold float64, logger *zap.Logger) *SpotRecorder {
	return &SpotRecorder{
		db:            db,
		dustThreshold: dustThreshold,
		logger:        logger.Named("reconcile"),
	}
}

// RecordFill persists one spot fill. For SELL fills, avgCost and heldValue
// come from the pre-trade ledger read: realized PnL is computed against the
// average cost, and a sell of a holding the ledger valued below the dust
// threshold is tagged as a dust close.
func (s *SpotRecorder) RecordFill(account *models.Account, d *models.Decision, res *executor.Result, avgCost, heldValue float64) error {
	trade := &models.Trade{
		AccountID:     account.ID,
		Symbol:        res.Symbol,
		Side:          res.Side,
		Quantity:      res.Quantity,
		Price:         res.Price,
		QuoteQuantity: res.QuoteQuantity,
	}
	if d != nil {
		id := d.ID
		trade.DecisionID = &id
	}

	if res.Side == "SELL" {
		pnl := (res.Price - avgCost) * res.Quantity
		trade.RealizedPnl = &pnl
		if heldValue < s.dustThreshold {
			trade.IsDustClose = true
		}
	}

	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("failed to persist trade row: %w", err)
	}

	fields := []zap.Field{
		zap.Uint("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", trade.Side),
		zap.Float64("quantity", trade.Quantity),
	}
	if trade.RealizedPnl != nil {
		fields = append(fields, zap.Float64("realized_pnl", *trade.RealizedPnl), zap.Bool("dust_close", trade.IsDustClose))
	}
	s.logger.Info("Trade recorded", fields...)
	return nil
}
