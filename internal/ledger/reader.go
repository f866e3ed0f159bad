// Package ledger reconstructs current holdings and open positions from the
// local trade/order ledger.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"binance-ai-trader/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Holding is one spot asset position reconstructed from the trade ledger.
type Holding struct {
	Symbol   string
	Quantity float64
	AvgCost  float64
	Price    float64
	Value    float64
	// UnrealizedPnl is mark-to-market against the average cost.
	UnrealizedPnl float64
	// IsDust marks holdings below the minimum tradeable notional; they are
	// reported for bookkeeping but excluded from trade sizing.
	IsDust bool
}

// PositionView is one open futures position with its mark-to-market state.
type PositionView struct {
	Position      models.Position
	MarkPrice     float64
	UnrealizedPnl float64
	IsDust        bool
}

// Reader reads the local ledger. It never mutates rows.
type Reader struct {
	db            *gorm.DB
	dustThreshold float64
	logger        *zap.Logger
}

// NewReader creates a ledger Reader. dustThreshold is the notional value in
// quote currency below which a holding or position counts as dust.
func NewReader(db *gorm.DB, dustThreshold float64, logger *zap.Logger) *Reader {
	return &Reader{
		db:            db,
		dustThreshold: dustThreshold,
		logger:        logger.Named("ledger"),
	}
}

// SpotHoldings replays the account's trade ledger into current holdings.
// prices maps symbol to live price; holdings with no live price keep a zero
// value and are flagged as dust.
func (r *Reader) SpotHoldings(accountID uint, prices map[string]float64, minNotional float64) ([]Holding, error) {
	var trades []models.Trade
	if err := r.db.Where("account_id = ?", accountID).Order("created_at asc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades for account %d: %w", accountID, err)
	}

	type acc struct {
		qty  float64
		cost float64 // total quote spent on the current lot
	}
	book := make(map[string]*acc)

	for _, t := range trades {
		a := book[t.Symbol]
		if a == nil {
			a = &acc{}
			book[t.Symbol] = a
		}
		switch t.Side {
		case "BUY":
			a.qty += t.Quantity
			a.cost += t.QuoteQuantity
		case "SELL":
			if a.qty <= 0 {
				continue
			}
			// Reduce cost basis proportionally to the quantity sold.
			fraction := t.Quantity / a.qty
			if fraction > 1 {
				fraction = 1
			}
			a.cost -= a.cost * fraction
			a.qty -= t.Quantity
			if a.qty < 0 {
				a.qty = 0
				a.cost = 0
			}
		}
	}

	threshold := r.dustThreshold
	if minNotional > threshold {
		threshold = minNotional
	}

	holdings := make([]Holding, 0, len(book))
	for symbol, a := range book {
		if a.qty <= 0 {
			continue
		}
		h := Holding{
			Symbol:   symbol,
			Quantity: a.qty,
		}
		if a.qty > 0 {
			h.AvgCost = a.cost / a.qty
		}
		if price, ok := prices[symbol]; ok && price > 0 {
			h.Price = price
			h.Value = a.qty * price
			h.UnrealizedPnl = (price - h.AvgCost) * a.qty
		}
		h.IsDust = h.Value < threshold
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// Tradeable filters out dust holdings.
func Tradeable(holdings []Holding) []Holding {
	out := make([]Holding, 0, len(holdings))
	for _, h := range holdings {
		if !h.IsDust {
			out = append(out, h)
		}
	}
	return out
}

// OpenPositions loads the account's OPEN futures positions and marks them
// to market against the given mark prices.
func (r *Reader) OpenPositions(accountID uint, markPrices map[string]float64) ([]PositionView, error) {
	var positions []models.Position
	err := r.db.Where("account_id = ? AND status = ?", accountID, models.PositionStatusOpen).
		Order("created_at asc").Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open positions for account %d: %w", accountID, err)
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		v := PositionView{Position: p}
		if mark, ok := markPrices[p.Symbol]; ok && mark > 0 {
			v.MarkPrice = mark
			v.UnrealizedPnl = (mark - p.EntryPrice) * p.SideSign() * p.Quantity
			v.IsDust = p.Quantity*mark < r.dustThreshold
		} else {
			v.IsDust = p.Quantity <= 0
		}
		views = append(views, v)
	}
	return views, nil
}

// DailyRealizedLoss returns today's realized loss (a non-negative number)
// for the account: the sum of negative realized PnL on fills created since
// local midnight.
func (r *Reader) DailyRealizedLoss(accountID uint, mode string, now time.Time) (float64, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var pnls []float64
	var err error
	if strings.EqualFold(mode, models.ModeFutures) {
		err = r.db.Model(&models.FuturesOrder{}).
			Where("account_id = ? AND created_at >= ? AND realized_pnl < 0", accountID, midnight).
			Pluck("realized_pnl", &pnls).Error
	} else {
		err = r.db.Model(&models.Trade{}).
			Where("account_id = ? AND created_at >= ? AND realized_pnl < 0", accountID, midnight).
			Pluck("realized_pnl", &pnls).Error
	}
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily realized loss for account %d: %w", accountID, err)
	}

	loss := 0.0
	for _, p := range pnls {
		loss += -p
	}
	return loss, nil
}
