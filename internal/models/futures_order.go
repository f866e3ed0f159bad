package models

import "gorm.io/gorm"

// FuturesOrder represents one executed futures fill. Rows are immutable once
// created, except for backfilling RealizedPnl and Leverage discovered after
// the fact.
type FuturesOrder struct {
	gorm.Model
	AccountID     uint   `gorm:"index"`
	Symbol        string `gorm:"index"`
	Side          string // "BUY" or "SELL"
	PositionSide  string // "LONG" or "SHORT"
	Quantity      float64
	Price         float64
	QuoteQuantity float64
	ReduceOnly    bool

	Leverage *int

	// Non-nil only on closing fills.
	RealizedPnl *float64

	IsDustClose bool `gorm:"default:false"`

	DecisionID *uint `gorm:"index"`
}
