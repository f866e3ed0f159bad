package models

import "gorm.io/gorm"

// Trade represents one executed spot fill. Rows are immutable once created,
// except for backfilling RealizedPnl on closing fills.
type Trade struct {
	gorm.Model
	AccountID     uint   `gorm:"index"`
	Symbol        string `gorm:"index"`
	Side          string // "BUY" or "SELL"
	Quantity      float64
	Price         float64
	QuoteQuantity float64

	// Non-nil only on closing (SELL) fills.
	RealizedPnl *float64

	// Set when the fill closed a holding the ledger no longer tracked at
	// meaningful value; such fills are bookkeeping only.
	IsDustClose bool `gorm:"default:false"`

	DecisionID *uint `gorm:"index"`
}
