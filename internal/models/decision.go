package models

import (
	"time"

	"gorm.io/gorm"
)

// Decision actions.
const (
	ActionHold       = "HOLD"
	ActionBuy        = "BUY"
	ActionSell       = "SELL"
	ActionOpenLong   = "OPEN_LONG"
	ActionOpenShort  = "OPEN_SHORT"
	ActionCloseLong  = "CLOSE_LONG"
	ActionCloseShort = "CLOSE_SHORT"
)

// Decision risk levels.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Decision outcomes. A nil Outcome means the decision is still pending.
const (
	OutcomeSuccess   = "SUCCESS"
	OutcomeFailed    = "FAILED"
	OutcomeCancelled = "CANCELLED"
)

// Decision is the model's structured recommendation for one analysis cycle.
// Created once per cycle; Outcome, CancelReason, Executed and ExecutedAt are
// the only mutable fields and are set exactly once, by either the risk gate
// or the order executor.
type Decision struct {
	gorm.Model
	AccountID uint   `gorm:"index"`
	Mode      string // SPOT or FUTURES

	Action     string
	Symbol     string
	Confidence float64 // 0..1
	RiskLevel  string  // LOW, MEDIUM, HIGH

	// Quote amount for spot, margin for futures.
	Amount   float64
	Leverage int

	// 0 means the model did not suggest a level.
	StopLoss   float64
	TakeProfit float64

	// Raw model reasoning text, kept verbatim.
	Reasoning string

	Outcome      *string
	CancelReason string
	Executed     bool `gorm:"default:false"`
	ExecutedAt   *time.Time
}

// IsEntry reports whether the action commits new capital (BUY/OPEN_*), as
// opposed to reducing existing exposure.
func IsEntry(action string) bool {
	switch action {
	case ActionBuy, ActionOpenLong, ActionOpenShort:
		return true
	}
	return false
}

// IsClose reports whether the action reduces existing exposure.
func IsClose(action string) bool {
	switch action {
	case ActionSell, ActionCloseLong, ActionCloseShort:
		return true
	}
	return false
}
