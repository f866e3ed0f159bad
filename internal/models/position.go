package models

import (
	"time"

	"gorm.io/gorm"
)

// Position sides.
const (
	PositionSideLong  = "LONG"
	PositionSideShort = "SHORT"
)

// Position statuses. CLOSED is a one-way transition: no update may ever set
// a CLOSED position back to OPEN.
const (
	PositionStatusOpen   = "OPEN"
	PositionStatusClosed = "CLOSED"
)

// Position is the mutable futures position aggregate. Created on open,
// reduced on partial close, set CLOSED on full close. A trade against an
// already-CLOSED position is a dust close and is recorded on the order row
// only, never here.
type Position struct {
	gorm.Model
	AccountID  uint   `gorm:"index"`
	Symbol     string `gorm:"index"`
	Side       string // LONG or SHORT
	EntryPrice float64
	Quantity   float64
	Margin     float64
	Leverage   int

	// Realized PnL accumulated across this position's partial closes.
	RealizedPnl float64

	Status   string `gorm:"index;default:OPEN"`
	ClosedAt *time.Time
}

// SideSign returns +1 for LONG and -1 for SHORT, the multiplier used in
// (closePrice - entryPrice) * sign * qty.
func (p *Position) SideSign() float64 {
	if p.Side == PositionSideShort {
		return -1
	}
	return 1
}
