package models

import "gorm.io/gorm"

// BalanceHistory is an append-only snapshot of a spot account's total value
// at live market prices. Used solely to reconstruct historical value curves.
type BalanceHistory struct {
	gorm.Model
	AccountID  uint `gorm:"index"`
	TotalValue float64
}

// FuturesBalanceHistory is an append-only snapshot of a futures account's
// wallet balance and unrealized PnL.
type FuturesBalanceHistory struct {
	gorm.Model
	AccountID     uint `gorm:"index"`
	WalletBalance float64
	UnrealizedPnl float64
	TotalValue    float64 // wallet balance + unrealized PnL
}
