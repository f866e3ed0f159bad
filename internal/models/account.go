package models

import "gorm.io/gorm"

// Trading modes. One Account row exists per user per mode.
const (
	ModeSpot    = "SPOT"
	ModeFutures = "FUTURES"
)

// Account holds per-user trading settings and limits for one trading mode.
// It is mutated only through the settings surface; the engine treats it as
// read-only.
type Account struct {
	gorm.Model
	UserID uint   `gorm:"index:idx_user_mode,unique"`
	Mode   string `gorm:"index:idx_user_mode,unique;not null"`

	// Exchange credentials, stored encrypted. The engine never reads these
	// directly; the credential store resolves them.
	ApiKey    string
	SecretKey string

	EnableAutoTrade      bool `gorm:"default:false"`
	TradeIntervalMinutes int  `gorm:"default:60"`

	// Comma-joined whitelist of tradable symbols, e.g. "BTCUSDT,ETHUSDT".
	AllowedSymbols string

	// Spot limit: max quote value of a single BUY.
	MaxTradeAmount float64
	// Futures limit: max margin committed by a single open.
	MaxPositionSize float64
	// Realized loss allowed per local calendar day before new entries stop.
	MaxDailyLoss float64
	MaxLeverage  int `gorm:"default:10"`

	StopLossPercent   float64
	TakeProfitPercent float64
}
