// Package market gathers per-symbol technical snapshots from the exchange
// for the decision engine.
package market

import (
	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/indicator"
	"go.uber.org/zap"
)

// Standard indicator parameters used across all snapshots.
const (
	rsiPeriod        = 14
	emaFastPeriod    = 12
	emaSlowPeriod    = 26
	macdSignalPeriod = 9
	bollingerPeriod  = 20
	bollingerStdDev  = 2.0
)

// Snapshot is one symbol's technical picture at gather time.
type Snapshot struct {
	Symbol    string
	Price     float64
	Change24h float64 // percent over the gathered window's last 24 candles
	RSI       float64
	EMAFast   float64
	EMASlow   float64
	MACD      indicator.MACDResult
	Bollinger indicator.BollingerBands

	// Futures only.
	FundingRate float64
}

// Gatherer pulls candles and prices for the allowed symbols. Symbols with
// missing or invalid data are skipped, never fatal.
type Gatherer struct {
	spot     binance.SpotClientInterface
	futures  binance.FuturesClientInterface
	interval string
	limit    int
	logger   *zap.Logger
}

// NewGatherer creates a Gatherer. Either client may be nil when the account
// only trades the other mode.
func NewGatherer(spot binance.SpotClientInterface, futures binance.FuturesClientInterface, interval string, limit int, logger *zap.Logger) *Gatherer {
	return &Gatherer{
		spot:     spot,
		futures:  futures,
		interval: interval,
		limit:    limit,
		logger:   logger.Named("market"),
	}
}

// GatherSpot builds spot snapshots for the given symbols.
func (g *Gatherer) GatherSpot(symbols []string) []Snapshot {
	snapshots := make([]Snapshot, 0, len(symbols))
	for _, symbol := range symbols {
		klines, err := g.spot.GetKlines(symbol, g.interval, g.limit)
		if err != nil {
			g.logger.Warn("Skipping symbol, kline fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		price, err := g.spot.GetTickerPrice(symbol)
		if err != nil {
			g.logger.Warn("Skipping symbol, ticker fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		snap, ok := buildSnapshot(symbol, price, klines)
		if !ok {
			g.logger.Warn("Skipping symbol, not enough candle data", zap.String("symbol", symbol), zap.Int("candles", len(klines)))
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots
}

// GatherFutures builds futures snapshots for the given symbols, priced at
// the mark price and annotated with the current funding rate.
func (g *Gatherer) GatherFutures(symbols []string) []Snapshot {
	snapshots := make([]Snapshot, 0, len(symbols))
	for _, symbol := range symbols {
		klines, err := g.futures.GetKlines(symbol, g.interval, g.limit)
		if err != nil {
			g.logger.Warn("Skipping symbol, kline fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		markPrice, err := g.futures.GetMarkPrice(symbol)
		if err != nil {
			g.logger.Warn("Skipping symbol, mark price fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		snap, ok := buildSnapshot(symbol, markPrice, klines)
		if !ok {
			g.logger.Warn("Skipping symbol, not enough candle data", zap.String("symbol", symbol), zap.Int("candles", len(klines)))
			continue
		}

		// Funding rate is informational; a fetch failure does not drop the
		// symbol.
		if rate, err := g.futures.GetFundingRate(symbol); err == nil {
			snap.FundingRate = rate
		} else {
			g.logger.Warn("Funding rate fetch failed", zap.String("symbol", symbol), zap.Error(err))
		}

		snapshots = append(snapshots, snap)
	}
	return snapshots
}

// buildSnapshot computes the indicator set from the candle closes. Returns
// false when the series is too short for the slowest indicator.
func buildSnapshot(symbol string, price float64, klines []binance.Kline) (Snapshot, bool) {
	if price <= 0 || len(klines) < emaSlowPeriod+macdSignalPeriod {
		return Snapshot{}, false
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	change := 0.0
	if len(closes) >= 25 {
		prev := closes[len(closes)-25]
		if prev > 0 {
			change = (closes[len(closes)-1] - prev) / prev * 100
		}
	}

	return Snapshot{
		Symbol:    symbol,
		Price:     price,
		Change24h: change,
		RSI:       indicator.RSI(closes, rsiPeriod),
		EMAFast:   indicator.EMA(closes, emaFastPeriod),
		EMASlow:   indicator.EMA(closes, emaSlowPeriod),
		MACD:      indicator.MACD(closes, emaFastPeriod, emaSlowPeriod, macdSignalPeriod),
		Bollinger: indicator.Bollinger(closes, bollingerPeriod, bollingerStdDev),
	}, true
}
