// Package indicator provides pure technical-indicator functions over a
// closing-price series, oldest first. No state, no I/O.
package indicator

import "math"

// SMA calculates the Simple Moving Average over the last period closes.
// Returns 0 when there is not enough data.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}

	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average over the series, seeded
// with the SMA of the first period closes.
func EMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}

	ema := SMA(closes[:period], period)
	multiplier := 2.0 / float64(period+1)

	for i := period; i < len(closes); i++ {
		ema = (closes[i] * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// RSI calculates the Relative Strength Index over the last period changes.
// Returns the neutral value 50 when there is not enough data, and 100 when
// there are no losses in the window.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates the Moving Average Convergence Divergence. The signal
// line is the EMA of the MACD series over signalPeriod.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(closes) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	// Build the MACD series for the last signalPeriod points so the signal
	// line is a real EMA rather than an approximation.
	macdSeries := make([]float64, 0, signalPeriod)
	for i := signalPeriod; i > 0; i-- {
		window := closes[:len(closes)-i+1]
		macdSeries = append(macdSeries, EMA(window, fastPeriod)-EMA(window, slowPeriod))
	}

	macdLine := macdSeries[len(macdSeries)-1]
	signalLine := SMA(macdSeries, signalPeriod)

	return MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}
}

// BollingerBands holds the upper, middle and lower band values.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands: an SMA middle band with bands at
// stdDevMultiplier standard deviations.
func Bollinger(closes []float64, period int, stdDevMultiplier float64) BollingerBands {
	if period <= 0 || len(closes) < period {
		return BollingerBands{}
	}

	middle := SMA(closes, period)

	variance := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		diff := closes[i] - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return BollingerBands{
		Upper:  middle + stdDevMultiplier*stdDev,
		Middle: middle,
		Lower:  middle - stdDevMultiplier*stdDev,
	}
}
