package binance

import (
	"fmt"
	"strconv"
)

// Order constants shared by the spot and futures clients.
const (
	OrderTypeMarket = "MARKET"
	OrderSideBuy    = "BUY"
	OrderSideSell   = "SELL"

	PositionSideLong  = "LONG"
	PositionSideShort = "SHORT"
	PositionSideBoth  = "BOTH"
)

// Kline is one candle. Binance returns candles as heterogeneous JSON arrays;
// parseKlines converts them into this struct.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// SymbolRules holds the exchange trading rules the executor must respect
// when sizing an order.
type SymbolRules struct {
	Symbol      string
	StepSize    float64
	MinQty      float64
	MaxQty      float64
	MinNotional float64
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// ExchangeInfoResponse represents the response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	Filters []Filter `json:"filters"`
}

// Filter represents a single symbol filter. LOT_SIZE carries the quantity
// bounds; NOTIONAL (spot) / MIN_NOTIONAL (futures) carries the value floor.
type Filter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty,omitempty"`
	MaxQty      string `json:"maxQty,omitempty"`
	StepSize    string `json:"stepSize,omitempty"`
	MinNotional string `json:"minNotional,omitempty"`
	Notional    string `json:"notional,omitempty"`
}

// rulesFromSymbolInfo extracts SymbolRules from the raw filter list.
func rulesFromSymbolInfo(info *SymbolInfo) *SymbolRules {
	rules := &SymbolRules{Symbol: info.Symbol}
	for _, f := range info.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			rules.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
			rules.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
			rules.MaxQty, _ = strconv.ParseFloat(f.MaxQty, 64)
		case "NOTIONAL":
			rules.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
		case "MIN_NOTIONAL":
			if f.Notional != "" {
				rules.MinNotional, _ = strconv.ParseFloat(f.Notional, 64)
			} else {
				rules.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
			}
		}
	}
	return rules
}

// parseKlines converts the raw kline arrays into Kline structs.
// Each element is [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlines(raw [][]interface{}) ([]Kline, error) {
	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			return nil, fmt.Errorf("malformed kline row with %d fields", len(row))
		}
		k := Kline{}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("malformed kline open time %v", row[0])
		}
		k.OpenTime = int64(openTime)
		if closeTime, ok := row[6].(float64); ok {
			k.CloseTime = int64(closeTime)
		}

		fields := []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
		for i, dst := range fields {
			s, ok := row[i+1].(string)
			if !ok {
				return nil, fmt.Errorf("malformed kline field %v", row[i+1])
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse kline field %q: %w", s, err)
			}
			*dst = v
		}
		klines = append(klines, k)
	}
	return klines, nil
}
