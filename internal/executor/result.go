package executor

// Result is a best-effort record of one executed market order. The exchange
// response is authoritative when present; when it omits fill details the
// requested quantity and pre-trade price stand in, with the confirmation
// flags cleared so downstream PnL math can tell the difference.
type Result struct {
	Symbol       string
	Side         string // BUY or SELL
	PositionSide string // futures only: LONG or SHORT
	OrderID      int64

	RequestedQty  float64
	Quantity      float64
	Price         float64
	QuoteQuantity float64
	Leverage      int
	ReduceOnly    bool

	// True when the corresponding field came from the exchange response
	// rather than a pre-trade estimate.
	QuantityConfirmed bool
	PriceConfirmed    bool
}
