package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"binance-ai-trader/internal/config"
	"go.uber.org/zap"
)

const (
	futuresBaseURL        = "https://fapi.binance.com"
	futuresTestnetBaseURL = "https://testnet.binancefuture.com"
)

// FuturesClientInterface defines the interface for the Binance USDT-M
// futures REST API client.
type FuturesClientInterface interface {
	GetMarkPrice(symbol string) (float64, error)
	GetFundingRate(symbol string) (float64, error)
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	GetPositions(symbol string) ([]PositionRisk, error)
	GetSymbolRules(symbol string) (*SymbolRules, error)
	SetLeverage(symbol string, leverage int) error
	CreateMarketOrder(symbol, side string, quantity float64, positionSide string, reduceOnly bool) (*FuturesOrderResponse, error)
	GetAccount() (*FuturesAccountInfo, error)
}

// FuturesClient is a client for the Binance USDT-M futures REST API.
// It implements FuturesClientInterface.
type FuturesClient struct {
	*apiClient
}

// ensure FuturesClient implements the interface
var _ FuturesClientInterface = (*FuturesClient)(nil)

// NewFuturesClient creates a new Binance futures REST API client for one
// account's credentials.
func NewFuturesClient(cfg *config.Binance, apiKey, secretKey string, logger *zap.Logger) *FuturesClient {
	baseURL := futuresBaseURL
	if cfg.Testnet {
		baseURL = futuresTestnetBaseURL
		logger.Warn("Using Binance Futures Testnet")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &FuturesClient{
		apiClient: newAPIClient(baseURL, apiKey, secretKey, cfg.RateLimit, cfg.RateLimitBurst, timeout, logger),
	}
}

// premiumIndex carries both the mark price and the latest funding rate.
type premiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
}

func (c *FuturesClient) getPremiumIndex(symbol string) (*premiumIndex, error) {
	var idx premiumIndex

	req := c.client.R().
		SetResult(&idx).
		SetQueryParam("symbol", symbol)

	_, err := c.doRequest(context.Background(), "GET", "/fapi/v1/premiumIndex", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get premium index for %s: %w", symbol, err)
	}
	return &idx, nil
}

// GetMarkPrice fetches the current mark price for a symbol.
func (c *FuturesClient) GetMarkPrice(symbol string) (float64, error) {
	idx, err := c.getPremiumIndex(symbol)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(idx.MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse mark price %q for %s: %w", idx.MarkPrice, symbol, err)
	}
	return price, nil
}

// GetFundingRate fetches the latest funding rate for a symbol.
func (c *FuturesClient) GetFundingRate(symbol string) (float64, error) {
	idx, err := c.getPremiumIndex(symbol)
	if err != nil {
		return 0, err
	}
	rate, err := strconv.ParseFloat(idx.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse funding rate %q for %s: %w", idx.LastFundingRate, symbol, err)
	}
	return rate, nil
}

// GetKlines fetches recent futures candles for a symbol.
func (c *FuturesClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	var raw [][]interface{}

	req := c.client.R().
		SetResult(&raw).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		})

	resp, err := c.doRequest(context.Background(), "GET", "/fapi/v1/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get futures klines for %s: %w", symbol, err)
	}

	return parseKlines(*resp.Result().(*[][]interface{}))
}

// PositionRisk is one live position as reported by /fapi/v2/positionRisk.
// PositionAmt is signed in one-way mode: positive long, negative short.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
}

// Quantity returns the absolute position size.
func (p *PositionRisk) Quantity() float64 {
	amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
	if amt < 0 {
		return -amt
	}
	return amt
}

// Side returns LONG or SHORT derived from the signed position amount, or
// the explicit position side in hedge mode.
func (p *PositionRisk) Side() string {
	if p.PositionSide == PositionSideLong || p.PositionSide == PositionSideShort {
		return p.PositionSide
	}
	amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
	if amt < 0 {
		return PositionSideShort
	}
	return PositionSideLong
}

// Entry returns the entry price as a float.
func (p *PositionRisk) Entry() float64 {
	v, _ := strconv.ParseFloat(p.EntryPrice, 64)
	return v
}

// Mark returns the mark price as a float.
func (p *PositionRisk) Mark() float64 {
	v, _ := strconv.ParseFloat(p.MarkPrice, 64)
	return v
}

// UnrealizedPnl returns the unrealized profit as a float.
func (p *PositionRisk) UnrealizedPnl() float64 {
	v, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
	return v
}

// GetPositions fetches live positions. An empty symbol fetches all symbols.
// Signed endpoint.
func (c *FuturesClient) GetPositions(symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)
	params.Set("signature", c.sign(params.Encode()))

	var positions []PositionRisk
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(params).
		SetResult(&positions)

	resp, err := c.doRequest(context.Background(), "GET", "/fapi/v2/positionRisk", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	return *resp.Result().(*[]PositionRisk), nil
}

// GetSymbolRules fetches the futures trading rules for one symbol.
func (c *FuturesClient) GetSymbolRules(symbol string) (*SymbolRules, error) {
	var info ExchangeInfoResponse

	req := c.client.R().SetResult(&info)

	_, err := c.doRequest(context.Background(), "GET", "/fapi/v1/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get futures exchange info: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return rulesFromSymbolInfo(&s), nil
		}
	}
	return nil, fmt.Errorf("symbol %s not found in futures exchange info", symbol)
}

// SetLeverage sets the initial leverage for a symbol. Signed endpoint.
func (c *FuturesClient) SetLeverage(symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)
	params.Set("signature", c.sign(params.Encode()))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode())

	_, err := c.doRequest(context.Background(), "POST", "/fapi/v1/leverage", req)
	if err != nil {
		return fmt.Errorf("failed to set leverage %dx for %s: %w", leverage, symbol, err)
	}

	c.logger.Info("Leverage set", zap.String("symbol", symbol), zap.Int("leverage", leverage))
	return nil
}

// FuturesOrderResponse represents the response from creating a futures order.
type FuturesOrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	AvgPrice      string `json:"avgPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	CumQuote      string `json:"cumQuote"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	PositionSide  string `json:"positionSide"`
	ReduceOnly    bool   `json:"reduceOnly"`
}

// CreateMarketOrder places a new MARKET order on the futures exchange.
// reduceOnly constrains the order to only decrease an existing position.
func (c *FuturesClient) CreateMarketOrder(symbol, side string, quantity float64, positionSide string, reduceOnly bool) (*FuturesOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeMarket)
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("newClientOrderId", newClientOrderID())
	if positionSide != "" {
		params.Set("positionSide", positionSide)
	}
	if reduceOnly {
		params.Set("reduceOnly", "true")
	}
	params.Set("newOrderRespType", "RESULT") // avgPrice is only filled on RESULT
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)

	queryString := params.Encode()
	params.Set("signature", c.sign(queryString))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode()).
		SetResult(&FuturesOrderResponse{})

	resp, err := c.doRequest(context.Background(), "POST", "/fapi/v1/order", req)
	if err != nil {
		c.logger.Error("Failed to create futures order",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("side", side),
		)
		return nil, fmt.Errorf("failed to create futures order: %w", err)
	}

	result := resp.Result().(*FuturesOrderResponse)
	c.logger.Info("Successfully created futures order", zap.Any("order", result))
	return result, nil
}

// FuturesAccountInfo represents the signed /fapi/v2/account response fields
// the engine uses for valuation.
type FuturesAccountInfo struct {
	TotalWalletBalance    string `json:"totalWalletBalance"`
	TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
	AvailableBalance      string `json:"availableBalance"`
}

// WalletBalance returns the total wallet balance as a float.
func (a *FuturesAccountInfo) WalletBalance() float64 {
	v, _ := strconv.ParseFloat(a.TotalWalletBalance, 64)
	return v
}

// UnrealizedPnl returns the total unrealized profit as a float.
func (a *FuturesAccountInfo) UnrealizedPnl() float64 {
	v, _ := strconv.ParseFloat(a.TotalUnrealizedProfit, 64)
	return v
}

// GetAccount fetches the futures account balances. Signed endpoint.
func (c *FuturesClient) GetAccount() (*FuturesAccountInfo, error) {
	params := url.Values{}
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)
	params.Set("signature", c.sign(params.Encode()))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(params).
		SetResult(&FuturesAccountInfo{})

	resp, err := c.doRequest(context.Background(), "GET", "/fapi/v2/account", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get futures account info: %w", err)
	}

	return resp.Result().(*FuturesAccountInfo), nil
}
