package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"binance-ai-trader/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	spotBaseURL        = "https://api.binance.com/api/v3"
	spotTestnetBaseURL = "https://testnet.binance.vision/api/v3"
)

// SpotClientInterface defines the interface for the Binance spot REST API client.
type SpotClientInterface interface {
	GetServerTime() (int64, error)
	GetTickerPrice(symbol string) (float64, error)
	GetAllTickerPrices() (map[string]float64, error)
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	GetSymbolRules(symbol string) (*SymbolRules, error)
	GetAccount() (*SpotAccountInfo, error)
	CreateMarketOrder(symbol, side string, quantity float64) (*CreateOrderResponse, error)
}

// SpotClient is a client for the Binance spot REST API.
// It implements SpotClientInterface.
type SpotClient struct {
	*apiClient
}

// ensure SpotClient implements the interface
var _ SpotClientInterface = (*SpotClient)(nil)

// NewSpotClient creates a new Binance spot REST API client for one account's
// credentials.
func NewSpotClient(cfg *config.Binance, apiKey, secretKey string, logger *zap.Logger) *SpotClient {
	baseURL := spotBaseURL
	if cfg.Testnet {
		baseURL = spotTestnetBaseURL
		logger.Warn("Using Binance Spot Testnet")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &SpotClient{
		apiClient: newAPIClient(baseURL, apiKey, secretKey, cfg.RateLimit, cfg.RateLimitBurst, timeout, logger),
	}
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *SpotClient) GetServerTime() (int64, error) {
	type serverTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().SetResult(&serverTimeResponse{})

	resp, err := c.doRequest(context.Background(), "GET", "/time", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	return resp.Result().(*serverTimeResponse).ServerTime, nil
}

// GetTickerPrice fetches the latest price for one symbol.
func (c *SpotClient) GetTickerPrice(symbol string) (float64, error) {
	var ticker TickerPrice

	req := c.client.R().
		SetResult(&ticker).
		SetQueryParam("symbol", symbol)

	_, err := c.doRequest(context.Background(), "GET", "/ticker/price", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ticker price %q for %s: %w", ticker.Price, symbol, err)
	}
	return price, nil
}

// GetAllTickerPrices fetches the latest price for all symbols.
func (c *SpotClient) GetAllTickerPrices() (map[string]float64, error) {
	var prices []*TickerPrice

	req := c.client.R().
		SetResult(&prices).
		SetHeader("Content-Type", "application/json")

	resp, err := c.doRequest(context.Background(), "GET", "/ticker/price", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get all ticker prices: %w", err)
	}

	result := resp.Result().(*[]*TickerPrice)
	priceMap := make(map[string]float64, len(*result))
	for _, p := range *result {
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			continue
		}
		priceMap[p.Symbol] = price
	}

	return priceMap, nil
}

// GetKlines fetches recent candles for a symbol.
func (c *SpotClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	var raw [][]interface{}

	req := c.client.R().
		SetResult(&raw).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		})

	resp, err := c.doRequest(context.Background(), "GET", "/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", symbol, err)
	}

	return parseKlines(*resp.Result().(*[][]interface{}))
}

// GetSymbolRules fetches the trading rules (lot size, notional floor) for
// one symbol.
func (c *SpotClient) GetSymbolRules(symbol string) (*SymbolRules, error) {
	var info ExchangeInfoResponse

	req := c.client.R().
		SetResult(&info).
		SetQueryParam("symbol", symbol)

	_, err := c.doRequest(context.Background(), "GET", "/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info for %s: %w", symbol, err)
	}

	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return rulesFromSymbolInfo(&s), nil
		}
	}
	return nil, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// SpotBalance is one asset's balance within the spot account.
type SpotBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// SpotAccountInfo represents the signed /account response.
type SpotAccountInfo struct {
	Balances []SpotBalance `json:"balances"`
}

// GetAccount fetches the spot account balances. Signed endpoint.
func (c *SpotClient) GetAccount() (*SpotAccountInfo, error) {
	params := url.Values{}
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)
	params.Set("signature", c.sign(params.Encode()))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(params).
		SetResult(&SpotAccountInfo{})

	resp, err := c.doRequest(context.Background(), "GET", "/account", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}

	return resp.Result().(*SpotAccountInfo), nil
}

// CreateOrderResponse represents the response from creating a new order.
type CreateOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

// CreateMarketOrder places a new MARKET order on the spot exchange.
func (c *SpotClient) CreateMarketOrder(symbol, side string, quantity float64) (*CreateOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeMarket)
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("newClientOrderId", newClientOrderID())
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)

	queryString := params.Encode()
	params.Set("signature", c.sign(queryString))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode()).
		SetResult(&CreateOrderResponse{})

	resp, err := c.doRequest(context.Background(), "POST", "/order", req)
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", symbol),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*CreateOrderResponse)
	c.logger.Info("Successfully created order", zap.Any("order", result))
	return result, nil
}

// newClientOrderID returns a traceable client order id. Binance caps the
// field at 36 characters.
func newClientOrderID() string {
	return "ai-" + uuid.NewString()[:30]
}
