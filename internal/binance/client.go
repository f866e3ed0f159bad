package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	recvWindow = "5000" // How long a request is valid in milliseconds
)

// apiClient is the shared transport for the spot and futures clients:
// a resty client plus rate limiting, HMAC-SHA256 signing and retry.
type apiClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

func newAPIClient(baseURL, apiKey, secretKey string, rps float64, burst int, timeout time.Duration, logger *zap.Logger) *apiClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &apiClient{
		client:    client,
		apiKey:    apiKey,
		secretKey: secretKey,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *apiClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest executes the request with rate limiting. GET requests are
// retried on 429/418 and server errors with exponential backoff; anything
// that mutates exchange state (order placement, leverage changes) gets a
// single attempt so a timeout can never turn into a duplicate order.
func (c *apiClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	maxAttempts := 1
	if method == http.MethodGet {
		maxAttempts = 3
	}

	for i := 0; i < maxAttempts; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry || i == maxAttempts-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
}
