package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kpatel-quant/fnopipeline/internal/retry"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// indexTickers maps NSE index families to Yahoo index symbols. Everything
// else is treated as a stock and goes out with an .NS suffix.
var indexTickers = map[string]string{
	"NIFTY":      "^NSEI",
	"NIFTY50":    "^NSEI",
	"NZ":         "^NSEI",
	"BANKNIFTY":  "^NSEBANK",
	"AF":         "^NSEBANK",
	"NSEBANK":    "^NSEBANK",
	"FINNIFTY":   "^CNXFIN",
	"MIDCPNIFTY": "^NSEMDCP50",
	"NMIDSELP":   "^NSEMDCP50",
	"NMIDSELD":   "^NSEMDCP50",
	"RNS":        "^NSEMDCP50",
	"SENSEX":     "^BSESN",
}

// APIError represents a quote API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// YahooClient fetches spot prices from the Yahoo Finance chart API.
type YahooClient struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	retrier *retry.Client
	logger  *log.Logger
}

// NewYahooClient creates a client against the public Yahoo endpoint.
func NewYahooClient(logger *log.Logger) *YahooClient {
	return NewYahooClientWithBaseURL(defaultYahooBaseURL, logger)
}

// NewYahooClientWithBaseURL creates a client against a custom endpoint (tests).
func NewYahooClientWithBaseURL(baseURL string, logger *log.Logger) *YahooClient {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	// Normalize once
	baseURL = strings.TrimRight(baseURL, "/")
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &YahooClient{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		retrier: retry.NewClient(logger, retry.Config{
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Timeout:        30 * time.Second,
		}),
		logger: logger,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (y *YahooClient) WithHTTPClient(c *http.Client) *YahooClient {
	if c != nil {
		y.client = c
	}
	return y
}

// WithLimiter overrides the request rate limiter.
func (y *YahooClient) WithLimiter(l *rate.Limiter) *YahooClient {
	if l != nil {
		y.limiter = l
	}
	return y
}

// yahooCandidates lists the Yahoo symbols to try for a cleaned ticker, in
// order: index alias, .NS-suffixed stock, then the bare symbol.
func yahooCandidates(symbol string) []string {
	if mapped, ok := indexTickers[symbol]; ok {
		return []string{mapped}
	}
	if strings.HasPrefix(symbol, "^") || strings.HasSuffix(symbol, ".NS") || strings.HasSuffix(symbol, ".BO") {
		return []string{symbol}
	}
	return []string{symbol + ".NS", symbol}
}

// GetPrice resolves a ticker via the chart API, trying each candidate
// symbol until one returns a usable price.
func (y *YahooClient) GetPrice(ctx context.Context, ticker string) (PriceQuote, error) {
	symbol := CleanTicker(ticker)
	if symbol == "" {
		return PriceQuote{}, fmt.Errorf("%w: empty ticker", ErrUnavailable)
	}

	var lastErr error
	for _, candidate := range yahooCandidates(symbol) {
		quote, err := retry.Do(ctx, y.retrier, "quote "+candidate, func(ctx context.Context) (PriceQuote, error) {
			if err := y.limiter.Wait(ctx); err != nil {
				return PriceQuote{}, err
			}
			return y.fetchChart(ctx, candidate)
		})
		if err == nil {
			quote.Symbol = symbol
			return quote, nil
		}
		lastErr = err
		y.logger.Printf("quote %s via %s failed: %v", symbol, candidate, err)
		if ctx.Err() != nil {
			return PriceQuote{}, ctx.Err()
		}
	}

	return PriceQuote{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, lastErr)
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooClient) fetchChart(ctx context.Context, symbol string) (PriceQuote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1d", y.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return PriceQuote{}, err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "fnopipeline/1.0 (+quotes)")

	resp, err := y.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			y.logger.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if readErr != nil {
			return PriceQuote{}, &APIError{Status: resp.StatusCode, Body: "failed to read error body"}
		}
		return PriceQuote{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var decoded chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return PriceQuote{}, err
	}

	if decoded.Chart.Error != nil {
		return PriceQuote{}, fmt.Errorf("%w: %s: %s", ErrUnavailable, symbol, decoded.Chart.Error.Description)
	}
	if len(decoded.Chart.Result) == 0 {
		return PriceQuote{}, fmt.Errorf("%w: empty chart result for %s", ErrUnavailable, symbol)
	}

	meta := decoded.Chart.Result[0].Meta
	price := meta.RegularMarketPrice
	if price <= 0 {
		price = meta.PreviousClose
	}
	if price <= 0 {
		return PriceQuote{}, fmt.Errorf("%w: no price in chart for %s", ErrUnavailable, symbol)
	}

	return PriceQuote{
		Symbol:    symbol,
		Price:     price,
		Currency:  meta.Currency,
		Source:    SourceYahoo,
		FetchedAt: time.Now(),
	}, nil
}
