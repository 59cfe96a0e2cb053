// Package pricefeed provides a client for a Yahoo-style batch quote API
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultRateLimit   = 2 // requests per second
	DefaultBatchSize   = 50
	DefaultHistoryDays = 240
	quotePath          = "/v7/finance/quote"
	chartPath          = "/v8/finance/chart/"
)

// Client implements domain.PriceFeed
type Client struct {
	baseURL    string
	apiKey     string
	batchSize  int
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithAPIKey sets the key sent in the X-API-KEY header
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit in requests per second
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBatchSize caps the number of symbols per request
func WithBatchSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// NewClient creates a new price-feed client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		batchSize: DefaultBatchSize,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol                     string       `json:"symbol"`
	RegularMarketPrice         *json.Number `json:"regularMarketPrice"`
	RegularMarketPreviousClose *json.Number `json:"regularMarketPreviousClose"`
}

// quote turns a result row into a Quote.
// A missing price falls back to the previous close and vice versa; a row with
// neither is dropped.
func (r quoteResult) quote() (domain.Quote, bool) {
	current, hasCurrent := toDecimal(r.RegularMarketPrice)
	previous, hasPrevious := toDecimal(r.RegularMarketPreviousClose)
	switch {
	case !hasCurrent && !hasPrevious:
		return domain.Quote{}, false
	case !hasCurrent:
		current = previous
	case !hasPrevious:
		previous = current
	}
	return domain.Quote{Current: current, Previous: previous}, true
}

func toDecimal(n *json.Number) (decimal.Decimal, bool) {
	if n == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// Fetch returns quotes for symbols. Symbols the API does not know are absent
// from the result. Any failed batch fails the whole fetch.
func (c *Client) Fetch(ctx context.Context, symbols []string) (domain.PriceMap, error) {
	unique := dedupe(symbols)
	prices := make(domain.PriceMap, len(unique))

	for start := 0; start < len(unique); start += c.batchSize {
		end := min(start+c.batchSize, len(unique))
		if err := c.fetchBatch(ctx, unique[start:end], prices); err != nil {
			return nil, err
		}
	}
	return prices, nil
}

func (c *Client) fetchBatch(ctx context.Context, symbols []string, into domain.PriceMap) error {
	reqURL := c.baseURL + quotePath + "?" + url.Values{"symbols": {strings.Join(symbols, ",")}}.Encode()

	var body quoteResponse
	if err := c.getJSON(ctx, reqURL, &body); err != nil {
		return err
	}
	if e := body.QuoteResponse.Error; e != nil {
		return fmt.Errorf("quote API error: %s: %s", e.Code, e.Description)
	}

	for _, r := range body.QuoteResponse.Result {
		if r.Symbol == "" {
			continue
		}
		if q, ok := r.quote(); ok {
			into[r.Symbol] = q
		}
	}

	c.logger.Debug().Int("requested", len(symbols)).Int("returned", len(body.QuoteResponse.Result)).Msg("quote API call")
	return nil
}

// getJSON waits for the rate limiter, GETs reqURL and decodes the JSON body
// into out with numbers kept as json.Number
func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error().Err(err).Str("path", req.URL.Path).Dur("elapsed", elapsed).Msg("price API request failed")
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", req.URL.Path).Dur("elapsed", elapsed).Msg("price API non-OK response")
		return fmt.Errorf("price API error: status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Closes converts fetched quotes into daily closes stamped with the UTC date of now
func Closes(prices domain.PriceMap, now time.Time) []domain.ClosePrice {
	utc := now.UTC()
	tradeDate := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)

	symbols := make([]string, 0, len(prices))
	for symbol := range prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	closes := make([]domain.ClosePrice, 0, len(symbols))
	for _, symbol := range symbols {
		closes = append(closes, domain.ClosePrice{
			Symbol:    symbol,
			TradeDate: tradeDate,
			Close:     prices[symbol].Current,
			FetchedAt: utc,
		})
	}
	return closes
}


type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int    `json:"gmtoffset"` // seconds east of UTC of the exchange
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*json.Number `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// History returns up to days daily closes of symbol, oldest first. Each close
// is dated with the exchange-local session date; sessions without a close are
// skipped.
func (c *Client) History(ctx context.Context, symbol string, days int) ([]domain.ClosePrice, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}

	query := url.Values{
		"range":    {fmt.Sprintf("%dd", days)},
		"interval": {"1d"},
	}
	reqURL := c.baseURL + chartPath + url.PathEscape(symbol) + "?" + query.Encode()

	var body chartResponse
	if err := c.getJSON(ctx, reqURL, &body); err != nil {
		return nil, err
	}
	if e := body.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart API error for %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(body.Chart.Result) == 0 {
		return nil, nil
	}

	result := body.Chart.Result[0]
	var closes []*json.Number
	if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}

	fetchedAt := time.Now().UTC()
	byDate := make(map[time.Time]domain.ClosePrice, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) {
			break
		}
		closeValue, ok := toDecimal(closes[i])
		if !ok {
			continue
		}
		local := time.Unix(ts+int64(result.Meta.GMTOffset), 0).UTC()
		tradeDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		byDate[tradeDate] = domain.ClosePrice{
			Symbol:    symbol,
			TradeDate: tradeDate,
			Close:     closeValue,
			FetchedAt: fetchedAt,
		}
	}

	out := make([]domain.ClosePrice, 0, len(byDate))
	for _, cp := range byDate {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })

	c.logger.Debug().Str("symbol", symbol).Int("days", days).Int("closes", len(out)).Msg("chart API call")
	return out, nil
}

var _ domain.PriceFeed = (*Client)(nil)
