package market

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"challenge-desk-go/internal/config"
	"challenge-desk-go/internal/money"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const chartPath = "/v8/finance/chart/{symbol}"

// LiveSource is the live international quote provider.
type LiveSource interface {
	Source
	FetchHistory(ctx context.Context, symbol, period, interval string) (HistoricalSeries, error)
}

// YahooClient reads quotes and candles from the Yahoo Finance chart API.
type YahooClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// ensure YahooClient implements the interface
var _ LiveSource = (*YahooClient)(nil)

// NewYahooClient creates a client for cfg.BaseURL.
func NewYahooClient(cfg *config.International, logger *zap.Logger) *YahooClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &YahooClient{
		client:  client,
		logger:  logger.Named("yahoo"),
		limiter: limiter,
		now:     time.Now,
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		LongName           string  `json:"longName"`
		ShortName          string  `json:"shortName"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
		PreviousClose      float64 `json:"previousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// FetchQuote performs a single live lookup for symbol.
func (c *YahooClient) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	result, err := c.chart(ctx, symbol, "5d", "1d")
	if err != nil {
		return Quote{}, err
	}

	meta := result.Meta
	price := meta.RegularMarketPrice
	if price <= 0 {
		return Quote{}, newPriceError(KindUpstream, symbol, "price not available", nil)
	}

	prev := meta.PreviousClose
	if prev <= 0 {
		prev = meta.ChartPreviousClose
	}
	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}
	if name == "" {
		name = symbol
	}
	currency := meta.Currency
	if currency == "" {
		currency = "USD"
	}

	q := Quote{
		Symbol:       symbol,
		Name:         name,
		CurrentPrice: money.Round2(price),
		Timestamp:    c.now().UTC(),
		Market:       internationalName,
		Currency:     currency,
		Source:       SourceLive,
	}
	if prev > 0 {
		q.PreviousClose = floatPtr(money.Round2(prev))
		q.Change = floatPtr(money.Round2(price - prev))
		q.ChangePercent = money.Round2(money.PercentChange(prev, price))
	}
	return q, nil
}

// FetchHistory returns the candles Yahoo reports for period and interval.
// Points with no close are skipped.
func (c *YahooClient) FetchHistory(ctx context.Context, symbol, period, interval string) (HistoricalSeries, error) {
	symbol = NormalizeSymbol(symbol)
	result, err := c.chart(ctx, symbol, period, interval)
	if err != nil {
		return HistoricalSeries{}, err
	}

	series := HistoricalSeries{Symbol: symbol, Period: period, Interval: interval, Source: SourceLive, Data: []Candle{}}
	if len(result.Indicators.Quote) == 0 {
		return series, nil
	}
	ind := result.Indicators.Quote[0]
	at := func(vals []*float64, i int) (float64, bool) {
		if i >= len(vals) || vals[i] == nil {
			return 0, false
		}
		return *vals[i], true
	}

	for i, ts := range result.Timestamp {
		closePrice, ok := at(ind.Close, i)
		if !ok {
			continue
		}
		open, _ := at(ind.Open, i)
		high, _ := at(ind.High, i)
		low, _ := at(ind.Low, i)
		var volume int64
		if i < len(ind.Volume) && ind.Volume[i] != nil {
			volume = *ind.Volume[i]
		}
		series.Data = append(series.Data, Candle{
			Time:   ts,
			Open:   money.Round2(open),
			High:   money.Round2(high),
			Low:    money.Round2(low),
			Close:  money.Round2(closePrice),
			Value:  money.Round2(closePrice),
			Volume: volume,
		})
	}
	if len(series.Data) > maxCandles {
		series.Data = series.Data[len(series.Data)-maxCandles:]
	}
	series.Count = len(series.Data)
	return series, nil
}

// chart executes one chart request and classifies any failure.
func (c *YahooClient) chart(ctx context.Context, symbol, period, interval string) (*chartResult, error) {
	if symbol == "" {
		return nil, newPriceError(KindInvalidSymbol, symbol, "symbol is empty", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newPriceError(KindNetwork, symbol, "rate limiter wait failed", err)
	}

	c.logger.Debug("Executing request", zap.String("symbol", symbol), zap.String("range", period), zap.String("interval", interval))
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{"range": period, "interval": interval}).
		SetResult(&chartResponse{}).
		SetError(&chartResponse{}).
		Get(chartPath)
	if err != nil && (resp == nil || resp.RawResponse == nil) {
		return nil, classifyTransportError(symbol, err)
	}

	var body *chartResponse
	if resp.IsError() {
		body, _ = resp.Error().(*chartResponse)
	} else {
		body, _ = resp.Result().(*chartResponse)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests:
		return nil, newPriceError(KindRateLimited, symbol, "upstream rate limit reached", nil)
	case status == http.StatusNotFound:
		return nil, newPriceError(KindSymbolNotFound, symbol, "symbol not found", nil)
	case status >= 400:
		msg := "request failed with status " + resp.Status()
		if body != nil && body.Chart.Error != nil {
			if kind, ok := classifyChartError(body.Chart.Error); ok {
				return nil, newPriceError(kind, symbol, body.Chart.Error.Description, nil)
			}
			msg = body.Chart.Error.Description
		}
		return nil, newPriceError(KindUpstream, symbol, msg, nil)
	}

	if body == nil || err != nil {
		return nil, newPriceError(KindUpstream, symbol, "unreadable response body", err)
	}
	if body.Chart.Error != nil {
		kind, ok := classifyChartError(body.Chart.Error)
		if !ok {
			kind = KindUpstream
		}
		return nil, newPriceError(kind, symbol, body.Chart.Error.Description, nil)
	}
	if len(body.Chart.Result) == 0 {
		return nil, newPriceError(KindSymbolNotFound, symbol, "no data returned", nil)
	}
	return &body.Chart.Result[0], nil
}

func classifyChartError(e *chartError) (ErrorKind, bool) {
	text := strings.ToLower(e.Code + " " + e.Description)
	switch {
	case strings.Contains(text, "too many requests"), strings.Contains(text, "rate limit"):
		return KindRateLimited, true
	case strings.Contains(text, "not found"), strings.Contains(text, "delisted"), strings.Contains(text, "invalid"):
		return KindSymbolNotFound, true
	}
	return "", false
}

func classifyTransportError(symbol string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return newPriceError(KindNetwork, symbol, "request timed out", err)
	case strings.Contains(strings.ToLower(err.Error()), "too many requests"):
		return newPriceError(KindRateLimited, symbol, "upstream rate limit reached", err)
	}
	return newPriceError(KindNetwork, symbol, "request failed", err)
}
