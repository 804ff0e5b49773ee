package market

import (
	"strings"
	"time"
)

// Source tags identify which resolution stage produced a quote.
const (
	SourceLive        = "yahoo"
	SourceScrape      = "casablanca_bourse"
	SourceAlternate   = "alternative_source"
	SourceSynthetic   = "synthetic"
	internationalName = "International"
)

// Quote is the unified price record returned for both domestic and
// international symbols.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	CurrentPrice  float64   `json:"current_price"`
	PreviousClose *float64  `json:"previous_close,omitempty"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
	Market        string    `json:"market"`
	Currency      string    `json:"currency"`
	Source        string    `json:"source"`
	FromCache     bool      `json:"from_cache"`
}

// Candle is one OHLC point of a historical series.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Value  float64 `json:"value"`
	Volume int64   `json:"volume"`
}

// HistoricalSeries is the candle sequence for one symbol.
type HistoricalSeries struct {
	Symbol   string   `json:"symbol"`
	Period   string   `json:"period"`
	Interval string   `json:"interval"`
	Count    int      `json:"count"`
	Data     []Candle `json:"data"`
	Source   string   `json:"source"`
}

// PriceResult is one element of a batch lookup.
type PriceResult struct {
	Symbol string
	Quote  *Quote
	Err    error
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func floatPtr(v float64) *float64 { return &v }
