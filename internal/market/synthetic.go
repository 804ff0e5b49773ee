package market

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"challenge-desk-go/internal/money"
)

const (
	maxCandles          = 500
	walkPercent         = 3.0
	candleVolatility    = 0.02
	candleFloor         = 0.7
	candleCeiling       = 1.3
	unknownBaseMin      = 50.0
	unknownBaseMax      = 500.0
	unknownHistoryBase  = 100.0
	defaultPeriodHours  = 720.0
	defaultIntervalHour = 1.0
)

var periodHours = map[string]float64{
	"1d":  24,
	"5d":  120,
	"1mo": 720,
	"3mo": 2160,
	"6mo": 4320,
	"1y":  8760,
}

var intervalHours = map[string]float64{
	"1m":  1.0 / 60,
	"5m":  5.0 / 60,
	"15m": 15.0 / 60,
	"30m": 30.0 / 60,
	"1h":  1,
	"1d":  24,
	"1wk": 168,
	"1mo": 720,
}

// Synthesizer produces quotes and candle series around the registry's
// reference prices when no live data can be had.
type Synthesizer struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	registry *Registry
	market   string
	currency string
	now      func() time.Time
}

// NewSynthesizer creates a generator seeded with seed.
func NewSynthesizer(registry *Registry, market, currency string, seed int64) *Synthesizer {
	return &Synthesizer{
		rnd:      rand.New(rand.NewSource(seed)),
		registry: registry,
		market:   market,
		currency: currency,
		now:      time.Now,
	}
}

// Quote returns a price within ±3% of the symbol's base price. Unknown
// symbols get a base drawn from [50, 500).
func (s *Synthesizer) Quote(symbol string) Quote {
	symbol = NormalizeSymbol(symbol)

	s.mu.Lock()
	listing, known := s.registry.Lookup(symbol)
	base := listing.BasePrice
	if !known || base <= 0 {
		base = unknownBaseMin + s.rnd.Float64()*(unknownBaseMax-unknownBaseMin)
	}
	changePct := (s.rnd.Float64()*2 - 1) * walkPercent
	s.mu.Unlock()

	base = money.Round2(base)
	price := money.Round2(base * (1 + changePct/100))
	name := listing.Name
	if name == "" {
		name = symbol
	}

	return Quote{
		Symbol:        symbol,
		Name:          name,
		CurrentPrice:  price,
		PreviousClose: floatPtr(base),
		Change:        floatPtr(money.Round2(price - base)),
		ChangePercent: money.Round2(changePct),
		Timestamp:     s.now().UTC(),
		Market:        s.market,
		Currency:      s.currency,
		Source:        SourceSynthetic,
	}
}

// History returns a random walk of candles ending at the current instant.
// Unknown periods default to one month and unknown intervals to one hour.
func (s *Synthesizer) History(symbol, period, interval string) HistoricalSeries {
	symbol = NormalizeSymbol(symbol)

	base := unknownHistoryBase
	if l, ok := s.registry.Lookup(symbol); ok && l.BasePrice > 0 {
		base = l.BasePrice
	}

	hours, ok := periodHours[period]
	if !ok {
		hours = defaultPeriodHours
	}
	step, ok := intervalHours[interval]
	if !ok {
		step = defaultIntervalHour
	}
	n := int(hours / step)
	if n > maxCandles {
		n = maxCandles
	}
	if n < 0 {
		n = 0
	}

	now := s.now().UTC()
	vol := base * candleVolatility
	price := base
	data := make([]Candle, 0, n)

	s.mu.Lock()
	for i := n; i > 0; i-- {
		ts := now.Add(-time.Duration(float64(i) * step * float64(time.Hour)))

		price += (s.rnd.Float64()*2 - 1) * vol
		price = math.Max(base*candleFloor, math.Min(base*candleCeiling, price))

		open := price + (s.rnd.Float64()-0.5)*vol
		high := math.Max(open, price) + s.rnd.Float64()*vol*0.3
		low := math.Min(open, price) - s.rnd.Float64()*vol*0.3
		volume := 10000 + s.rnd.Int63n(490001)

		data = append(data, Candle{
			Time:   ts.Unix(),
			Open:   money.Round2(open),
			High:   money.Round2(high),
			Low:    money.Round2(low),
			Close:  money.Round2(price),
			Value:  money.Round2(price),
			Volume: volume,
		})
	}
	s.mu.Unlock()

	return HistoricalSeries{
		Symbol:   symbol,
		Period:   period,
		Interval: interval,
		Count:    len(data),
		Data:     data,
		Source:   SourceSynthetic,
	}
}
