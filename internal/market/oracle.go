package market

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const batchConcurrency = 4

// Oracle is the single entry point for price lookups. It routes registry
// symbols through the domestic chain and everything else to the live
// source, each behind its own cache.
type Oracle struct {
	registry   *Registry
	domestic   Source
	live       LiveSource
	synth      *Synthesizer
	localCache *QuoteCache
	liveCache  *QuoteCache
	inflight   singleflight.Group
	logger     *zap.Logger
}

// OracleStats groups the statistics of both caches.
type OracleStats struct {
	Domestic      CacheStats `json:"domestic"`
	International CacheStats `json:"international"`
}

// NewOracle wires the sources and caches together.
func NewOracle(registry *Registry, domestic Source, live LiveSource, synth *Synthesizer, domesticCache, internationalCache *QuoteCache, logger *zap.Logger) *Oracle {
	return &Oracle{
		registry:   registry,
		domestic:   domestic,
		live:       live,
		synth:      synth,
		localCache: domesticCache,
		liveCache:  internationalCache,
		logger:     logger.Named("oracle"),
	}
}

// GetPrice resolves a quote for symbol.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return Quote{}, newPriceError(KindInvalidSymbol, symbol, "symbol is empty", nil)
	}
	if o.registry.IsDomestic(symbol) {
		return o.domesticPrice(ctx, symbol)
	}
	return o.internationalPrice(ctx, symbol)
}

func (o *Oracle) domesticPrice(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := o.localCache.Get(symbol); ok {
		return q, nil
	}
	if o.localCache.ShouldThrottle(symbol) {
		if q, ok := o.localCache.GetStale(symbol); ok {
			return q, nil
		}
	}

	// Callers that miss the cache together share one run of the chain.
	v, err, _ := o.inflight.Do(symbol, func() (any, error) {
		if q, ok := o.localCache.Get(symbol); ok {
			return q, nil
		}
		q, err := o.domestic.FetchQuote(ctx, symbol)
		if err != nil {
			return Quote{}, err
		}
		o.localCache.Put(symbol, q)
		return q, nil
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

func (o *Oracle) internationalPrice(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := o.liveCache.Get(symbol); ok {
		return q, nil
	}
	if o.liveCache.ShouldThrottle(symbol) {
		if q, ok := o.liveCache.GetStale(symbol); ok {
			return q, nil
		}
		return Quote{}, newPriceError(KindRateLimited, symbol, "request throttled and no cached quote", nil)
	}

	q, err := o.live.FetchQuote(ctx, symbol)
	if err == nil {
		o.liveCache.Put(symbol, q)
		return q, nil
	}

	if KindOf(err) == KindRateLimited {
		if stale, ok := o.liveCache.GetStale(symbol); ok {
			o.logger.Debug("Serving stale quote after upstream rate limit", zap.String("symbol", symbol))
			return stale, nil
		}
	}
	if KindOf(err) == "" {
		err = newPriceError(KindUpstream, symbol, "live fetch failed", err)
	}
	o.logger.Warn("Live quote unavailable", zap.String("symbol", symbol), zap.Error(err))
	return Quote{}, err
}

// GetPrices resolves each symbol independently; one failure never aborts
// the others. Results keep the input order.
func (o *Oracle) GetPrices(ctx context.Context, symbols []string) []PriceResult {
	results := make([]PriceResult, len(symbols))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			q, err := o.GetPrice(ctx, sym)
			results[i] = PriceResult{Symbol: NormalizeSymbol(sym)}
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Quote = &q
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// GetHistory returns candles for symbol. Domestic symbols always get a
// synthetic series.
func (o *Oracle) GetHistory(ctx context.Context, symbol, period, interval string) (HistoricalSeries, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return HistoricalSeries{}, newPriceError(KindInvalidSymbol, symbol, "symbol is empty", nil)
	}
	if o.registry.IsDomestic(symbol) {
		return o.synth.History(symbol, period, interval), nil
	}
	return o.live.FetchHistory(ctx, symbol, period, interval)
}

// CacheStats reports both caches.
func (o *Oracle) CacheStats() OracleStats {
	return OracleStats{
		Domestic:      o.localCache.Stats(),
		International: o.liveCache.Stats(),
	}
}

// ClearCache invalidates symbol in both caches, or everything when symbol
// is empty.
func (o *Oracle) ClearCache(symbol string) {
	o.localCache.Invalidate(symbol)
	o.liveCache.Invalidate(symbol)
}
