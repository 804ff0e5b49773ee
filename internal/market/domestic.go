package market

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"challenge-desk-go/internal/config"
	"challenge-desk-go/internal/money"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	priceSelectors = []string{
		"span.price, div.price, td.price",
		"span.current-price, div.current-price",
		"span.stock-price, div.stock-price",
		"span#currentPrice, div#currentPrice, td#currentPrice",
		"span.quote-price, div.quote-price",
	}
	changeSelectors = []string{
		"span.change-percent, div.change-percent",
		"span.change, div.change",
		"span.variation, div.variation",
	}
	previousCloseSelectors = []string{
		"span.previous-close, div.previous-close, td.previous-close",
		"span.prev-close, div.prev-close, td.prev-close",
	}
	currencyPricePattern = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(?:MAD|DH|dirham)`)
	numberCleaner        = strings.NewReplacer(",", "", "MAD", "", "DH", "", "%", "", "+", "", " ", "")
)

var errNoPrice = errors.New("no price found in page")

// Source is anything that can produce a quote for a symbol.
type Source interface {
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
}

// DomesticSource resolves registry symbols by scraping exchange pages, then
// an alternate site, then the synthetic generator.
type DomesticSource struct {
	client      *resty.Client
	alternate   *resty.Client
	primary     []string
	secondary   []string
	retries     int
	backoffBase time.Duration
	synthetic   bool
	synth       *Synthesizer
	registry    *Registry
	market      string
	currency    string
	logger      *zap.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

var _ Source = (*DomesticSource)(nil)

// NewDomesticSource creates the scrape chain from cfg.
func NewDomesticSource(cfg *config.Domestic, registry *Registry, synth *Synthesizer, logger *zap.Logger) *DomesticSource {
	newClient := func() *resty.Client {
		return resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
			SetHeader("Accept-Language", "en-US,en;q=0.5")
	}

	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}

	return &DomesticSource{
		client:      newClient(),
		alternate:   newClient().SetRedirectPolicy(resty.NoRedirectPolicy()),
		primary:     cfg.PrimaryURLs,
		secondary:   cfg.AlternateURLs,
		retries:     retries,
		backoffBase: cfg.BackoffBase,
		synthetic:   cfg.SyntheticFallback,
		synth:       synth,
		registry:    registry,
		market:      cfg.Market,
		currency:    cfg.Currency,
		logger:      logger.Named("domestic"),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// FetchQuote walks the fallback chain and stops at the first stage that
// yields a price.
func (d *DomesticSource) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return Quote{}, newPriceError(KindInvalidSymbol, symbol, "symbol is empty", nil)
	}

	var lastErr error
rounds:
	for round := 0; round < d.retries; round++ {
		for _, tmpl := range d.primary {
			q, err := d.scrape(ctx, d.client, expandTemplate(tmpl, symbol), symbol, SourceScrape)
			if err == nil {
				return q, nil
			}
			lastErr = err
			d.logger.Debug("Scrape attempt failed", zap.String("symbol", symbol), zap.Int("round", round+1), zap.Error(err))
		}
		if round < d.retries-1 {
			if err := d.sleep(ctx, d.backoffBase<<round); err != nil {
				lastErr = err
				break rounds
			}
		}
	}

	if ctx.Err() == nil {
		for _, tmpl := range d.secondary {
			q, err := d.scrape(ctx, d.alternate, expandTemplate(tmpl, symbol), symbol, SourceAlternate)
			if err == nil {
				return q, nil
			}
			lastErr = err
			d.logger.Debug("Alternate source failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	if d.synthetic {
		d.logger.Debug("Serving synthetic quote", zap.String("symbol", symbol))
		return d.synth.Quote(symbol), nil
	}

	d.logger.Warn("All domestic sources exhausted", zap.String("symbol", symbol), zap.Error(lastErr))
	return Quote{}, newPriceError(KindScrapeFailure, symbol, "all scrape sources failed", lastErr)
}

func (d *DomesticSource) scrape(ctx context.Context, client *resty.Client, url, symbol, source string) (Quote, error) {
	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return Quote{}, fmt.Errorf("request %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return Quote{}, fmt.Errorf("request %s: unexpected status %s", url, resp.Status())
	}

	page, err := parseQuotePage(resp.Body())
	if err != nil {
		return Quote{}, fmt.Errorf("parse %s: %w", url, err)
	}

	name := symbol
	if l, ok := d.registry.Lookup(symbol); ok && l.Name != "" {
		name = l.Name
	}

	q := Quote{
		Symbol:       symbol,
		Name:         name,
		CurrentPrice: money.Round2(page.price),
		Change:       floatPtr(0),
		Timestamp:    d.now().UTC(),
		Market:       d.market,
		Currency:     d.currency,
		Source:       source,
	}
	switch {
	case page.changePercent != nil && *page.changePercent != 0:
		prev := page.price / (1 + *page.changePercent/100)
		q.PreviousClose = floatPtr(money.Round2(prev))
		q.Change = floatPtr(money.Round2(page.price - prev))
		q.ChangePercent = money.Round2(*page.changePercent)
	case page.previousClose != nil && *page.previousClose > 0:
		prev := *page.previousClose
		q.PreviousClose = floatPtr(money.Round2(prev))
		q.Change = floatPtr(money.Round2(page.price - prev))
		q.ChangePercent = money.Round2(money.PercentChange(prev, page.price))
	}
	return q, nil
}

type quotePage struct {
	price         float64
	changePercent *float64
	previousClose *float64
}

// parseQuotePage extracts a price, and optionally the daily change or the
// previous close, from an exchange quote page.
func parseQuotePage(body []byte) (quotePage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return quotePage{}, err
	}

	var page quotePage
	if v, ok := firstNumber(doc, priceSelectors); ok && v > 0 {
		page.price = v
	} else if m := currencyPricePattern.FindStringSubmatch(doc.Text()); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && v > 0 {
			page.price = v
		}
	}
	if page.price <= 0 {
		return quotePage{}, errNoPrice
	}

	if v, ok := firstNumber(doc, changeSelectors); ok {
		page.changePercent = floatPtr(v)
	}
	if v, ok := firstNumber(doc, previousCloseSelectors); ok {
		page.previousClose = floatPtr(v)
	}
	return page, nil
}

func firstNumber(doc *goquery.Document, selectors []string) (float64, bool) {
	for _, sel := range selectors {
		var (
			value float64
			found bool
		)
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, err := parseNumber(s.Text())
			if err != nil {
				return true
			}
			value, found = v, true
			return false
		})
		if found {
			return value, true
		}
	}
	return 0, false
}

func parseNumber(text string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(numberCleaner.Replace(text)), 64)
}

func expandTemplate(tmpl, symbol string) string {
	return strings.NewReplacer("{symbol}", symbol, "{symbol_lower}", strings.ToLower(symbol)).Replace(tmpl)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
