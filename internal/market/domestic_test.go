package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"challenge-desk-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupDomesticSource creates a DomesticSource whose primary and alternate
// templates point at a test server.
func setupDomesticSource(t *testing.T, handler http.Handler, synthetic bool) (*DomesticSource, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Domestic{
		PrimaryURLs:       []string{server.URL + "/primary/a?code={symbol}", server.URL + "/primary/b?code={symbol}"},
		AlternateURLs:     []string{server.URL + "/alternate/{symbol_lower}"},
		Timeout:           time.Second,
		Retries:           3,
		BackoffBase:       time.Second,
		SyntheticFallback: synthetic,
		Market:            "Casablanca Stock Exchange",
		Currency:          "MAD",
	}
	clock := newFakeClock()
	registry := NewRegistry(config.DefaultSymbols())
	synth := NewSynthesizer(registry, cfg.Market, cfg.Currency, 42)
	synth.now = clock.Now

	d := NewDomesticSource(cfg, registry, synth, zap.NewNop())
	d.now = clock.Now
	var sleeps []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		return nil
	}
	return d, &sleeps
}

func TestParseQuotePage(t *testing.T) {
	t.Run("PriceAndChange", func(t *testing.T) {
		page, err := parseQuotePage([]byte(`<html><body>
			<div class="price">1,234.50 MAD</div>
			<span class="change-percent">+2.5%</span>
		</body></html>`))
		require.NoError(t, err)
		assert.Equal(t, 1234.5, page.price)
		require.NotNil(t, page.changePercent)
		assert.Equal(t, 2.5, *page.changePercent)
		assert.Nil(t, page.previousClose)
	})

	t.Run("IdSelectorAndPreviousClose", func(t *testing.T) {
		page, err := parseQuotePage([]byte(`<table><tr>
			<td id="currentPrice">81.90</td><td class="prev-close">80.00</td>
		</tr></table>`))
		require.NoError(t, err)
		assert.Equal(t, 81.9, page.price)
		require.NotNil(t, page.previousClose)
		assert.Equal(t, 80.0, *page.previousClose)
	})

	t.Run("CurrencyPatternFallback", func(t *testing.T) {
		page, err := parseQuotePage([]byte(`<p>Last traded at 43.98 dirham today</p>`))
		require.NoError(t, err)
		assert.Equal(t, 43.98, page.price)
	})

	t.Run("SkipsNonNumericMatches", func(t *testing.T) {
		page, err := parseQuotePage([]byte(`<span class="price">n/a</span><span class="stock-price">12.21</span>`))
		require.NoError(t, err)
		assert.Equal(t, 12.21, page.price)
	})

	t.Run("NoPrice", func(t *testing.T) {
		_, err := parseQuotePage([]byte(`<html><body>maintenance</body></html>`))
		assert.ErrorIs(t, err, errNoPrice)
	})
}

func TestDomesticSource_PrimarySuccess(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/primary/a" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "IAM", r.URL.Query().Get("code"))
		_, _ = w.Write([]byte(`<span class="price">12.50</span><span class="change-percent">2.0%</span>`))
	})
	d, sleeps := setupDomesticSource(t, handler, true)

	q, err := d.FetchQuote(context.Background(), "iam")

	require.NoError(t, err)
	assert.Equal(t, SourceScrape, q.Source)
	assert.Equal(t, 12.5, q.CurrentPrice)
	assert.Equal(t, 2.0, q.ChangePercent)
	require.NotNil(t, q.PreviousClose)
	assert.Equal(t, 12.25, *q.PreviousClose)
	assert.Equal(t, "Itissalat Al-Maghrib (IAM)", q.Name)
	assert.Empty(t, *sleeps)
}

func TestDomesticSource_RetriesThenAlternate(t *testing.T) {
	var primaryHits, alternateHits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/alternate/atw":
			alternateHits.Add(1)
			_, _ = w.Write([]byte(`<div class="current-price">82.00</div><div class="previous-close">80.00</div>`))
		default:
			primaryHits.Add(1)
			_, _ = w.Write([]byte(`<html>no quote here</html>`))
		}
	})
	d, sleeps := setupDomesticSource(t, handler, true)

	q, err := d.FetchQuote(context.Background(), "ATW")

	require.NoError(t, err)
	assert.Equal(t, SourceAlternate, q.Source)
	assert.Equal(t, 82.0, q.CurrentPrice)
	assert.Equal(t, 2.5, q.ChangePercent)
	require.NotNil(t, q.Change)
	assert.Equal(t, 2.0, *q.Change)
	assert.Equal(t, int32(6), primaryHits.Load(), "two templates times three rounds")
	assert.Equal(t, int32(1), alternateHits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestDomesticSource_SyntheticFallback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	d, _ := setupDomesticSource(t, handler, true)

	q, err := d.FetchQuote(context.Background(), "TAQA")

	require.NoError(t, err)
	assert.Equal(t, SourceSynthetic, q.Source)
	assert.InDelta(t, 237.57, q.CurrentPrice, 237.57*0.3)
	require.NotNil(t, q.PreviousClose)
	assert.Equal(t, 237.57, *q.PreviousClose)
}

func TestDomesticSource_ScrapeFailureWhenSyntheticDisabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	d, _ := setupDomesticSource(t, handler, false)

	_, err := d.FetchQuote(context.Background(), "HPS")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, KindScrapeFailure, KindOf(err))
}

func TestDomesticSource_CancelledContextSkipsToSynthetic(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	d, _ := setupDomesticSource(t, handler, true)
	d.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q, err := d.FetchQuote(ctx, "CIH")

	require.NoError(t, err)
	assert.Equal(t, SourceSynthetic, q.Source)
	assert.Equal(t, int32(0), hits.Load())
}

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t, "https://x/quote?code=LBL&s=lbl", expandTemplate("https://x/quote?code={symbol}&s={symbol_lower}", "LBL"))
}
