package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuoteHub/internal/domain/failure"
)

const quoteBody = `{"quoteResponse":{"result":[{
	"symbol":"MSFT","quoteType":"EQUITY","longName":"Microsoft Corporation","shortName":"Microsoft",
	"fullExchangeName":"NasdaqGS","marketState":"POST","marketCap":3100000000000,
	"regularMarketPrice":420.5,"regularMarketPreviousClose":415.0,"regularMarketVolume":18000000,
	"regularMarketTime":1720029600,"regularMarketDayHigh":421,"regularMarketDayLow":414,
	"fiftyTwoWeekHigh":468.35,"fiftyTwoWeekLow":309.45,"averageDailyVolume3Month":20500000,
	"trailingPE":36.4,"epsTrailingTwelveMonths":11.55,"beta":0.9,
	"trailingAnnualDividendRate":2.93,"trailingAnnualDividendYield":0.0071}],"error":null}}`

const profileBody = `{"quoteSummary":{"result":[{"assetProfile":{"sector":"Technology","industry":"Software - Infrastructure"}}],"error":null}}`

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, RequestsPerMinute: 6000})
}

func TestGetQuote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MSFT", r.URL.Query().Get("symbols"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(quoteBody))
	})
	q, err := newTestClient(t, mux).GetQuote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 420.5, q.Price)
	assert.Equal(t, 415.0, q.PrevClose)
	assert.Equal(t, 18000000.0, q.Volume)
	assert.Equal(t, 468.35, q.FiftyTwoWeekHigh)
	assert.Equal(t, int64(1720029600), q.Timestamp.Unix())
	assert.Equal(t, 20500000.0, q.AvgVolume)
	assert.Equal(t, 36.4, q.PE)
	assert.Equal(t, 11.55, q.EPS)
	assert.Equal(t, 0.9, q.Beta)
	assert.Equal(t, 2.93, q.Dividend)
	assert.InDelta(t, 0.71, q.DividendYield, 1e-9)
}

func TestGetQuotePrefersForwardDividend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"KO","regularMarketPrice":62.1,
			"dividendRate":1.94,"dividendYield":3.12,"trailingAnnualDividendRate":1.84,"trailingAnnualDividendYield":0.0296,
			"epsTrailingTwelveMonths":-0.4}]}}`))
	})
	q, err := newTestClient(t, mux).GetQuote(context.Background(), "KO")
	require.NoError(t, err)
	assert.Equal(t, 1.94, q.Dividend)
	assert.Equal(t, 3.12, q.DividendYield)
	assert.Equal(t, -0.4, q.EPS)
	assert.Zero(t, q.PE)
}

func TestGetQuoteEmptyResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[],"error":null}}`))
	})
	_, err := newTestClient(t, mux).GetQuote(context.Background(), "NOPE")
	assert.Equal(t, failure.KindInvalidResponse, failure.KindOf(err))
	assert.ErrorIs(t, err, failure.ErrNoData)
}

func TestGetTickerMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(quoteBody))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/MSFT", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "assetProfile", r.URL.Query().Get("modules"))
		_, _ = w.Write([]byte(profileBody))
	})
	m, err := newTestClient(t, mux).GetTickerMetadata(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "Microsoft Corporation", m.Name)
	assert.Equal(t, "Technology", m.Sector)
	assert.Equal(t, "Software - Infrastructure", m.Industry)
	assert.Equal(t, "NasdaqGS", m.Exchange)
	assert.Equal(t, "EQUITY", m.SecurityType)
	assert.Equal(t, 3.1e12, m.MarketCap)
}

func TestGetTickerMetadataFundWithoutProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"VOO","quoteType":"ETF","shortName":"Vanguard S&P 500"}]}}`))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/VOO", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"quoteSummary":{"result":null,"error":{"code":"Not Found"}}}`))
	})
	m, err := newTestClient(t, mux).GetTickerMetadata(context.Background(), "VOO")
	require.NoError(t, err)
	assert.Equal(t, "Vanguard S&P 500", m.Name)
	assert.Equal(t, "ETF", m.SecurityType)
	assert.Empty(t, m.Sector)
}

func TestGetTickerMetadataProfileOutage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(quoteBody))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/MSFT", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := newTestClient(t, mux).GetTickerMetadata(context.Background(), "MSFT")
	assert.Equal(t, failure.KindRateLimited, failure.KindOf(err))
}

func TestGetMarketStatusSignal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SPY", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"SPY","marketState":"REGULAR"}]}}`))
	})
	sig, err := newTestClient(t, mux).GetMarketStatusSignal(context.Background())
	require.NoError(t, err)
	assert.True(t, sig.IsOpen)
	assert.Equal(t, "regular", sig.Session)
}

func TestInvalidJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteResponse":`))
	})
	_, err := newTestClient(t, mux).GetQuote(context.Background(), "MSFT")
	assert.ErrorIs(t, err, failure.ErrMalformed)
}

func TestServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := newTestClient(t, mux).GetQuote(context.Background(), "MSFT")
	assert.True(t, failure.IsRetryable(err))
	assert.Equal(t, failure.KindProviderUnavailable, failure.KindOf(err))
}
