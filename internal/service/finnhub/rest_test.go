package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuoteHub/internal/domain/failure"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "secret", BaseURL: srv.URL, RequestsPerMinute: 6000})
}

func TestGetQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "secret", r.Header.Get("X-Finnhub-Token"))
		_, _ = w.Write([]byte(`{"c":100,"h":101.5,"l":98,"o":99,"pc":95,"t":1720015200}`))
	})

	q, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, ProviderID, q.ProviderID)
	assert.Equal(t, 100.0, q.Price)
	assert.Equal(t, 95.0, q.PrevClose)
	assert.Equal(t, 101.5, q.DayHigh)
	assert.True(t, q.Timestamp.Equal(time.Unix(1720015200, 0)))
}

func TestGetQuoteUnknownSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	})
	_, err := c.GetQuote(context.Background(), "ZZZZ")
	assert.Equal(t, failure.KindInvalidResponse, failure.KindOf(err))
	assert.ErrorIs(t, err, failure.ErrNoData)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   failure.Kind
	}{
		{http.StatusTooManyRequests, failure.KindRateLimited},
		{http.StatusUnauthorized, failure.KindUnauthorized},
		{http.StatusForbidden, failure.KindUnauthorized},
		{http.StatusBadGateway, failure.KindProviderUnavailable},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := c.GetQuote(context.Background(), "AAPL")
		assert.Equal(t, tc.kind, failure.KindOf(err), "status %d", tc.status)
	}
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})
	_, err := c.GetTickerMetadata(context.Background(), "AAPL")
	assert.Equal(t, failure.KindInvalidResponse, failure.KindOf(err))
	assert.ErrorIs(t, err, failure.ErrMalformed)
}

func TestGetTickerMetadata(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/profile2", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Apple Inc","ticker":"AAPL","exchange":"NASDAQ NMS - GLOBAL MARKET","finnhubIndustry":"Technology","marketCapitalization":3000000}`))
	})
	m, err := c.GetTickerMetadata(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", m.Name)
	assert.Equal(t, "Technology", m.Sector)
	assert.Equal(t, 3e12, m.MarketCap)
}

func TestGetTickerMetadataEmptyProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.GetTickerMetadata(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, failure.ErrNoData)
}

func TestGetMarketStatusSignal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "US", r.URL.Query().Get("exchange"))
		_, _ = w.Write([]byte(`{"exchange":"US","holiday":null,"isOpen":false,"session":"post-market","t":1720029600}`))
	})
	sig, err := c.GetMarketStatusSignal(context.Background())
	require.NoError(t, err)
	assert.False(t, sig.IsOpen)
	assert.Equal(t, "post-market", sig.Session)
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetQuote(ctx, "AAPL")
	assert.Equal(t, failure.KindCanceled, failure.KindOf(err))
}
