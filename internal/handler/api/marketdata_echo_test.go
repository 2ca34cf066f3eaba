package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuoteHub/internal/domain/failure"
	models "QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/breaker"
	"QuoteHub/internal/usecase"
)

type stubService struct {
	res        *models.Resolution
	err        error
	fields     []models.Field
	invalid    []string
	sessionAt  time.Time
	invalidErr error
}

func (s *stubService) Resolve(_ context.Context, _ string, fields []models.Field) (*models.Resolution, error) {
	s.fields = fields
	return s.res, s.err
}

func (s *stubService) Invalidate(_ context.Context, symbol string) error {
	s.invalid = append(s.invalid, symbol)
	return s.invalidErr
}

func (s *stubService) Search(_ context.Context, _ string) ([]*models.Resolution, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*models.Resolution{s.res}, nil
}

func (s *stubService) Session(context.Context) models.MarketSession {
	return models.MarketSession{Session: models.SessionRegular, Source: models.SessionSourceCalendar}
}

func (s *stubService) SessionAt(ts time.Time) models.MarketSession {
	s.sessionAt = ts
	return models.MarketSession{Session: models.SessionClosed, AsOf: ts, Source: models.SessionSourceCalendar}
}

func (s *stubService) Breakers() []breaker.Status {
	return []breaker.Status{{Name: "finnhub", State: breaker.StateOpen, Failures: 5, Requests: 10}}
}

func (s *stubService) Stats() usecase.ServiceStats {
	return usecase.ServiceStats{HitRatio: 0.75}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code string `json:"code"`
	} `json:"errors"`
}

func serve(t *testing.T, svc MarketData, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	e := echo.New()
	NewMarketDataEchoHandler(nil, svc, loc).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestQuoteReturnsResolution(t *testing.T) {
	svc := &stubService{res: &models.Resolution{
		Symbol:    "AAPL",
		Values:    map[models.Field]any{models.FieldPrice: 105.0},
		Staleness: models.StalenessFresh,
	}}
	rec, env := serve(t, svc, http.MethodGet, "/api/quotes/AAPL?fields=price,change")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.Field{models.FieldPrice, models.FieldChange}, svc.fields)
	assert.Equal(t, "private, max-age=5", rec.Header().Get(echo.HeaderCacheControl))

	var got models.Resolution
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "AAPL", got.Symbol)
	assert.InDelta(t, 105.0, got.Values[models.FieldPrice], 1e-9)
}

func TestQuoteRejectsUnknownField(t *testing.T) {
	rec, env := serve(t, &stubService{}, http.MethodGet, "/api/quotes/AAPL?fields=price,ebitda")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, env.Errors, 0)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestQuoteErrorMapping(t *testing.T) {
	partial := &models.Resolution{Symbol: "AAPL", Staleness: models.StalenessExpired}
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantPartial bool
	}{
		{"invalid symbol", fmt.Errorf("%w: %q", usecase.ErrInvalidSymbol, "??"), http.StatusBadRequest, false},
		{"not found", usecase.ErrSymbolNotFound, http.StatusNotFound, false},
		{"exhausted with partial", &failure.AllSourcesExhaustedError{Symbol: "AAPL", Partial: partial}, http.StatusServiceUnavailable, true},
		{"exhausted without partial", &failure.AllSourcesExhaustedError{Symbol: "AAPL"}, http.StatusServiceUnavailable, false},
		{"circuit open", &failure.AllSourcesExhaustedError{Symbol: "AAPL", Causes: []error{&failure.CircuitOpenError{Name: "yahoo", RetryAfter: 20 * time.Second}}}, http.StatusServiceUnavailable, false},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := serve(t, &stubService{err: tt.err}, http.MethodGet, "/api/quotes/AAPL")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantPartial {
				var got models.Resolution
				require.NoError(t, json.Unmarshal(env.Data, &got))
				assert.Equal(t, models.StalenessExpired, got.Staleness)
				require.Len(t, env.Errors, 1)
				assert.Equal(t, "ERR_SOURCES_EXHAUSTED", env.Errors[0].Code)
			}
		})
	}
}

func TestCircuitOpenSetsRetryAfter(t *testing.T) {
	svc := &stubService{err: &failure.AllSourcesExhaustedError{Symbol: "AAPL", Causes: []error{
		failure.Unavailable("finnhub", "quote", errors.New("503")),
		fmt.Errorf("yahoo: %w", &failure.CircuitOpenError{Name: "yahoo", RetryAfter: 20 * time.Second}),
		&failure.CircuitOpenError{Name: "polygon", RetryAfter: 45 * time.Second},
	}}}
	rec, _ := serve(t, svc, http.MethodGet, "/api/quotes/AAPL")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("Retry-After"), "earliest reopening wins")

	svc = &stubService{err: &failure.AllSourcesExhaustedError{Symbol: "AAPL", Causes: []error{
		failure.Unavailable("finnhub", "quote", errors.New("503")),
	}}}
	rec, _ = serve(t, svc, http.MethodGet, "/api/quotes/AAPL")
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestInvalidateQuote(t *testing.T) {
	svc := &stubService{}
	rec, _ := serve(t, svc, http.MethodDelete, "/api/quotes/msft/cache")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"msft"}, svc.invalid)
}

func TestSessionAt(t *testing.T) {
	svc := &stubService{}
	rec, env := serve(t, svc, http.MethodGet, "/api/market/session?at=2024-07-04")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "America/New_York", svc.sessionAt.Location().String())
	assert.Equal(t, 4, svc.sessionAt.Day())

	var got models.MarketSession
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.SessionClosed, got.Session)

	rec, _ = serve(t, svc, http.MethodGet, "/api/market/session?at=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = serve(t, svc, http.MethodGet, "/api/market/session")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.SessionRegular, got.Session)
}

func TestBreakers(t *testing.T) {
	rec, env := serve(t, &stubService{}, http.MethodGet, "/api/health/breakers")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "finnhub", got[0]["name"])
	assert.Equal(t, "open", got[0]["state"])
}

func TestSearchRequiresQuery(t *testing.T) {
	rec, _ := serve(t, &stubService{}, http.MethodGet, "/api/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, &stubService{err: usecase.ErrSymbolNotFound}, http.MethodGet, "/api/search?q=zzz")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	rec, env := serve(t, &stubService{}, http.MethodGet, "/api/health/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		HitRatio float64 `json:"hit_ratio"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 0.75, got.HitRatio)
}
