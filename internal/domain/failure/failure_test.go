package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{429, KindRateLimited},
		{401, KindUnauthorized},
		{403, KindUnauthorized},
		{404, KindInvalidResponse},
		{500, KindProviderUnavailable},
		{503, KindProviderUnavailable},
	}
	for _, tc := range cases {
		err := FromStatus("finnhub", "quote", tc.status)
		if assert.NotNil(t, err, "status %d", tc.status) {
			assert.Equal(t, tc.kind, err.Kind, "status %d", tc.status)
			assert.Equal(t, tc.status, err.Status)
		}
	}
	assert.Nil(t, FromStatus("finnhub", "quote", 200))
	assert.ErrorIs(t, FromStatus("yahoo", "quote", 404), ErrNoData)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("stage finnhub: %w", RateLimited("finnhub", "quote", nil))
	cases := map[string]struct {
		err  error
		kind Kind
	}{
		"nil":       {nil, KindUnknown},
		"plain":     {errors.New("boom"), KindUnknown},
		"wrapped":   {wrapped, KindRateLimited},
		"circuit":   {&CircuitOpenError{Name: "yahoo"}, KindCircuitOpen},
		"canceled":  {fmt.Errorf("fetch: %w", context.Canceled), KindCanceled},
		"deadline":  {context.DeadlineExceeded, KindProviderUnavailable},
		"invalid":   {Invalid("yahoo", "quote", nil), KindInvalidResponse},
		"exhausted": {&AllSourcesExhaustedError{Symbol: "AAPL", Causes: []error{wrapped}}, KindAllSourcesExhausted},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Unavailable("finnhub", "quote", errors.New("reset"))))
	assert.True(t, IsRetryable(RateLimited("finnhub", "quote", nil)))
	assert.True(t, IsRetryable(errors.New("unclassified")))
	assert.False(t, IsRetryable(Invalid("finnhub", "quote", nil)))
	assert.False(t, IsRetryable(Unauthorized("finnhub", "quote", 401, nil)))
	assert.False(t, IsRetryable(&CircuitOpenError{Name: "finnhub"}))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestAllSourcesExhaustedUnwrap(t *testing.T) {
	cause := Unavailable("yahoo", "quote", errors.New("dial tcp: refused"))
	err := &AllSourcesExhaustedError{Symbol: "MSFT", Causes: []error{cause, &CircuitOpenError{Name: "finnhub"}}}

	assert.ErrorIs(t, err, ErrAllSourcesExhausted)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "yahoo", pe.Provider)
	assert.Contains(t, err.Error(), "MSFT")
	assert.Contains(t, err.Error(), "dial tcp: refused")
}

func TestAllSourcesExhaustedRetryAfter(t *testing.T) {
	_, ok := (&AllSourcesExhaustedError{Causes: []error{Invalid("yahoo", "quote", nil)}}).RetryAfter()
	assert.False(t, ok)

	err := &AllSourcesExhaustedError{Causes: []error{
		&CircuitOpenError{Name: "yahoo", RetryAfter: time.Minute},
		Unavailable("polygon", "quote", nil),
		fmt.Errorf("wrapped: %w", &CircuitOpenError{Name: "finnhub", RetryAfter: 5 * time.Second}),
	}}
	d, ok := err.RetryAfter()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestProviderErrorMessage(t *testing.T) {
	err := FromStatus("finnhub", "profile", 503)
	assert.Equal(t, "finnhub profile: provider_unavailable (status 503)", err.Error())
}

func TestWeightOf(t *testing.T) {
	assert.Equal(t, 0.0, WeightOf(nil, 0.5))
	assert.Equal(t, 1.0, WeightOf(Unavailable("a", "quote", nil), 0.5))
	assert.Equal(t, 1.0, WeightOf(Unauthorized("a", "quote", 403, nil), 0.5))
	assert.Equal(t, 0.5, WeightOf(RateLimited("a", "quote", nil), 0.5))
	assert.Equal(t, 0.0, WeightOf(Invalid("a", "quote", nil), 0.5))
	assert.Equal(t, 0.0, WeightOf(context.Canceled, 0.5))
}

func TestFromTransport(t *testing.T) {
	netErr := errors.New("connection refused")
	assert.Equal(t, KindProviderUnavailable, KindOf(FromTransport("yahoo", "quote", 0, netErr)))
	assert.Equal(t, KindRateLimited, KindOf(FromTransport("yahoo", "quote", 429, netErr)))
	assert.ErrorIs(t, FromTransport("yahoo", "quote", 0, context.Canceled), context.Canceled)
	assert.Equal(t, KindCanceled, KindOf(FromTransport("yahoo", "quote", 0, context.Canceled)))
	assert.Equal(t, KindProviderUnavailable, KindOf(FromTransport("yahoo", "quote", 0, context.DeadlineExceeded)))
}
