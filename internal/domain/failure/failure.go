// Package failure defines the error taxonomy shared by providers, the
// resilience primitives and the aggregation service.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"QuoteHub/internal/domain/models"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindProviderUnavailable
	KindRateLimited
	KindUnauthorized
	KindInvalidResponse
	KindCircuitOpen
	KindAllSourcesExhausted
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidResponse:
		return "invalid_response"
	case KindCircuitOpen:
		return "circuit_open"
	case KindAllSourcesExhausted:
		return "all_sources_exhausted"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen         = errors.New("circuit open")
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
	ErrMalformed           = errors.New("malformed payload")
	ErrNoData              = errors.New("no data for symbol")
)

// ProviderError is an upstream call failure classified by Kind.
type ProviderError struct {
	Provider string
	Op       string
	Kind     Kind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Provider, e.Op, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func Unavailable(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: KindProviderUnavailable, Err: err}
}

func RateLimited(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: KindRateLimited, Status: 429, Err: err}
}

func Unauthorized(provider, op string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: KindUnauthorized, Status: status, Err: err}
}

func Invalid(provider, op string, err error) *ProviderError {
	if err == nil {
		err = ErrMalformed
	}
	return &ProviderError{Provider: provider, Op: op, Kind: KindInvalidResponse, Err: err}
}

// FromStatus maps an HTTP status code to a provider error. Returns nil for 2xx.
func FromStatus(provider, op string, status int) *ProviderError {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429:
		return RateLimited(provider, op, nil)
	case status == 401 || status == 403:
		return Unauthorized(provider, op, status, nil)
	case status == 404:
		return &ProviderError{Provider: provider, Op: op, Kind: KindInvalidResponse, Status: status, Err: ErrNoData}
	default:
		return &ProviderError{Provider: provider, Op: op, Kind: KindProviderUnavailable, Status: status}
	}
}

// FromTransport classifies a failed upstream round trip. status is the HTTP
// status when one was received, else 0. Caller cancellation is returned as is.
func FromTransport(provider, op string, status int, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if status != 0 {
		if pe := FromStatus(provider, op, status); pe != nil {
			if pe.Err == nil {
				pe.Err = err
			}
			return pe
		}
	}
	return Unavailable(provider, op, err)
}

// CircuitOpenError is returned without calling upstream while a breaker is open.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q open, retry after %s", e.Name, e.RetryAfter)
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// AllSourcesExhaustedError is the only data failure surfaced to callers.
// Partial carries the last known value, labelled expired; it is nil only
// when nothing was ever cached for the symbol.
type AllSourcesExhaustedError struct {
	Symbol  string
	Partial *models.Resolution
	Causes  []error
}

func (e *AllSourcesExhaustedError) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("all sources exhausted for %s", e.Symbol)
	}
	msgs := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("all sources exhausted for %s: %s", e.Symbol, strings.Join(msgs, "; "))
}

func (e *AllSourcesExhaustedError) Is(target error) bool { return target == ErrAllSourcesExhausted }

func (e *AllSourcesExhaustedError) Unwrap() []error { return e.Causes }

// RetryAfter is the earliest reopening among causes skipped by an open
// circuit. ok is false when no cause was a circuit rejection.
func (e *AllSourcesExhaustedError) RetryAfter() (d time.Duration, ok bool) {
	for _, c := range e.Causes {
		var coe *CircuitOpenError
		if !errors.As(c, &coe) {
			continue
		}
		if !ok || coe.RetryAfter < d {
			d = coe.RetryAfter
		}
		ok = true
	}
	return d, ok
}

// KindOf classifies err. Unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ase *AllSourcesExhaustedError
	if errors.As(err, &ase) {
		return KindAllSourcesExhausted
	}
	var coe *CircuitOpenError
	if errors.As(err, &coe) {
		return KindCircuitOpen
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindProviderUnavailable
	}
	return KindUnknown
}

// IsRetryable reports whether another attempt at the same call can help.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindProviderUnavailable, KindRateLimited, KindUnknown:
		return true
	default:
		return false
	}
}

// WeightOf scores err for a circuit breaker. Zero means the outcome says
// nothing about upstream health.
func WeightOf(err error, rateLimitWeight float64) float64 {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindRateLimited:
		return rateLimitWeight
	case KindInvalidResponse, KindCanceled, KindCircuitOpen:
		return 0
	default:
		return 1
	}
}
