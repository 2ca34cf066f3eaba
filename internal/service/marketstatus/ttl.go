package marketstatus

import (
	"time"

	"QuoteHub/internal/domain/models"
)

// TTL is a cache freshness budget measured from when a value was produced:
// fresh until Hard, servable stale until Stale, expired after.
type TTL struct {
	Hard  time.Duration `yaml:"hard"`
	Stale time.Duration `yaml:"stale"`
}

// Window returns the budget as a cache hard TTL plus the extra stale window.
func (t TTL) Window() (hard, extra time.Duration) {
	if t.Stale <= t.Hard {
		return t.Hard, 0
	}
	return t.Hard, t.Stale - t.Hard
}

// TTLPolicy is the only place where the market session changes cache
// lifetimes.
type TTLPolicy struct {
	Regular  TTL `yaml:"regular"`
	Extended TTL `yaml:"extended"`
	Closed   TTL `yaml:"closed"`
	Metadata TTL `yaml:"metadata"`
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Regular:  TTL{Hard: 5 * time.Second, Stale: 10 * time.Second},
		Extended: TTL{Hard: 15 * time.Second, Stale: 30 * time.Second},
		Closed:   TTL{Hard: 15 * time.Minute, Stale: time.Hour},
		Metadata: TTL{Hard: 24 * time.Hour, Stale: 7 * 24 * time.Hour},
	}
}

// For returns the budget of one request class in session s. Metadata does
// not depend on the session.
func (p TTLPolicy) For(class models.RequestClass, s models.Session) TTL {
	if class == models.ClassMetadata {
		return p.Metadata
	}
	switch {
	case s == models.SessionRegular:
		return p.Regular
	case s.Extended():
		return p.Extended
	default:
		return p.Closed
	}
}
