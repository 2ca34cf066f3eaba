// Package retry computes backoff delays for pipeline stage retries.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

type Policy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	// Jitter scales each delay by a uniform factor in [0.5, 1.5).
	Jitter bool

	rand func() float64
}

func Default() Policy {
	return Policy{
		Base:       200 * time.Millisecond,
		Multiplier: 2,
		Max:        5 * time.Second,
		Jitter:     true,
	}
}

// WithRand returns a copy of p drawing jitter from r, which must return
// values in [0, 1).
func (p Policy) WithRand(r func() float64) Policy {
	p.rand = r
	return p
}

// Delay returns min(Base*Multiplier^(attempt-1), Max) for a 1-based attempt,
// jittered when enabled.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Base) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		d *= 0.5 + r()
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
