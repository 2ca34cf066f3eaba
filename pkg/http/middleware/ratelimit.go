package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Allower is a keyed token bucket.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects clients that exceed their bucket with 429. Buckets are
// keyed by client IP. skip exempts paths such as the metrics endpoint.
func RateLimit(l Allower, retryAfter int, skip ...string) echo.MiddlewareFunc {
	exempt := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		exempt[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := exempt[c.Path()]; ok {
				return next(c)
			}
			if !l.Allow(c.RealIP()) {
				if retryAfter > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
