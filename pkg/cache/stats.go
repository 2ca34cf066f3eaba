package cache

import "sync/atomic"

// Stats is a snapshot of an Intelligent cache's counters.
type Stats struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	StaleServed     int64 `json:"stale_served"`
	SharedWaits     int64 `json:"shared_waits"`
	Refreshes       int64 `json:"refreshes"`
	RefreshFailures int64 `json:"refresh_failures"`
	FetchFailures   int64 `json:"fetch_failures"`
	Evictions       int64 `json:"evictions"`
}

// HitRatio counts stale serves as hits.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.StaleServed + s.Misses + s.SharedWaits
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.StaleServed) / float64(total)
}

type counters struct {
	hits, misses, stale, shared     atomic.Int64
	refreshes, refreshErr, fetchErr atomic.Int64
	evictions                       atomic.Int64
}

func (c *counters) add(event string) {
	switch event {
	case "hit":
		c.hits.Add(1)
	case "miss":
		c.misses.Add(1)
	case "stale":
		c.stale.Add(1)
	case "shared":
		c.shared.Add(1)
	case "refresh":
		c.refreshes.Add(1)
	case "refresh_error":
		c.refreshErr.Add(1)
	case "fetch_error":
		c.fetchErr.Add(1)
	case "eviction":
		c.evictions.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		StaleServed:     c.stale.Load(),
		SharedWaits:     c.shared.Load(),
		Refreshes:       c.refreshes.Load(),
		RefreshFailures: c.refreshErr.Load(),
		FetchFailures:   c.fetchErr.Load(),
		Evictions:       c.evictions.Load(),
	}
}
