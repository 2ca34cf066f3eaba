// Package calendar maps instants to US equity trading sessions.
package calendar

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"QuoteHub/internal/domain/models"
)

const DefaultTimezone = "America/New_York"

// Hours are session boundaries in minutes after local midnight.
type Hours struct {
	PreMarketOpen   int
	RegularOpen     int
	RegularClose    int
	PostMarketClose int
}

// USEquityHours: 04:00 / 09:30 / 16:00 / 20:00 exchange-local.
var USEquityHours = Hours{
	PreMarketOpen:   4 * 60,
	RegularOpen:     9*60 + 30,
	RegularClose:    16 * 60,
	PostMarketClose: 20 * 60,
}

func (h Hours) validate() error {
	if !(0 <= h.PreMarketOpen && h.PreMarketOpen <= h.RegularOpen &&
		h.RegularOpen < h.RegularClose && h.RegularClose <= h.PostMarketClose &&
		h.PostMarketClose <= 24*60) {
		return fmt.Errorf("session boundaries out of order: %+v", h)
	}
	return nil
}

// Calendar is safe for concurrent use. SessionFor is a pure function of its
// arguments and the calendar's fixed location and hours.
type Calendar struct {
	loc   *time.Location
	hours Hours

	mu       sync.Mutex
	holidays map[int][]time.Time
}

type Option func(*Calendar)

func WithHours(h Hours) Option {
	return func(c *Calendar) { c.hours = h }
}

func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) { c.loc = loc }
}

// New creates a calendar for the given IANA timezone (empty means New York).
func New(timezone string, opts ...Option) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	c := &Calendar{loc: loc, hours: USEquityHours, holidays: make(map[int][]time.Time)}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.hours.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Holidays returns the computed holidays of year, memoized.
func (c *Calendar) Holidays(year int) []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.holidays[year]
	if !ok {
		h = USHolidays(year)
		c.holidays[year] = h
	}
	return h
}

// Session resolves ts against the built-in US holiday table.
func (c *Calendar) Session(ts time.Time) models.MarketSession {
	y := ts.In(c.loc).Year()
	holidays := append(append([]time.Time{}, c.Holidays(y)...), c.Holidays(y+1)...)
	return c.SessionFor(ts, holidays)
}

// SessionFor returns the session at ts. Weekend and holiday dates are closed
// all day; otherwise the local clock picks the session.
func (c *Calendar) SessionFor(ts time.Time, holidays []time.Time) models.MarketSession {
	set := holidaySet(holidays)
	local := ts.In(c.loc)

	ms := models.MarketSession{
		Session: models.SessionClosed,
		AsOf:    ts,
		Source:  models.SessionSourceCalendar,
	}
	if c.tradingDay(local, set) {
		ms.Session = c.hours.sessionAt(minuteOfDay(local))
	}
	ms.NextTransition = c.nextTransition(local, set)
	return ms
}

// PostMarketClose returns the end of extended trading on the local date of ts.
func (c *Calendar) PostMarketClose(ts time.Time) time.Time {
	return c.at(ts.In(c.loc), c.hours.PostMarketClose)
}

// MinuteOfDay returns the exchange-local minute of ts.
func (c *Calendar) MinuteOfDay(ts time.Time) int {
	return minuteOfDay(ts.In(c.loc))
}

func (h Hours) sessionAt(minute int) models.Session {
	switch {
	case minute < h.PreMarketOpen:
		return models.SessionClosed
	case minute < h.RegularOpen:
		return models.SessionPreMarket
	case minute < h.RegularClose:
		return models.SessionRegular
	case minute < h.PostMarketClose:
		return models.SessionPostMarket
	default:
		return models.SessionClosed
	}
}

func (h Hours) boundaries() []int {
	return []int{h.PreMarketOpen, h.RegularOpen, h.RegularClose, h.PostMarketClose}
}

func (c *Calendar) nextTransition(local time.Time, set map[dayKey]struct{}) time.Time {
	if c.tradingDay(local, set) {
		now := minuteOfDay(local)
		for _, b := range c.hours.boundaries() {
			if b > now {
				return c.at(local, b)
			}
		}
	}
	d := local
	// Two weeks is far beyond any real run of closures.
	for i := 0; i < 14; i++ {
		d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, c.loc)
		if c.tradingDay(d, set) {
			return c.at(d, c.hours.PreMarketOpen)
		}
	}
	return time.Time{}
}

func (c *Calendar) at(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, c.loc)
}

func (c *Calendar) tradingDay(local time.Time, set map[dayKey]struct{}) bool {
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := set[keyOf(local)]
	return !holiday
}

type dayKey struct {
	y int
	m time.Month
	d int
}

func keyOf(t time.Time) dayKey {
	y, m, d := t.Date()
	return dayKey{y, m, d}
}

// holidaySet keys each holiday by its own calendar date.
func holidaySet(holidays []time.Time) map[dayKey]struct{} {
	set := make(map[dayKey]struct{}, len(holidays))
	for _, h := range holidays {
		set[keyOf(h)] = struct{}{}
	}
	return set
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
