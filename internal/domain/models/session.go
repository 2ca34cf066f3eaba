package models

import "time"

// Session is the trading session of the exchange at a given instant.
type Session string

const (
	SessionPreMarket  Session = "pre-market"
	SessionRegular    Session = "regular"
	SessionPostMarket Session = "post-market"
	SessionClosed     Session = "closed"
)

// Extended reports whether s is one of the extended-hours sessions.
func (s Session) Extended() bool {
	return s == SessionPreMarket || s == SessionPostMarket
}

const (
	SessionSourceCalendar = "calendar"
	SessionSourceUpstream = "calendar+upstream"
)

// MarketSession is the resolved session state. Never persisted.
type MarketSession struct {
	Session        Session   `json:"session"`
	AsOf           time.Time `json:"as_of"`
	NextTransition time.Time `json:"next_transition"`
	Source         string    `json:"source"`
}

// MarketStatusSignal is a best-effort upstream view of the exchange state.
type MarketStatusSignal struct {
	ProviderID string
	IsOpen     bool
	Session    string // upstream label, may be empty
	ObservedAt time.Time
}
