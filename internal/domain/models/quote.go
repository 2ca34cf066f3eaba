package models

import "time"

// Unknown is the placeholder for a categorical value no provider could supply.
const Unknown = "Unknown"

// Quote is one provider's price view of a symbol.
type Quote struct {
	Symbol           string
	ProviderID       string
	Price            float64
	PrevClose        float64
	Volume           float64
	DayHigh          float64
	DayLow           float64
	FiftyTwoWeekHigh float64
	FiftyTwoWeekLow  float64
	AvgVolume        float64
	PE               float64 // trailing
	EPS              float64 // trailing twelve months
	Beta             float64
	Dividend         float64 // annual rate per share
	DividendYield    float64 // percent
	Timestamp        time.Time
}

// TickerMetadata is one provider's descriptive view of a symbol.
type TickerMetadata struct {
	Symbol       string
	ProviderID   string
	Name         string
	Sector       string // explicit sector classification if the provider has one
	Industry     string
	Exchange     string
	SICCode      string
	SecurityType string  // EQUITY, ETF, MUTUALFUND, ...
	MarketCap    float64 // zero unless reported directly
	ObservedAt   time.Time
}

// Trade is a single print from the live trade stream.
type Trade struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}
