package models

import "time"

// SourceRecord is one provider's answer for one field.
type SourceRecord struct {
	Field      Field
	Value      any
	ProviderID string
	Priority   int
	ObservedAt time.Time
}

// Decision records which record won a merge and why.
type Decision struct {
	Field      Field     `json:"field"`
	Strategy   string    `json:"strategy"`
	ProviderID string    `json:"provider,omitempty"`
	Priority   int       `json:"priority"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
	Candidates int       `json:"candidates"`
	Reason     string    `json:"reason"`
}

// Snapshot is the merged, cacheable result for one symbol and request class.
type Snapshot struct {
	Symbol     string            `json:"symbol"`
	Class      RequestClass      `json:"class"`
	Values     map[Field]any     `json:"values"`
	Decisions  []Decision        `json:"decisions,omitempty"`
	Failures   map[string]string `json:"failures,omitempty"` // provider -> error summary
	ProducedAt time.Time         `json:"produced_at"`
}

// Staleness labels how old the returned data is relative to its budget.
type Staleness string

const (
	StalenessFresh   Staleness = "fresh"
	StalenessStale   Staleness = "stale"
	StalenessExpired Staleness = "expired"
)

// Resolution is what callers of the aggregation core receive.
type Resolution struct {
	Symbol    string        `json:"symbol"`
	Values    map[Field]any `json:"values"`
	Session   MarketSession `json:"session"`
	AsOf      time.Time     `json:"as_of"`
	Staleness Staleness     `json:"staleness"`
	Decisions []Decision    `json:"decisions,omitempty"`
}
