// Package merger resolves one value per field from conflicting provider records.
package merger

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"QuoteHub/internal/domain/models"
)

const (
	StrategyPriority = "priority"
	StrategyRecency  = "recency"
)

// Strategy picks the winning record for one field. ok is false when no
// record carries a usable value.
type Strategy interface {
	Name() string
	Resolve(field models.Field, records []models.SourceRecord) (winner models.SourceRecord, d models.Decision, ok bool)
}

// PriorityStrategy is the categorical ordering: priority desc, then
// observedAt desc, skipping "Unknown".
type PriorityStrategy struct{}

func (PriorityStrategy) Name() string { return StrategyPriority }

func (PriorityStrategy) Resolve(field models.Field, records []models.SourceRecord) (models.SourceRecord, models.Decision, bool) {
	d := models.Decision{Field: field, Strategy: StrategyPriority, Candidates: len(records)}
	sorted := sortedCopy(records, func(a, b models.SourceRecord) bool {
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		return a.ProviderID < b.ProviderID
	})
	for _, r := range sorted {
		if isKnown(r.Value) {
			d.ProviderID = r.ProviderID
			d.Priority = r.Priority
			d.ObservedAt = r.ObservedAt
			d.Reason = fmt.Sprintf("highest priority known value (priority %d)", r.Priority)
			return r, d, true
		}
	}
	d.Reason = "all candidates unknown"
	return models.SourceRecord{Field: field, Value: models.Unknown}, d, false
}

// RecencyStrategy is the numeric ordering: the most recent successful
// observation wins, ties go to the higher priority.
type RecencyStrategy struct{}

func (RecencyStrategy) Name() string { return StrategyRecency }

func (RecencyStrategy) Resolve(field models.Field, records []models.SourceRecord) (models.SourceRecord, models.Decision, bool) {
	d := models.Decision{Field: field, Strategy: StrategyRecency, Candidates: len(records)}
	usable := make([]models.SourceRecord, 0, len(records))
	for _, r := range records {
		if _, ok := number(r.Value); ok {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		d.Reason = "no numeric observation"
		return models.SourceRecord{Field: field}, d, false
	}
	sorted := sortedCopy(usable, func(a, b models.SourceRecord) bool {
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ProviderID < b.ProviderID
	})
	w := sorted[0]
	d.ProviderID = w.ProviderID
	d.Priority = w.Priority
	d.ObservedAt = w.ObservedAt
	d.Reason = "most recent observation"
	return w, d, true
}

// Merger routes each field to its named strategy.
type Merger struct {
	categorical Strategy
	numeric     Strategy
}

func New() *Merger {
	return &Merger{categorical: PriorityStrategy{}, numeric: RecencyStrategy{}}
}

func (m *Merger) StrategyFor(f models.Field) Strategy {
	if f.Categorical() {
		return m.categorical
	}
	return m.numeric
}

// Merge resolves one field. Categorical fields with no known value resolve
// to "Unknown"; numeric fields with no value report ok=false.
func (m *Merger) Merge(f models.Field, records []models.SourceRecord) (any, models.Decision, bool) {
	w, d, ok := m.StrategyFor(f).Resolve(f, records)
	if !ok && f.Categorical() {
		return models.Unknown, d, true
	}
	return w.Value, d, ok
}

// MergeAll groups records by field and resolves each. Decisions are sorted
// by field name.
func (m *Merger) MergeAll(records []models.SourceRecord) (map[models.Field]any, []models.Decision) {
	byField := make(map[models.Field][]models.SourceRecord)
	for _, r := range records {
		byField[r.Field] = append(byField[r.Field], r)
	}
	fields := make([]models.Field, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	values := make(map[models.Field]any, len(fields))
	decisions := make([]models.Decision, 0, len(fields))
	for _, f := range fields {
		v, d, ok := m.Merge(f, byField[f])
		decisions = append(decisions, d)
		if ok {
			values[f] = v
		}
	}
	return values, decisions
}

func sortedCopy(records []models.SourceRecord, less func(a, b models.SourceRecord) bool) []models.SourceRecord {
	out := append([]models.SourceRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func isKnown(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		s := strings.TrimSpace(x)
		return s != "" && !strings.EqualFold(s, models.Unknown)
	default:
		return true
	}
}

func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
