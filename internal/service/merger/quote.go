package merger

import (
	"time"

	"QuoteHub/internal/domain/models"
)

// QuoteRecords turns a provider quote into numeric source records. A quote
// without its own timestamp is stamped with now. Zero values mean the provider
// did not report the field and are skipped; only eps and beta may be negative.
func QuoteRecords(q models.Quote, priority int, now time.Time) []models.SourceRecord {
	at := q.Timestamp
	if at.IsZero() {
		at = now
	}
	fields := []struct {
		f      models.Field
		v      float64
		signed bool
	}{
		{models.FieldPrice, q.Price, false},
		{models.FieldPrevClose, q.PrevClose, false},
		{models.FieldVolume, q.Volume, false},
		{models.FieldAvgVolume, q.AvgVolume, false},
		{models.FieldDayHigh, q.DayHigh, false},
		{models.FieldDayLow, q.DayLow, false},
		{models.FieldFiftyTwoWeekHigh, q.FiftyTwoWeekHigh, false},
		{models.FieldFiftyTwoWeekLow, q.FiftyTwoWeekLow, false},
		{models.FieldPE, q.PE, false},
		{models.FieldEPS, q.EPS, true},
		{models.FieldBeta, q.Beta, true},
		{models.FieldDividend, q.Dividend, false},
		{models.FieldDividendYield, q.DividendYield, false},
	}
	out := make([]models.SourceRecord, 0, len(fields))
	for _, x := range fields {
		if x.v == 0 || (x.v < 0 && !x.signed) {
			continue
		}
		out = append(out, models.SourceRecord{
			Field:      x.f,
			Value:      x.v,
			ProviderID: q.ProviderID,
			Priority:   priority,
			ObservedAt: at,
		})
	}
	return out
}

// TradeRecord turns the latest streamed trade into a price record.
func TradeRecord(t models.Trade, providerID string, priority int) models.SourceRecord {
	return models.SourceRecord{
		Field:      models.FieldPrice,
		Value:      t.Price,
		ProviderID: providerID,
		Priority:   priority,
		ObservedAt: t.Timestamp,
	}
}
