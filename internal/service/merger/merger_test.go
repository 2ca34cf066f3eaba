package merger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuoteHub/internal/domain/models"
)

var t0 = time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)

func sector(v string, prio int, provider string, at time.Time) models.SourceRecord {
	return models.SourceRecord{Field: models.FieldSector, Value: v, Priority: prio, ProviderID: provider, ObservedAt: at}
}

func TestPriorityIgnoresInputOrder(t *testing.T) {
	unknown := sector("Unknown", 1, "a", t0)
	tech := sector("Technology", 2, "b", t0)
	m := New()

	for _, in := range [][]models.SourceRecord{{unknown, tech}, {tech, unknown}} {
		v, d, ok := m.Merge(models.FieldSector, in)
		require.True(t, ok)
		assert.Equal(t, "Technology", v)
		assert.Equal(t, StrategyPriority, d.Strategy)
		assert.Equal(t, "b", d.ProviderID)
		assert.Equal(t, 2, d.Candidates)
	}
}

func TestPrioritySkipsUnknownAtTopPriority(t *testing.T) {
	v, d, _ := New().Merge(models.FieldSector, []models.SourceRecord{
		sector("Unknown", 3, "finnhub", t0),
		sector("", 3, "yahoo", t0),
		sector("Healthcare", 2, "finnhub", t0),
		sector("Mutual Fund", 1, "yahoo", t0),
	})
	assert.Equal(t, "Healthcare", v)
	assert.Equal(t, PrioritySICLookup, d.Priority)
}

func TestPriorityTieBreaksOnRecency(t *testing.T) {
	v, d, _ := New().Merge(models.FieldSector, []models.SourceRecord{
		sector("Financial Services", 3, "finnhub", t0),
		sector("Banking", 3, "yahoo", t0.Add(time.Minute)),
	})
	assert.Equal(t, "Banking", v)
	assert.Equal(t, "yahoo", d.ProviderID)
}

func TestPriorityAllUnknown(t *testing.T) {
	v, d, ok := New().Merge(models.FieldSector, []models.SourceRecord{
		sector("Unknown", 3, "a", t0),
		sector("unknown", 1, "b", t0),
	})
	require.True(t, ok)
	assert.Equal(t, models.Unknown, v)
	assert.Equal(t, "all candidates unknown", d.Reason)

	v, _, ok = New().Merge(models.FieldName, nil)
	require.True(t, ok)
	assert.Equal(t, models.Unknown, v)
}

func TestRecencyPrefersNewestObservation(t *testing.T) {
	recs := []models.SourceRecord{
		{Field: models.FieldPrice, Value: 100.0, ProviderID: "finnhub", Priority: 2, ObservedAt: t0},
		{Field: models.FieldPrice, Value: 101.5, ProviderID: "stream", Priority: 1, ObservedAt: t0.Add(2 * time.Second)},
		{Field: models.FieldPrice, Value: "n/a", ProviderID: "broken", Priority: 3, ObservedAt: t0.Add(time.Hour)},
	}
	v, d, ok := New().Merge(models.FieldPrice, recs)
	require.True(t, ok)
	assert.Equal(t, 101.5, v)
	assert.Equal(t, StrategyRecency, d.Strategy)
	assert.Equal(t, "stream", d.ProviderID)
}

func TestRecencyTieBreaksOnPriority(t *testing.T) {
	v, _, _ := New().Merge(models.FieldVolume, []models.SourceRecord{
		{Field: models.FieldVolume, Value: 10.0, ProviderID: "yahoo", Priority: 1, ObservedAt: t0},
		{Field: models.FieldVolume, Value: 12.0, ProviderID: "finnhub", Priority: 2, ObservedAt: t0},
	})
	assert.Equal(t, 12.0, v)
}

func TestRecencyWithoutValues(t *testing.T) {
	_, d, ok := New().Merge(models.FieldPrice, nil)
	assert.False(t, ok)
	assert.Equal(t, "no numeric observation", d.Reason)
}

func TestMergeAll(t *testing.T) {
	meta := models.TickerMetadata{
		Symbol: "VOO", ProviderID: "yahoo", Name: "Vanguard S&P 500 ETF",
		SecurityType: "ETF", ObservedAt: t0,
	}
	q := models.Quote{Symbol: "VOO", ProviderID: "finnhub", Price: 450, PrevClose: 445, Timestamp: t0}

	recs := append(MetadataRecords(meta, t0), QuoteRecords(q, 2, t0)...)
	values, decisions := New().MergeAll(recs)

	assert.Equal(t, "Exchange Traded Fund", values[models.FieldSector])
	assert.Equal(t, "Vanguard S&P 500 ETF", values[models.FieldName])
	assert.Equal(t, models.Unknown, values[models.FieldIndustry])
	assert.Equal(t, 450.0, values[models.FieldPrice])
	assert.NotContains(t, values, models.FieldVolume)
	assert.NotContains(t, values, models.FieldMarketCap, "market cap is only reported, never derived")

	for i := 1; i < len(decisions); i++ {
		assert.Less(t, string(decisions[i-1].Field), string(decisions[i].Field))
	}
}

func TestSectorFromSIC(t *testing.T) {
	cases := map[string]string{
		"7372": "Technology",
		"3571": "Technology",
		"2834": "Healthcare",
		"6021": "Financial Services",
		"1311": "Energy",
		"4911": "Utilities",
		"6798": "Real Estate",
		"5411": "Consumer Defensive",
		"3711": "Consumer Cyclical",
		"3721": "Industrials",
		"":     models.Unknown,
		"abc":  models.Unknown,
		"9999": models.Unknown,
	}
	for code, want := range cases {
		assert.Equal(t, want, SectorFromSIC(code), "sic %q", code)
	}
}

func TestMetadataRecordsPriorities(t *testing.T) {
	recs := MetadataRecords(models.TickerMetadata{
		ProviderID: "p", Sector: "Technology", SICCode: "2834", SecurityType: "ETF", ObservedAt: t0,
	}, t0)
	prios := map[string]int{}
	for _, r := range recs {
		if r.Field == models.FieldSector {
			prios[r.Value.(string)] = r.Priority
		}
	}
	assert.Equal(t, map[string]int{
		"Technology":           PriorityExplicit,
		"Healthcare":           PrioritySICLookup,
		"Exchange Traded Fund": PrioritySecurityType,
	}, prios)
}

func TestNameFallsBackToSymbol(t *testing.T) {
	m := New()
	values, _ := m.MergeAll(MetadataRecords(models.TickerMetadata{Symbol: "ZZZ", ProviderID: "p"}, t0))
	assert.Equal(t, "ZZZ", values[models.FieldName])

	recs := append(
		MetadataRecords(models.TickerMetadata{Symbol: "ZZZ", ProviderID: "p"}, t0),
		MetadataRecords(models.TickerMetadata{Symbol: "ZZZ", ProviderID: "q", Name: "Zed Corp"}, t0.Add(-time.Hour))...,
	)
	values, _ = m.MergeAll(recs)
	assert.Equal(t, "Zed Corp", values[models.FieldName], "a reported name beats the ticker")
}

func TestQuoteRecordsFundamentals(t *testing.T) {
	now := t0.Add(time.Minute)
	recs := QuoteRecords(models.Quote{
		ProviderID: "yahoo", Price: 10, PE: 0, EPS: -1.25, Beta: -0.3, Dividend: -1, DividendYield: 2.5, AvgVolume: 1e6,
	}, 1, now)

	got := map[models.Field]float64{}
	for _, r := range recs {
		got[r.Field] = r.Value.(float64)
		assert.Equal(t, now, r.ObservedAt, "untimed quotes take the injected clock")
	}
	assert.Equal(t, map[models.Field]float64{
		models.FieldPrice:         10,
		models.FieldEPS:           -1.25,
		models.FieldBeta:          -0.3,
		models.FieldDividendYield: 2.5,
		models.FieldAvgVolume:     1e6,
	}, got)
}
