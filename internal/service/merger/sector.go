package merger

import (
	"strconv"
	"strings"
	"time"

	"QuoteHub/internal/domain/models"
)

// Evidence priorities, strongest first. Provider-declared fields are explicit.
const (
	PriorityExplicit     = 3
	PrioritySICLookup    = 2
	PrioritySecurityType = 1
	// PrioritySymbol backs the name with the ticker itself.
	PrioritySymbol = 0
)

// MetadataRecords turns one provider's metadata into source records. Sector
// evidence yields up to three records of decreasing priority. Metadata
// without an observation time is stamped with now.
func MetadataRecords(meta models.TickerMetadata, now time.Time) []models.SourceRecord {
	at := meta.ObservedAt
	if at.IsZero() {
		at = now
	}
	rec := func(f models.Field, v any, prio int) models.SourceRecord {
		return models.SourceRecord{Field: f, Value: v, ProviderID: meta.ProviderID, Priority: prio, ObservedAt: at}
	}

	out := []models.SourceRecord{
		rec(models.FieldName, orUnknown(meta.Name), PriorityExplicit),
		rec(models.FieldIndustry, orUnknown(meta.Industry), PriorityExplicit),
		rec(models.FieldExchange, orUnknown(meta.Exchange), PriorityExplicit),
		rec(models.FieldSector, orUnknown(meta.Sector), PriorityExplicit),
	}
	if s := SectorFromSIC(meta.SICCode); s != models.Unknown {
		out = append(out, rec(models.FieldSector, s, PrioritySICLookup))
	}
	if s := SectorFromSecurityType(meta.SecurityType); s != models.Unknown {
		out = append(out, rec(models.FieldSector, s, PrioritySecurityType))
	}
	if strings.TrimSpace(meta.Name) == "" && meta.Symbol != "" {
		out = append(out, rec(models.FieldName, meta.Symbol, PrioritySymbol))
	}
	if meta.MarketCap > 0 {
		out = append(out, rec(models.FieldMarketCap, meta.MarketCap, PriorityExplicit))
	}
	return out
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.Unknown
	}
	return s
}

type sicRange struct {
	lo, hi int
	sector string
}

// Narrow ranges come first; the first match wins.
var sicRanges = []sicRange{
	{1300, 1399, "Energy"},
	{2830, 2836, "Healthcare"},
	{2900, 2999, "Energy"},
	{3570, 3579, "Technology"},
	{3660, 3679, "Technology"},
	{3710, 3716, "Consumer Cyclical"},
	{3840, 3851, "Healthcare"},
	{5400, 5499, "Consumer Defensive"},
	{6500, 6553, "Real Estate"},
	{6798, 6798, "Real Estate"},
	{7370, 7379, "Technology"},
	{100, 999, "Basic Materials"},
	{1000, 1499, "Basic Materials"},
	{1500, 1799, "Industrials"},
	{2000, 2199, "Consumer Defensive"},
	{2800, 2899, "Basic Materials"},
	{2000, 3999, "Industrials"},
	{4000, 4799, "Industrials"},
	{4800, 4899, "Communication Services"},
	{4900, 4999, "Utilities"},
	{5000, 5199, "Industrials"},
	{5200, 5999, "Consumer Cyclical"},
	{6000, 6799, "Financial Services"},
	{7000, 7299, "Consumer Cyclical"},
	{7800, 7999, "Communication Services"},
	{8000, 8099, "Healthcare"},
	{7300, 8999, "Industrials"},
}

// SectorFromSIC maps a Standard Industrial Classification code to a sector.
func SectorFromSIC(code string) string {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n <= 0 {
		return models.Unknown
	}
	for _, r := range sicRanges {
		if n >= r.lo && n <= r.hi {
			return r.sector
		}
	}
	return models.Unknown
}

// SectorFromSecurityType is the weakest evidence: it only labels instruments
// that have no operating sector.
func SectorFromSecurityType(t string) string {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "ETF":
		return "Exchange Traded Fund"
	case "MUTUALFUND":
		return "Mutual Fund"
	case "CRYPTOCURRENCY":
		return "Cryptocurrency"
	case "INDEX":
		return "Index"
	case "CURRENCY":
		return "Currency"
	case "FUTURE":
		return "Futures"
	default:
		return models.Unknown
	}
}
