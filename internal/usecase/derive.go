package usecase

import (
	"github.com/shopspring/decimal"

	"QuoteHub/internal/domain/models"
)

const StrategyDerived = "derived"

var hundred = decimal.NewFromInt(100)

// Change returns price-prevClose and its percentage of prevClose, both
// rounded to two decimals. The percentage is 0 when prevClose is not positive.
func Change(price, prevClose float64) (change, percent float64) {
	p := decimal.NewFromFloat(price)
	pc := decimal.NewFromFloat(prevClose)
	ch := p.Sub(pc)
	pct := decimal.Zero
	if pc.IsPositive() {
		pct = ch.Div(pc).Mul(hundred)
	}
	return ch.Round(2).InexactFloat64(), pct.Round(2).InexactFloat64()
}

func deriveChange(values map[models.Field]any, decisions []models.Decision) (map[models.Field]any, []models.Decision) {
	price, ok := values[models.FieldPrice].(float64)
	if !ok {
		return values, decisions
	}
	prev, ok := values[models.FieldPrevClose].(float64)
	if !ok {
		return values, decisions
	}
	ch, pct := Change(price, prev)
	values[models.FieldChange] = ch
	values[models.FieldChangePercent] = pct
	decisions = append(decisions,
		models.Decision{Field: models.FieldChange, Strategy: StrategyDerived, Candidates: 2, Reason: "price - prevClose"},
		models.Decision{Field: models.FieldChangePercent, Strategy: StrategyDerived, Candidates: 2, Reason: "change / prevClose * 100"},
	)
	return values, decisions
}
