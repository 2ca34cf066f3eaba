package models

// QuoteRequest is the query for GET /api/quotes/:symbol.
type QuoteRequest struct {
	Symbol string `param:"symbol" validate:"required,max=20"`
	Fields string `query:"fields"`
}

// SymbolRequest addresses one symbol by path.
type SymbolRequest struct {
	Symbol string `param:"symbol" validate:"required,max=20"`
}

// SessionRequest optionally asks for the calendar session at a past or
// future instant.
type SessionRequest struct {
	At string `query:"at"`
}

type SearchRequest struct {
	Query string `query:"q" validate:"required,max=20"`
}
