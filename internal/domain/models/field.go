package models

import (
	"fmt"
	"strings"
)

// Field names a resolvable attribute of a symbol.
type Field string

const (
	FieldName      Field = "name"
	FieldSector    Field = "sector"
	FieldIndustry  Field = "industry"
	FieldExchange  Field = "exchange"
	FieldMarketCap Field = "marketCap"

	FieldPrice            Field = "price"
	FieldPrevClose        Field = "prevClose"
	FieldChange           Field = "change"
	FieldChangePercent    Field = "changePercent"
	FieldVolume           Field = "volume"
	FieldDayHigh          Field = "dayHigh"
	FieldDayLow           Field = "dayLow"
	FieldFiftyTwoWeekHigh Field = "fiftyTwoWeekHigh"
	FieldFiftyTwoWeekLow  Field = "fiftyTwoWeekLow"
	FieldAvgVolume        Field = "avgVolume"
	FieldPE               Field = "pe"
	FieldEPS              Field = "eps"
	FieldBeta             Field = "beta"
	FieldDividend         Field = "dividend"
	FieldDividendYield    Field = "dividendYield"
)

// RequestClass groups fields that share a cache entry and freshness budget.
type RequestClass string

const (
	ClassQuote    RequestClass = "quote"
	ClassMetadata RequestClass = "metadata"
)

var fieldClass = map[Field]RequestClass{
	FieldName:             ClassMetadata,
	FieldSector:           ClassMetadata,
	FieldIndustry:         ClassMetadata,
	FieldExchange:         ClassMetadata,
	FieldMarketCap:        ClassMetadata,
	FieldPrice:            ClassQuote,
	FieldPrevClose:        ClassQuote,
	FieldChange:           ClassQuote,
	FieldChangePercent:    ClassQuote,
	FieldVolume:           ClassQuote,
	FieldDayHigh:          ClassQuote,
	FieldDayLow:           ClassQuote,
	FieldFiftyTwoWeekHigh: ClassQuote,
	FieldFiftyTwoWeekLow:  ClassQuote,
	FieldAvgVolume:        ClassQuote,
	FieldPE:               ClassQuote,
	FieldEPS:              ClassQuote,
	FieldBeta:             ClassQuote,
	FieldDividend:         ClassQuote,
	FieldDividendYield:    ClassQuote,
}

// Class returns the request class of f.
func (f Field) Class() RequestClass {
	return fieldClass[f]
}

// Categorical reports whether f holds a label rather than a number.
func (f Field) Categorical() bool {
	switch f {
	case FieldName, FieldSector, FieldIndustry, FieldExchange:
		return true
	}
	return false
}

// DefaultFields is used when a caller asks for nothing in particular.
var DefaultFields = []Field{
	FieldName, FieldSector, FieldPrice, FieldPrevClose, FieldChange, FieldChangePercent, FieldVolume,
}

// ParseFields normalizes a list of field names; duplicates are dropped.
func ParseFields(names []string) ([]Field, error) {
	out := make([]Field, 0, len(names))
	seen := make(map[Field]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		f := Field(n)
		if _, ok := fieldClass[f]; !ok {
			return nil, fmt.Errorf("unknown field %q", n)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	if len(out) == 0 {
		return DefaultFields, nil
	}
	return out, nil
}

// SplitByClass groups fields by request class, preserving order.
func SplitByClass(fields []Field) map[RequestClass][]Field {
	out := make(map[RequestClass][]Field, 2)
	for _, f := range fields {
		c := f.Class()
		out[c] = append(out[c], f)
	}
	return out
}
