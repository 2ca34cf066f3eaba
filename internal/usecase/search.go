package usecase

import (
	"context"
	"fmt"
	"strings"

	"QuoteHub/internal/domain/models"
	"QuoteHub/pkg/logger"
)

// Listing suffixes tried after the bare symbol: Toronto, TSX Venture, ASX.
var searchSuffixes = []string{".TO", ".V", ".AX"}

// Heavily traded tickers offered for short terms that match no listing.
var popularSymbols = []string{"AAPL", "MSFT", "GOOGL", "TSLA", "NVDA", "AMZN", "META", "NFLX"}

const (
	popularTermMaxLen = 4
	popularMaxResults = 2
)

var searchFields = []models.Field{models.FieldName, models.FieldPrice}

// Search returns the first listing of query that resolves. Candidates are
// tried one at a time so a miss never fans out into a burst of upstream
// calls. A short term with no listing falls back to partial matches against
// popularSymbols.
func (s *AggregationService) Search(ctx context.Context, query string) ([]*models.Resolution, error) {
	sym := NormalizeSymbol(query)
	if sym == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, query)
	}
	candidates := []string{sym}
	if !strings.Contains(sym, ".") {
		for _, suf := range searchSuffixes {
			candidates = append(candidates, sym+suf)
		}
	}

	for _, c := range candidates {
		res, err := s.searchOne(ctx, c)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return []*models.Resolution{res}, nil
		}
	}

	if len(sym) <= popularTermMaxLen {
		var out []*models.Resolution
		for _, p := range popularMatches(sym) {
			res, err := s.searchOne(ctx, p)
			if err != nil {
				return nil, err
			}
			if res != nil {
				out = append(out, res)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, sym)
}

// searchOne returns nil on a miss; only a dead ctx is an error.
func (s *AggregationService) searchOne(ctx context.Context, symbol string) (*models.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.Resolve(ctx, symbol, searchFields)
	if err != nil {
		s.log.Debug("search candidate missed", logger.String("symbol", symbol), logger.Error(err))
		return nil, nil
	}
	return res, nil
}

func popularMatches(term string) []string {
	var out []string
	for _, p := range popularSymbols {
		if strings.Contains(p, term) || strings.Contains(term, p) {
			out = append(out, p)
			if len(out) == popularMaxResults {
				break
			}
		}
	}
	return out
}
