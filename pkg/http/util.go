package http

import (
	"time"

	xutil "QuoteHub/pkg/util"
)

// ParseTimeIn parses a query timestamp; zone-less values are read in loc.
func ParseTimeIn(s string, loc *time.Location) (time.Time, bool) { return xutil.ParseTimeIn(s, loc) }

// QueryList splits a comma separated query parameter.
func QueryList(s string) []string { return xutil.SplitList(s) }
