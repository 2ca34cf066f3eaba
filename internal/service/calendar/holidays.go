package calendar

import "time"

// USHolidays returns the full-day NYSE closures for year, as UTC dates.
func USHolidays(year int) []time.Time {
	days := make([]time.Time, 0, 10)

	// New Year's Day falling on a Saturday is not observed on the prior Friday.
	if ny := date(year, time.January, 1); ny.Weekday() != time.Saturday {
		days = append(days, observed(ny))
	}
	days = append(days,
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		easter(year).AddDate(0, 0, -2),
		lastWeekday(year, time.May, time.Monday),
	)
	if year >= 2022 {
		days = append(days, observed(date(year, time.June, 19)))
	}
	days = append(days,
		observed(date(year, time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(date(year, time.December, 25)),
	)
	return days
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// observed moves a weekend date to the nearest weekday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := date(year, month, 1)
	offset := int(wd - d.Weekday())
	if offset < 0 {
		offset += 7
	}
	return d.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := date(year, month+1, 0)
	offset := int(d.Weekday() - wd)
	if offset < 0 {
		offset += 7
	}
	return d.AddDate(0, 0, -offset)
}

// easter computes Gregorian Easter Sunday (anonymous computus).
func easter(year int) time.Time {
	a := year % 19
	b, c := year/100, year%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(year, time.Month(month), day)
}
