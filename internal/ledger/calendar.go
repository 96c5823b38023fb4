package ledger

import "time"

// DateOf truncates t to midnight in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Advance moves date forward by exactly one unit of f. Month and year steps
// clamp to the last valid day of the target month (Jan 31 -> Feb 29 in a leap
// year) instead of overflowing into the next month like time.AddDate does.
func (f Frequency) Advance(date time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return date.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return date.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(date, 1)
	case FrequencyYearly:
		return addMonthsClamped(date, 12)
	default:
		return date
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Bounds returns the default window of period p containing date: the calendar
// month for monthly budgets and the Monday-Sunday week for weekly ones. Both
// ends are dates (midnight) and the end day is inclusive.
func (p Period) Bounds(date time.Time) (start, end time.Time) {
	day := DateOf(date)
	switch p {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start = day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6)
	default:
		start = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, -1)
	}
}

// EndOfDay returns the first instant after the day containing t, for
// inclusive date-range queries written as [start, next).
func EndOfDay(t time.Time) time.Time { return DateOf(t).AddDate(0, 0, 1) }

// DateIn returns the calendar date of d as midnight in loc, ignoring d's own
// location. Stored dates (budget windows, rule run dates) carry no zone.
func DateIn(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}
