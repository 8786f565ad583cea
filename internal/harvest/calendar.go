package harvest

import "time"

// Calendar answers which dates courts publish opinions on. Courts hand down
// decisions on business days only.
type Calendar struct{}

// NewCalendar creates a Calendar.
func NewCalendar() Calendar {
	return Calendar{}
}

// IsBusinessDay reports whether t falls on a weekday.
func (Calendar) IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PreviousBusinessDay returns the last weekday strictly before t's date.
func (c Calendar) PreviousBusinessDay(t time.Time) time.Time {
	d := Day(t)
	switch d.Weekday() {
	case time.Monday:
		return d.AddDate(0, 0, -3)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	default:
		return d.AddDate(0, 0, -1)
	}
}

// NextBusinessDay returns the first weekday strictly after t's date.
func (c Calendar) NextBusinessDay(t time.Time) time.Time {
	d := Day(t)
	switch d.Weekday() {
	case time.Friday:
		return d.AddDate(0, 0, 3)
	case time.Saturday:
		return d.AddDate(0, 0, 2)
	default:
		return d.AddDate(0, 0, 1)
	}
}
