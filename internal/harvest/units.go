package harvest

import (
	"sort"
	"time"
)

// Units enumerates the work units for a date range and court set in harvest
// order: date ascending, then court ascending. Weekend dates are skipped;
// from and to are inclusive day bounds.
func (c Calendar) Units(from, to time.Time, courts []int) []WorkUnit {
	ordered := sortedCourts(courts)
	var units []WorkUnit
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if !c.IsBusinessDay(d) {
			continue
		}
		for _, court := range ordered {
			units = append(units, WorkUnit{Court: court, Date: d})
		}
	}
	return units
}

// NextPosition returns where harvesting picks up after the given completed
// unit: the next court in the configured set on the same date, or the first
// court on the next business day once the set is exhausted.
func (c Calendar) NextPosition(last WorkUnit, courts []int) WorkUnit {
	ordered := sortedCourts(courts)
	if len(ordered) == 0 {
		return WorkUnit{Court: last.Court, Date: c.NextBusinessDay(last.Date)}
	}
	for _, court := range ordered {
		if court > last.Court {
			return WorkUnit{Court: court, Date: Day(last.Date)}
		}
	}
	return WorkUnit{Court: ordered[0], Date: c.NextBusinessDay(last.Date)}
}

func sortedCourts(courts []int) []int {
	ordered := make([]int, len(courts))
	copy(ordered, courts)
	sort.Ints(ordered)
	return ordered
}
