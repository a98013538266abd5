// Package schedule holds the timetable document produced by the engine and
// the per-request options that steer calendar sync.
package schedule

import (
	"sort"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Period is one class slot. Any field may be null in engine output.
type Period struct {
	Time       *string `json:"time"`
	CourseName *string `json:"course_name"`
	CourseCode *string `json:"course_code"`
	Location   *string `json:"location"`
}

// Document maps a day label such as "MON" or "MONDAY" to its periods.
// Labels are kept exactly as the engine produced them.
type Document map[string][]Period

var dayRank = map[string]int{
	"MON": 0, "TUE": 1, "WED": 2, "THU": 3, "FRI": 4, "SAT": 5, "SUN": 6,
	"MONDAY": 0, "TUESDAY": 1, "WEDNESDAY": 2, "THURSDAY": 3, "FRIDAY": 4, "SATURDAY": 5, "SUNDAY": 6,
}

// Rank returns the weekday position of a day label, Monday first.
// Unknown labels rank -1 so they sort ahead of every known day.
func Rank(day string) int {
	r, ok := dayRank[day]
	if !ok {
		return -1
	}
	return r
}

// IsKnownDay reports whether day is one of the fourteen recognised labels.
func IsKnownDay(day string) bool {
	_, ok := dayRank[day]
	return ok
}

// Weekday converts a known day label to a time.Weekday.
func Weekday(day string) (time.Weekday, bool) {
	r, ok := dayRank[day]
	if !ok {
		return 0, false
	}
	return time.Weekday((r + 1) % 7), true
}

// SortedDays returns the document's day labels in weekday order.
func SortedDays(doc Document) []string {
	days := make([]string, 0, len(doc))
	for d := range doc {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		ri, rj := Rank(days[i]), Rank(days[j])
		if ri != rj {
			return ri < rj
		}
		return days[i] < days[j]
	})
	return days
}

// PeriodCount returns the total number of periods across all days.
func (d Document) PeriodCount() int {
	n := 0
	for _, ps := range d {
		n += len(ps)
	}
	return n
}

// MissingDays lists the selected days that have no periods in doc.
// "MON" and "MONDAY" count as the same day.
func MissingDays(doc Document, days []string) []string {
	present := make(map[int]bool)
	for label, ps := range doc {
		if len(ps) > 0 {
			present[Rank(label)] = true
		}
	}
	var missing []string
	for _, d := range days {
		if r := Rank(d); r < 0 || !present[r] {
			missing = append(missing, d)
		}
	}
	return missing
}
