package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

var rruleDays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// FirstOccurrences returns, per day label, the first date strictly after
// start that falls on that weekday. This is the date the first calendar
// event for the day lands on.
func FirstOccurrences(days []string, start time.Time) (map[string]time.Time, error) {
	y, m, d := start.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, start.Location()).AddDate(0, 0, 1)

	out := make(map[string]time.Time, len(days))
	for _, day := range days {
		r := Rank(day)
		if r < 0 {
			return nil, &ValidationError{Field: "selected_days", Message: fmt.Sprintf("unknown day %q", day)}
		}
		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   from,
			Byweekday: []rrule.Weekday{rruleDays[r]},
			Count:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("building weekly rule for %s: %w", day, err)
		}
		if occ := rule.All(); len(occ) > 0 {
			out[day] = occ[0]
		}
	}
	return out, nil
}
