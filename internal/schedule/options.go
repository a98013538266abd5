package schedule

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SyncOptions steers a single calendar sync request. It is never persisted.
type SyncOptions struct {
	SyncToCalendar bool      `json:"sync_to_calendar"`
	Days           []string  `json:"selected_days"`
	Recurring      bool      `json:"is_recurring"`
	StartDate      time.Time `json:"start_date"`
}

// ValidationError reports a bad form field. It maps to HTTP 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ParseSyncOptions reads sync_to_calendar, selected_days, is_recurring and
// start_date from form values. now supplies the default start date.
func ParseSyncOptions(form url.Values, now time.Time) (SyncOptions, error) {
	var opts SyncOptions

	sync, err := parseFlag(form.Get("sync_to_calendar"))
	if err != nil {
		return opts, &ValidationError{Field: "sync_to_calendar", Message: err.Error()}
	}
	if !sync {
		return opts, nil
	}
	opts.SyncToCalendar = true

	days, err := parseDays(form["selected_days"])
	if err != nil {
		return opts, err
	}
	if len(days) == 0 {
		return opts, &ValidationError{Field: "selected_days", Message: "select at least one day to sync"}
	}
	opts.Days = days

	if opts.Recurring, err = parseFlag(form.Get("is_recurring")); err != nil {
		return opts, &ValidationError{Field: "is_recurring", Message: err.Error()}
	}

	raw := strings.TrimSpace(form.Get("start_date"))
	if raw == "" {
		y, m, d := now.Date()
		opts.StartDate = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		return opts, nil
	}
	start, err := time.ParseInLocation(DateLayout, raw, now.Location())
	if err != nil {
		return opts, &ValidationError{Field: "start_date", Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", raw)}
	}
	opts.StartDate = start
	return opts, nil
}

// StartDateString formats the start date the way the engine expects it.
func (o SyncOptions) StartDateString() string {
	return o.StartDate.Format(DateLayout)
}

func parseFlag(v string) (bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("expected true or false, got %q", v)
	}
	return b, nil
}

// parseDays accepts repeated fields, comma lists and JSON arrays.
func parseDays(values []string) ([]string, error) {
	seen := make(map[int]bool)
	var days []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		var parts []string
		if strings.HasPrefix(v, "[") {
			if err := json.Unmarshal([]byte(v), &parts); err != nil {
				return nil, &ValidationError{Field: "selected_days", Message: "invalid JSON array"}
			}
		} else {
			parts = strings.Split(v, ",")
		}
		for _, p := range parts {
			day := strings.ToUpper(strings.TrimSpace(p))
			if day == "" {
				continue
			}
			if !IsKnownDay(day) {
				return nil, &ValidationError{Field: "selected_days", Message: fmt.Sprintf("unknown day %q", p)}
			}
			// MON and MONDAY name the same weekday; the first label wins.
			if seen[Rank(day)] {
				continue
			}
			seen[Rank(day)] = true
			days = append(days, day)
		}
	}
	return days, nil
}
