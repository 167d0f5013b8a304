// Package recurrence expands a recurring-schedule request into the concrete dates
// it covers. Expansion is pure: no clock reads, no I/O.
package recurrence

import (
	"fmt"
	"sort"
	"time"
)

const (
	DefaultMaxOccurrences = 50
	defaultSpanYears      = 1
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Pattern describes how a schedule repeats.
type Pattern struct {
	Frequency Frequency `json:"pattern"`
	Interval  int       `json:"interval"`
	// DaysOfWeek uses time.Weekday numbering (0 = Sunday). Only read for Weekly.
	DaysOfWeek     []int      `json:"daysOfWeek,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	MaxOccurrences int        `json:"maxOccurrences,omitempty"`
}

// Validate rejects patterns the expander would silently reinterpret.
func (p Pattern) Validate() error {
	if !p.Frequency.Valid() {
		return fmt.Errorf("unknown frequency %q", p.Frequency)
	}
	if p.Interval < 1 {
		return fmt.Errorf("interval must be positive, got %d", p.Interval)
	}
	if p.MaxOccurrences < 0 {
		return fmt.Errorf("max occurrences must not be negative, got %d", p.MaxOccurrences)
	}
	for _, d := range p.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("day of week out of range: %d", d)
		}
	}
	return nil
}

// Map renders the pattern for storage in a schedule's metadata bag.
func (p Pattern) Map() map[string]any {
	m := map[string]any{
		"pattern":  string(p.Frequency),
		"interval": p.Interval,
	}
	if len(p.DaysOfWeek) > 0 {
		m["daysOfWeek"] = append([]int(nil), p.DaysOfWeek...)
	}
	if p.EndDate != nil {
		m["endDate"] = p.EndDate.UTC().Format(time.RFC3339)
	}
	if p.MaxOccurrences > 0 {
		m["maxOccurrences"] = p.MaxOccurrences
	}
	return m
}

// Expand returns the dates covered by p, starting at start. The first element is
// start itself. Expansion stops once the next date passes the end date (default:
// one year after start) or once the occurrence cap (default 50) is reached.
func Expand(start time.Time, p Pattern) []time.Time {
	end := start.AddDate(defaultSpanYears, 0, 0)
	if p.EndDate != nil {
		end = *p.EndDate
	}
	limit := p.MaxOccurrences
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}
	interval := max(p.Interval, 1)

	var days []time.Weekday
	if p.Frequency == Weekly {
		days = normalizeDays(p.DaysOfWeek)
	}

	var dates []time.Time
	for current := start; len(dates) < limit && !current.After(end); {
		dates = append(dates, current)
		current = next(current, p.Frequency, interval, days)
	}
	return dates
}

func next(current time.Time, freq Frequency, interval int, days []time.Weekday) time.Time {
	switch freq {
	case Daily:
		return current.AddDate(0, 0, interval)
	case Weekly:
		if len(days) > 0 {
			return nextWeekday(current, interval, days)
		}
		return current.AddDate(0, 0, 7*interval)
	case Monthly:
		return current.AddDate(0, interval, 0)
	case Yearly:
		return current.AddDate(interval, 0, 0)
	default:
		// Unknown frequencies fall back to daily steps so expansion always terminates.
		return current.AddDate(0, 0, interval)
	}
}

// nextWeekday moves to the next listed weekday later in the same week, or wraps to
// the first listed weekday interval weeks ahead.
func nextWeekday(current time.Time, interval int, days []time.Weekday) time.Time {
	wd := current.Weekday()
	for _, d := range days {
		if d > wd {
			return current.AddDate(0, 0, int(d-wd))
		}
	}
	return current.AddDate(0, 0, 7*interval-int(wd)+int(days[0]))
}

func normalizeDays(in []int) []time.Weekday {
	seen := make(map[int]bool, len(in))
	out := make([]time.Weekday, 0, len(in))
	for _, d := range in {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, time.Weekday(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
