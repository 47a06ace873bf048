package date

import (
	"time"

	"github.com/pkg/errors"
)

// WorkingDay is the clock interval a user works in on a specific weekday.
// Hours may only carry clock information, the date part is ignored.
type WorkingDay struct {
	Weekday time.Weekday `json:"weekday" bson:"weekday"`
	Hours   Timespan     `json:"hours" bson:"hours"`
}

// WorkingHours enumerates the working days of a calendar. A weekday without
// an entry is a non-working day.
type WorkingHours []WorkingDay

// Clock builds a date-less time carrying only clock information
func Clock(hour int, minute int) time.Time {
	return time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC)
}

// Validate checks that the working hours table can produce slots at all
func (w WorkingHours) Validate() error {
	if len(w) == 0 {
		return errors.New("working hours must contain at least one working day")
	}

	seen := make(map[time.Weekday]bool)
	for _, day := range w {
		if seen[day.Weekday] {
			return errors.Errorf("duplicate working hours entry for %s", day.Weekday)
		}
		seen[day.Weekday] = true

		if !day.Hours.IsStartBeforeEnd() {
			return errors.Errorf("working hours for %s must start before they end", day.Weekday)
		}
	}

	return nil
}

// ForDay materializes the working window on the given calendar day.
// The second return value is false on non-working days.
func (w WorkingHours) ForDay(day time.Time) (Timespan, bool) {
	for _, workingDay := range w {
		if workingDay.Weekday != day.Weekday() {
			continue
		}

		startHour, startMinute, _ := workingDay.Hours.Start.Clock()
		endHour, endMinute, _ := workingDay.Hours.End.Clock()

		return Timespan{
			Start: time.Date(day.Year(), day.Month(), day.Day(), startHour, startMinute, 0, 0, day.Location()),
			End:   time.Date(day.Year(), day.Month(), day.Day(), endHour, endMinute, 0, 0, day.Location()),
		}, true
	}

	return Timespan{}, false
}

// LongestDay returns the duration of the longest working window in the table
func (w WorkingHours) LongestDay() time.Duration {
	var longest time.Duration
	for _, day := range w {
		if duration := day.Hours.Duration(); duration > longest {
			longest = duration
		}
	}

	return longest
}

// Intersect computes the common working window of several working hours
// tables on the given day: the latest common start and the earliest common
// end. The second return value is false if any participant does not work
// that day or the intersection is empty.
func Intersect(day time.Time, tables ...WorkingHours) (Timespan, bool) {
	if len(tables) == 0 {
		return Timespan{}, false
	}

	window, ok := tables[0].ForDay(day)
	if !ok {
		return Timespan{}, false
	}

	for _, table := range tables[1:] {
		other, ok := table.ForDay(day)
		if !ok {
			return Timespan{}, false
		}

		window.Start = maxTime(window.Start, other.Start)
		window.End = minTime(window.End, other.End)

		if !window.IsStartBeforeEnd() {
			return Timespan{}, false
		}
	}

	return window, true
}
