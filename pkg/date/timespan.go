package date

import (
	"fmt"
	"sort"
	"time"
)

// TimeBeforeOrEquals returns whether t1 is before or equal t2
func TimeBeforeOrEquals(t1 time.Time, t2 time.Time) bool {
	ts := t1.UnixNano()
	us := t2.UnixNano()
	return ts <= us
}

// TimeAfterOrEquals returns whether t1 is after or equal t2
func TimeAfterOrEquals(t1 time.Time, t2 time.Time) bool {
	ts := t1.UnixNano()
	us := t2.UnixNano()
	return ts >= us
}

// Timespan is a simple timespan between to times/dates
type Timespan struct {
	Start time.Time `json:"start" bson:"start" validate:"required"`
	End   time.Time `json:"end" bson:"end"`
}

// Duration simply get the duration of a Timespan
func (t *Timespan) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// IsStartBeforeEnd checks if start is earlier than end
func (t *Timespan) IsStartBeforeEnd() bool {
	return t.Start.Before(t.End)
}

// String prints a timespan string
func (t *Timespan) String() string {
	return fmt.Sprintf("%s - %s", t.Start, t.End)
}

// In changes the location on a Timespan
func (t *Timespan) In(location *time.Location) Timespan {
	t.Start = t.Start.In(location)
	t.End = t.End.In(location)

	return *t
}

// IntersectsWith checks if one timespan intersects with another
func (t *Timespan) IntersectsWith(timespan Timespan) bool {
	if t.Start.Before(timespan.End) && t.End.After(timespan.Start) {
		return true
	}

	return false
}

// Contains checks if one timespan t contains another Timespan timespan
func (t *Timespan) Contains(timespan Timespan) bool {
	if TimeAfterOrEquals(timespan.Start, t.Start) &&
		TimeBeforeOrEquals(timespan.End, t.End) {
		return true
	}

	return false
}

// ContainsTime checks if a point in time lies inside the Timespan, start inclusive, end exclusive
func (t *Timespan) ContainsTime(point time.Time) bool {
	return TimeAfterOrEquals(point, t.Start) && point.Before(t.End)
}

// Pad expands the Timespan by the given duration on both ends
func (t *Timespan) Pad(duration time.Duration) Timespan {
	return Timespan{
		Start: t.Start.Add(-duration),
		End:   t.End.Add(duration),
	}
}

// RemoveFromTimespanSlice removes a Timespan from a Timespan slice
func RemoveFromTimespanSlice(slice []Timespan, s int) []Timespan {
	return append(slice[:s], slice[s+1:]...)
}

func minTime(a, b time.Time) time.Time {
	if a.Unix() < b.Unix() {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.Unix() > b.Unix() {
		return a
	}
	return b
}

// MergeTimespans merges Timespan structs together in case they overlap, they don't have to be presorted
func MergeTimespans(timespans []Timespan) []Timespan {
	if len(timespans) == 0 {
		return nil
	}

	sort.Slice(timespans, func(i, j int) bool {
		return timespans[i].Start.Before(timespans[j].Start)
	})

	index := 0

	for i := 1; i < len(timespans); i++ {
		if timespans[index].End.Unix() >= timespans[i].Start.Unix() {
			timespans[index].End = maxTime(timespans[index].End, timespans[i].End)
			timespans[index].Start = minTime(timespans[index].Start, timespans[i].Start)
		} else {
			index++
			timespans[index] = timespans[i]
		}
	}

	var mergedTimespans []Timespan
	for i := 0; i <= index; i++ {
		mergedTimespans = append(mergedTimespans, timespans[i])
	}

	return mergedTimespans
}

// SubtractTimespans computes the parts of window that are not covered by any of the given
// timespans. The result is sorted by start time.
func SubtractTimespans(window Timespan, busy []Timespan) []Timespan {
	var relevant []Timespan
	for _, timespan := range busy {
		if !timespan.IntersectsWith(window) {
			continue
		}

		clipped := timespan
		if clipped.Start.Before(window.Start) {
			clipped.Start = window.Start
		}
		if clipped.End.After(window.End) {
			clipped.End = window.End
		}

		relevant = append(relevant, clipped)
	}

	if len(relevant) == 0 {
		return []Timespan{window}
	}

	relevant = MergeTimespans(relevant)

	var free []Timespan
	cursor := window.Start
	for _, timespan := range relevant {
		if cursor.Before(timespan.Start) {
			free = append(free, Timespan{Start: cursor, End: timespan.Start})
		}
		cursor = timespan.End
	}

	if cursor.Before(window.End) {
		free = append(free, Timespan{Start: cursor, End: window.End})
	}

	return free
}
