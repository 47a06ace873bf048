package scheduling

import (
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
)

// SlotType coarsely classifies what a free window lends itself to
type SlotType string

// The slot types
const (
	SlotTypeWork    SlotType = "work"
	SlotTypeBreak   SlotType = "break"
	SlotTypeMeeting SlotType = "meeting"
	SlotTypeFocus   SlotType = "focus"
)

// TimeSlot is a single free window the placement engine can assign work to.
// Slots are ephemeral, they are regenerated on every optimization pass.
type TimeSlot struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`

	// Quality rates the time of day desirability of the slot
	Quality float64 `json:"quality"`
	// Availability is penalized by fixed events close to the slot
	Availability float64 `json:"availability"`
	// Suitability rates how well the slot fits focused work
	Suitability float64 `json:"suitability"`

	Type SlotType `json:"type"`
}

// Timespan returns the window of the slot
func (s *TimeSlot) Timespan() date.Timespan {
	return date.Timespan{Start: s.Start, End: s.End}
}

// GenerateSlots produces the ordered free slots over the horizon. For every
// day the weekday's working window is looked up, all busy events padded by
// the buffer are subtracted and the remaining free intervals are cut into
// granularity sized slots. The generator holds no state, callers regenerate
// on demand.
func GenerateSlots(hours date.WorkingHours, events calendar.Events, horizonStart time.Time, horizonDays int, granularity time.Duration, padding time.Duration) []TimeSlot {
	if granularity <= 0 {
		return nil
	}

	var slots []TimeSlot

	busy := date.MergeTimespans(paddedBusyTimespans(events, padding))

	for dayOffset := 0; dayOffset < horizonDays; dayOffset++ {
		day := horizonStart.AddDate(0, 0, dayOffset)

		window, ok := hours.ForDay(day)
		if !ok {
			continue
		}

		// The first day may already be partially over
		if window.Start.Before(horizonStart) {
			window.Start = horizonStart.Round(granularity)
			if window.Start.Before(horizonStart) {
				window.Start = window.Start.Add(granularity)
			}
		}

		if !window.IsStartBeforeEnd() {
			continue
		}

		for _, free := range date.SubtractTimespans(window, busy) {
			for start := free.Start; !start.Add(granularity).After(free.End); start = start.Add(granularity) {
				slot := TimeSlot{
					Start:    start,
					End:      start.Add(granularity),
					Duration: granularity,
				}

				annotateSlot(&slot, events)
				slots = append(slots, slot)
			}
		}
	}

	return slots
}

// paddedBusyTimespans expands every busy interval by the buffer on both ends,
// so no slot can start or end flush against a fixed event
func paddedBusyTimespans(events calendar.Events, padding time.Duration) []date.Timespan {
	raw := events.BusyTimespans()
	if padding <= 0 {
		return raw
	}

	padded := make([]date.Timespan, 0, len(raw))
	for _, timespan := range raw {
		padded = append(padded, timespan.Pad(padding))
	}

	return padded
}

func annotateSlot(slot *TimeSlot, events calendar.Events) {
	hour := slot.Start.Hour()

	slot.Quality = slotQuality(hour)
	slot.Availability = slotAvailability(slot, events)
	slot.Suitability = slotSuitability(hour)
	slot.Type = slotType(hour)
}

// slotQuality rewards the typical deep work peaks and punishes the edges of the day
func slotQuality(hour int) float64 {
	quality := 0.5

	if (hour >= 9 && hour < 11) || (hour >= 14 && hour < 16) {
		quality += 0.3
	}

	if hour < 8 || hour >= 18 {
		quality -= 0.3
	}

	if hour >= 12 && hour < 13 {
		quality -= 0.1
	}

	return clamp(quality, 0, 1)
}

// slotAvailability drops by 0.3 for every busy event within half an hour of the slot
func slotAvailability(slot *TimeSlot, events calendar.Events) float64 {
	availability := 1.0

	window := slot.Timespan()
	vicinity := window.Pad(time.Minute * 30)
	for _, event := range events {
		if !event.Busy {
			continue
		}

		if event.Date.IntersectsWith(vicinity) {
			availability -= 0.3
		}
	}

	return clamp(availability, 0, 1)
}

func slotSuitability(hour int) float64 {
	switch {
	case hour < 12:
		return 0.9
	case hour < 17:
		return 0.7
	}

	return 0.4
}

func slotType(hour int) SlotType {
	switch {
	case hour >= 12 && hour < 13:
		return SlotTypeBreak
	case hour >= 9 && hour < 11:
		return SlotTypeFocus
	}

	return SlotTypeWork
}

func clamp(value float64, low float64, high float64) float64 {
	if value < low {
		return low
	}

	if value > high {
		return high
	}

	return value
}
