package calendar

import (
	"github.com/clarence1979/teacherscheduler/pkg/date"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventSource declares where an event on the calendar came from
type EventSource string

const (
	// EventSourceFixedBlock is a block the user placed manually
	EventSourceFixedBlock EventSource = "fixed-block"
	// EventSourceBooking is a confirmed meeting or one of its buffers
	EventSourceBooking EventSource = "booking"
	// EventSourceExternal is an event synced from a third party calendar
	EventSourceExternal EventSource = "external"
	// EventSourceTaskChunk is a committed piece of scheduled task work
	EventSourceTaskChunk EventSource = "task-chunk"
)

// Event represents a simple calendar event. Events are immovable from the
// point of view of the scheduling engine.
type Event struct {
	ID    primitive.ObjectID `json:"id" bson:"_id"`
	Date  date.Timespan      `json:"date" bson:"date" validate:"required"`
	Title string             `json:"title" bson:"title"`

	Source EventSource `json:"source" bson:"source"`
	Busy   bool        `json:"busy" bson:"busy"`

	// ExternalID is set for events that live in a third party calendar
	ExternalID string `json:"-" bson:"externalID,omitempty"`
}

// Events is a slice of Event with helper methods
type Events []Event

// FindByID finds an event by its id, returns -1 and nil if there is none
func (e Events) FindByID(id primitive.ObjectID) (int, *Event) {
	for i, event := range e {
		if event.ID == id {
			return i, &e[i]
		}
	}

	return -1, nil
}

// RemoveByIndex removes an event by its index
func (e Events) RemoveByIndex(index int) Events {
	if index < 0 || index >= len(e) {
		return e
	}

	return append(e[:index], e[index+1:]...)
}

// BusyTimespans collects the timespans of all busy events
func (e Events) BusyTimespans() []date.Timespan {
	var timespans []date.Timespan
	for _, event := range e {
		if !event.Busy {
			continue
		}

		timespans = append(timespans, event.Date)
	}

	return timespans
}

// In filters the events intersecting the given window
func (e Events) In(window date.Timespan) Events {
	var result Events
	for _, event := range e {
		if event.Date.IntersectsWith(window) {
			result = append(result, event)
		}
	}

	return result
}
