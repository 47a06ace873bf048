package calendar

import (
	"context"
	"sync"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockCalendarRepository is an in memory RepositoryInterface. It backs tests
// and users without a connected third party calendar.
type MockCalendarRepository struct {
	mutex  sync.Mutex
	events Events
}

// NewMockCalendarRepository builds an empty MockCalendarRepository
func NewMockCalendarRepository() *MockCalendarRepository {
	return &MockCalendarRepository{}
}

// FetchBusyTimes returns all busy events intersecting the window
func (r *MockCalendarRepository) FetchBusyTimes(_ context.Context, window date.Timespan) (Events, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var events Events
	for _, event := range r.events {
		if event.Busy && event.Date.IntersectsWith(window) {
			events = append(events, event)
		}
	}

	return events, nil
}

// NewEvent stores an event
func (r *MockCalendarRepository) NewEvent(_ context.Context, event *Event) (*Event, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}

	r.events = append(r.events, *event)

	return event, nil
}

// DeleteEvent removes an event
func (r *MockCalendarRepository) DeleteEvent(_ context.Context, event *Event) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	index, _ := r.events.FindByID(event.ID)
	if index < 0 {
		return errors.Errorf("event %s could not be found", event.ID.Hex())
	}

	r.events = r.events.RemoveByIndex(index)

	return nil
}
