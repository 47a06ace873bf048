package calendar

import (
	"context"

	"github.com/clarence1979/teacherscheduler/pkg/date"
)

// RepositoryInterface is the interface every calendar implementation has to implement
type RepositoryInterface interface {
	// FetchBusyTimes returns all busy events intersecting the given window
	FetchBusyTimes(ctx context.Context, window date.Timespan) (Events, error)
	// NewEvent persists an event in the calendar
	NewEvent(ctx context.Context, event *Event) (*Event, error)
	// DeleteEvent removes an event from the calendar
	DeleteEvent(ctx context.Context, event *Event) error
}
