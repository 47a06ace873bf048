package booking

import (
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MeetingStatus is the lifecycle state of a confirmed booking
type MeetingStatus string

// The meeting statuses
const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusConfirmed MeetingStatus = "confirmed"
	MeetingStatusCancelled MeetingStatus = "cancelled"
	MeetingStatusCompleted MeetingStatus = "completed"
)

// Attendee identifies the external party of a meeting
type Attendee struct {
	Name  string `json:"name" bson:"name" validate:"required"`
	Email string `json:"email" bson:"email" validate:"required,email"`
}

// Meeting is a confirmed instance of a booking link
type Meeting struct {
	ID       primitive.ObjectID `json:"id" bson:"_id"`
	LinkID   primitive.ObjectID `json:"linkId" bson:"linkId"`
	OwnerID  primitive.ObjectID `json:"ownerId" bson:"ownerId"`
	Attendee Attendee           `json:"attendee" bson:"attendee"`

	Window date.Timespan `json:"window" bson:"window"`
	Status MeetingStatus `json:"status" bson:"status"`

	// EventID and BufferEventIDs point at the calendar events the booking
	// materialized into
	EventID        primitive.ObjectID   `json:"-" bson:"eventId"`
	BufferEventIDs []primitive.ObjectID `json:"-" bson:"bufferEventIds,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// IsOccupying reports whether the meeting still blocks its window
func (m *Meeting) IsOccupying() bool {
	return m.Status == MeetingStatusScheduled || m.Status == MeetingStatusConfirmed
}

// AvailabilitySlot is a bookable candidate window with its desirability score
type AvailabilitySlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Score float64   `json:"score"`
}
