package booking

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = validator.New()

// MeetingKind describes what a booked meeting is for
type MeetingKind string

// The meeting kinds a link can offer
const (
	MeetingKindIntro       MeetingKind = "intro"
	MeetingKindConsulting  MeetingKind = "consulting"
	MeetingKindOfficeHours MeetingKind = "office-hours"
	MeetingKindGeneral     MeetingKind = "general"
)

// BookingLink is a repeatable offer for externally bookable time. The key is
// what gets shared publicly, the id stays internal.
type BookingLink struct {
	ID      primitive.ObjectID `json:"id" bson:"_id"`
	OwnerID primitive.ObjectID `json:"ownerId" bson:"ownerId"`
	Key     string             `json:"key" bson:"key" validate:"required"`
	Name    string             `json:"name" bson:"name" validate:"required"`
	Kind    MeetingKind        `json:"kind" bson:"kind"`

	Duration     time.Duration `json:"duration" bson:"duration" validate:"required,gt=0"`
	BufferBefore time.Duration `json:"bufferBefore" bson:"bufferBefore" validate:"min=0"`
	BufferAfter  time.Duration `json:"bufferAfter" bson:"bufferAfter" validate:"min=0"`

	// MaxMeetingsPerDay of zero means no daily cap
	MaxMeetingsPerDay int `json:"maxMeetingsPerDay" bson:"maxMeetingsPerDay" validate:"min=0"`

	// AdvanceNotice is how far in the future the earliest bookable slot lies
	AdvanceNotice time.Duration `json:"advanceNotice" bson:"advanceNotice" validate:"min=0"`

	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// NewBookingLink builds an active link with a fresh public key
func NewBookingLink(ownerID primitive.ObjectID, name string, kind MeetingKind, duration time.Duration) *BookingLink {
	return &BookingLink{
		ID:        primitive.NewObjectID(),
		OwnerID:   ownerID,
		Key:       uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Duration:  duration,
		Active:    true,
		CreatedAt: now(),
	}
}

// Validate checks the link against its struct constraints
func (link *BookingLink) Validate() error {
	return validate.Struct(link)
}
