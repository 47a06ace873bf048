package users

import (
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/oauth2"
)

// User is the model for a user of the scheduler
type User struct {
	ID             primitive.ObjectID `json:"id" bson:"_id"`
	Firstname      string             `json:"firstname" bson:"firstname" validate:"required"`
	Lastname       string             `json:"lastname" bson:"lastname"`
	Email          string             `json:"email" bson:"email" validate:"required,email"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	LastModifiedAt time.Time          `json:"lastModifiedAt" bson:"lastModifiedAt"`

	Settings     Settings      `json:"settings" bson:"settings"`
	DeviceTokens []DeviceToken `json:"-" bson:"deviceTokens"`

	GoogleCalendarConnection GoogleCalendarConnection `json:"-" bson:"googleCalendarConnection,omitempty"`
}

// DeviceToken is a Firebase Cloud Messaging token of a user's device
type DeviceToken struct {
	Token        string    `json:"token" bson:"token"`
	RegisteredAt time.Time `json:"registeredAt" bson:"registeredAt"`
}

// GoogleCalendarConnection stores the OAuth2 token and task calendar of a user.
// Obtaining the token is the host application's concern.
type GoogleCalendarConnection struct {
	Token      oauth2.Token `json:"-" bson:"token,omitempty"`
	CalendarID string       `json:"calendarId,omitempty" bson:"calendarId,omitempty"`
	IsActive   bool         `json:"isActive" bson:"isActive"`
}

// Settings hold all user settings
type Settings struct {
	Scheduling SchedulingSettings `json:"scheduling" bson:"scheduling"`
}

// TimeOfDay is a coarse part of the day a task can be preferred to run in
type TimeOfDay string

// The time of day preferences a priority can map to
const (
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
	TimeOfDayAnytime   TimeOfDay = "anytime"
)

// Contains checks whether the given local hour falls into the time of day
func (t TimeOfDay) Contains(hour int) bool {
	switch t {
	case TimeOfDayMorning:
		return hour < 12
	case TimeOfDayAfternoon:
		return hour >= 12 && hour < 17
	case TimeOfDayEvening:
		return hour >= 17 && hour < 22
	default:
		return true
	}
}

// PreferenceTable maps task priorities to the time of day they should
// preferably be scheduled in
type PreferenceTable struct {
	ASAP   TimeOfDay `json:"asap" bson:"asap"`
	High   TimeOfDay `json:"high" bson:"high"`
	Medium TimeOfDay `json:"medium" bson:"medium"`
	Low    TimeOfDay `json:"low" bson:"low"`
}

// For looks up the preference for a priority rank, 4 being the most urgent
func (p PreferenceTable) For(rank int) TimeOfDay {
	var preference TimeOfDay
	switch rank {
	case 4:
		preference = p.ASAP
	case 3:
		preference = p.High
	case 2:
		preference = p.Medium
	case 1:
		preference = p.Low
	}

	if preference == "" {
		return TimeOfDayAnytime
	}

	return preference
}

// SchedulingSettings are the per user knobs of the scheduling engine
type SchedulingSettings struct {
	TimeZone     string            `json:"timeZone" bson:"timeZone"`
	WorkingHours date.WorkingHours `json:"workingHours" bson:"workingHours"`

	// BusyPadding is the buffer enforced before and after every occupied interval
	BusyPadding time.Duration `json:"busyPadding" bson:"busyPadding"`

	Preferences PreferenceTable `json:"preferences" bson:"preferences"`

	HorizonDays int           `json:"horizonDays" bson:"horizonDays"`
	Granularity time.Duration `json:"granularity" bson:"granularity"`

	MaxMeetingsPerDay int `json:"maxMeetingsPerDay" bson:"maxMeetingsPerDay"`
}

// DefaultSchedulingSettings builds the settings new users start out with
func DefaultSchedulingSettings() SchedulingSettings {
	var workingHours date.WorkingHours
	for _, weekday := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		workingHours = append(workingHours, date.WorkingDay{
			Weekday: weekday,
			Hours: date.Timespan{
				Start: date.Clock(9, 0),
				End:   date.Clock(17, 0),
			},
		})
	}

	return SchedulingSettings{
		TimeZone:     "UTC",
		WorkingHours: workingHours,
		BusyPadding:  time.Minute * 15,
		Preferences: PreferenceTable{
			ASAP:   TimeOfDayAnytime,
			High:   TimeOfDayMorning,
			Medium: TimeOfDayAfternoon,
			Low:    TimeOfDayAnytime,
		},
		HorizonDays:       14,
		Granularity:       time.Minute * 15,
		MaxMeetingsPerDay: 4,
	}
}
