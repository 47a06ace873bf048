package booking

import (
	"context"
	"testing"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/locking"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var location, _ = time.LoadLocation("Europe/Berlin")

var log = logger.Logger{}

var locker = locking.NewLockerMemory()

// 2021-03-01 is a Monday
func timeDate(day int, hour int, minute int) time.Time {
	return time.Date(2021, 3, day, hour, minute, 0, 0, location)
}

func testOwner() *users.User {
	owner := &users.User{
		ID:        primitive.NewObjectID(),
		Firstname: "Clara",
		Lastname:  "Jones",
		Email:     "clara@example.com",
	}
	owner.Settings.Scheduling = users.DefaultSchedulingSettings()
	return owner
}

func testLink(ownerID primitive.ObjectID) *BookingLink {
	link := NewBookingLink(ownerID, "Office hours", MeetingKindOfficeHours, time.Minute*30)
	link.BufferBefore = time.Minute * 15
	link.BufferAfter = time.Minute * 15
	link.MaxMeetingsPerDay = 1
	return link
}

func testNegotiator(owner *users.User) (*Negotiator, *calendar.MockCalendarRepository, *MockMeetingRepository) {
	calendarRepository := calendar.NewMockCalendarRepository()
	meetingRepository := &MockMeetingRepository{}

	negotiator := NewNegotiator(owner, calendarRepository, meetingRepository, locker, log)
	return negotiator, calendarRepository, meetingRepository
}

func TestNegotiator_AvailableSlots(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	slots, err := negotiator.AvailableSlots(context.Background(), link, timeDate(1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}

	// half hour strides across 09:00-17:00 with a 30 minute duration
	if len(slots) != 16 {
		t.Fatalf("got %d slots, want 16", len(slots))
	}

	if !slots[0].Start.Equal(timeDate(1, 10, 0)) {
		t.Errorf("best slot starts at %s, want the 10:00 peak", slots[0].Start)
	}

	for _, slot := range slots[1:] {
		if slot.Score > slots[0].Score {
			t.Errorf("slots are not sorted best first: %v after %v", slot.Score, slots[0].Score)
		}
	}
}

func TestNegotiator_AvailableSlots_MidweekBonus(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	monday, err := negotiator.AvailableSlots(context.Background(), link, timeDate(1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}

	tuesday, err := negotiator.AvailableSlots(context.Background(), link, timeDate(2, 0, 0))
	if err != nil {
		t.Fatal(err)
	}

	if tuesday[0].Score <= monday[0].Score {
		t.Errorf("got %v for Tuesday and %v for Monday, want the midweek day ahead",
			tuesday[0].Score, monday[0].Score)
	}
}

func TestNegotiator_AvailableSlots_NonWorkingDay(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	// 2021-03-06 is a Saturday
	slots, err := negotiator.AvailableSlots(context.Background(), link, timeDate(6, 0, 0))
	if err != nil {
		t.Fatal(err)
	}

	if len(slots) != 0 {
		t.Errorf("got %d slots on a Saturday, want none", len(slots))
	}
}

func TestNegotiator_AvailableSlots_AdvanceNotice(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	link.AdvanceNotice = time.Hour * 24 * 7
	negotiator, _, _ := testNegotiator(owner)

	slots, err := negotiator.AvailableSlots(context.Background(), link, timeDate(2, 0, 0))
	if err != nil {
		t.Fatal(err)
	}

	if len(slots) != 0 {
		t.Errorf("got %d slots inside the advance notice window, want none", len(slots))
	}
}

func TestNegotiator_Book(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, calendarRepository, meetingRepository := testNegotiator(owner)

	attendee := Attendee{Name: "Sam Batra", Email: "sam@example.com"}

	meeting, err := negotiator.Book(context.Background(), link, timeDate(1, 10, 0), attendee)
	if err != nil {
		t.Fatal(err)
	}

	if !meeting.Window.Start.Equal(timeDate(1, 10, 0)) || !meeting.Window.End.Equal(timeDate(1, 10, 30)) {
		t.Errorf("got window %s, want 10:00 - 10:30", meeting.Window.String())
	}

	if meeting.Status != MeetingStatusScheduled {
		t.Errorf("got status %s, want scheduled", meeting.Status)
	}

	if len(meetingRepository.Meetings) != 1 {
		t.Errorf("got %d stored meetings, want 1", len(meetingRepository.Meetings))
	}

	// the meeting plus both buffers block the calendar
	day := date.Timespan{Start: timeDate(1, 0, 0), End: timeDate(2, 0, 0)}
	events, err := calendarRepository.FetchBusyTimes(context.Background(), day)
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 3 {
		t.Fatalf("got %d busy events, want meeting plus two buffers", len(events))
	}

	blocked := date.Timespan{Start: timeDate(1, 9, 45), End: timeDate(1, 10, 45)}
	merged := date.MergeTimespans(events.BusyTimespans())
	if len(merged) != 1 || !merged[0].Start.Equal(blocked.Start) || !merged[0].End.Equal(blocked.End) {
		t.Errorf("got blocked range %v, want %s", merged, blocked.String())
	}
}

func TestNegotiator_Book_ExhaustsDailyCap(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	_, err := negotiator.Book(context.Background(), link, timeDate(1, 10, 0), Attendee{Name: "Sam", Email: "sam@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	slots, err := negotiator.AvailableSlots(context.Background(), link, timeDate(1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}

	if len(slots) != 0 {
		t.Errorf("got %d slots after the daily cap was reached, want none", len(slots))
	}
}

func TestNegotiator_Book_Conflict(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	link.MaxMeetingsPerDay = 0
	negotiator, _, _ := testNegotiator(owner)

	_, err := negotiator.Book(context.Background(), link, timeDate(1, 10, 0), Attendee{Name: "Sam", Email: "sam@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	// the second booker raced for the same slot and has to see the buffer
	_, err = negotiator.Book(context.Background(), link, timeDate(1, 10, 0), Attendee{Name: "Kim", Email: "kim@example.com"})
	if !errors.Is(err, ErrSlotConflict) {
		t.Errorf("got %v, want ErrSlotConflict", err)
	}
}

func TestNegotiator_Book_InactiveLink(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	link.Active = false
	negotiator, _, _ := testNegotiator(owner)

	_, err := negotiator.Book(context.Background(), link, timeDate(1, 10, 0), Attendee{Name: "Sam", Email: "sam@example.com"})
	if !errors.Is(err, ErrLinkInactive) {
		t.Errorf("got %v, want ErrLinkInactive", err)
	}
}

func TestNegotiator_Book_InvalidAttendee(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	_, err := negotiator.Book(context.Background(), link, timeDate(1, 10, 0), Attendee{Name: "Sam"})
	if err == nil {
		t.Error("expected an error for an attendee without email")
	}
}

func TestNegotiator_FindOptimalMeetingTimes(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	participant := date.WorkingHours{
		{Weekday: time.Monday, Hours: date.Timespan{Start: date.Clock(11, 0), End: date.Clock(15, 0)}},
	}

	slots, err := negotiator.FindOptimalMeetingTimes(context.Background(), link, []time.Time{timeDate(1, 0, 0)}, participant)
	if err != nil {
		t.Fatal(err)
	}

	// the common window is 11:00-15:00, strides of 30 minutes
	if len(slots) != 8 {
		t.Fatalf("got %d slots, want 8", len(slots))
	}

	for _, slot := range slots {
		if slot.Start.Before(timeDate(1, 11, 0)) || slot.End.After(timeDate(1, 15, 0)) {
			t.Errorf("slot %s - %s lies outside the common window", slot.Start, slot.End)
		}
	}

	if !slots[0].Start.Equal(timeDate(1, 11, 0)) {
		t.Errorf("best slot starts at %s, want 11:00", slots[0].Start)
	}
}

func TestNegotiator_FindOptimalMeetingTimes_SkipsCappedDays(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	_, err := negotiator.Book(context.Background(), link, timeDate(1, 10, 0), Attendee{Name: "Sam", Email: "sam@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	// Monday's cap of one meeting is exhausted, Tuesday is still open
	slots, err := negotiator.FindOptimalMeetingTimes(context.Background(), link, []time.Time{timeDate(1, 0, 0), timeDate(2, 0, 0)})
	if err != nil {
		t.Fatal(err)
	}

	if len(slots) == 0 {
		t.Fatal("expected slots on the uncapped day")
	}

	for _, slot := range slots {
		if slot.Start.Day() == 1 {
			t.Errorf("got slot %s on a day whose meeting cap is exhausted", slot.Start)
		}
	}
}

func TestNegotiator_FindOptimalMeetingTimes_NoCommonWindow(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	owner := testOwner()
	link := testLink(owner.ID)
	negotiator, _, _ := testNegotiator(owner)

	participant := date.WorkingHours{
		{Weekday: time.Saturday, Hours: date.Timespan{Start: date.Clock(9, 0), End: date.Clock(17, 0)}},
	}

	slots, err := negotiator.FindOptimalMeetingTimes(context.Background(), link, []time.Time{timeDate(1, 0, 0)}, participant)
	if err != nil {
		t.Fatal(err)
	}

	if len(slots) != 0 {
		t.Errorf("got %d slots without a common window, want none", len(slots))
	}
}
