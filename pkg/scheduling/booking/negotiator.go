package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/locking"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// now is overridable for tests
var now = time.Now

// ErrSlotConflict is returned when a requested slot got taken between
// availability lookup and booking. Callers may retry with a fresh slot.
var ErrSlotConflict = errors.New("the requested slot is no longer available")

// ErrLinkInactive is returned for booking attempts on a deactivated link
var ErrLinkInactive = errors.New("the booking link is not active")

// Candidate slots start every half hour
const slotStride = time.Minute * 30

const bookingLockTTL = time.Second * 10

// Score components of a candidate slot
const (
	slotScoreBase       = 0.5
	slotScoreGoodHour   = 0.2
	slotScoreMidweekDay = 0.1
)

// Negotiator searches bookable time on a user's calendar and commits
// bookings as fixed events, including their buffers
type Negotiator struct {
	owner              *users.User
	calendarRepository calendar.RepositoryInterface
	meetingRepository  MeetingRepositoryInterface
	locker             locking.LockerInterface
	logger             logger.Interface
}

// NewNegotiator builds a Negotiator for one calendar owner
func NewNegotiator(owner *users.User, calendarRepository calendar.RepositoryInterface, meetingRepository MeetingRepositoryInterface, locker locking.LockerInterface, log logger.Interface) *Negotiator {
	return &Negotiator{
		owner:              owner,
		calendarRepository: calendarRepository,
		meetingRepository:  meetingRepository,
		locker:             locker,
		logger:             log,
	}
}

// AvailableSlots computes the bookable candidate windows of a link on the
// given day, sorted best first. The day is rejected as a whole when it lies
// inside the link's advance notice or its confirmed meeting cap is reached.
func (n *Negotiator) AvailableSlots(ctx context.Context, link *BookingLink, day time.Time) ([]AvailabilitySlot, error) {
	if !link.Active {
		return nil, ErrLinkInactive
	}

	window, ok := n.owner.Settings.Scheduling.WorkingHours.ForDay(day)
	if !ok {
		return []AvailabilitySlot{}, nil
	}

	earliest := now().Add(link.AdvanceNotice)
	if window.End.Before(earliest) {
		return []AvailabilitySlot{}, nil
	}

	capReached, err := n.dayCapReached(ctx, link, day)
	if err != nil {
		return nil, err
	}
	if capReached {
		return []AvailabilitySlot{}, nil
	}

	return n.slotsInWindow(ctx, link, window, earliest)
}

// dayCapReached reports whether the link's confirmed meeting cap is exhausted
// on the given day. A cap of zero means unlimited.
func (n *Negotiator) dayCapReached(ctx context.Context, link *BookingLink, day time.Time) (bool, error) {
	if link.MaxMeetingsPerDay <= 0 {
		return false, nil
	}

	dayStart, dayEnd := dayBounds(day)
	count, err := n.meetingRepository.CountOccupyingForDay(ctx, link.ID, dayStart, dayEnd)
	if err != nil {
		return false, errors.Wrap(err, "could not count meetings for day")
	}

	return count >= link.MaxMeetingsPerDay, nil
}

// slotsInWindow strides candidate slots across a working window and keeps the
// ones whose buffered interval collides with nothing on the calendar
func (n *Negotiator) slotsInWindow(ctx context.Context, link *BookingLink, window date.Timespan, earliest time.Time) ([]AvailabilitySlot, error) {
	busy, err := n.calendarRepository.FetchBusyTimes(ctx, window.Pad(link.BufferBefore+link.BufferAfter))
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch busy times")
	}

	busyTimespans := busy.BusyTimespans()

	slots := []AvailabilitySlot{}
	for start := window.Start; !start.Add(link.Duration).After(window.End); start = start.Add(slotStride) {
		if start.Before(earliest) {
			continue
		}

		padded := date.Timespan{
			Start: start.Add(-link.BufferBefore),
			End:   start.Add(link.Duration + link.BufferAfter),
		}

		if intersectsAny(padded, busyTimespans) {
			continue
		}

		slots = append(slots, AvailabilitySlot{
			Start: start,
			End:   start.Add(link.Duration),
			Score: scoreSlot(start),
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}

		return slots[i].Start.Before(slots[j].Start)
	})

	return slots, nil
}

// Book commits a meeting at the requested slot. The slot is re-validated
// under a lock right before committing, so a concurrent booker that lost the
// race gets ErrSlotConflict instead of a double booking.
func (n *Negotiator) Book(ctx context.Context, link *BookingLink, slotStart time.Time, attendee Attendee) (*Meeting, error) {
	if !link.Active {
		return nil, ErrLinkInactive
	}

	if err := validate.Struct(attendee); err != nil {
		return nil, errors.Wrap(err, "invalid attendee")
	}

	if n.locker != nil {
		lock, err := n.locker.Acquire(ctx, fmt.Sprintf("booking-%s", link.ID.Hex()), bookingLockTTL, false)
		if err != nil {
			return nil, errors.Wrap(err, "could not acquire booking lock")
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				n.logger.Error("problem releasing booking lock", err)
			}
		}()
	}

	slots, err := n.AvailableSlots(ctx, link, slotStart)
	if err != nil {
		return nil, err
	}

	var slot *AvailabilitySlot
	for i := range slots {
		if slots[i].Start.Equal(slotStart) {
			slot = &slots[i]
			break
		}
	}

	if slot == nil {
		return nil, ErrSlotConflict
	}

	meeting := &Meeting{
		ID:      primitive.NewObjectID(),
		LinkID:  link.ID,
		OwnerID: link.OwnerID,

		Attendee: attendee,
		Window:   date.Timespan{Start: slot.Start, End: slot.End},
		Status:   MeetingStatusScheduled,
	}

	event, err := n.calendarRepository.NewEvent(ctx, &calendar.Event{
		ID:     primitive.NewObjectID(),
		Date:   meeting.Window,
		Title:  fmt.Sprintf("%s with %s", link.Name, attendee.Name),
		Source: calendar.EventSourceBooking,
		Busy:   true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create meeting event")
	}
	meeting.EventID = event.ID

	bufferEvents, err := n.createBufferEvents(ctx, link, meeting)
	if err != nil {
		return nil, err
	}
	meeting.BufferEventIDs = bufferEvents

	err = n.meetingRepository.Add(ctx, meeting)
	if err != nil {
		return nil, errors.Wrap(err, "could not store meeting")
	}

	return meeting, nil
}

// createBufferEvents materializes the before and after buffers of a booked
// meeting as their own busy events
func (n *Negotiator) createBufferEvents(ctx context.Context, link *BookingLink, meeting *Meeting) ([]primitive.ObjectID, error) {
	var ids []primitive.ObjectID

	buffers := []date.Timespan{}
	if link.BufferBefore > 0 {
		buffers = append(buffers, date.Timespan{
			Start: meeting.Window.Start.Add(-link.BufferBefore),
			End:   meeting.Window.Start,
		})
	}
	if link.BufferAfter > 0 {
		buffers = append(buffers, date.Timespan{
			Start: meeting.Window.End,
			End:   meeting.Window.End.Add(link.BufferAfter),
		})
	}

	for _, buffer := range buffers {
		event, err := n.calendarRepository.NewEvent(ctx, &calendar.Event{
			ID:     primitive.NewObjectID(),
			Date:   buffer,
			Title:  "Buffer",
			Source: calendar.EventSourceBooking,
			Busy:   true,
		})
		if err != nil {
			return nil, errors.Wrap(err, "could not create buffer event")
		}

		ids = append(ids, event.ID)
	}

	return ids, nil
}

// Cancel releases a meeting and its calendar events
func (n *Negotiator) Cancel(ctx context.Context, meeting *Meeting) error {
	eventIDs := append([]primitive.ObjectID{meeting.EventID}, meeting.BufferEventIDs...)
	for _, id := range eventIDs {
		if id.IsZero() {
			continue
		}

		err := n.calendarRepository.DeleteEvent(ctx, &calendar.Event{ID: id})
		if err != nil {
			return errors.Wrap(err, "could not delete meeting event")
		}
	}

	meeting.Status = MeetingStatusCancelled
	return n.meetingRepository.Update(ctx, meeting)
}

// FindOptimalMeetingTimes searches several days at once for slots inside the
// common working window of the owner and all given participants. Days are
// searched concurrently, the combined result is sorted best first.
func (n *Negotiator) FindOptimalMeetingTimes(ctx context.Context, link *BookingLink, days []time.Time, participants ...date.WorkingHours) ([]AvailabilitySlot, error) {
	if !link.Active {
		return nil, ErrLinkInactive
	}

	tables := append([]date.WorkingHours{n.owner.Settings.Scheduling.WorkingHours}, participants...)
	earliest := now().Add(link.AdvanceNotice)

	var mutex sync.Mutex
	var slots []AvailabilitySlot

	group, groupCtx := errgroup.WithContext(ctx)
	for _, day := range days {
		day := day
		group.Go(func() error {
			window, ok := date.Intersect(day, tables...)
			if !ok {
				return nil
			}

			capReached, err := n.dayCapReached(groupCtx, link, day)
			if err != nil {
				return err
			}
			if capReached {
				return nil
			}

			daySlots, err := n.slotsInWindow(groupCtx, link, window, earliest)
			if err != nil {
				return err
			}

			mutex.Lock()
			slots = append(slots, daySlots...)
			mutex.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}

		return slots[i].Start.Before(slots[j].Start)
	})

	return slots, nil
}

// scoreSlot rates a candidate start time. Late morning and mid afternoon
// starts score highest, midweek days get a small bonus on top.
func scoreSlot(start time.Time) float64 {
	score := slotScoreBase

	hour := start.Hour()
	if hour == 10 || hour == 11 || hour == 14 || hour == 15 {
		score += slotScoreGoodHour
	}

	weekday := start.Weekday()
	if weekday >= time.Tuesday && weekday <= time.Thursday {
		score += slotScoreMidweekDay
	}

	return score
}

func intersectsAny(timespan date.Timespan, others []date.Timespan) bool {
	for _, other := range others {
		if timespan.IntersectsWith(other) {
			return true
		}
	}

	return false
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}
