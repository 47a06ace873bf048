package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/communication"
	"github.com/clarence1979/teacherscheduler/pkg/email"
	"github.com/clarence1979/teacherscheduler/pkg/locking"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const dayFormat = "2006-01-02"

// CalendarAccessProvider hands out a user's calendar access
type CalendarAccessProvider interface {
	CalendarRepositoryFor(ctx context.Context, userID primitive.ObjectID) (calendar.RepositoryInterface, *users.User, error)
	MeetingBooked(ctx context.Context, userID primitive.ObjectID, event *calendar.Event) error
}

// Handler handles all booking related API calls
type Handler struct {
	LinkRepository    BookingLinkRepositoryInterface
	MeetingRepository MeetingRepositoryInterface
	CalendarAccess    CalendarAccessProvider
	Locker            locking.LockerInterface
	Logger            logger.Interface
	ResponseManager   *communication.ResponseManager

	// Mailer sends the attendee a confirmation, nil disables confirmations
	Mailer email.Mailer
}

// LinkAdd is the route for creating a booking link
func (handler *Handler) LinkAdd(writer http.ResponseWriter, request *http.Request) {
	link := BookingLink{}

	err := json.NewDecoder(request.Body).Decode(&link)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "Wrong format", err)
		return
	}

	ownerID, err := primitive.ObjectIDFromHex(mux.Vars(request)["userID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "UserID malformed", err)
		return
	}

	created := NewBookingLink(ownerID, link.Name, link.Kind, link.Duration)
	created.BufferBefore = link.BufferBefore
	created.BufferAfter = link.BufferAfter
	created.MaxMeetingsPerDay = link.MaxMeetingsPerDay
	created.AdvanceNotice = link.AdvanceNotice

	err = created.Validate()
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "Invalid booking link", err)
		return
	}

	err = handler.LinkRepository.Add(request.Context(), created)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Persisting booking link in database did not work", err)
		return
	}

	handler.ResponseManager.RespondWithStatus(writer, created, http.StatusCreated)
}

// LinkSlots is the route for the bookable slots of a link on one day
func (handler *Handler) LinkSlots(writer http.ResponseWriter, request *http.Request) {
	link, negotiator, ok := handler.negotiatorForKey(writer, request)
	if !ok {
		return
	}

	day, err := time.Parse(dayFormat, request.URL.Query().Get("date"))
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest,
			"Date missing or not in format "+dayFormat, err)
		return
	}

	slots, err := negotiator.AvailableSlots(request.Context(), link, day)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem while computing availability", err)
		return
	}

	handler.ResponseManager.Respond(writer, slots)
}

type bookRequest struct {
	Start    time.Time `json:"start"`
	Attendee Attendee  `json:"attendee"`
}

// Book is the route for committing a booking. A lost race for the slot comes
// back as a conflict, the caller may pick another slot and retry.
func (handler *Handler) Book(writer http.ResponseWriter, request *http.Request) {
	link, negotiator, ok := handler.negotiatorForKey(writer, request)
	if !ok {
		return
	}

	var body bookRequest
	err := json.NewDecoder(request.Body).Decode(&body)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "Wrong format", err)
		return
	}

	meeting, err := negotiator.Book(request.Context(), link, body.Start, body.Attendee)
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			handler.ResponseManager.RespondWithError(writer, http.StatusConflict,
				"The requested slot is no longer available", err)
			return
		}

		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem while booking the meeting", err)
		return
	}

	event := &calendar.Event{
		ID:     meeting.EventID,
		Date:   meeting.Window,
		Title:  link.Name,
		Source: calendar.EventSourceBooking,
		Busy:   true,
	}
	err = handler.CalendarAccess.MeetingBooked(request.Context(), link.OwnerID, event)
	if err != nil {
		handler.Logger.Warning("could not reoptimize after booking", err)
	}

	handler.sendConfirmation(request.Context(), link, meeting)

	handler.ResponseManager.RespondWithStatus(writer, meeting, http.StatusCreated)
}

// sendConfirmation mails the attendee their booked slot
func (handler *Handler) sendConfirmation(ctx context.Context, link *BookingLink, meeting *Meeting) {
	if handler.Mailer == nil {
		return
	}

	err := handler.Mailer.SendEmail(ctx, &email.Email{
		ReceiverName:    meeting.Attendee.Name,
		ReceiverAddress: meeting.Attendee.Email,
		Template:        email.MeetingBookedTemplate,
		Parameters: map[string]interface{}{
			"name":  meeting.Attendee.Name,
			"title": link.Name,
			"start": meeting.Window.Start,
			"end":   meeting.Window.End,
		},
	})
	if err != nil {
		handler.Logger.Warning("could not send booking confirmation", err)
	}
}

// MeetingsForLink is the route for listing the meetings booked through a link
func (handler *Handler) MeetingsForLink(writer http.ResponseWriter, request *http.Request) {
	link, _, ok := handler.negotiatorForKey(writer, request)
	if !ok {
		return
	}

	meetings, err := handler.MeetingRepository.FindForLink(request.Context(), link.ID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem while querying meetings", err)
		return
	}

	handler.ResponseManager.Respond(writer, meetings)
}

// negotiatorForKey resolves the link behind the public key and builds a
// negotiator for its owner's calendar
func (handler *Handler) negotiatorForKey(writer http.ResponseWriter, request *http.Request) (*BookingLink, *Negotiator, bool) {
	key := mux.Vars(request)["linkKey"]

	link, err := handler.LinkRepository.FindByKey(request.Context(), key)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusNotFound, "Couldn't find booking link", err)
		return nil, nil, false
	}

	calendarRepository, owner, err := handler.CalendarAccess.CalendarRepositoryFor(request.Context(), link.OwnerID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem with calendar communication", err)
		return nil, nil, false
	}

	negotiator := NewNegotiator(owner, calendarRepository, handler.MeetingRepository, handler.Locker, handler.Logger)
	return link, negotiator, true
}
