package calendar

import (
	"context"
	"os"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	gcalendar "google.golang.org/api/calendar/v3"
)

// ErrCalendarAuthInvalid is returned when the stored calendar token is not usable anymore
var ErrCalendarAuthInvalid = errors.New("calendar auth is invalid")

// GoogleCalendarRepository provides functions for easily editing the users google calendar
type GoogleCalendarRepository struct {
	Config  *oauth2.Config
	Logger  logger.Interface
	Service *gcalendar.Service
	user    *users.User
}

// NewGoogleCalendarRepository constructs a GoogleCalendarRepository
func NewGoogleCalendarRepository(ctx context.Context, u *users.User, log logger.Interface) (*GoogleCalendarRepository, error) {
	newRepo := GoogleCalendarRepository{}

	config, err := readGoogleConfig()
	if err != nil {
		return nil, err
	}

	newRepo.Config = config

	if u.GoogleCalendarConnection.Token.AccessToken == "" {
		return nil, ErrCalendarAuthInvalid
	}

	if u.GoogleCalendarConnection.Token.Expiry.Before(time.Now()) {
		source := newRepo.Config.TokenSource(ctx, &u.GoogleCalendarConnection.Token)
		newToken, err := source.Token()
		if err != nil {
			return nil, err
		}
		u.GoogleCalendarConnection.Token = *newToken
	}

	client := newRepo.Config.Client(ctx, &u.GoogleCalendarConnection.Token)

	srv, err := gcalendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}

	newRepo.Service = srv
	newRepo.Logger = log
	newRepo.user = u

	return &newRepo, nil
}

func readGoogleConfig() (*oauth2.Config, error) {
	credentials, ok := os.LookupEnv("GOOGLE_CREDENTIALS")
	if !ok {
		return nil, errors.New("no google credentials found in environment")
	}

	config, err := google.ConfigFromJSON([]byte(credentials), gcalendar.CalendarScope)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse google client secret")
	}

	return config, nil
}

func checkForInvalidTokenError(err error) error {
	if e, ok := err.(*googleapi.Error); ok {
		if e.Code == 401 {
			return ErrCalendarAuthInvalid
		}
	}

	return err
}

func checkForIsGone(err error) error {
	if e, ok := err.(*googleapi.Error); ok {
		if e.Code == 410 {
			return nil
		}
	}

	return err
}

// CreateCalendar creates the task calendar and returns its id
func (c *GoogleCalendarRepository) CreateCalendar() (string, error) {
	newCalendar := gcalendar.Calendar{
		Summary: "Scheduled tasks",
	}
	cal, err := c.Service.Calendars.Insert(&newCalendar).Do()
	if err != nil {
		return "", checkForInvalidTokenError(err)
	}

	return cal.Id, nil
}

// FetchBusyTimes reads all busy periods in the window via the freebusy api
func (c *GoogleCalendarRepository) FetchBusyTimes(_ context.Context, window date.Timespan) (Events, error) {
	items := []*gcalendar.FreeBusyRequestItem{
		{Id: "primary"},
	}

	if c.user.GoogleCalendarConnection.CalendarID != "" {
		items = append(items, &gcalendar.FreeBusyRequestItem{Id: c.user.GoogleCalendarConnection.CalendarID})
	}

	response, err := c.Service.Freebusy.Query(&gcalendar.FreeBusyRequest{
		TimeMin: window.Start.Format(time.RFC3339),
		TimeMax: window.End.Format(time.RFC3339),
		Items:   items}).Do()
	if err != nil {
		return nil, checkForInvalidTokenError(err)
	}

	var events Events
	for _, v := range response.Calendars {
		for _, period := range v.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				return nil, err
			}

			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				return nil, err
			}

			events = append(events, Event{
				ID:     primitive.NewObjectID(),
				Date:   date.Timespan{Start: start.UTC(), End: end.UTC()},
				Source: EventSourceExternal,
				Busy:   true,
			})
		}
	}

	return events, nil
}

// NewEvent creates a new Event in Google Calendar
func (c *GoogleCalendarRepository) NewEvent(_ context.Context, event *Event) (*Event, error) {
	googleEvent := c.createGoogleEvent(event)

	createdEvent, err := c.Service.Events.Insert(c.calendarID(), googleEvent).Do()
	if err != nil {
		return nil, checkForInvalidTokenError(err)
	}

	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	event.ExternalID = createdEvent.Id

	return event, nil
}

// DeleteEvent deletes a single Event
func (c *GoogleCalendarRepository) DeleteEvent(_ context.Context, event *Event) error {
	if event.ExternalID == "" {
		return errors.Errorf("event %s has no external calendar event", event.ID.Hex())
	}

	err := c.Service.Events.Delete(c.calendarID(), event.ExternalID).Do()
	if err != nil {
		if checkForIsGone(err) == nil {
			return nil
		}

		return checkForInvalidTokenError(err)
	}

	return nil
}

func (c *GoogleCalendarRepository) calendarID() string {
	if c.user.GoogleCalendarConnection.CalendarID != "" {
		return c.user.GoogleCalendarConnection.CalendarID
	}

	return "primary"
}

func (c *GoogleCalendarRepository) createGoogleEvent(event *Event) *gcalendar.Event {
	start := gcalendar.EventDateTime{
		DateTime: event.Date.Start.Format(time.RFC3339),
	}

	end := gcalendar.EventDateTime{
		DateTime: event.Date.End.Format(time.RFC3339),
	}

	transparency := "opaque"
	if !event.Busy {
		transparency = "transparent"
	}

	googleEvent := gcalendar.Event{
		Start:        &start,
		End:          &end,
		Summary:      event.Title,
		Transparency: transparency,
	}

	return &googleEvent
}
