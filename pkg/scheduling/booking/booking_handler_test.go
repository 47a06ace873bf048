package booking

import (
	"context"
	"testing"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/email"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// mailRecorder collects every confirmation instead of sending it
type mailRecorder struct {
	mails []*email.Email
}

func (m *mailRecorder) SendEmail(_ context.Context, mail *email.Email) error {
	m.mails = append(m.mails, mail)
	return nil
}

func TestHandler_SendConfirmation(t *testing.T) {
	recorder := &mailRecorder{}
	handler := &Handler{Mailer: recorder, Logger: log}

	link := testLink(primitive.NewObjectID())
	meeting := &Meeting{
		ID:       primitive.NewObjectID(),
		LinkID:   link.ID,
		Attendee: Attendee{Name: "Sam Batra", Email: "sam@example.com"},
		Window:   date.Timespan{Start: timeDate(1, 10, 0), End: timeDate(1, 10, 30)},
		Status:   MeetingStatusScheduled,
	}

	handler.sendConfirmation(context.Background(), link, meeting)

	if len(recorder.mails) != 1 {
		t.Fatalf("got %d mails, want 1", len(recorder.mails))
	}

	mail := recorder.mails[0]
	if mail.ReceiverAddress != "sam@example.com" || mail.Template != email.MeetingBookedTemplate {
		t.Errorf("got mail to %s with template %s, want the attendee's confirmation", mail.ReceiverAddress, mail.Template)
	}
}

func TestHandler_SendConfirmation_NoMailer(t *testing.T) {
	handler := &Handler{Logger: log}

	meeting := &Meeting{Attendee: Attendee{Name: "Sam", Email: "sam@example.com"}}
	handler.sendConfirmation(context.Background(), testLink(primitive.NewObjectID()), meeting)
}
