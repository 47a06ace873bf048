package booking

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockMeetingRepository is an in memory implementation for tests
type MockMeetingRepository struct {
	mutex    sync.Mutex
	Meetings []Meeting
}

// Add stores a new meeting
func (m *MockMeetingRepository) Add(_ context.Context, meeting *Meeting) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if meeting.ID.IsZero() {
		meeting.ID = primitive.NewObjectID()
	}
	meeting.CreatedAt = time.Now()

	m.Meetings = append(m.Meetings, *meeting)
	return nil
}

// Update replaces a stored meeting
func (m *MockMeetingRepository) Update(_ context.Context, meeting *Meeting) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, stored := range m.Meetings {
		if stored.ID == meeting.ID {
			m.Meetings[i] = *meeting
			return nil
		}
	}

	return errors.New("meeting not found")
}

// FindByID finds a meeting by its id
func (m *MockMeetingRepository) FindByID(_ context.Context, id primitive.ObjectID) (*Meeting, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, stored := range m.Meetings {
		if stored.ID == id {
			meeting := m.Meetings[i]
			return &meeting, nil
		}
	}

	return nil, errors.New("meeting not found")
}

// FindForLink finds all meetings booked through a link
func (m *MockMeetingRepository) FindForLink(_ context.Context, linkID primitive.ObjectID) ([]Meeting, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var meetings []Meeting
	for _, stored := range m.Meetings {
		if stored.LinkID == linkID {
			meetings = append(meetings, stored)
		}
	}

	return meetings, nil
}

// CountOccupyingForDay counts still occupying meetings of a link whose window
// starts inside the given day
func (m *MockMeetingRepository) CountOccupyingForDay(_ context.Context, linkID primitive.ObjectID, dayStart time.Time, dayEnd time.Time) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	count := 0
	for _, stored := range m.Meetings {
		if stored.LinkID != linkID || !stored.IsOccupying() {
			continue
		}

		if !stored.Window.Start.Before(dayStart) && stored.Window.Start.Before(dayEnd) {
			count++
		}
	}

	return count, nil
}
