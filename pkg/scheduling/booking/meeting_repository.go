package booking

import (
	"context"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MeetingRepositoryInterface is the interface for a MeetingRepository
type MeetingRepositoryInterface interface {
	Add(ctx context.Context, meeting *Meeting) error
	Update(ctx context.Context, meeting *Meeting) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Meeting, error)
	FindForLink(ctx context.Context, linkID primitive.ObjectID) ([]Meeting, error)
	CountOccupyingForDay(ctx context.Context, linkID primitive.ObjectID, dayStart time.Time, dayEnd time.Time) (int, error)
}

// MeetingRepository stores confirmed bookings
type MeetingRepository struct {
	DB     *mongo.Collection
	Logger logger.Interface
}

// Add stores a new meeting
func (s MeetingRepository) Add(ctx context.Context, meeting *Meeting) error {
	if meeting.ID.IsZero() {
		meeting.ID = primitive.NewObjectID()
	}
	meeting.CreatedAt = time.Now()

	_, err := s.DB.InsertOne(ctx, meeting)
	return err
}

// Update replaces a stored meeting
func (s MeetingRepository) Update(ctx context.Context, meeting *Meeting) error {
	result, err := s.DB.UpdateOne(ctx, bson.M{"_id": meeting.ID}, bson.M{"$set": meeting})
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// FindByID finds a meeting by its id
func (s MeetingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Meeting, error) {
	var m = Meeting{}

	result := s.DB.FindOne(ctx, bson.M{"_id": id})
	if result.Err() != nil {
		return nil, result.Err()
	}

	err := result.Decode(&m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindForLink finds all meetings booked through a link, newest first
func (s MeetingRepository) FindForLink(ctx context.Context, linkID primitive.ObjectID) ([]Meeting, error) {
	cursor, err := s.DB.Find(ctx, bson.M{"linkId": linkID},
		options.Find().SetSort(bson.M{"window.start": -1}))
	if err != nil {
		return nil, err
	}

	var meetings []Meeting
	err = cursor.All(ctx, &meetings)
	if err != nil {
		return nil, err
	}

	return meetings, nil
}

// CountOccupyingForDay counts still occupying meetings of a link whose window
// starts inside the given day
func (s MeetingRepository) CountOccupyingForDay(ctx context.Context, linkID primitive.ObjectID, dayStart time.Time, dayEnd time.Time) (int, error) {
	count, err := s.DB.CountDocuments(ctx, bson.M{
		"linkId": linkID,
		"status": bson.M{"$in": []MeetingStatus{MeetingStatusScheduled, MeetingStatusConfirmed}},
		"window.start": bson.M{
			"$gte": dayStart,
			"$lt":  dayEnd,
		},
	})
	if err != nil {
		return 0, err
	}

	return int(count), nil
}
