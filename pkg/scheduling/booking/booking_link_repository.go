package booking

import (
	"context"
	"sync"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// BookingLinkRepositoryInterface is the interface for a BookingLinkRepository
type BookingLinkRepositoryInterface interface {
	Add(ctx context.Context, link *BookingLink) error
	Update(ctx context.Context, link *BookingLink) error
	FindByKey(ctx context.Context, key string) (*BookingLink, error)
	FindForOwner(ctx context.Context, ownerID primitive.ObjectID) ([]BookingLink, error)
}

// BookingLinkRepository stores booking links
type BookingLinkRepository struct {
	DB     *mongo.Collection
	Logger logger.Interface
}

// Add stores a new booking link
func (s BookingLinkRepository) Add(ctx context.Context, link *BookingLink) error {
	if link.ID.IsZero() {
		link.ID = primitive.NewObjectID()
	}
	link.CreatedAt = time.Now()

	_, err := s.DB.InsertOne(ctx, link)
	return err
}

// Update replaces a stored booking link
func (s BookingLinkRepository) Update(ctx context.Context, link *BookingLink) error {
	result, err := s.DB.UpdateOne(ctx, bson.M{"_id": link.ID}, bson.M{"$set": link})
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// FindByKey finds a booking link by its public key
func (s BookingLinkRepository) FindByKey(ctx context.Context, key string) (*BookingLink, error) {
	var link = BookingLink{}

	result := s.DB.FindOne(ctx, bson.M{"key": key})
	if result.Err() != nil {
		return nil, result.Err()
	}

	err := result.Decode(&link)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindForOwner finds all booking links of an owner
func (s BookingLinkRepository) FindForOwner(ctx context.Context, ownerID primitive.ObjectID) ([]BookingLink, error) {
	cursor, err := s.DB.Find(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return nil, err
	}

	var links []BookingLink
	err = cursor.All(ctx, &links)
	if err != nil {
		return nil, err
	}

	return links, nil
}

// MockBookingLinkRepository is an in memory implementation for tests
type MockBookingLinkRepository struct {
	mutex sync.Mutex
	Links []BookingLink
}

// Add stores a new booking link
func (m *MockBookingLinkRepository) Add(_ context.Context, link *BookingLink) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if link.ID.IsZero() {
		link.ID = primitive.NewObjectID()
	}
	link.CreatedAt = time.Now()

	m.Links = append(m.Links, *link)
	return nil
}

// Update replaces a stored booking link
func (m *MockBookingLinkRepository) Update(_ context.Context, link *BookingLink) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, stored := range m.Links {
		if stored.ID == link.ID {
			m.Links[i] = *link
			return nil
		}
	}

	return errors.New("booking link not found")
}

// FindByKey finds a booking link by its public key
func (m *MockBookingLinkRepository) FindByKey(_ context.Context, key string) (*BookingLink, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, stored := range m.Links {
		if stored.Key == key {
			link := m.Links[i]
			return &link, nil
		}
	}

	return nil, errors.New("booking link not found")
}

// FindForOwner finds all booking links of an owner
func (m *MockBookingLinkRepository) FindForOwner(_ context.Context, ownerID primitive.ObjectID) ([]BookingLink, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var links []BookingLink
	for _, stored := range m.Links {
		if stored.OwnerID == ownerID {
			links = append(links, stored)
		}
	}

	return links, nil
}
