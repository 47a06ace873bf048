package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TaskRepositoryInterface is the interface for a TaskRepository
type TaskRepositoryInterface interface {
	Add(ctx context.Context, task *Task) error
	Update(ctx context.Context, task *Task) error
	FindByID(ctx context.Context, id primitive.ObjectID, userID primitive.ObjectID) (*Task, error)
	FindAll(ctx context.Context, userID primitive.ObjectID) (Tasks, error)
	FindOpen(ctx context.Context, userID primitive.ObjectID) (Tasks, error)
	Delete(ctx context.Context, id primitive.ObjectID, userID primitive.ObjectID) error
}

// TaskRepository does everything related to task storing
type TaskRepository struct {
	DB     *mongo.Collection
	Logger logger.Interface
}

// Add adds a task
func (r TaskRepository) Add(ctx context.Context, task *Task) error {
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	task.CreatedAt = time.Now()
	task.LastModifiedAt = time.Now()

	_, err := r.DB.InsertOne(ctx, task)
	return err
}

// Update updates a task
func (r TaskRepository) Update(ctx context.Context, task *Task) error {
	task.LastModifiedAt = time.Now()

	result, err := r.DB.UpdateOne(ctx, bson.M{"_id": task.ID, "userId": task.UserID}, bson.M{"$set": task})
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// FindByID finds a task scoped to its user
func (r TaskRepository) FindByID(ctx context.Context, id primitive.ObjectID, userID primitive.ObjectID) (*Task, error) {
	var t = Task{}

	result := r.DB.FindOne(ctx, bson.M{"_id": id, "userId": userID})
	if result.Err() != nil {
		return nil, result.Err()
	}

	err := result.Decode(&t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindAll finds all tasks of a user, oldest first
func (r TaskRepository) FindAll(ctx context.Context, userID primitive.ObjectID) (Tasks, error) {
	return r.find(ctx, bson.M{"userId": userID})
}

// FindOpen finds the tasks of a user that still need scheduling
func (r TaskRepository) FindOpen(ctx context.Context, userID primitive.ObjectID) (Tasks, error) {
	return r.find(ctx, bson.M{"userId": userID, "status": bson.M{"$ne": StatusDone}})
}

func (r TaskRepository) find(ctx context.Context, filter bson.M) (Tasks, error) {
	cursor, err := r.DB.Find(ctx, filter, options.Find().SetSort(bson.M{"createdAt": 1}))
	if err != nil {
		return nil, err
	}

	var tasks Tasks
	err = cursor.All(ctx, &tasks)
	if err != nil {
		return nil, err
	}

	return tasks, nil
}

// Delete removes a task scoped to its user
func (r TaskRepository) Delete(ctx context.Context, id primitive.ObjectID, userID primitive.ObjectID) error {
	result, err := r.DB.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// MockTaskRepository is an in memory implementation for tests
type MockTaskRepository struct {
	mutex sync.Mutex
	Tasks Tasks
}

// Add adds a task
func (m *MockTaskRepository) Add(_ context.Context, task *Task) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	task.CreatedAt = time.Now()
	task.LastModifiedAt = time.Now()

	m.Tasks = append(m.Tasks, *task)
	return nil
}

// Update updates a task
func (m *MockTaskRepository) Update(_ context.Context, task *Task) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, stored := range m.Tasks {
		if stored.ID == task.ID && stored.UserID == task.UserID {
			task.LastModifiedAt = time.Now()
			m.Tasks[i] = *task
			return nil
		}
	}

	return errors.New("task not found")
}

// FindByID finds a task scoped to its user
func (m *MockTaskRepository) FindByID(_ context.Context, id primitive.ObjectID, userID primitive.ObjectID) (*Task, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, stored := range m.Tasks {
		if stored.ID == id && stored.UserID == userID {
			task := m.Tasks[i]
			return &task, nil
		}
	}

	return nil, errors.New("task not found")
}

// FindAll finds all tasks of a user
func (m *MockTaskRepository) FindAll(_ context.Context, userID primitive.ObjectID) (Tasks, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var tasks Tasks
	for _, stored := range m.Tasks {
		if stored.UserID == userID {
			tasks = append(tasks, stored)
		}
	}

	tasks.Sort()
	return tasks, nil
}

// FindOpen finds the tasks of a user that still need scheduling
func (m *MockTaskRepository) FindOpen(_ context.Context, userID primitive.ObjectID) (Tasks, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var tasks Tasks
	for _, stored := range m.Tasks {
		if stored.UserID == userID && stored.Status != StatusDone {
			tasks = append(tasks, stored)
		}
	}

	tasks.Sort()
	return tasks, nil
}

// Delete removes a task scoped to its user
func (m *MockTaskRepository) Delete(_ context.Context, id primitive.ObjectID, userID primitive.ObjectID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, stored := range m.Tasks {
		if stored.ID == id && stored.UserID == userID {
			m.Tasks = m.Tasks.RemoveByIndex(i)
			return nil
		}
	}

	return errors.New("task not found")
}
