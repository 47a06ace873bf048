package scheduling

import (
	"sort"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Priority ranks how urgently a task has to be worked on
type Priority int

// The priorities a task can have, ordered ascending
const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityASAP
)

// Weight maps a priority onto a dimensionless scoring weight
func (p Priority) Weight() float64 {
	switch p {
	case PriorityASAP:
		return 1.0
	case PriorityHigh:
		return 0.75
	case PriorityMedium:
		return 0.5
	case PriorityLow:
		return 0.25
	}

	return 0
}

// Escalate raises a priority by one step, ASAP is absorbing
func (p Priority) Escalate() Priority {
	if p >= PriorityASAP {
		return PriorityASAP
	}

	return p + 1
}

// IsHigh reports whether the priority counts towards the high priority confidence ratio
func (p Priority) IsHigh() bool {
	return p >= PriorityHigh
}

func (p Priority) String() string {
	switch p {
	case PriorityASAP:
		return "asap"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}

	return "unknown"
}

// TaskStatus is the lifecycle state of a task
type TaskStatus string

// The lifecycle states of a task
const (
	StatusToDo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
)

// TaskType categorizes a task for reporting, it has no influence on scheduling
type TaskType string

// The reporting categories of a task
const (
	TaskTypeWork     TaskType = "work"
	TaskTypeLearning TaskType = "learning"
	TaskTypeAdmin    TaskType = "admin"
	TaskTypePersonal TaskType = "personal"
)

// Task is the model for a user authored task
type Task struct {
	ID             primitive.ObjectID `json:"id" bson:"_id"`
	UserID         primitive.ObjectID `json:"userId" bson:"userId"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	LastModifiedAt time.Time          `json:"lastModifiedAt" bson:"lastModifiedAt"`

	Name             string     `json:"name" bson:"name" validate:"required"`
	Priority         Priority   `json:"priority" bson:"priority" validate:"required,min=1,max=4"`
	EstimatedMinutes int        `json:"estimatedMinutes" bson:"estimatedMinutes" validate:"required,gt=0"`
	Deadline         *time.Time `json:"deadline,omitempty" bson:"deadline,omitempty"`

	IsFlexible      bool `json:"isFlexible" bson:"isFlexible"`
	Chunkable       bool `json:"chunkable" bson:"chunkable"`
	MinChunkMinutes int  `json:"minChunkMinutes,omitempty" bson:"minChunkMinutes,omitempty"`
	MaxChunkMinutes int  `json:"maxChunkMinutes,omitempty" bson:"maxChunkMinutes,omitempty"`

	Dependencies []primitive.ObjectID `json:"dependencies,omitempty" bson:"dependencies,omitempty"`
	Type         TaskType             `json:"type" bson:"type"`
	Status       TaskStatus           `json:"status" bson:"status"`

	// ScheduledAt is set by the placement engine and cleared by disruptions
	ScheduledAt *date.Timespan `json:"scheduledAt,omitempty" bson:"scheduledAt,omitempty"`
}

// EstimatedDuration is the workload of the task as a duration
func (t *Task) EstimatedDuration() time.Duration {
	return time.Duration(t.EstimatedMinutes) * time.Minute
}

var validate = validator.New()

// Validate checks the task for invalid configuration
func (t *Task) Validate() error {
	if err := validate.Struct(t); err != nil {
		return &InvalidConfigurationError{Message: "task failed validation", Err: err}
	}

	if t.Chunkable {
		if t.MinChunkMinutes <= 0 || t.MaxChunkMinutes <= 0 {
			return &InvalidConfigurationError{Message: "chunkable task needs min and max chunk minutes"}
		}

		if t.MinChunkMinutes > t.MaxChunkMinutes {
			return &InvalidConfigurationError{Message: "min chunk minutes must not exceed max chunk minutes"}
		}
	}

	return nil
}

// Tasks is a slice of Task with helper methods
type Tasks []Task

// FindByID finds a task by its id, returns -1 and nil if there is none
func (t Tasks) FindByID(id primitive.ObjectID) (int, *Task) {
	for i, task := range t {
		if task.ID == id {
			return i, &t[i]
		}
	}

	return -1, nil
}

// RemoveByIndex removes a task by its index
func (t Tasks) RemoveByIndex(index int) Tasks {
	if index < 0 || index >= len(t) {
		return t
	}

	return append(t[:index], t[index+1:]...)
}

// Clone copies the task slice so a scheduling pass can work on a snapshot
func (t Tasks) Clone() Tasks {
	if t == nil {
		return nil
	}

	cloned := make(Tasks, len(t))
	copy(cloned, t)
	return cloned
}

// Sort orders tasks by creation time to keep scoring ties stable
func (t Tasks) Sort() {
	sort.SliceStable(t, func(i, j int) bool {
		return t[i].CreatedAt.Before(t[j].CreatedAt)
	})
}

// ScheduledTask is a task committed to a concrete window
type ScheduledTask struct {
	Task        Task          `json:"task"`
	ScheduledAt date.Timespan `json:"scheduledAt"`

	Score                 float64 `json:"score"`
	HappinessContribution float64 `json:"happinessContribution"`

	// ChunkOf links a placed chunk back to its parent task, zero for whole tasks
	ChunkOf primitive.ObjectID `json:"chunkOf,omitempty"`
}

// UnscheduledTask is a task the placement engine could not fit, with the reason why
type UnscheduledTask struct {
	Task   Task   `json:"task"`
	Reason string `json:"reason"`
}

// InvalidConfigurationError signals configuration that can not produce a valid schedule
type InvalidConfigurationError struct {
	Message string
	Err     error
}

func (e *InvalidConfigurationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	return e.Message
}

// Unwrap exposes the wrapped validation error
func (e *InvalidConfigurationError) Unwrap() error {
	return e.Err
}

// IsInvalidConfiguration checks whether an error is a configuration error
func IsInvalidConfiguration(err error) bool {
	var target *InvalidConfigurationError
	return errors.As(err, &target)
}
