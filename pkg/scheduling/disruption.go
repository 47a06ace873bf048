package scheduling

import (
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DisruptionKind tags which real world change a disruption carries
type DisruptionKind string

// The disruption kinds
const (
	DisruptionTaskCompleted   DisruptionKind = "task-completed"
	DisruptionTaskMissed      DisruptionKind = "task-missed"
	DisruptionUrgentTaskAdded DisruptionKind = "urgent-task-added"
	DisruptionMeetingAdded    DisruptionKind = "meeting-added"
	DisruptionTaskOverrun     DisruptionKind = "task-overrun"
)

// DisruptionPriority ranks disruptions against each other in the queue
type DisruptionPriority int

// The disruption priorities, ordered ascending
const (
	DisruptionPriorityLow DisruptionPriority = iota + 1
	DisruptionPriorityMedium
	DisruptionPriorityHigh
	DisruptionPriorityCritical
)

// DisruptionState is the lifecycle state of a single disruption
type DisruptionState string

// The lifecycle states of a disruption
const (
	DisruptionQueued     DisruptionState = "queued"
	DisruptionProcessing DisruptionState = "processing"
	DisruptionApplied    DisruptionState = "applied"
	DisruptionFailed     DisruptionState = "failed"
)

// Disruption is a tagged union over the possible schedule changes. Only the
// payload fields matching the kind are read.
type Disruption struct {
	Kind     DisruptionKind     `json:"kind" validate:"required"`
	Priority DisruptionPriority `json:"priority" validate:"required,min=1,max=4"`

	TaskID         primitive.ObjectID `json:"taskId,omitempty"`
	Task           *Task              `json:"task,omitempty"`
	Event          *calendar.Event    `json:"event,omitempty"`
	OverrunMinutes int                `json:"overrunMinutes,omitempty"`

	SubmittedAt time.Time       `json:"submittedAt"`
	State       DisruptionState `json:"state"`

	// sequence is the stable FIFO tie break within a priority rank
	sequence uint64
}

// Validate checks that the payload matches the kind
func (d *Disruption) Validate() error {
	switch d.Kind {
	case DisruptionTaskCompleted, DisruptionTaskMissed:
		if d.TaskID.IsZero() {
			return &InvalidConfigurationError{Message: string(d.Kind) + " disruption needs a task id"}
		}
	case DisruptionTaskOverrun:
		if d.TaskID.IsZero() {
			return &InvalidConfigurationError{Message: "task-overrun disruption needs a task id"}
		}
		if d.OverrunMinutes <= 0 {
			return &InvalidConfigurationError{Message: "task-overrun disruption needs positive overrun minutes"}
		}
	case DisruptionUrgentTaskAdded:
		if d.Task == nil {
			return &InvalidConfigurationError{Message: "urgent-task-added disruption needs a task"}
		}
	case DisruptionMeetingAdded:
		if d.Event == nil {
			return &InvalidConfigurationError{Message: "meeting-added disruption needs an event"}
		}
	default:
		return &InvalidConfigurationError{Message: "unknown disruption kind " + string(d.Kind)}
	}

	if d.Priority < DisruptionPriorityLow || d.Priority > DisruptionPriorityCritical {
		return &InvalidConfigurationError{Message: "disruption priority out of range"}
	}

	return nil
}

// disruptionQueue is a heap ordered by priority rank, FIFO within a rank
type disruptionQueue []*Disruption

func (q disruptionQueue) Len() int { return len(q) }

func (q disruptionQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}

	return q[i].sequence < q[j].sequence
}

func (q disruptionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *disruptionQueue) Push(x interface{}) {
	*q = append(*q, x.(*Disruption))
}

func (q *disruptionQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
