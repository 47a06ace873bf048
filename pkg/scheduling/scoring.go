package scheduling

import (
	"math"
	"sort"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
)

// The fixed weights of the combined score. The remaining weight is reserved
// for preference and time optimality terms that are only known once a task
// is held against a concrete slot.
const (
	weightDeadline = 0.30
	weightPriority = 0.25
	weightDuration = 0.15
)

// TaskScore holds the dimensionless weights of a single task
type TaskScore struct {
	Urgency        float64 `json:"urgency"`
	PriorityWeight float64 `json:"priorityWeight"`
	DurationWeight float64 `json:"durationWeight"`
	Combined       float64 `json:"combined"`
}

// Score computes the scheduling weights of a task at a given point in time
func Score(task *Task, now time.Time) TaskScore {
	score := TaskScore{
		Urgency:        urgency(task.Deadline, now),
		PriorityWeight: task.Priority.Weight(),
		DurationWeight: durationWeight(task.EstimatedMinutes),
	}

	score.Combined = score.Urgency*weightDeadline +
		score.PriorityWeight*weightPriority +
		score.DurationWeight*weightDuration

	return score
}

// urgency decays with the days left until the deadline. An overdue task is
// maximally urgent, a task without deadline minimally.
func urgency(deadline *time.Time, now time.Time) float64 {
	if deadline == nil {
		return 0.1
	}

	if date.TimeBeforeOrEquals(*deadline, now) {
		return 1.0
	}

	daysUntil := deadline.Sub(now).Hours() / 24

	switch {
	case daysUntil <= 1:
		return 0.9
	case daysUntil <= 3:
		return 0.7
	case daysUntil <= 7:
		return 0.5
	}

	return math.Max(0.1, 1/math.Sqrt(daysUntil))
}

// durationWeight slightly favors short tasks to make them fill gaps
func durationWeight(estimatedMinutes int) float64 {
	if estimatedMinutes < 15 {
		estimatedMinutes = 15
	}

	return math.Min(1, 60/float64(estimatedMinutes))
}

// SortByScore orders tasks descending by their combined score. The sort is
// stable so equally scored tasks keep their insertion order.
func SortByScore(tasks Tasks, now time.Time) Tasks {
	scores := make([]float64, len(tasks))
	for i := range tasks {
		scores[i] = Score(&tasks[i], now).Combined
	}

	indices := make([]int, len(tasks))
	for i := range indices {
		indices[i] = i
	}

	sort.SliceStable(indices, func(i, j int) bool {
		return scores[indices[i]] > scores[indices[j]]
	})

	sorted := make(Tasks, len(tasks))
	for i, index := range indices {
		sorted[i] = tasks[index]
	}

	return sorted
}
