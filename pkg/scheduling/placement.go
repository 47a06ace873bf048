package scheduling

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OptimizationResult is the outcome of a single placement pass
type OptimizationResult struct {
	UserID primitive.ObjectID `json:"userId"`

	Scheduled   []ScheduledTask   `json:"scheduled"`
	Unscheduled []UnscheduledTask `json:"unscheduled"`

	// HappinessScore is the mean happiness contribution of all placed tasks
	HappinessScore float64 `json:"happinessScore"`
	// Confidence combines the overall and the high priority scheduled ratio
	Confidence float64 `json:"confidence"`

	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// PlacementEngine assigns scored tasks to free slots, one greedy pass, no backtracking
type PlacementEngine struct {
	logger logger.Interface
}

// NewPlacementEngine constructs a PlacementEngine
func NewPlacementEngine(log logger.Interface) *PlacementEngine {
	return &PlacementEngine{logger: log}
}

// placement is a single committed window for a task or one of its chunks
type placement struct {
	window      date.Timespan
	prefHonored bool
}

// Place assigns every task to the earliest fitting run of free slots.
// Tasks are processed in descending score order, ties keep insertion order,
// runs are always searched earliest first, which makes the pass
// deterministic for identical inputs.
func (e *PlacementEngine) Place(tasks Tasks, slots []TimeSlot, settings *users.SchedulingSettings, now time.Time) (*OptimizationResult, error) {
	if err := settings.WorkingHours.Validate(); err != nil {
		return nil, &InvalidConfigurationError{Message: "working hours are not schedulable", Err: err}
	}

	for i := range tasks {
		if err := tasks[i].Validate(); err != nil {
			return nil, err
		}
	}

	granularity := settings.Granularity
	if granularity <= 0 {
		granularity = time.Minute * 15
	}

	result := &OptimizationResult{GeneratedAt: now}

	free := make([]TimeSlot, len(slots))
	copy(free, slots)
	sort.SliceStable(free, func(i, j int) bool {
		return free[i].Start.Before(free[j].Start)
	})

	sorted := SortByScore(tasks, now)

	var happinessTotal float64
	var placedTasks int

	for i := range sorted {
		task := sorted[i]

		if depID, blocked := unfinishedDependency(&task, tasks); blocked {
			result.Unscheduled = append(result.Unscheduled, UnscheduledTask{
				Task:   task,
				Reason: fmt.Sprintf("blocked by unfinished dependency %s", depID.Hex()),
			})
			continue
		}

		placements, remainingFree, reason := e.placeTask(&task, free, settings, granularity)
		if reason != "" {
			result.Unscheduled = append(result.Unscheduled, UnscheduledTask{Task: task, Reason: reason})
			continue
		}

		free = remainingFree
		placedTasks++

		score := Score(&task, now)
		happiness := happinessContribution(&task, placements)
		happinessTotal += happiness

		for _, p := range placements {
			scheduled := ScheduledTask{
				Task:                  task,
				ScheduledAt:           p.window,
				Score:                 score.Combined,
				HappinessContribution: happiness,
			}

			if len(placements) > 1 {
				scheduled.ChunkOf = task.ID
			}

			result.Scheduled = append(result.Scheduled, scheduled)
		}
	}

	if placedTasks > 0 {
		result.HappinessScore = happinessTotal / float64(placedTasks)
	}

	result.Confidence = confidence(tasks, placedTasks, result)
	result.Warnings = collectWarnings(result, settings.BusyPadding)
	result.Recommendations = collectRecommendations(result, len(tasks))

	return result, nil
}

// placeTask finds windows for a whole task or all of its chunks. It works on
// a copy of the free slot list and only returns the consumed list when the
// whole task fit, so a failed task never leaves partial placements behind.
func (e *PlacementEngine) placeTask(task *Task, free []TimeSlot, settings *users.SchedulingSettings, granularity time.Duration) ([]placement, []TimeSlot, string) {
	preference := settings.Preferences.For(int(task.Priority))

	requiredSlots := requiredSlotCount(task.EstimatedMinutes, granularity)

	if run, honored := findRun(free, requiredSlots, preference); run >= 0 {
		window := runWindow(free, run, requiredSlots, task.EstimatedDuration())
		free = consumeSlots(free, window.Pad(settings.BusyPadding))

		return []placement{{window: window, prefHonored: honored}}, free, ""
	}

	if !task.Chunkable {
		return nil, nil, fmt.Sprintf("no contiguous free window of %d minutes within the horizon", task.EstimatedMinutes)
	}

	placements, free, ok := e.placeChunks(task, free, preference, settings.BusyPadding, granularity)
	if !ok {
		return nil, nil, fmt.Sprintf("could not fit all chunks of %d minutes within the horizon", task.EstimatedMinutes)
	}

	return placements, free, ""
}

// placeChunks splits a chunkable task into pieces between its min and max
// chunk size and places every piece independently
func (e *PlacementEngine) placeChunks(task *Task, free []TimeSlot, preference users.TimeOfDay, padding time.Duration, granularity time.Duration) ([]placement, []TimeSlot, bool) {
	working := make([]TimeSlot, len(free))
	copy(working, free)

	var placements []placement

	remaining := task.EstimatedMinutes
	for remaining > 0 {
		chunk := nextChunkSize(remaining, task.MinChunkMinutes, task.MaxChunkMinutes)

		requiredSlots := requiredSlotCount(chunk, granularity)
		run, honored := findRun(working, requiredSlots, preference)
		if run < 0 {
			return nil, nil, false
		}

		window := runWindow(working, run, requiredSlots, time.Duration(chunk)*time.Minute)
		working = consumeSlots(working, window.Pad(padding))

		placements = append(placements, placement{window: window, prefHonored: honored})
		remaining -= chunk
	}

	return placements, working, true
}

// nextChunkSize picks the next chunk so that no future piece falls below the minimum
func nextChunkSize(remaining int, minChunk int, maxChunk int) int {
	if remaining <= minChunk {
		return remaining
	}

	chunk := remaining
	if chunk > maxChunk {
		chunk = maxChunk
	}

	if leftover := remaining - chunk; leftover > 0 && leftover < minChunk {
		chunk = remaining - minChunk
	}

	return chunk
}

func requiredSlotCount(estimatedMinutes int, granularity time.Duration) int {
	granularityMinutes := int(granularity / time.Minute)
	return (estimatedMinutes + granularityMinutes - 1) / granularityMinutes
}

// findRun scans for the earliest run of contiguous free slots. Runs starting
// in the preferred time of day win, the earliest run of any hour is the
// fallback. Returns -1 if no run exists at all.
func findRun(free []TimeSlot, requiredSlots int, preference users.TimeOfDay) (int, bool) {
	fallback := -1

	for i := 0; i+requiredSlots <= len(free); i++ {
		if !isContiguous(free, i, requiredSlots) {
			continue
		}

		if preference.Contains(free[i].Start.Hour()) {
			return i, true
		}

		if fallback < 0 {
			fallback = i
		}
	}

	if fallback >= 0 {
		return fallback, false
	}

	return -1, false
}

func isContiguous(free []TimeSlot, start int, count int) bool {
	for j := 1; j < count; j++ {
		if !free[start+j].Start.Equal(free[start+j-1].End) {
			return false
		}
	}

	return true
}

// runWindow cuts the exact workload duration out of the front of a slot run
func runWindow(free []TimeSlot, run int, requiredSlots int, workload time.Duration) date.Timespan {
	window := date.Timespan{
		Start: free[run].Start,
		End:   free[run+requiredSlots-1].End,
	}

	if window.Duration() > workload {
		window.End = window.Start.Add(workload)
	}

	return window
}

// consumeSlots drops every free slot that intersects the buffered window
func consumeSlots(free []TimeSlot, buffered date.Timespan) []TimeSlot {
	var remaining []TimeSlot
	for _, slot := range free {
		timespan := slot.Timespan()
		if timespan.IntersectsWith(buffered) {
			continue
		}

		remaining = append(remaining, slot)
	}

	return remaining
}

func unfinishedDependency(task *Task, all Tasks) (primitive.ObjectID, bool) {
	for _, depID := range task.Dependencies {
		_, dep := all.FindByID(depID)
		if dep == nil {
			// A missing dependency was completed and removed from the working set
			continue
		}

		if dep.Status != StatusDone {
			return depID, true
		}
	}

	return primitive.NilObjectID, false
}

// happinessContribution rates how desirable the found windows are for the task
func happinessContribution(task *Task, placements []placement) float64 {
	happiness := 0.5
	happiness += 0.3 * task.Priority.Weight()

	if task.Deadline != nil {
		lastEnd := placements[len(placements)-1].window.End
		if date.TimeBeforeOrEquals(lastEnd, *task.Deadline) {
			happiness += 0.3
		}
	}

	if placements[0].prefHonored {
		happiness += 0.2
	}

	return math.Min(happiness, 1.0)
}

// confidence is 1.0 for an empty task list, otherwise it combines how many
// tasks and how many high priority tasks could be placed
func confidence(tasks Tasks, placed int, result *OptimizationResult) float64 {
	total := placed + len(result.Unscheduled)
	if total == 0 {
		return 1.0
	}

	scheduledRatio := float64(placed) / float64(total)

	unscheduledByID := make(map[primitive.ObjectID]bool)
	for _, unscheduled := range result.Unscheduled {
		unscheduledByID[unscheduled.Task.ID] = true
	}

	highTotal := 0
	highPlaced := 0
	for i := range tasks {
		if !tasks[i].Priority.IsHigh() {
			continue
		}

		highTotal++
		if !unscheduledByID[tasks[i].ID] {
			highPlaced++
		}
	}

	highRatio := 1.0
	if highTotal > 0 {
		highRatio = float64(highPlaced) / float64(highTotal)
	}

	return 0.6*scheduledRatio + 0.4*highRatio
}

func collectWarnings(result *OptimizationResult, padding time.Duration) []string {
	var warnings []string

	scheduled := make([]ScheduledTask, len(result.Scheduled))
	copy(scheduled, result.Scheduled)
	sort.SliceStable(scheduled, func(i, j int) bool {
		return scheduled[i].ScheduledAt.Start.Before(scheduled[j].ScheduledAt.Start)
	})

	for i := 1; i < len(scheduled); i++ {
		gap := scheduled[i].ScheduledAt.Start.Sub(scheduled[i-1].ScheduledAt.End)
		if gap < padding {
			warnings = append(warnings, fmt.Sprintf(
				"insufficient buffer of %s between %q and %q",
				gap, scheduled[i-1].Task.Name, scheduled[i].Task.Name))
		}
	}

	for _, task := range scheduled {
		if task.Task.Deadline != nil && task.ScheduledAt.End.After(*task.Task.Deadline) {
			warnings = append(warnings, fmt.Sprintf("%q is scheduled past its deadline", task.Task.Name))
		}
	}

	return warnings
}

func collectRecommendations(result *OptimizationResult, totalTasks int) []string {
	var recommendations []string

	if len(result.Unscheduled) > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d tasks could not be placed, consider extending working hours or moving deadlines",
			len(result.Unscheduled)))
	}

	if totalTasks > 0 && len(result.Scheduled) > 0 && result.HappinessScore < 0.5 {
		recommendations = append(recommendations,
			"most tasks landed outside their preferred time of day, review the preference table")
	}

	if totalTasks > 0 && result.Confidence < 0.7 {
		recommendations = append(recommendations,
			"schedule confidence is low, high priority tasks compete for the same slots")
	}

	return recommendations
}
