package scheduling

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var log = logger.Logger{}

func testSettings() users.SchedulingSettings {
	return users.DefaultSchedulingSettings()
}

func slotsFor(settings users.SchedulingSettings, events calendar.Events, horizonStart time.Time, horizonDays int) []TimeSlot {
	return GenerateSlots(settings.WorkingHours, events, horizonStart, horizonDays, settings.Granularity, settings.BusyPadding)
}

func TestPlacementEngine_Place_HighPriorityMorning(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	task := Task{ID: primitive.NewObjectID(), Name: "Prepare exam", Priority: PriorityHigh, EstimatedMinutes: 60}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(Tasks{task}, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Scheduled) != 1 {
		t.Fatalf("got %d scheduled tasks, want 1", len(result.Scheduled))
	}

	scheduled := result.Scheduled[0]
	if !scheduled.ScheduledAt.Start.Equal(timeDate(1, 9, 0)) || !scheduled.ScheduledAt.End.Equal(timeDate(1, 10, 0)) {
		t.Errorf("got window %s, want 09:00 - 10:00 on the first morning", scheduled.ScheduledAt.String())
	}

	if scheduled.HappinessContribution < 0.5 {
		t.Errorf("got happiness %v, want at least 0.5", scheduled.HappinessContribution)
	}

	if scheduled.ScheduledAt.Start.Hour() >= 12 {
		t.Error("high priority task landed outside its preferred morning")
	}
}

func TestPlacementEngine_Place_BufferAgainstFixedEvents(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	events := calendar.Events{
		{Date: date.Timespan{Start: timeDate(1, 9, 0), End: timeDate(1, 10, 0)}, Busy: true},
	}

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityHigh, EstimatedMinutes: 60}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(Tasks{task}, slotsFor(settings, events, at, 1), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Scheduled) != 1 {
		t.Fatalf("got %d scheduled tasks, want 1", len(result.Scheduled))
	}

	scheduled := result.Scheduled[0]
	if !scheduled.ScheduledAt.Start.Equal(timeDate(1, 10, 15)) {
		t.Errorf("task starts at %s, want 10:15 one buffer after the event", scheduled.ScheduledAt.Start)
	}

	buffered := scheduled.ScheduledAt.Pad(settings.BusyPadding)
	for _, event := range events {
		if buffered.IntersectsWith(event.Date) {
			t.Errorf("buffered task window %s intersects fixed event %s", buffered.String(), event.Date.String())
		}
	}
}

func TestPlacementEngine_Place_Conservation(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	tasks := Tasks{
		{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 60},
		{ID: primitive.NewObjectID(), Name: "Parent call", Priority: PriorityHigh, EstimatedMinutes: 30},
		{ID: primitive.NewObjectID(), Name: "Course redesign", Priority: PriorityLow, EstimatedMinutes: 600},
		{ID: primitive.NewObjectID(), Name: "Inbox", Priority: PriorityLow, EstimatedMinutes: 45},
	}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(tasks, slotsFor(settings, nil, at, 1), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Scheduled)+len(result.Unscheduled) != len(tasks) {
		t.Errorf("conservation violated: %d scheduled + %d unscheduled != %d tasks",
			len(result.Scheduled), len(result.Unscheduled), len(tasks))
	}

	if len(result.Unscheduled) != 1 || result.Unscheduled[0].Task.Name != "Course redesign" {
		t.Errorf("expected only the 600 minute task to stay unscheduled, got %v", result.Unscheduled)
	}
}

func TestPlacementEngine_Place_NoContiguousWindow(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	// only short gaps remain once the events are buffered
	events := calendar.Events{
		{Date: date.Timespan{Start: timeDate(1, 10, 0), End: timeDate(1, 13, 0)}, Busy: true},
		{Date: date.Timespan{Start: timeDate(1, 14, 0), End: timeDate(1, 17, 0)}, Busy: true},
	}

	task := Task{ID: primitive.NewObjectID(), Name: "Deep work", Priority: PriorityHigh, EstimatedMinutes: 180, Chunkable: false}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(Tasks{task}, slotsFor(settings, events, at, 1), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Unscheduled) != 1 {
		t.Fatalf("got %d unscheduled tasks, want 1", len(result.Unscheduled))
	}

	want := "no contiguous free window of 180 minutes within the horizon"
	if result.Unscheduled[0].Reason != want {
		t.Errorf("got reason %q, want %q", result.Unscheduled[0].Reason, want)
	}
}

func TestPlacementEngine_Place_Deterministic(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	tasks := Tasks{
		{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 90},
		{ID: primitive.NewObjectID(), Name: "Slides", Priority: PriorityHigh, EstimatedMinutes: 60},
		{ID: primitive.NewObjectID(), Name: "Inbox", Priority: PriorityLow, EstimatedMinutes: 30},
	}

	engine := NewPlacementEngine(log)

	first, err := engine.Place(tasks, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	second, err := engine.Place(tasks, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}
}

func TestPlacementEngine_Place_NoOverlap(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	tasks := Tasks{
		{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 60},
		{ID: primitive.NewObjectID(), Name: "Slides", Priority: PriorityHigh, EstimatedMinutes: 60},
		{ID: primitive.NewObjectID(), Name: "Inbox", Priority: PriorityLow, EstimatedMinutes: 60},
	}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(tasks, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Scheduled) != 3 {
		t.Fatalf("got %d scheduled tasks, want 3", len(result.Scheduled))
	}

	for i := range result.Scheduled {
		for j := i + 1; j < len(result.Scheduled); j++ {
			a := result.Scheduled[i].ScheduledAt.Pad(settings.BusyPadding / 2)
			b := result.Scheduled[j].ScheduledAt.Pad(settings.BusyPadding / 2)
			if a.IntersectsWith(b) {
				t.Errorf("buffered windows %s and %s overlap", a.String(), b.String())
			}
		}
	}
}

func TestPlacementEngine_Place_Chunks(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	// free gaps once the events are buffered: 9-10 and 11:15-12:15
	events := calendar.Events{
		{Date: date.Timespan{Start: timeDate(1, 10, 15), End: timeDate(1, 11, 0)}, Busy: true},
		{Date: date.Timespan{Start: timeDate(1, 12, 30), End: timeDate(1, 16, 45)}, Busy: true},
	}

	task := Task{
		ID: primitive.NewObjectID(), Name: "Grade essays", Priority: PriorityHigh,
		EstimatedMinutes: 120, Chunkable: true, MinChunkMinutes: 30, MaxChunkMinutes: 60,
	}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(Tasks{task}, slotsFor(settings, events, at, 1), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Unscheduled) != 0 {
		t.Fatalf("expected the chunkable task to be placed, got %v", result.Unscheduled)
	}

	if len(result.Scheduled) != 2 {
		t.Fatalf("got %d chunks, want 2", len(result.Scheduled))
	}

	var total time.Duration
	for _, chunk := range result.Scheduled {
		if chunk.ChunkOf != task.ID {
			t.Errorf("chunk is not linked to its parent task")
		}

		total += chunk.ScheduledAt.Duration()
	}

	if total != time.Minute*120 {
		t.Errorf("chunks cover %s, want 120 minutes", total)
	}
}

func TestPlacementEngine_Place_UnfinishedDependency(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	prepare := Task{ID: primitive.NewObjectID(), Name: "Prepare material", Priority: PriorityLow, EstimatedMinutes: 60, Status: StatusToDo}
	teach := Task{
		ID: primitive.NewObjectID(), Name: "Teach class", Priority: PriorityHigh, EstimatedMinutes: 60,
		Dependencies: []primitive.ObjectID{prepare.ID},
	}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(Tasks{prepare, teach}, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Unscheduled) != 1 {
		t.Fatalf("got %d unscheduled tasks, want 1", len(result.Unscheduled))
	}

	if !strings.Contains(result.Unscheduled[0].Reason, prepare.ID.Hex()) {
		t.Errorf("got reason %q, want it to name the blocking dependency", result.Unscheduled[0].Reason)
	}
}

func TestPlacementEngine_Place_CompletedDependencyIsGone(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	// the dependency id points at a task that was completed and removed
	teach := Task{
		ID: primitive.NewObjectID(), Name: "Teach class", Priority: PriorityHigh, EstimatedMinutes: 60,
		Dependencies: []primitive.ObjectID{primitive.NewObjectID()},
	}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(Tasks{teach}, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Scheduled) != 1 {
		t.Errorf("expected the task to be scheduled, got %v", result.Unscheduled)
	}
}

func TestPlacementEngine_Place_OverdueBeatsEqualPriority(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	overdueAt := timeDate(1, 7, 0)
	relaxed := Task{ID: primitive.NewObjectID(), Name: "Relaxed", Priority: PriorityMedium, EstimatedMinutes: 60}
	overdue := Task{ID: primitive.NewObjectID(), Name: "Overdue", Priority: PriorityMedium, EstimatedMinutes: 60, Deadline: &overdueAt}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(Tasks{relaxed, overdue}, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	windows := map[string]date.Timespan{}
	for _, scheduled := range result.Scheduled {
		windows[scheduled.Task.Name] = scheduled.ScheduledAt
	}

	overdueWindow := windows["Overdue"]
	relaxedWindow := windows["Relaxed"]
	if !overdueWindow.Start.Before(relaxedWindow.Start) {
		t.Errorf("overdue task got %s, relaxed task got %s, want the overdue one earlier",
			overdueWindow.String(), relaxedWindow.String())
	}
}

func TestPlacementEngine_Place_InvalidWorkingHours(t *testing.T) {
	settings := testSettings()
	settings.WorkingHours = nil
	at := timeDate(1, 8, 0)

	engine := NewPlacementEngine(log)
	_, err := engine.Place(Tasks{}, nil, &settings, at)
	if !IsInvalidConfiguration(err) {
		t.Errorf("got %v, want an invalid configuration error", err)
	}
}

func TestPlacementEngine_Place_ConfidenceFullSchedule(t *testing.T) {
	settings := testSettings()
	at := timeDate(1, 8, 0)

	tasks := Tasks{
		{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityHigh, EstimatedMinutes: 60},
		{ID: primitive.NewObjectID(), Name: "Inbox", Priority: PriorityLow, EstimatedMinutes: 30},
	}

	engine := NewPlacementEngine(log)
	result, err := engine.Place(tasks, slotsFor(settings, nil, at, 5), &settings, at)
	if err != nil {
		t.Fatal(err)
	}

	if result.Confidence != 1.0 {
		t.Errorf("got confidence %v, want 1.0 when everything fits", result.Confidence)
	}

	if len(result.Recommendations) != 0 {
		t.Errorf("got recommendations %v, want none for a clean schedule", result.Recommendations)
	}
}
