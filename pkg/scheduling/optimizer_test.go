package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/locking"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var locker = locking.NewLockerMemory()

// resultRecorder collects every published result in order
type resultRecorder struct {
	results []*OptimizationResult
}

func (r *resultRecorder) OnScheduleUpdated(result *OptimizationResult) {
	r.results = append(r.results, result)
}

func testOptimizer(tasks Tasks) *RealTimeOptimizer {
	optimizer := NewRealTimeOptimizer(primitive.NewObjectID(), testSettings(), NewPlacementEngine(log), locker, log)
	optimizer.SetWorkingSet(tasks, nil)
	return optimizer
}

func TestRealTimeOptimizer_DrainOrder(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	optimizer := testOptimizer(nil)

	submit := func(name string, priority DisruptionPriority) {
		err := optimizer.Submit(Disruption{
			Kind:     DisruptionUrgentTaskAdded,
			Priority: priority,
			Task:     &Task{Name: name, Priority: PriorityASAP, EstimatedMinutes: 30},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	submit("low", DisruptionPriorityLow)
	submit("critical", DisruptionPriorityCritical)
	submit("medium", DisruptionPriorityMedium)

	optimizer.drain()

	// tasks get appended in processing order
	var names []string
	for _, task := range optimizer.tasks {
		names = append(names, task.Name)
	}

	want := []string{"critical", "medium", "low"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("got processing order %v, want %v", names, want)
		}
	}

	if optimizer.State() != StateIdle {
		t.Errorf("got state %s after draining, want idle", optimizer.State())
	}
}

func TestRealTimeOptimizer_FIFOWithinPriority(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	optimizer := testOptimizer(nil)

	for _, name := range []string{"first", "second", "third"} {
		err := optimizer.Submit(Disruption{
			Kind:     DisruptionUrgentTaskAdded,
			Priority: DisruptionPriorityMedium,
			Task:     &Task{Name: name, Priority: PriorityASAP, EstimatedMinutes: 30},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	optimizer.drain()

	want := []string{"first", "second", "third"}
	for i, task := range optimizer.tasks {
		if task.Name != want[i] {
			t.Fatalf("equally ranked disruptions were reordered: got %q at %d, want %q", task.Name, i, want[i])
		}
	}
}

func TestRealTimeOptimizer_IdempotentCompletion(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 60}
	optimizer := testOptimizer(Tasks{task})

	recorder := &resultRecorder{}
	optimizer.Subscribe(recorder)

	complete := Disruption{Kind: DisruptionTaskCompleted, Priority: DisruptionPriorityMedium, TaskID: task.ID}

	if err := optimizer.Submit(complete); err != nil {
		t.Fatal(err)
	}
	if err := optimizer.Submit(complete); err != nil {
		t.Fatal(err)
	}

	optimizer.drain()

	if len(optimizer.tasks) != 0 {
		t.Errorf("got %d tasks, want the completed task removed", len(optimizer.tasks))
	}

	// the repeated completion is a no-op, not a failure
	if len(recorder.results) != 2 {
		t.Errorf("got %d published results, want 2", len(recorder.results))
	}
}

func TestRealTimeOptimizer_MonotonicEscalation(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityLow, EstimatedMinutes: 60}
	optimizer := testOptimizer(Tasks{task})

	for i := 0; i < 5; i++ {
		err := optimizer.Submit(Disruption{Kind: DisruptionTaskMissed, Priority: DisruptionPriorityHigh, TaskID: task.ID})
		if err != nil {
			t.Fatal(err)
		}

		optimizer.drain()
	}

	_, escalated := optimizer.tasks.FindByID(task.ID)
	if escalated == nil {
		t.Fatal("task disappeared from the working set")
	}

	if escalated.Priority != PriorityASAP {
		t.Errorf("got priority %s after repeated misses, want asap and stay there", escalated.Priority)
	}
}

func TestRealTimeOptimizer_FailureIsolation(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 60}
	optimizer := testOptimizer(Tasks{task})

	// the first disruption fails during handling, estimated minutes of zero
	// do not survive task validation
	err := optimizer.Submit(Disruption{
		Kind:     DisruptionUrgentTaskAdded,
		Priority: DisruptionPriorityCritical,
		Task:     &Task{Name: "Broken"},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = optimizer.Submit(Disruption{Kind: DisruptionTaskCompleted, Priority: DisruptionPriorityLow, TaskID: task.ID})
	if err != nil {
		t.Fatal(err)
	}

	optimizer.drain()

	if len(optimizer.tasks) != 0 {
		t.Error("the disruption after the failing one was not applied")
	}

	if optimizer.State() != StateIdle {
		t.Errorf("got state %s, want idle after draining past a failure", optimizer.State())
	}
}

func TestRealTimeOptimizer_ClearQueue(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 60}
	optimizer := testOptimizer(Tasks{task})

	err := optimizer.Submit(Disruption{Kind: DisruptionTaskCompleted, Priority: DisruptionPriorityMedium, TaskID: task.ID})
	if err != nil {
		t.Fatal(err)
	}

	optimizer.ClearQueue()

	if optimizer.QueueLength() != 0 {
		t.Fatalf("got %d queued disruptions, want 0", optimizer.QueueLength())
	}

	optimizer.drain()

	if len(optimizer.tasks) != 1 {
		t.Error("a cleared disruption was still applied")
	}
}

func TestRealTimeOptimizer_Optimize(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityHigh, EstimatedMinutes: 60}
	optimizer := testOptimizer(Tasks{task})

	recorder := &resultRecorder{}
	optimizer.Subscribe(recorder)

	result, err := optimizer.Optimize(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Scheduled) != 1 {
		t.Fatalf("got %d scheduled tasks, want 1", len(result.Scheduled))
	}

	if optimizer.CurrentSchedule() != result {
		t.Error("the committed result is not the current schedule")
	}

	if len(recorder.results) != 1 || recorder.results[0] != result {
		t.Error("observers did not receive the published result")
	}

	// the scheduled window is stamped back onto the working set
	_, stamped := optimizer.tasks.FindByID(task.ID)
	if stamped == nil || stamped.ScheduledAt == nil {
		t.Fatal("task in the working set carries no scheduled time")
	}

	if !stamped.ScheduledAt.Start.Equal(result.Scheduled[0].ScheduledAt.Start) {
		t.Error("stamped window differs from the published one")
	}
}

func TestRealTimeOptimizer_MeetingAddedBlocksSlots(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityHigh, EstimatedMinutes: 60}
	optimizer := testOptimizer(Tasks{task})

	if _, err := optimizer.Optimize(context.Background()); err != nil {
		t.Fatal(err)
	}

	before := optimizer.CurrentSchedule().Scheduled[0].ScheduledAt

	err := optimizer.Submit(Disruption{
		Kind:     DisruptionMeetingAdded,
		Priority: DisruptionPriorityHigh,
		Event: &calendar.Event{
			ID:     primitive.NewObjectID(),
			Date:   date.Timespan{Start: timeDate(1, 9, 0), End: timeDate(1, 10, 0)},
			Title:  "Staff meeting",
			Source: calendar.EventSourceExternal,
			Busy:   true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	optimizer.drain()

	after := optimizer.CurrentSchedule().Scheduled[0].ScheduledAt
	if after.IntersectsWith(date.Timespan{Start: timeDate(1, 9, 0), End: timeDate(1, 10, 0)}) {
		t.Errorf("task window %s still overlaps the new meeting", after.String())
	}

	if after.Start.Equal(before.Start) {
		t.Error("schedule did not move although the meeting took its window")
	}
}

func TestRealTimeOptimizer_ZeroGranularity(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	settings := testSettings()
	settings.Granularity = 0

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 60}
	optimizer := NewRealTimeOptimizer(primitive.NewObjectID(), settings, NewPlacementEngine(log), locker, log)
	optimizer.SetWorkingSet(Tasks{task}, nil)

	_, err := optimizer.Optimize(context.Background())
	if !IsInvalidConfiguration(err) {
		t.Errorf("got %v, want an invalid configuration error instead of a stalled pass", err)
	}
}

func TestDisruption_Validate(t *testing.T) {
	cases := []struct {
		name       string
		disruption Disruption
		wantErr    bool
	}{
		{"completed ok", Disruption{Kind: DisruptionTaskCompleted, Priority: DisruptionPriorityLow, TaskID: primitive.NewObjectID()}, false},
		{"completed without task", Disruption{Kind: DisruptionTaskCompleted, Priority: DisruptionPriorityLow}, true},
		{"overrun without minutes", Disruption{Kind: DisruptionTaskOverrun, Priority: DisruptionPriorityHigh, TaskID: primitive.NewObjectID()}, true},
		{"urgent without task", Disruption{Kind: DisruptionUrgentTaskAdded, Priority: DisruptionPriorityCritical}, true},
		{"unknown kind", Disruption{Kind: "reboot", Priority: DisruptionPriorityLow}, true},
	}

	for _, c := range cases {
		err := c.disruption.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: got err %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestRealTimeOptimizer_Overrun(t *testing.T) {
	now = func() time.Time { return timeDate(1, 8, 0) }

	task := Task{ID: primitive.NewObjectID(), Name: "Grading", Priority: PriorityMedium, EstimatedMinutes: 60}
	optimizer := testOptimizer(Tasks{task})

	err := optimizer.Submit(Disruption{
		Kind:           DisruptionTaskOverrun,
		Priority:       DisruptionPriorityHigh,
		TaskID:         task.ID,
		OverrunMinutes: 30,
	})
	if err != nil {
		t.Fatal(err)
	}

	optimizer.drain()

	_, grown := optimizer.tasks.FindByID(task.ID)
	if grown == nil || grown.EstimatedMinutes != 90 {
		t.Errorf("got %v, want the estimate grown to 90 minutes", grown)
	}
}
