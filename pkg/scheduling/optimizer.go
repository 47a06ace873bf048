package scheduling

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/locking"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// now is overridable for tests
var now = time.Now

// ProcessState is what the optimizer is doing right now
type ProcessState string

// The optimizer states
const (
	StateIdle       ProcessState = "idle"
	StateOptimizing ProcessState = "optimizing"
)

const optimizationLockTTL = time.Second * 30

// ResultObserver gets told about every successfully applied reoptimization
type ResultObserver interface {
	OnScheduleUpdated(result *OptimizationResult)
}

// RealTimeOptimizer keeps a user's schedule current by applying disruptions
// from a priority queue one at a time. A single worker goroutine drains the
// queue, so observers always see results in application order.
type RealTimeOptimizer struct {
	userID    primitive.ObjectID
	settings  users.SchedulingSettings
	placement *PlacementEngine
	locker    locking.LockerInterface
	logger    logger.Interface

	mutex      sync.Mutex
	tasks      Tasks
	events     calendar.Events
	queue      disruptionQueue
	sequence   uint64
	state      ProcessState
	lastResult *OptimizationResult
	observers  []ResultObserver

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRealTimeOptimizer builds an optimizer in the idle state. Start has to be
// called before submitted disruptions get processed.
func NewRealTimeOptimizer(userID primitive.ObjectID, settings users.SchedulingSettings, placement *PlacementEngine, locker locking.LockerInterface, log logger.Interface) *RealTimeOptimizer {
	return &RealTimeOptimizer{
		userID:    userID,
		settings:  settings,
		placement: placement,
		locker:    locker,
		logger:    log,
		state:     StateIdle,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the worker goroutine
func (o *RealTimeOptimizer) Start() {
	go o.run()
}

// Stop shuts the worker down. Queued disruptions stay in the queue.
func (o *RealTimeOptimizer) Stop() {
	o.once.Do(func() {
		close(o.done)
	})
}

// SetWorkingSet replaces the task list and busy events the optimizer plans
// against
func (o *RealTimeOptimizer) SetWorkingSet(tasks Tasks, events calendar.Events) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.tasks = tasks.Clone()
	o.events = append(calendar.Events{}, events...)
}

// ReplaceTasks swaps the task working set while keeping the events
func (o *RealTimeOptimizer) ReplaceTasks(tasks Tasks) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.tasks = tasks.Clone()
}

// Subscribe registers an observer for schedule updates
func (o *RealTimeOptimizer) Subscribe(observer ResultObserver) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.observers = append(o.observers, observer)
}

// Unsubscribe removes a previously registered observer
func (o *RealTimeOptimizer) Unsubscribe(observer ResultObserver) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	for i, registered := range o.observers {
		if registered == observer {
			o.observers = append(o.observers[:i], o.observers[i+1:]...)
			return
		}
	}
}

// Submit validates a disruption and enqueues it. The worker picks it up by
// priority rank, FIFO within a rank.
func (o *RealTimeOptimizer) Submit(disruption Disruption) error {
	if err := disruption.Validate(); err != nil {
		return err
	}

	o.mutex.Lock()
	o.sequence++
	disruption.sequence = o.sequence
	disruption.SubmittedAt = now()
	disruption.State = DisruptionQueued
	heap.Push(&o.queue, &disruption)
	o.mutex.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}

	return nil
}

// ClearQueue drops all pending disruptions without applying them
func (o *RealTimeOptimizer) ClearQueue() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.queue = nil
}

// QueueLength reports how many disruptions are waiting
func (o *RealTimeOptimizer) QueueLength() int {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.queue.Len()
}

// State reports whether the optimizer is idle or mid reoptimization
func (o *RealTimeOptimizer) State() ProcessState {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.state
}

// CurrentSchedule returns the last successfully applied result, nil before
// the first optimization
func (o *RealTimeOptimizer) CurrentSchedule() *OptimizationResult {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.lastResult
}

// Optimize runs a full pass over the current working set without consuming
// the queue. Used for the initial schedule and manual refreshes.
func (o *RealTimeOptimizer) Optimize(ctx context.Context) (*OptimizationResult, error) {
	lock, err := o.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer func() {
			if err := lock.Release(ctx); err != nil {
				o.logger.Error("problem releasing optimization lock", err)
			}
		}()
	}

	o.mutex.Lock()
	tasks := o.tasks.Clone()
	events := append(calendar.Events{}, o.events...)
	o.mutex.Unlock()

	result, err := o.optimizeSnapshot(tasks, events)
	if err != nil {
		return nil, err
	}

	o.commit(tasks, events, result)
	o.publish(result)

	return result, nil
}

func (o *RealTimeOptimizer) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
			o.drain()
		}
	}
}

// drain applies queued disruptions until the queue is empty. A failing
// disruption is logged and skipped, later ones still get applied.
func (o *RealTimeOptimizer) drain() {
	for {
		o.mutex.Lock()
		if o.queue.Len() == 0 {
			o.state = StateIdle
			o.mutex.Unlock()
			return
		}

		o.state = StateOptimizing
		disruption := heap.Pop(&o.queue).(*Disruption)
		o.mutex.Unlock()

		disruption.State = DisruptionProcessing

		result, err := o.process(disruption)
		if err != nil {
			disruption.State = DisruptionFailed
			o.logger.Error(fmt.Sprintf("could not apply %s disruption", disruption.Kind), err)
			continue
		}

		disruption.State = DisruptionApplied
		o.publish(result)
	}
}

// process applies one disruption to a snapshot of the working set and swaps
// the snapshot in only when the full reoptimization succeeded
func (o *RealTimeOptimizer) process(disruption *Disruption) (result *OptimizationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("disruption handler panicked: %v", r)
		}
	}()

	ctx := context.Background()

	lock, err := o.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				o.logger.Error("problem releasing optimization lock", releaseErr)
			}
		}()
	}

	o.mutex.Lock()
	tasks := o.tasks.Clone()
	events := append(calendar.Events{}, o.events...)
	o.mutex.Unlock()

	tasks, events, changed, err := o.apply(disruption, tasks, events)
	if err != nil {
		return nil, err
	}

	if !changed {
		o.mutex.Lock()
		result = o.lastResult
		o.mutex.Unlock()

		if result != nil {
			return result, nil
		}
	}

	result, err = o.optimizeSnapshot(tasks, events)
	if err != nil {
		return nil, err
	}

	o.commit(tasks, events, result)

	return result, nil
}

// apply mutates the snapshot according to the disruption kind. The changed
// flag is false when the disruption turned out to be a no-op, e.g. completing
// an already removed task.
func (o *RealTimeOptimizer) apply(disruption *Disruption, tasks Tasks, events calendar.Events) (Tasks, calendar.Events, bool, error) {
	switch disruption.Kind {
	case DisruptionTaskCompleted:
		index, _ := tasks.FindByID(disruption.TaskID)
		if index < 0 {
			return tasks, events, false, nil
		}

		tasks = tasks.RemoveByIndex(index)
		return tasks, events, true, nil

	case DisruptionTaskMissed:
		index, task := tasks.FindByID(disruption.TaskID)
		if index < 0 {
			return tasks, events, false, nil
		}

		task.Priority = task.Priority.Escalate()
		task.ScheduledAt = nil
		tasks[index] = *task
		return tasks, events, true, nil

	case DisruptionTaskOverrun:
		index, task := tasks.FindByID(disruption.TaskID)
		if index < 0 {
			return tasks, events, false, nil
		}

		task.EstimatedMinutes += disruption.OverrunMinutes
		task.ScheduledAt = nil
		tasks[index] = *task
		return tasks, events, true, nil

	case DisruptionUrgentTaskAdded:
		task := *disruption.Task
		task.Priority = PriorityASAP
		if task.ID.IsZero() {
			task.ID = primitive.NewObjectID()
		}
		if task.Status == "" {
			task.Status = StatusToDo
		}
		if err := task.Validate(); err != nil {
			return tasks, events, false, err
		}

		tasks = append(tasks, task)
		return tasks, events, true, nil

	case DisruptionMeetingAdded:
		event := *disruption.Event
		event.Busy = true
		events = append(events, event)
		return tasks, events, true, nil
	}

	return tasks, events, false, errors.Errorf("unknown disruption kind %s", disruption.Kind)
}

// validateSettings guards slot generation against settings that can never
// produce a slot
func validateSettings(settings *users.SchedulingSettings) error {
	if settings.Granularity <= 0 {
		return &InvalidConfigurationError{Message: "granularity must be positive"}
	}

	if settings.HorizonDays <= 0 {
		return &InvalidConfigurationError{Message: "horizon must cover at least one day"}
	}

	return nil
}

// optimizeSnapshot runs slot generation and placement against a snapshot
func (o *RealTimeOptimizer) optimizeSnapshot(tasks Tasks, events calendar.Events) (*OptimizationResult, error) {
	o.mutex.Lock()
	settings := o.settings
	o.mutex.Unlock()

	if err := validateSettings(&settings); err != nil {
		return nil, err
	}

	slots := GenerateSlots(settings.WorkingHours, events, now(), settings.HorizonDays, settings.Granularity, settings.BusyPadding)

	open := Tasks{}
	for _, task := range tasks {
		if task.Status == StatusDone {
			continue
		}

		open = append(open, task)
	}

	result, err := o.placement.Place(open, slots, &settings, now())
	if err != nil {
		return nil, err
	}

	result.UserID = o.userID

	return result, nil
}

// commit swaps the reoptimized snapshot in and stamps scheduled times back
// onto the tasks
func (o *RealTimeOptimizer) commit(tasks Tasks, events calendar.Events, result *OptimizationResult) {
	scheduled := map[primitive.ObjectID]ScheduledTask{}
	for _, entry := range result.Scheduled {
		if !entry.ChunkOf.IsZero() {
			continue
		}

		scheduled[entry.Task.ID] = entry
	}

	for index := range tasks {
		entry, ok := scheduled[tasks[index].ID]
		if !ok {
			continue
		}

		window := entry.ScheduledAt
		tasks[index].ScheduledAt = &window
	}

	o.mutex.Lock()
	o.tasks = tasks
	o.events = events
	o.lastResult = result
	o.mutex.Unlock()
}

// publish tells every observer about the new result, synchronously and in
// subscription order
func (o *RealTimeOptimizer) publish(result *OptimizationResult) {
	o.mutex.Lock()
	observers := append([]ResultObserver{}, o.observers...)
	o.mutex.Unlock()

	for _, observer := range observers {
		observer.OnScheduleUpdated(result)
	}
}

func (o *RealTimeOptimizer) acquireLock(ctx context.Context) (locking.LockInterface, error) {
	if o.locker == nil {
		return nil, nil
	}

	lock, err := o.locker.Acquire(ctx, fmt.Sprintf("optimization-%s", o.userID.Hex()), optimizationLockTTL, false)
	if err != nil {
		return nil, errors.Wrap(err, "could not acquire optimization lock")
	}

	return lock, nil
}
