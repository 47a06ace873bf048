package scheduling

import (
	"context"
	"sync"

	"github.com/clarence1979/teacherscheduler/pkg/date"
	"github.com/clarence1979/teacherscheduler/pkg/locking"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/calendar"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EngineManager owns one RealTimeOptimizer per user. It loads the user's
// tasks and calendar into the optimizer's working set on first access and
// keeps the optimizer alive for later disruptions.
type EngineManager struct {
	userRepository users.UserRepositoryInterface
	taskRepository TaskRepositoryInterface
	userCache      UserDataCacheInterface
	locker         locking.LockerInterface
	logger         logger.Interface

	mutex      sync.Mutex
	optimizers map[string]*RealTimeOptimizer
	observers  []ResultObserver
}

// NewEngineManager builds an EngineManager without any live optimizers
func NewEngineManager(userRepository users.UserRepositoryInterface, taskRepository TaskRepositoryInterface, userCache UserDataCacheInterface, locker locking.LockerInterface, log logger.Interface) *EngineManager {
	return &EngineManager{
		userRepository: userRepository,
		taskRepository: taskRepository,
		userCache:      userCache,
		locker:         locker,
		logger:         log,
		optimizers:     map[string]*RealTimeOptimizer{},
	}
}

// RegisterObserver subscribes an observer to every current and future
// optimizer
func (m *EngineManager) RegisterObserver(observer ResultObserver) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.observers = append(m.observers, observer)
	for _, optimizer := range m.optimizers {
		optimizer.Subscribe(observer)
	}
}

// OptimizerFor returns the user's running optimizer, creating and priming it
// on first access
func (m *EngineManager) OptimizerFor(ctx context.Context, userID primitive.ObjectID) (*RealTimeOptimizer, error) {
	m.mutex.Lock()
	if optimizer, ok := m.optimizers[userID.Hex()]; ok {
		m.mutex.Unlock()
		return optimizer, nil
	}
	m.mutex.Unlock()

	entry, err := m.userData(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings := normalizedSettings(entry.User.Settings.Scheduling)

	tasks, err := m.taskRepository.FindOpen(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "could not load tasks")
	}

	horizon := date.Timespan{Start: now(), End: now().AddDate(0, 0, settings.HorizonDays)}
	events, err := entry.CalendarRepository.FetchBusyTimes(ctx, horizon)
	if err != nil {
		return nil, errors.Wrap(err, "could not load busy times")
	}

	optimizer := NewRealTimeOptimizer(userID, settings, NewPlacementEngine(m.logger), m.locker, m.logger)
	optimizer.SetWorkingSet(tasks, events)

	m.mutex.Lock()
	if existing, ok := m.optimizers[userID.Hex()]; ok {
		m.mutex.Unlock()
		return existing, nil
	}

	for _, observer := range m.observers {
		optimizer.Subscribe(observer)
	}
	m.optimizers[userID.Hex()] = optimizer
	m.mutex.Unlock()

	optimizer.Start()

	return optimizer, nil
}

// normalizedSettings fills unset persisted fields with defaults, so a user
// record from an older app version cannot stall the optimizer
func normalizedSettings(settings users.SchedulingSettings) users.SchedulingSettings {
	defaults := users.DefaultSchedulingSettings()

	if len(settings.WorkingHours) == 0 {
		return defaults
	}

	if settings.Granularity <= 0 {
		settings.Granularity = defaults.Granularity
	}
	if settings.HorizonDays <= 0 {
		settings.HorizonDays = defaults.HorizonDays
	}
	if settings.BusyPadding < 0 {
		settings.BusyPadding = defaults.BusyPadding
	}

	return settings
}

// CalendarRepositoryFor returns the calendar access of a user, used by the
// booking layer to commit meeting events
func (m *EngineManager) CalendarRepositoryFor(ctx context.Context, userID primitive.ObjectID) (calendar.RepositoryInterface, *users.User, error) {
	entry, err := m.userData(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	return entry.CalendarRepository, entry.User, nil
}

// MeetingBooked feeds a freshly booked meeting event into the owner's
// disruption queue so the task schedule flows around it
func (m *EngineManager) MeetingBooked(ctx context.Context, userID primitive.ObjectID, event *calendar.Event) error {
	optimizer, err := m.OptimizerFor(ctx, userID)
	if err != nil {
		return err
	}

	return optimizer.Submit(Disruption{
		Kind:     DisruptionMeetingAdded,
		Priority: DisruptionPriorityHigh,
		Event:    event,
	})
}

// Shutdown stops every running optimizer
func (m *EngineManager) Shutdown() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, optimizer := range m.optimizers {
		optimizer.Stop()
	}
	m.optimizers = map[string]*RealTimeOptimizer{}
}

// userData loads the user and their calendar access, through the cache when
// possible
func (m *EngineManager) userData(ctx context.Context, userID primitive.ObjectID) (*UserDataCacheEntry, error) {
	entry, err := m.userCache.Get(ctx, userID.Hex())
	if err == nil {
		return entry, nil
	}

	user, err := m.userRepository.FindByID(ctx, userID.Hex())
	if err != nil {
		return nil, errors.Wrap(err, "could not find user")
	}

	var calendarRepository calendar.RepositoryInterface
	if user.GoogleCalendarConnection.IsActive {
		calendarRepository, err = calendar.NewGoogleCalendarRepository(ctx, user, m.logger)
		if err != nil {
			return nil, errors.Wrap(err, "could not connect to calendar")
		}
	} else {
		calendarRepository = calendar.NewMockCalendarRepository()
	}

	entry = &UserDataCacheEntry{
		CalendarRepository: calendarRepository,
		User:               user,
	}

	err = m.userCache.Add(ctx, userID.Hex(), entry)
	if err != nil {
		m.logger.Warning("could not cache user data", err)
	}

	return entry, nil
}
