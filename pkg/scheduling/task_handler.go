package scheduling

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clarence1979/teacherscheduler/pkg/communication"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Handler handles all task and schedule related API calls
type Handler struct {
	TaskRepository  TaskRepositoryInterface
	UserRepository  users.UserRepositoryInterface
	EngineManager   *EngineManager
	Logger          logger.Interface
	ResponseManager *communication.ResponseManager
}

// TaskAdd is the route for adding a task. ASAP tasks go through the live
// disruption queue, everything else triggers a plain reoptimization.
func (handler *Handler) TaskAdd(writer http.ResponseWriter, request *http.Request) {
	task := Task{}

	err := json.NewDecoder(request.Body).Decode(&task)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "Wrong format", err)
		return
	}

	userID, err := primitive.ObjectIDFromHex(mux.Vars(request)["userID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "UserID malformed", err)
		return
	}

	task.UserID = userID
	if task.Status == "" {
		task.Status = StatusToDo
	}

	err = task.Validate()
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "Invalid task", err)
		return
	}

	err = handler.TaskRepository.Add(request.Context(), &task)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Persisting task in database did not work", err)
		return
	}

	optimizer, err := handler.EngineManager.OptimizerFor(request.Context(), userID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem with calendar communication", err)
		return
	}

	if task.Priority == PriorityASAP {
		err = optimizer.Submit(Disruption{
			Kind:     DisruptionUrgentTaskAdded,
			Priority: DisruptionPriorityCritical,
			Task:     &task,
		})
		if err != nil {
			handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
				"Could not queue the new task", err)
			return
		}

		handler.ResponseManager.RespondWithStatus(writer, &task, http.StatusCreated)
		return
	}

	optimizer.ReplaceTasks(handler.openTasks(request, userID, optimizer))

	_, err = optimizer.Optimize(request.Context())
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Could not schedule the new task", err)
		return
	}

	handler.ResponseManager.RespondWithStatus(writer, &task, http.StatusCreated)
}

// GetAllTasks is the route for getting all tasks of a user
func (handler *Handler) GetAllTasks(writer http.ResponseWriter, request *http.Request) {
	userID, err := primitive.ObjectIDFromHex(mux.Vars(request)["userID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "UserID malformed", err)
		return
	}

	tasks, err := handler.TaskRepository.FindAll(request.Context(), userID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem while querying tasks", err)
		return
	}

	handler.ResponseManager.Respond(writer, tasks)
}

// GetSchedule is the route for the user's current schedule. It runs the
// initial optimization when there is none yet.
func (handler *Handler) GetSchedule(writer http.ResponseWriter, request *http.Request) {
	userID, err := primitive.ObjectIDFromHex(mux.Vars(request)["userID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "UserID malformed", err)
		return
	}

	optimizer, err := handler.EngineManager.OptimizerFor(request.Context(), userID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem with calendar communication", err)
		return
	}

	result := optimizer.CurrentSchedule()
	if result == nil {
		result, err = optimizer.Optimize(request.Context())
		if err != nil {
			handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
				"Could not compute a schedule", err)
			return
		}
	}

	handler.ResponseManager.Respond(writer, result)
}

// TaskDone is the route for marking a task as completed
func (handler *Handler) TaskDone(writer http.ResponseWriter, request *http.Request) {
	handler.submitTaskDisruption(writer, request, func(task *Task) Disruption {
		return Disruption{
			Kind:     DisruptionTaskCompleted,
			Priority: DisruptionPriorityMedium,
			TaskID:   task.ID,
		}
	}, func(task *Task) {
		task.Status = StatusDone
	})
}

// TaskMissed is the route for reporting that a scheduled task did not happen
func (handler *Handler) TaskMissed(writer http.ResponseWriter, request *http.Request) {
	handler.submitTaskDisruption(writer, request, func(task *Task) Disruption {
		return Disruption{
			Kind:     DisruptionTaskMissed,
			Priority: DisruptionPriorityHigh,
			TaskID:   task.ID,
		}
	}, func(task *Task) {
		task.Priority = task.Priority.Escalate()
		task.ScheduledAt = nil
	})
}

// TaskOverrun is the route for reporting that a task needs more time
func (handler *Handler) TaskOverrun(writer http.ResponseWriter, request *http.Request) {
	minutes, err := strconv.Atoi(request.URL.Query().Get("minutes"))
	if err != nil || minutes <= 0 {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest,
			"Overrun minutes missing or not positive", err)
		return
	}

	handler.submitTaskDisruption(writer, request, func(task *Task) Disruption {
		return Disruption{
			Kind:           DisruptionTaskOverrun,
			Priority:       DisruptionPriorityHigh,
			TaskID:         task.ID,
			OverrunMinutes: minutes,
		}
	}, func(task *Task) {
		task.EstimatedMinutes += minutes
		task.ScheduledAt = nil
	})
}

// TaskDelete is the route for deleting a task
func (handler *Handler) TaskDelete(writer http.ResponseWriter, request *http.Request) {
	vars := mux.Vars(request)

	userID, err := primitive.ObjectIDFromHex(vars["userID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "UserID malformed", err)
		return
	}

	taskID, err := primitive.ObjectIDFromHex(vars["taskID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "TaskID malformed", err)
		return
	}

	err = handler.TaskRepository.Delete(request.Context(), taskID, userID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusNotFound, "Couldn't find task", err)
		return
	}

	optimizer, err := handler.EngineManager.OptimizerFor(request.Context(), userID)
	if err == nil {
		err = optimizer.Submit(Disruption{
			Kind:     DisruptionTaskCompleted,
			Priority: DisruptionPriorityMedium,
			TaskID:   taskID,
		})
	}
	if err != nil {
		handler.Logger.Warning("could not reoptimize after task deletion", err)
	}

	handler.ResponseManager.RespondWithNoContent(writer)
}

// ClearDisruptions is the emergency stop route, it discards all queued
// disruptions of a user
func (handler *Handler) ClearDisruptions(writer http.ResponseWriter, request *http.Request) {
	userID, err := primitive.ObjectIDFromHex(mux.Vars(request)["userID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "UserID malformed", err)
		return
	}

	optimizer, err := handler.EngineManager.OptimizerFor(request.Context(), userID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem with calendar communication", err)
		return
	}

	optimizer.ClearQueue()
	handler.ResponseManager.RespondWithNoContent(writer)
}

// submitTaskDisruption loads the task, persists the state change and pushes
// the matching disruption into the user's queue
func (handler *Handler) submitTaskDisruption(writer http.ResponseWriter, request *http.Request, build func(*Task) Disruption, mutate func(*Task)) {
	vars := mux.Vars(request)

	userID, err := primitive.ObjectIDFromHex(vars["userID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "UserID malformed", err)
		return
	}

	taskID, err := primitive.ObjectIDFromHex(vars["taskID"])
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusBadRequest, "TaskID malformed", err)
		return
	}

	task, err := handler.TaskRepository.FindByID(request.Context(), taskID, userID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusNotFound, "Couldn't find task", err)
		return
	}

	mutate(task)
	err = handler.TaskRepository.Update(request.Context(), task)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Persisting task in database did not work", err)
		return
	}

	optimizer, err := handler.EngineManager.OptimizerFor(request.Context(), userID)
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Problem with calendar communication", err)
		return
	}

	err = optimizer.Submit(build(task))
	if err != nil {
		handler.ResponseManager.RespondWithError(writer, http.StatusInternalServerError,
			"Could not queue the schedule change", err)
		return
	}

	handler.ResponseManager.Respond(writer, task)
}

// openTasks reloads the user's open tasks, falling back to the optimizer's
// current working set when the query fails
func (handler *Handler) openTasks(request *http.Request, userID primitive.ObjectID, optimizer *RealTimeOptimizer) Tasks {
	tasks, err := handler.TaskRepository.FindOpen(request.Context(), userID)
	if err != nil {
		handler.Logger.Warning("could not reload tasks", err)

		optimizer.mutex.Lock()
		tasks = optimizer.tasks.Clone()
		optimizer.mutex.Unlock()
	}

	return tasks
}
