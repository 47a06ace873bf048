package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/clarence1979/teacherscheduler/pkg/communication"
	"github.com/clarence1979/teacherscheduler/pkg/email"
	"github.com/clarence1979/teacherscheduler/pkg/environment"
	"github.com/clarence1979/teacherscheduler/pkg/locking"
	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/notifications"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling/booking"
	"github.com/clarence1979/teacherscheduler/pkg/users"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	environment.Initialize()

	var logging logger.Interface = logger.Logger{}
	fmt.Println("Server is starting up...")

	client, err := mongo.NewClient(options.Client().ApplyURI(environment.Global.DatabaseUrl))
	if err != nil {
		log.Fatal(err)
	}

	var ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = client.Connect(ctx)
	if err != nil {
		log.Panic(err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		log.Panic(err)
	}

	defer func() {
		err := client.Disconnect(ctx)
		if err != nil {
			logging.Fatal(err)
		}
	}()

	fmt.Println("Database connected")

	db := client.Database(environment.Global.Database)

	userCollection := db.Collection("Users")
	taskCollection := db.Collection("Tasks")
	linkCollection := db.Collection("BookingLinks")
	meetingCollection := db.Collection("Meetings")

	var locker locking.LockerInterface
	var userCache scheduling.UserDataCacheInterface

	if environment.Global.Redis != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     environment.Global.Redis,
			Password: environment.Global.RedisPassword,
		})

		err = redisClient.Ping(ctx).Err()
		if err != nil {
			log.Panic(err)
		}

		locker = locking.NewLockerRedis(redisClient)
		userCache, err = scheduling.NewUserCacheRedis(redisClient)
		if err != nil {
			log.Panic(err)
		}

		fmt.Println("Redis connected")
	} else {
		locker = locking.NewLockerMemory()
		userCache, err = scheduling.NewUserCacheMemory()
		if err != nil {
			log.Panic(err)
		}
	}

	responseManager := communication.ResponseManager{Logger: logging}

	var userRepository users.UserRepositoryInterface = users.UserRepository{DB: userCollection, Logger: logging}
	var taskRepository scheduling.TaskRepositoryInterface = scheduling.TaskRepository{DB: taskCollection, Logger: logging}
	var linkRepository booking.BookingLinkRepositoryInterface = booking.BookingLinkRepository{DB: linkCollection, Logger: logging}
	var meetingRepository booking.MeetingRepositoryInterface = booking.MeetingRepository{DB: meetingCollection, Logger: logging}

	engineManager := scheduling.NewEngineManager(userRepository, taskRepository, userCache, locker, logging)
	defer engineManager.Shutdown()

	if environment.Global.Firebase != "" {
		notificationController := notifications.NewNotificationController(logging, userRepository)
		engineManager.RegisterObserver(&notificationController)
	}

	var mailer email.Mailer
	if environment.Global.Sendinblue != "" {
		mailer = email.NewSendInBlueService(environment.Global.Sendinblue)
		digest := email.UnscheduledDigest{Mailer: mailer, UserRepository: userRepository, Logger: logging}
		engineManager.RegisterObserver(&digest)
	}

	taskHandler := scheduling.Handler{
		TaskRepository:  taskRepository,
		UserRepository:  userRepository,
		EngineManager:   engineManager,
		Logger:          logging,
		ResponseManager: &responseManager,
	}

	bookingHandler := booking.Handler{
		LinkRepository:    linkRepository,
		MeetingRepository: meetingRepository,
		CalendarAccess:    engineManager,
		Locker:            locker,
		Logger:            logging,
		ResponseManager:   &responseManager,
		Mailer:            mailer,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)

		_, err := fmt.Fprint(writer, "Welcome to the API! ✔")
		if err != nil {
			log.Printf("Error: %v\n", err)
		}
	})

	r.HandleFunc("/v1/users/{userID}/tasks", taskHandler.TaskAdd).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{userID}/tasks", taskHandler.GetAllTasks).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{userID}/tasks/{taskID}", taskHandler.TaskDelete).Methods(http.MethodDelete)
	r.HandleFunc("/v1/users/{userID}/tasks/{taskID}/done", taskHandler.TaskDone).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{userID}/tasks/{taskID}/missed", taskHandler.TaskMissed).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{userID}/tasks/{taskID}/overrun", taskHandler.TaskOverrun).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{userID}/schedule", taskHandler.GetSchedule).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{userID}/disruptions", taskHandler.ClearDisruptions).Methods(http.MethodDelete)

	r.HandleFunc("/v1/users/{userID}/booking-links", bookingHandler.LinkAdd).Methods(http.MethodPost)
	r.HandleFunc("/v1/bookings/{linkKey}/slots", bookingHandler.LinkSlots).Methods(http.MethodGet)
	r.HandleFunc("/v1/bookings/{linkKey}/meetings", bookingHandler.MeetingsForLink).Methods(http.MethodGet)
	r.HandleFunc("/v1/bookings/{linkKey}", bookingHandler.Book).Methods(http.MethodPost)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	})

	http.Handle("/", r)

	port := environment.Global.Port
	if port == "" {
		port = "80"
	}

	log.Panic(http.ListenAndServe(":"+port, r))
}
