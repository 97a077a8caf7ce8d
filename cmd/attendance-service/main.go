package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/gymflow/gymflow-backend/internal/attendance/consumers"
	"github.com/gymflow/gymflow-backend/internal/attendance/engine"
	"github.com/gymflow/gymflow-backend/internal/attendance/events"
	"github.com/gymflow/gymflow-backend/internal/attendance/guard"
	"github.com/gymflow/gymflow-backend/internal/attendance/handler"
	"github.com/gymflow/gymflow-backend/internal/attendance/repository"
	"github.com/gymflow/gymflow-backend/internal/attendance/service"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/config"
	"github.com/gymflow/gymflow-backend/pkg/database"
	"github.com/gymflow/gymflow-backend/pkg/httputil"
	"github.com/gymflow/gymflow-backend/pkg/i18n"
	"github.com/gymflow/gymflow-backend/pkg/logger"
	"github.com/gymflow/gymflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("attendance-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("attendance-service", cfg.Server.Environment).SetLevel(cfg.Server.LogLevel)
	log.Info().Msg("starting Attendance Service")

	loc, err := cfg.Attendance.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid attendance timezone")
	}

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	// Initialize stores
	liveOpts := store.LiveOptions{
		CacheSize:    cfg.Attendance.SnapshotCacheSize,
		QueryTimeout: cfg.Attendance.QueryTimeout,
	}
	schedules, err := store.NewLiveSchedules(repository.NewScheduleRepository(db), liveOpts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create schedule store")
	}
	attendance, err := store.NewLiveEvents(repository.NewAttendanceRepository(db), liveOpts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create attendance store")
	}

	eng := engine.New(schedules, attendance, log)
	agg := stats.New(eng, log)

	// Replicas share the database; change events keep their caches coherent
	instance := uuid.NewString()

	var publisher *events.AttendanceEventPublisher
	rabbitStatus := func() map[string]string { return map[string]string{"status": "disabled"} }

	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()
		rabbitStatus = rmq.Health

		publisher, err = events.NewAttendanceEventPublisher(rmq, instance, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}

		changeConsumer, err := consumers.NewAttendanceEventConsumer(rmq, consumers.NewChangeHandler(schedules, attendance, instance, log), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create attendance event consumer")
		}
		if err := changeConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start attendance event consumer")
		}
	} else {
		log.Warn().Msg("RabbitMQ disabled, change events are not published")
		publisher = events.NewWithSink(messaging.Discard{Logger: log}, instance, log)
	}

	// Initialize services
	scheduleService := service.NewScheduleService(guard.New(schedules, attendance, log), schedules, publisher, log)
	attendanceService := service.NewAttendanceService(attendance, publisher, loc, log)

	// Initialize handlers
	scheduleHandler := handler.NewScheduleHandler(scheduleService, log)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService, log)
	statisticsHandler := handler.NewStatisticsHandler(eng, agg, handler.StatisticsOptions{
		DefaultWindow: cfg.Attendance.DefaultWindow,
		LiveBuffer:    cfg.Attendance.LiveBuffer,
		MaxWindowDays: cfg.Attendance.MaxWindowDays,
		Location:      loc,
	}, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "Accept-Language", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "attendance-service",
			"instance": instance,
			"database": db.Health(r.Context()),
			"rabbitmq": rabbitStatus(),
		})
	})

	r.Route("/api/v1/attendance", handler.Routes(scheduleHandler, attendanceHandler, statisticsHandler))

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		// live streams end when ctx is cancelled
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Str("instance", instance).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop consumers and live streams
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
