package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/engine"
	"github.com/gymflow/gymflow-backend/internal/attendance/repository"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/config"
	"github.com/gymflow/gymflow-backend/pkg/database"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// Backend is what the commands run against
type Backend struct {
	// DB is nil for in-memory backends
	DB            *database.DB
	Schedules     store.ScheduleStore
	Events        store.AttendanceStore
	Engine        *engine.Engine
	Location      *time.Location
	DefaultWindow string
	MaxWindowDays int
	Logger        *logger.Logger
	closer        func() error
}

// NewBackend wires an engine over the given stores
func NewBackend(schedules store.ScheduleStore, events store.AttendanceStore, loc *time.Location, log *logger.Logger) *Backend {
	if loc == nil {
		loc = time.UTC
	}
	return &Backend{
		Schedules:     schedules,
		Events:        events,
		Engine:        engine.New(schedules, events, log),
		Location:      loc,
		DefaultWindow: "week",
		MaxWindowDays: domain.DefaultMaxWindowDays,
		Logger:        log,
	}
}

// Close releases the database, if any
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// Opener builds a Backend for one command run. Log output goes to stderr.
type Opener func(ctx context.Context, opts *RootOptions, stderr io.Writer) (*Backend, error)

// OpenFromConfig loads the attendancectl configuration and connects to its
// database. --db switches to a SQLite file.
func OpenFromConfig(ctx context.Context, opts *RootOptions, stderr io.Writer) (*Backend, error) {
	cfg, err := config.Load("attendancectl")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.DB != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = opts.DB
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(stderr, "attendancectl", "development").SetLevel(level)

	loc, err := cfg.Attendance.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b, err := NewSQLBackend(db, store.LiveOptions{
		CacheSize:    cfg.Attendance.SnapshotCacheSize,
		QueryTimeout: cfg.Attendance.QueryTimeout,
	}, loc, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	b.DefaultWindow = cfg.Attendance.DefaultWindow
	b.MaxWindowDays = cfg.Attendance.MaxWindowDays
	b.closer = db.Close
	return b, nil
}

// NewSQLBackend wires live stores over the repositories of db. Closing the
// backend does not close db.
func NewSQLBackend(db *database.DB, opts store.LiveOptions, loc *time.Location, log *logger.Logger) (*Backend, error) {
	schedules, err := store.NewLiveSchedules(repository.NewScheduleRepository(db), opts, log)
	if err != nil {
		return nil, err
	}
	events, err := store.NewLiveEvents(repository.NewAttendanceRepository(db), opts, log)
	if err != nil {
		return nil, err
	}

	b := NewBackend(schedules, events, loc, log)
	b.DB = db
	return b, nil
}
