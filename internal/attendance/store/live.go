package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// ScheduleRepository is the persistence a LiveSchedules store reads and writes through
type ScheduleRepository interface {
	GetByKey(ctx context.Context, employeeID string, date domain.Date) (*domain.ScheduleRecord, error)
	GetByID(ctx context.Context, id string) (*domain.ScheduleRecord, error)
	Upsert(ctx context.Context, record *domain.ScheduleRecord) error
	Delete(ctx context.Context, id string) error
	ListByDate(ctx context.Context, date domain.Date) ([]domain.ScheduleRecord, error)
	ListByEmployee(ctx context.Context, employeeID string, before domain.Date, limit int) ([]domain.ScheduleRecord, error)
}

// EventRepository is the persistence a LiveEvents store reads and writes through
type EventRepository interface {
	Create(ctx context.Context, event *domain.AttendanceEvent) error
	ListByKey(ctx context.Context, employeeID string, date domain.Date) ([]domain.AttendanceEvent, error)
	ListByDate(ctx context.Context, date domain.Date) ([]domain.AttendanceEvent, error)
}

// LiveOptions tunes the SQL-backed stores
type LiveOptions struct {
	// CacheSize bounds the number of date snapshots kept per store
	CacheSize int
	// QueryTimeout bounds snapshot queries issued outside a request context
	QueryTimeout time.Duration
}

func (o LiveOptions) withDefaults() LiveOptions {
	if o.CacheSize <= 0 {
		o.CacheSize = 64
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 5 * time.Second
	}
	return o
}

// liveFeed turns a per-date query into snapshot subscriptions. Deliveries
// for one date are serialised by that date's mutex.
type liveFeed[T any] struct {
	name      string
	load      func(ctx context.Context, date domain.Date) ([]T, error)
	listeners *registry[func(domain.Date, []T)]
	cache     *lru.Cache[domain.Date, []T]
	locks     sync.Map
	timeout   time.Duration
	logger    *logger.Logger
}

func newLiveFeed[T any](name string, load func(context.Context, domain.Date) ([]T, error), opts LiveOptions, log *logger.Logger) (*liveFeed[T], error) {
	cache, err := lru.New[domain.Date, []T](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s snapshot cache: %w", name, err)
	}

	return &liveFeed[T]{
		name:      name,
		load:      load,
		listeners: newRegistry[func(domain.Date, []T)](),
		cache:     cache,
		timeout:   opts.QueryTimeout,
		logger:    log.WithComponent(name),
	}, nil
}

func (f *liveFeed[T]) lock(date domain.Date) *sync.Mutex {
	mu, _ := f.locks.LoadOrStore(date, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (f *liveFeed[T]) subscribe(date domain.Date, onChange func(domain.Date, []T), onError ErrorListener) Unsubscribe {
	mu := f.lock(date)
	mu.Lock()
	defer mu.Unlock()

	l := f.listeners.add(date, onChange, onError)
	unsubscribe := f.listeners.unsubscriber(date, l.id)

	if cached, ok := f.cache.Get(date); ok {
		onChange(date, clone(cached))
		return unsubscribe
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	records, err := f.load(ctx, date)
	if err != nil {
		f.logger.Error().Err(err).Str("date", date.String()).Msg("snapshot query failed")
		if onError != nil {
			onError(date, err)
		}
		return unsubscribe
	}

	f.cache.Add(date, records)
	onChange(date, clone(records))
	return unsubscribe
}

// refresh re-reads date and delivers the snapshot. Without listeners the
// cached snapshot is dropped instead, so the next subscriber re-queries.
func (f *liveFeed[T]) refresh(ctx context.Context, date domain.Date) error {
	mu := f.lock(date)
	mu.Lock()
	defer mu.Unlock()

	ls := f.listeners.listeners(date)
	if len(ls) == 0 {
		f.cache.Remove(date)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	records, err := f.load(ctx, date)
	if err != nil {
		f.cache.Remove(date)
		f.listeners.fail(date, err)
		return fmt.Errorf("failed to refresh %s for %s: %w", f.name, date, err)
	}

	f.cache.Add(date, records)
	for _, l := range ls {
		if f.listeners.has(date, l.id) {
			l.onChange(date, clone(records))
		}
	}
	return nil
}

func clone[T any](in []T) []T {
	return append(make([]T, 0, len(in)), in...)
}

// ============================================================================
// Schedules
// ============================================================================

// LiveSchedules is a ScheduleStore over a SQL repository. Local writes
// refresh the affected dates; writes made by other instances arrive through
// Refresh.
type LiveSchedules struct {
	repo   ScheduleRepository
	feed   *liveFeed[domain.ScheduleRecord]
	logger *logger.Logger
}

// NewLiveSchedules creates a live schedule store
func NewLiveSchedules(repo ScheduleRepository, opts LiveOptions, log *logger.Logger) (*LiveSchedules, error) {
	opts = opts.withDefaults()
	feed, err := newLiveFeed("schedule-store", repo.ListByDate, opts, log)
	if err != nil {
		return nil, err
	}
	return &LiveSchedules{repo: repo, feed: feed, logger: feed.logger}, nil
}

// Get returns the schedule of (employeeID, date), or nil
func (s *LiveSchedules) Get(ctx context.Context, employeeID string, date domain.Date) (*domain.ScheduleRecord, error) {
	rec, err := s.repo.GetByKey(ctx, employeeID, date)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// GetByID returns the schedule with id
func (s *LiveSchedules) GetByID(ctx context.Context, id string) (*domain.ScheduleRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// Upsert stores record and refreshes its date, and its previous date when it moved
func (s *LiveSchedules) Upsert(ctx context.Context, record *domain.ScheduleRecord) (string, error) {
	var previous *domain.Date
	if record.ID != "" {
		existing, err := s.repo.GetByID(ctx, record.ID)
		if err != nil {
			return "", err
		}
		if existing.Date != record.Date {
			previous = &existing.Date
		}
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return "", err
	}

	s.refreshAfterWrite(ctx, record.Date)
	if previous != nil {
		s.refreshAfterWrite(ctx, *previous)
	}
	return record.ID, nil
}

// Delete removes the schedule with id and refreshes its date
func (s *LiveSchedules) Delete(ctx context.Context, id string) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx, existing.Date)
	return nil
}

// ListByDate reads the schedules of date
func (s *LiveSchedules) ListByDate(ctx context.Context, date domain.Date) ([]domain.ScheduleRecord, error) {
	return s.repo.ListByDate(ctx, date)
}

// ListByEmployee reads an employee's schedules, newest date first
func (s *LiveSchedules) ListByEmployee(ctx context.Context, employeeID string, before domain.Date, limit int) ([]domain.ScheduleRecord, error) {
	return s.repo.ListByEmployee(ctx, employeeID, before, limit)
}

// SubscribeByDate delivers the current schedules of date and every later refresh
func (s *LiveSchedules) SubscribeByDate(date domain.Date, onChange ScheduleListener, onError ErrorListener) Unsubscribe {
	return s.feed.subscribe(date, onChange, onError)
}

// Refresh re-reads date and notifies its subscribers
func (s *LiveSchedules) Refresh(ctx context.Context, date domain.Date) error {
	return s.feed.refresh(ctx, date)
}

// SubscriberCount returns the number of open subscriptions on date
func (s *LiveSchedules) SubscriberCount(date domain.Date) int {
	return s.feed.listeners.count(date)
}

// TotalSubscribers returns the number of open subscriptions on all dates
func (s *LiveSchedules) TotalSubscribers() int {
	return s.feed.listeners.total()
}

// The write already committed, so a failed refresh is only logged.
func (s *LiveSchedules) refreshAfterWrite(ctx context.Context, date domain.Date) {
	if err := s.feed.refresh(ctx, date); err != nil {
		s.logger.Warn().Err(err).Str("date", date.String()).Msg("refresh after write failed")
	}
}

// ============================================================================
// Attendance events
// ============================================================================

// LiveEvents is an AttendanceStore over a SQL repository
type LiveEvents struct {
	repo   EventRepository
	feed   *liveFeed[domain.AttendanceEvent]
	logger *logger.Logger
}

// NewLiveEvents creates a live attendance event store
func NewLiveEvents(repo EventRepository, opts LiveOptions, log *logger.Logger) (*LiveEvents, error) {
	opts = opts.withDefaults()
	feed, err := newLiveFeed("event-store", repo.ListByDate, opts, log)
	if err != nil {
		return nil, err
	}
	return &LiveEvents{repo: repo, feed: feed, logger: feed.logger}, nil
}

// Record appends event and refreshes its date
func (s *LiveEvents) Record(ctx context.Context, event *domain.AttendanceEvent) (string, error) {
	if err := s.repo.Create(ctx, event); err != nil {
		return "", err
	}
	if err := s.feed.refresh(ctx, event.Date); err != nil {
		s.logger.Warn().Err(err).Str("date", event.Date.String()).Msg("refresh after write failed")
	}
	return event.ID, nil
}

// ListByKey reads the events of one employee on date, bypassing the cache
func (s *LiveEvents) ListByKey(ctx context.Context, employeeID string, date domain.Date) ([]domain.AttendanceEvent, error) {
	return s.repo.ListByKey(ctx, employeeID, date)
}

// ListByDate reads the events of date
func (s *LiveEvents) ListByDate(ctx context.Context, date domain.Date) ([]domain.AttendanceEvent, error) {
	return s.repo.ListByDate(ctx, date)
}

// SubscribeByDate delivers the current events of date and every later refresh
func (s *LiveEvents) SubscribeByDate(date domain.Date, onChange EventListener, onError ErrorListener) Unsubscribe {
	return s.feed.subscribe(date, onChange, onError)
}

// Refresh re-reads date and notifies its subscribers
func (s *LiveEvents) Refresh(ctx context.Context, date domain.Date) error {
	return s.feed.refresh(ctx, date)
}

// SubscriberCount returns the number of open subscriptions on date
func (s *LiveEvents) SubscriberCount(date domain.Date) int {
	return s.feed.listeners.count(date)
}

// TotalSubscribers returns the number of open subscriptions on all dates
func (s *LiveEvents) TotalSubscribers() int {
	return s.feed.listeners.total()
}
