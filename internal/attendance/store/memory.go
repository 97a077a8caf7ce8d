package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/pkg/errors"
)

// ============================================================================
// Schedules
// ============================================================================

// MemorySchedules is an in-memory ScheduleStore. Writes and deliveries are
// serialised, so listeners observe snapshots in commit order.
type MemorySchedules struct {
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	byID      map[string]domain.ScheduleRecord
	byKey     map[domain.Key]string
	listeners *registry[func(domain.Date, []domain.ScheduleRecord)]
	now       func() time.Time
}

// NewMemorySchedules creates an empty schedule store
func NewMemorySchedules() *MemorySchedules {
	return &MemorySchedules{
		byID:      make(map[string]domain.ScheduleRecord),
		byKey:     make(map[domain.Key]string),
		listeners: newRegistry[func(domain.Date, []domain.ScheduleRecord)](),
		now:       time.Now,
	}
}

// WithClock replaces the clock used for created/updated timestamps
func (s *MemorySchedules) WithClock(now func() time.Time) *MemorySchedules {
	s.now = now
	return s
}

// Get returns the schedule of (employeeID, date), or nil
func (s *MemorySchedules) Get(_ context.Context, employeeID string, date domain.Date) (*domain.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[domain.Key{EmployeeID: employeeID, Date: date}]
	if !ok {
		return nil, nil
	}
	rec := s.byID[id]
	return &rec, nil
}

// GetByID returns the schedule with id
func (s *MemorySchedules) GetByID(_ context.Context, id string) (*domain.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFound("schedule")
	}
	return &rec, nil
}

// Upsert stores record and writes the assigned ID and timestamps back into it
func (s *MemorySchedules) Upsert(_ context.Context, record *domain.ScheduleRecord) (string, error) {
	if err := record.Validate(); err != nil {
		return "", errors.BadRequest(err.Error())
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	affected, err := s.write(record)
	if err != nil {
		return "", err
	}

	for _, date := range affected {
		s.deliver(date)
	}
	return record.ID, nil
}

func (s *MemorySchedules) write(record *domain.ScheduleRecord) ([]domain.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	key := record.Key()
	stored := *record
	affected := []domain.Date{record.Date}

	switch {
	case record.ID != "":
		existing, ok := s.byID[record.ID]
		if !ok {
			return nil, errors.NotFound("schedule")
		}
		if other, taken := s.byKey[key]; taken && other != record.ID {
			return nil, errors.Conflict("the employee already has a schedule on this date")
		}
		delete(s.byKey, existing.Key())
		stored.CreatedAt = existing.CreatedAt
		if existing.Date != record.Date {
			affected = append(affected, existing.Date)
		}
	default:
		if id, ok := s.byKey[key]; ok {
			stored.ID = id
			stored.CreatedAt = s.byID[id].CreatedAt
		} else {
			stored.ID = uuid.New().String()
			stored.CreatedAt = now
		}
	}

	stored.UpdatedAt = now
	s.byID[stored.ID] = stored
	s.byKey[key] = stored.ID
	*record = stored

	return affected, nil
}

// Delete removes the schedule with id
func (s *MemorySchedules) Delete(_ context.Context, id string) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	rec, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		delete(s.byKey, rec.Key())
	}
	s.mu.Unlock()

	if !ok {
		return errors.NotFound("schedule")
	}

	s.deliver(rec.Date)
	return nil
}

// ListByDate returns the schedules of date ordered by start time
func (s *MemorySchedules) ListByDate(_ context.Context, date domain.Date) ([]domain.ScheduleRecord, error) {
	return s.snapshot(date), nil
}

// ListByEmployee returns an employee's schedules before the cursor, newest date first
func (s *MemorySchedules) ListByEmployee(_ context.Context, employeeID string, before domain.Date, limit int) ([]domain.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ScheduleRecord
	for _, rec := range s.byID {
		if rec.EmployeeID != employeeID {
			continue
		}
		if before.IsZero() || rec.Date.Before(before) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SubscribeByDate delivers the current schedules of date and every later change
func (s *MemorySchedules) SubscribeByDate(date domain.Date, onChange ScheduleListener, onError ErrorListener) Unsubscribe {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	l := s.listeners.add(date, onChange, onError)
	onChange(date, s.snapshot(date))
	return s.listeners.unsubscriber(date, l.id)
}

// Fail reports err to every subscriber of date, simulating a broken listener
func (s *MemorySchedules) Fail(date domain.Date, err error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listeners.fail(date, err)
}

// SubscriberCount returns the number of open subscriptions on date
func (s *MemorySchedules) SubscriberCount(date domain.Date) int {
	return s.listeners.count(date)
}

// TotalSubscribers returns the number of open subscriptions on all dates
func (s *MemorySchedules) TotalSubscribers() int {
	return s.listeners.total()
}

func (s *MemorySchedules) snapshot(date domain.Date) []domain.ScheduleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.ScheduleRecord{}
	for _, rec := range s.byID {
		if rec.Date == date {
			out = append(out, rec)
		}
	}
	sortSchedules(out)
	return out
}

// deliver must be called with notifyMu held
func (s *MemorySchedules) deliver(date domain.Date) {
	records := s.snapshot(date)
	for _, l := range s.listeners.listeners(date) {
		if s.listeners.has(date, l.id) {
			l.onChange(date, append([]domain.ScheduleRecord(nil), records...))
		}
	}
}

func sortSchedules(records []domain.ScheduleRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].StartTime != records[j].StartTime {
			return records[i].StartTime < records[j].StartTime
		}
		return records[i].EmployeeID < records[j].EmployeeID
	})
}

// ============================================================================
// Attendance events
// ============================================================================

// MemoryEvents is an in-memory AttendanceStore
type MemoryEvents struct {
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	byDate    map[domain.Date][]domain.AttendanceEvent
	listeners *registry[func(domain.Date, []domain.AttendanceEvent)]
	now       func() time.Time
}

// NewMemoryEvents creates an empty event store
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{
		byDate:    make(map[domain.Date][]domain.AttendanceEvent),
		listeners: newRegistry[func(domain.Date, []domain.AttendanceEvent)](),
		now:       time.Now,
	}
}

// WithClock replaces the clock used for created timestamps
func (s *MemoryEvents) WithClock(now func() time.Time) *MemoryEvents {
	s.now = now
	return s
}

// Record appends event and writes the assigned ID back into it
func (s *MemoryEvents) Record(_ context.Context, event *domain.AttendanceEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", errors.BadRequest(err.Error())
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.CreatedAt = s.now().UTC()
	s.byDate[stored.Date] = append(s.byDate[stored.Date], stored)
	*event = stored
	s.mu.Unlock()

	s.deliver(stored.Date)
	return stored.ID, nil
}

// ListByKey returns the events of one employee on date ordered by timestamp
func (s *MemoryEvents) ListByKey(_ context.Context, employeeID string, date domain.Date) ([]domain.AttendanceEvent, error) {
	var out []domain.AttendanceEvent
	for _, ev := range s.snapshot(date) {
		if ev.EmployeeID == employeeID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ListByDate returns the events of date ordered by timestamp
func (s *MemoryEvents) ListByDate(_ context.Context, date domain.Date) ([]domain.AttendanceEvent, error) {
	return s.snapshot(date), nil
}

// SubscribeByDate delivers the current events of date and every later change
func (s *MemoryEvents) SubscribeByDate(date domain.Date, onChange EventListener, onError ErrorListener) Unsubscribe {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	l := s.listeners.add(date, onChange, onError)
	onChange(date, s.snapshot(date))
	return s.listeners.unsubscriber(date, l.id)
}

// Fail reports err to every subscriber of date
func (s *MemoryEvents) Fail(date domain.Date, err error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listeners.fail(date, err)
}

// SubscriberCount returns the number of open subscriptions on date
func (s *MemoryEvents) SubscriberCount(date domain.Date) int {
	return s.listeners.count(date)
}

// TotalSubscribers returns the number of open subscriptions on all dates
func (s *MemoryEvents) TotalSubscribers() int {
	return s.listeners.total()
}

func (s *MemoryEvents) snapshot(date domain.Date) []domain.AttendanceEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]domain.AttendanceEvent{}, s.byDate[date]...)
	sortEvents(out)
	return out
}

func (s *MemoryEvents) deliver(date domain.Date) {
	events := s.snapshot(date)
	for _, l := range s.listeners.listeners(date) {
		if s.listeners.has(date, l.id) {
			l.onChange(date, append([]domain.AttendanceEvent(nil), events...))
		}
	}
}

func sortEvents(events []domain.AttendanceEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
}
