package engine

import (
	"sort"
	"sync"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// feed is the engine state of one date. mu serialises snapshot application
// and emission, which keeps per-key order equal to store delivery order.
type feed struct {
	date   domain.Date
	engine *Engine
	logger *logger.Logger

	mu        sync.Mutex
	schedules map[string]domain.ScheduleRecord
	events    map[string][]domain.AttendanceEvent
	statuses  map[string]domain.DailyAttendanceStatus

	consumersMu sync.Mutex
	consumers   map[uint64]Listener

	// guarded by engine.mu
	refs int

	relMu   sync.Mutex
	closed  bool
	release []store.Unsubscribe
}

func newFeed(e *Engine, date domain.Date) *feed {
	return &feed{
		date:      date,
		engine:    e,
		logger:    e.logger,
		schedules: make(map[string]domain.ScheduleRecord),
		events:    make(map[string][]domain.AttendanceEvent),
		statuses:  make(map[string]domain.DailyAttendanceStatus),
		consumers: make(map[uint64]Listener),
	}
}

// open subscribes to both stores. The stores deliver their initial snapshot
// before returning.
func (f *feed) open() {
	unsubSchedules := f.engine.schedules.SubscribeByDate(f.date, f.onSchedules, f.onError)
	unsubEvents := f.engine.events.SubscribeByDate(f.date, f.onEvents, f.onError)

	f.relMu.Lock()
	if f.closed {
		f.relMu.Unlock()
		unsubSchedules()
		unsubEvents()
		return
	}
	f.release = append(f.release, unsubSchedules, unsubEvents)
	f.relMu.Unlock()
}

func (f *feed) close() {
	f.relMu.Lock()
	f.closed = true
	release := f.release
	f.release = nil
	f.relMu.Unlock()

	for _, unsubscribe := range release {
		unsubscribe()
	}
}

// attach registers l and replays the statuses it has not seen
func (f *feed) attach(id uint64, l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.consumersMu.Lock()
	f.consumers[id] = l
	f.consumersMu.Unlock()

	replay := make([]domain.DailyAttendanceStatus, 0, len(f.statuses))
	for _, employeeID := range sortedKeys(f.statuses) {
		replay = append(replay, f.statuses[employeeID])
	}
	if len(replay) > 0 && l.OnChange != nil {
		l.OnChange(replay)
	}
}

func (f *feed) removeConsumer(id uint64) {
	f.consumersMu.Lock()
	defer f.consumersMu.Unlock()
	delete(f.consumers, id)
}

func (f *feed) status(employeeID string) domain.DailyAttendanceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.statuses[employeeID]; ok {
		return st
	}
	return domain.NotStarted(domain.Key{EmployeeID: employeeID, Date: f.date})
}

func (f *feed) onSchedules(date domain.Date, records []domain.ScheduleRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]domain.ScheduleRecord, len(records))
	for _, rec := range records {
		if rec.Date != f.date {
			f.logger.Error().
				Str("schedule_id", rec.ID).
				Str("date", f.date.String()).
				Str("record_date", rec.Date.String()).
				Msg("schedule delivered for the wrong date")
			continue
		}

		prev, dup := next[rec.EmployeeID]
		if dup {
			keep, drop := prev, rec
			if rec.UpdatedAt.After(prev.UpdatedAt) {
				keep, drop = rec, prev
			}
			f.logger.Error().
				Str("employee_id", rec.EmployeeID).
				Str("date", date.String()).
				Str("kept_id", keep.ID).
				Str("dropped_id", drop.ID).
				Msg("duplicate schedules for one key")
			rec = keep
		}
		next[rec.EmployeeID] = rec
	}

	changed := make(map[string]struct{})
	for employeeID, rec := range next {
		if prev, ok := f.schedules[employeeID]; !ok || !prev.Equal(rec) {
			changed[employeeID] = struct{}{}
		}
	}
	for employeeID := range f.schedules {
		if _, ok := next[employeeID]; !ok {
			changed[employeeID] = struct{}{}
		}
	}

	f.schedules = next
	f.recompute(changed)
}

func (f *feed) onEvents(_ domain.Date, events []domain.AttendanceEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string][]domain.AttendanceEvent)
	for _, ev := range events {
		if ev.Date != f.date {
			f.logger.Error().
				Str("event_id", ev.ID).
				Str("date", f.date.String()).
				Str("event_date", ev.Date.String()).
				Msg("attendance event delivered for the wrong date")
			continue
		}
		if !ev.Kind.Valid() {
			f.logger.Error().
				Str("event_id", ev.ID).
				Str("employee_id", ev.EmployeeID).
				Str("kind", string(ev.Kind)).
				Msg("skipping attendance event of unknown kind")
			continue
		}
		next[ev.EmployeeID] = append(next[ev.EmployeeID], ev)
	}

	changed := make(map[string]struct{})
	for employeeID, evs := range next {
		if !sameEvents(f.events[employeeID], evs) {
			changed[employeeID] = struct{}{}
		}
	}
	for employeeID := range f.events {
		if _, ok := next[employeeID]; !ok {
			changed[employeeID] = struct{}{}
		}
	}

	f.events = next
	f.recompute(changed)
}

// onError keeps the state and forwards the failure to every consumer
func (f *feed) onError(date domain.Date, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logger.Warn().Err(err).Str("date", date.String()).Msg("store subscription failed")

	subErr := &SubscriptionError{Date: date, Err: err}
	for _, c := range f.snapshotConsumers() {
		if c.l.OnError != nil && f.hasConsumer(c.id) {
			c.l.OnError(subErr)
		}
	}
}

// recompute derives the statuses of changed employees and emits those that
// differ from what consumers last saw. Must hold f.mu.
func (f *feed) recompute(changed map[string]struct{}) {
	if len(changed) == 0 {
		return
	}

	var diff []domain.DailyAttendanceStatus
	for _, employeeID := range sortedKeys(changed) {
		key := domain.Key{EmployeeID: employeeID, Date: f.date}

		var schedule *domain.ScheduleRecord
		if rec, ok := f.schedules[employeeID]; ok {
			schedule = &rec
		}
		next := domain.Derive(key, schedule, f.events[employeeID])

		prev, ok := f.statuses[employeeID]
		if !ok {
			prev = domain.NotStarted(key)
		}
		if next.Equal(prev) {
			continue
		}

		if next.IsDefault() {
			delete(f.statuses, employeeID)
		} else {
			f.statuses[employeeID] = next
		}
		diff = append(diff, next)
	}

	if len(diff) == 0 {
		return
	}

	for _, c := range f.snapshotConsumers() {
		if c.l.OnChange != nil && f.hasConsumer(c.id) {
			c.l.OnChange(append([]domain.DailyAttendanceStatus(nil), diff...))
		}
	}
}

type consumer struct {
	id uint64
	l  Listener
}

func (f *feed) snapshotConsumers() []consumer {
	f.consumersMu.Lock()
	defer f.consumersMu.Unlock()

	out := make([]consumer, 0, len(f.consumers))
	for id, l := range f.consumers {
		out = append(out, consumer{id: id, l: l})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (f *feed) hasConsumer(id uint64) bool {
	f.consumersMu.Lock()
	defer f.consumersMu.Unlock()
	_, ok := f.consumers[id]
	return ok
}

func sameEvents(a, b []domain.AttendanceEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
