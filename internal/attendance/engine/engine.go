// Package engine reconciles schedules with attendance events. For every date
// some consumer is watching it keeps the DailyAttendanceStatus of each
// employee and emits the statuses that changed.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// Listener receives status changes of the dates it subscribed to. Callbacks
// run synchronously on the delivering goroutine and must not subscribe to
// the engine or write to the stores.
type Listener struct {
	// OnChange receives the statuses whose value changed, in employee order
	OnChange func(changes []domain.DailyAttendanceStatus)
	// OnError receives store failures as *SubscriptionError
	OnError func(err error)
}

// SubscriptionError reports a failed store subscription for one date. The
// statuses delivered before it stay valid.
type SubscriptionError struct {
	Date domain.Date
	Err  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("attendance subscription for %s failed: %v", e.Date, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	once    sync.Once
	release func()
}

// Unsubscribe detaches the listener. The last consumer of a date releases
// the store subscriptions of that date. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.release)
}

// Engine shares one feed per date between all of its consumers
type Engine struct {
	schedules store.ScheduleStore
	events    store.AttendanceStore
	logger    *logger.Logger

	mu     sync.Mutex
	feeds  map[domain.Date]*feed
	nextID uint64
}

// New creates an engine over the two stores
func New(schedules store.ScheduleStore, events store.AttendanceStore, log *logger.Logger) *Engine {
	return &Engine{
		schedules: schedules,
		events:    events,
		logger:    log.WithComponent("reconciliation-engine"),
		feeds:     make(map[domain.Date]*feed),
	}
}

// Subscribe opens every date of window for l. A date that is already open
// first replays its known non-default statuses to l.
func (e *Engine) Subscribe(window domain.TimeWindow, l Listener) *Subscription {
	dates := window.Dates()

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.mu.Unlock()

	for _, date := range dates {
		f, created := e.acquire(date)
		f.attach(id, l)
		if created {
			f.open()
		}
	}

	return &Subscription{release: func() {
		for _, date := range dates {
			e.detach(date, id)
		}
	}}
}

// Status returns the current status of (employeeID, date). The second result
// is false when no consumer has the date open.
func (e *Engine) Status(employeeID string, date domain.Date) (domain.DailyAttendanceStatus, bool) {
	e.mu.Lock()
	f, ok := e.feeds[date]
	e.mu.Unlock()

	key := domain.Key{EmployeeID: employeeID, Date: date}
	if !ok {
		return domain.NotStarted(key), false
	}
	return f.status(employeeID), true
}

// Statuses returns the non-default statuses of window in display order. It
// opens the window for the duration of the call and returns the first store
// failure, if any.
func (e *Engine) Statuses(window domain.TimeWindow) ([]domain.DailyAttendanceStatus, error) {
	var (
		mu     sync.Mutex
		latest = make(map[domain.Key]domain.DailyAttendanceStatus)
		first  error
	)

	sub := e.Subscribe(window, Listener{
		OnChange: func(changes []domain.DailyAttendanceStatus) {
			mu.Lock()
			defer mu.Unlock()
			for _, st := range changes {
				latest[st.Key()] = st
			}
		},
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			if first == nil {
				first = err
			}
		},
	})
	sub.Unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	if first != nil {
		return nil, first
	}

	out := make([]domain.DailyAttendanceStatus, 0, len(latest))
	for _, st := range latest {
		if !st.IsDefault() {
			out = append(out, st)
		}
	}
	domain.SortStatuses(out)
	return out, nil
}

// OpenDates returns the dates with at least one consumer, ascending
func (e *Engine) OpenDates() []domain.Date {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Date, 0, len(e.feeds))
	for date := range e.feeds {
		out = append(out, date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// SubscriberCount returns the number of consumers of date
func (e *Engine) SubscriberCount(date domain.Date) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if f, ok := e.feeds[date]; ok {
		return f.refs
	}
	return 0
}

func (e *Engine) acquire(date domain.Date) (*feed, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if f, ok := e.feeds[date]; ok {
		f.refs++
		return f, false
	}

	f := newFeed(e, date)
	f.refs = 1
	e.feeds[date] = f
	return f, true
}

func (e *Engine) detach(date domain.Date, id uint64) {
	e.mu.Lock()
	f, ok := e.feeds[date]
	if !ok {
		e.mu.Unlock()
		return
	}
	f.removeConsumer(id)
	f.refs--
	last := f.refs == 0
	if last {
		delete(e.feeds, date)
	}
	e.mu.Unlock()

	if last {
		f.close()
		e.logger.Debug().Str("date", date.String()).Msg("feed closed")
	}
}
