// Package liveview merges the date subscriptions of a visible window into
// one state tree for a screen or a stream. It only mirrors what the engine
// and the aggregator report.
package liveview

import (
	"sync"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/engine"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// State is an immutable snapshot of the view
type State struct {
	Version  uint64                         `json:"version"`
	Window   domain.TimeWindow              `json:"window"`
	Statuses []domain.DailyAttendanceStatus `json:"statuses"`
	Summary  *domain.StatisticsSummary      `json:"summary,omitempty"`
	Error    string                         `json:"error,omitempty"`
}

// View follows one window at a time. When EmployeeID is set the view also
// carries that employee's summary and only their statuses.
type View struct {
	engine     *engine.Engine
	aggregator *stats.Aggregator
	employeeID string
	onUpdate   func(State)
	logger     *logger.Logger

	mu         sync.Mutex
	generation uint64
	ready      bool
	window     domain.TimeWindow
	statuses   map[domain.Key]domain.DailyAttendanceStatus
	summary    *domain.StatisticsSummary
	lastErr    error
	version    uint64
	subs       []*engine.Subscription
}

// New creates a closed view. onUpdate, when set, receives every new state;
// it runs on the delivering goroutine and must not call back into the view.
func New(e *engine.Engine, agg *stats.Aggregator, employeeID string, onUpdate func(State), log *logger.Logger) *View {
	if onUpdate == nil {
		onUpdate = func(State) {}
	}
	log = log.WithComponent("live-view")
	if employeeID != "" {
		log = log.WithEmployee(employeeID)
	}
	return &View{
		engine:     e,
		aggregator: agg,
		employeeID: employeeID,
		onUpdate:   onUpdate,
		logger:     log,
		statuses:   make(map[domain.Key]domain.DailyAttendanceStatus),
	}
}

// Open starts following window and publishes one state once every date has
// delivered its initial statuses. An already open window is closed first.
func (v *View) Open(window domain.TimeWindow) {
	v.mu.Lock()
	old := v.reset(window)
	gen := v.generation
	v.mu.Unlock()

	release(old)

	subs := []*engine.Subscription{
		v.engine.Subscribe(window, engine.Listener{
			OnChange: func(changes []domain.DailyAttendanceStatus) { v.applyStatuses(gen, changes) },
			OnError:  func(err error) { v.applyError(gen, err) },
		}),
	}
	if v.employeeID != "" && v.aggregator != nil {
		subs = append(subs, v.aggregator.Subscribe(v.employeeID, window,
			func(s domain.StatisticsSummary) { v.applySummary(gen, s) },
			func(error) {},
		))
	}

	v.mu.Lock()
	if v.generation != gen {
		v.mu.Unlock()
		release(subs)
		return
	}
	v.subs = subs
	v.ready = true
	v.publish()
	v.mu.Unlock()

	v.logger.Debug().Str("window", window.String()).Msg("live view opened")
}

// Navigate replaces the current window
func (v *View) Navigate(window domain.TimeWindow) {
	v.Open(window)
}

// Snapshot returns the current state
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state()
}

// Close releases every subscription of the view
func (v *View) Close() {
	v.mu.Lock()
	old := v.reset(domain.TimeWindow{})
	v.mu.Unlock()

	release(old)
}

// reset starts a new generation and hands back the subscriptions to release.
// Must hold v.mu.
func (v *View) reset(window domain.TimeWindow) []*engine.Subscription {
	old := v.subs
	v.subs = nil
	v.generation++
	v.ready = false
	v.window = window
	v.statuses = make(map[domain.Key]domain.DailyAttendanceStatus)
	v.summary = nil
	v.lastErr = nil
	return old
}

func (v *View) applyStatuses(gen uint64, changes []domain.DailyAttendanceStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.generation {
		return
	}
	for _, st := range changes {
		if v.employeeID != "" && st.EmployeeID != v.employeeID {
			continue
		}
		if st.IsDefault() {
			delete(v.statuses, st.Key())
		} else {
			v.statuses[st.Key()] = st
		}
	}
	v.publish()
}

func (v *View) applySummary(gen uint64, s domain.StatisticsSummary) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.generation {
		return
	}
	v.summary = &s
	v.publish()
}

func (v *View) applyError(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.generation {
		return
	}
	v.lastErr = err
	v.publish()
}

// publish must hold v.mu. Updates are held back until Open has finished.
func (v *View) publish() {
	v.version++
	if v.ready {
		v.onUpdate(v.state())
	}
}

func (v *View) state() State {
	statuses := make([]domain.DailyAttendanceStatus, 0, len(v.statuses))
	for _, st := range v.statuses {
		statuses = append(statuses, st)
	}
	domain.SortStatuses(statuses)

	s := State{
		Version:  v.version,
		Window:   v.window,
		Statuses: statuses,
	}
	if v.summary != nil {
		sum := *v.summary
		s.Summary = &sum
	}
	if v.lastErr != nil {
		s.Error = v.lastErr.Error()
	}
	return s
}

func release(subs []*engine.Subscription) {
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
