// Package stats turns reconciled statuses into per-employee window
// summaries, kept current incrementally as the engine reports changes.
package stats

import (
	"sync"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/engine"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// Aggregator maintains live StatisticsSummary values over engine output
type Aggregator struct {
	engine *engine.Engine
	logger *logger.Logger
}

// New creates an aggregator reading from e
func New(e *engine.Engine, log *logger.Logger) *Aggregator {
	return &Aggregator{
		engine: e,
		logger: log.WithComponent("statistics-aggregator"),
	}
}

// Subscribe delivers the summary of employeeID over window, then a new
// summary after every change to one of its days. Errors are engine
// *SubscriptionError values; the last summary stays valid.
func (a *Aggregator) Subscribe(
	employeeID string,
	window domain.TimeWindow,
	onSummary func(domain.StatisticsSummary),
	onError func(error),
) *engine.Subscription {
	if onSummary == nil {
		onSummary = func(domain.StatisticsSummary) {}
	}
	acc := newAccumulator(employeeID, window, onSummary)

	sub := a.engine.Subscribe(window, engine.Listener{
		OnChange: acc.apply,
		OnError: func(err error) {
			a.logger.Warn().Err(err).Str("employee_id", employeeID).Msg("statistics subscription error")
			if onError != nil {
				onError(err)
			}
		},
	})

	// a window without data never triggers OnChange
	acc.initial()

	return sub
}

type counters struct {
	workedMinutes int
	withCheckin   int
	withCheckout  int
	completed     int
	anomalous     int
}

func (c *counters) add(o counters, sign int) {
	c.workedMinutes += sign * o.workedMinutes
	c.withCheckin += sign * o.withCheckin
	c.withCheckout += sign * o.withCheckout
	c.completed += sign * o.completed
	c.anomalous += sign * o.anomalous
}

// contribution is what one day adds to the window totals. Anomalous days
// count as completed but add no worked minutes.
func contribution(st domain.DailyAttendanceStatus) counters {
	var c counters
	if st.HasCheckIn() {
		c.withCheckin = 1
	}
	if st.CheckOut != nil {
		c.withCheckout = 1
	}
	if st.Phase == domain.PhaseCompleted {
		c.completed = 1
	}
	if st.Anomaly == domain.AnomalyAnomalousDuration {
		c.anomalous = 1
	} else {
		c.workedMinutes = st.WorkedMinutes
	}
	return c
}

// accumulator holds one subscription's running totals. Changes for
// different dates may arrive from different goroutines; mu also orders the
// emitted summaries.
type accumulator struct {
	employeeID string
	window     domain.TimeWindow
	emit       func(domain.StatisticsSummary)

	mu      sync.Mutex
	days    map[domain.Date]domain.DailyAttendanceStatus
	totals  counters
	emitted bool
}

func newAccumulator(employeeID string, window domain.TimeWindow, emit func(domain.StatisticsSummary)) *accumulator {
	return &accumulator{
		employeeID: employeeID,
		window:     window,
		emit:       emit,
		days:       make(map[domain.Date]domain.DailyAttendanceStatus),
	}
}

// apply subtracts the stale contribution of every changed day and adds the
// new one. Nothing is emitted when none of the changes concern this summary.
func (a *accumulator) apply(changes []domain.DailyAttendanceStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()

	touched := false
	for _, st := range changes {
		if st.EmployeeID != a.employeeID || !a.window.Contains(st.Date) {
			continue
		}
		touched = true

		if old, ok := a.days[st.Date]; ok {
			a.totals.add(contribution(old), -1)
			delete(a.days, st.Date)
		}
		if !st.IsDefault() {
			a.days[st.Date] = st
			a.totals.add(contribution(st), 1)
		}
	}

	if !touched {
		return
	}
	a.emitted = true
	a.emit(a.summary())
}

func (a *accumulator) initial() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.emitted {
		a.emitted = true
		a.emit(a.summary())
	}
}

// summary must be called with a.mu held
func (a *accumulator) summary() domain.StatisticsSummary {
	breakdown := make([]domain.DailyAttendanceStatus, 0, len(a.days))
	for _, st := range a.days {
		breakdown = append(breakdown, st)
	}
	domain.SortStatuses(breakdown)

	return build(a.employeeID, a.window, a.totals, breakdown)
}

func build(employeeID string, window domain.TimeWindow, c counters, breakdown []domain.DailyAttendanceStatus) domain.StatisticsSummary {
	totalDays := window.Days()

	var avg float64
	if c.completed > 0 {
		avg = float64(c.workedMinutes) / float64(c.completed)
	}

	return domain.StatisticsSummary{
		EmployeeID:                employeeID,
		Window:                    window,
		TotalDays:                 totalDays,
		TotalWorkedMinutes:        c.workedMinutes,
		DaysWithCheckin:           c.withCheckin,
		DaysWithCheckout:          c.withCheckout,
		DaysCompleted:             c.completed,
		AnomalousDays:             c.anomalous,
		AvgMinutesPerCompletedDay: avg,
		CompletionRate:            CompletionRate(c.completed, totalDays),
		PerDayBreakdown:           breakdown,
	}
}
