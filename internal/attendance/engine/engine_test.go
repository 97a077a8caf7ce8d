package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/guard"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

var day = domain.NewDate(2024, time.March, 4)

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

type harness struct {
	schedules *store.MemorySchedules
	events    *store.MemoryEvents
	engine    *Engine
}

func newHarness() *harness {
	h := &harness{
		schedules: store.NewMemorySchedules().WithClock(fixedClock),
		events:    store.NewMemoryEvents().WithClock(fixedClock),
	}
	h.engine = New(h.schedules, h.events, logger.Nop())
	return h
}

func (h *harness) schedule(t *testing.T, employeeID string, date domain.Date, start, end string) *domain.ScheduleRecord {
	t.Helper()
	rec := &domain.ScheduleRecord{
		EmployeeID: employeeID,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Status:     domain.ScheduleActive,
	}
	_, err := h.schedules.Upsert(context.Background(), rec)
	require.NoError(t, err)
	return rec
}

func (h *harness) record(t *testing.T, employeeID string, date domain.Date, kind domain.EventKind, hhmm string) {
	t.Helper()
	at, err := date.At(hhmm, time.UTC)
	require.NoError(t, err)
	_, err = h.events.Record(context.Background(), &domain.AttendanceEvent{
		EmployeeID: employeeID,
		Date:       date,
		Kind:       kind,
		Timestamp:  at,
		Source:     domain.SourceQR,
	})
	require.NoError(t, err)
}

// collector records every emission
type collector struct {
	mu      sync.Mutex
	batches [][]domain.DailyAttendanceStatus
	errs    []error
}

func (c *collector) listener() Listener {
	return Listener{
		OnChange: func(changes []domain.DailyAttendanceStatus) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.batches = append(c.batches, changes)
		},
		OnError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errs = append(c.errs, err)
		},
	}
}

func (c *collector) lastBatch() []domain.DailyAttendanceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil
	}
	return c.batches[len(c.batches)-1]
}

func (c *collector) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestScenario_NoScheduleNoEvents(t *testing.T) {
	h := newHarness()

	var c collector
	sub := h.engine.Subscribe(domain.SingleDay(day), c.listener())
	defer sub.Unsubscribe()

	st, open := h.engine.Status("E", day)
	require.True(t, open)
	assert.Equal(t, domain.PhaseNotStarted, st.Phase)
	assert.Equal(t, 0, st.WorkedMinutes)
	assert.Zero(t, c.batchCount(), "nothing to report")
}

func TestScenario_CheckInBlocksDeleteThenCompletes(t *testing.T) {
	h := newHarness()
	g := guard.New(h.schedules, h.events, logger.Nop())

	var c collector
	sub := h.engine.Subscribe(domain.SingleDay(day), c.listener())
	defer sub.Unsubscribe()

	rec := h.schedule(t, "E", day, "09:00", "17:00")
	st, _ := h.engine.Status("E", day)
	assert.Equal(t, domain.PhaseNotStarted, st.Phase)
	require.NotNil(t, st.Schedule)

	h.record(t, "E", day, domain.CheckIn, "09:05")
	st, _ = h.engine.Status("E", day)
	assert.Equal(t, domain.PhaseInProgress, st.Phase)

	err := g.Delete(context.Background(), rec.ID)
	assert.True(t, errors.Is(err, errors.ErrMutationBlocked))

	h.record(t, "E", day, domain.CheckOut, "17:10")
	st, _ = h.engine.Status("E", day)
	assert.Equal(t, domain.PhaseCompleted, st.Phase)
	assert.Equal(t, 485, st.WorkedMinutes)
	assert.Equal(t, domain.AnomalyNone, st.Anomaly)

	last := c.lastBatch()
	require.Len(t, last, 1)
	assert.Equal(t, 485, last[0].WorkedMinutes)
}

func TestScenario_CheckOutBeforeCheckIn(t *testing.T) {
	h := newHarness()

	sub := h.engine.Subscribe(domain.SingleDay(day), Listener{})
	defer sub.Unsubscribe()

	h.record(t, "E", day, domain.CheckIn, "09:00")
	h.record(t, "E", day, domain.CheckOut, "08:00")

	st, _ := h.engine.Status("E", day)
	assert.Equal(t, domain.PhaseCompleted, st.Phase)
	assert.Equal(t, domain.AnomalyAnomalousDuration, st.Anomaly)
	assert.Equal(t, 0, st.WorkedMinutes)
}

func TestOrphanCheckInIsInProgress(t *testing.T) {
	h := newHarness()
	g := guard.New(h.schedules, h.events, logger.Nop())

	sub := h.engine.Subscribe(domain.SingleDay(day), Listener{})
	defer sub.Unsubscribe()

	rec := h.schedule(t, "E", day, "09:00", "17:00")
	require.NoError(t, g.Delete(context.Background(), rec.ID))
	h.record(t, "E", day, domain.CheckIn, "09:05")

	st, _ := h.engine.Status("E", day)
	assert.Equal(t, domain.PhaseInProgress, st.Phase)
	assert.Nil(t, st.Schedule)
}

func TestEmitsChangedKeysOnly(t *testing.T) {
	h := newHarness()
	h.schedule(t, "a", day, "06:00", "14:00")
	h.schedule(t, "b", day, "14:00", "22:00")

	var c collector
	sub := h.engine.Subscribe(domain.SingleDay(day), c.listener())
	defer sub.Unsubscribe()

	require.Equal(t, 1, c.batchCount(), "initial schedules")
	assert.Len(t, c.lastBatch(), 2)

	h.record(t, "a", day, domain.CheckIn, "06:01")
	require.Equal(t, 2, c.batchCount())
	require.Len(t, c.lastBatch(), 1)
	assert.Equal(t, "a", c.lastBatch()[0].EmployeeID)

	// a duplicate later check-in does not change the status
	h.record(t, "a", day, domain.CheckIn, "06:30")
	assert.Equal(t, 2, c.batchCount())

	// rewriting b's schedule with identical values emits nothing either
	h.schedule(t, "b", day, "14:00", "22:00")
	assert.Equal(t, 2, c.batchCount())

	h.schedule(t, "b", day, "15:00", "22:00")
	require.Equal(t, 3, c.batchCount())
	assert.Equal(t, "b", c.lastBatch()[0].EmployeeID)
}

func TestSharedFeedsAreReferenceCounted(t *testing.T) {
	h := newHarness()
	week := domain.WeekOf(day)
	overlap, err := domain.NewTimeWindow(day.AddDays(3), day.AddDays(9))
	require.NoError(t, err)

	first := h.engine.Subscribe(week, Listener{})
	second := h.engine.Subscribe(overlap, Listener{})

	for _, date := range week.Dates() {
		assert.Equal(t, 1, h.schedules.SubscriberCount(date), date.String())
		assert.Equal(t, 1, h.events.SubscriberCount(date), date.String())
	}
	assert.Equal(t, 2, h.engine.SubscriberCount(day.AddDays(4)))
	assert.Len(t, h.engine.OpenDates(), 10)

	first.Unsubscribe()
	first.Unsubscribe()
	assert.Len(t, h.engine.OpenDates(), 7)
	assert.Equal(t, 0, h.schedules.SubscriberCount(day))
	assert.Equal(t, 1, h.schedules.SubscriberCount(day.AddDays(3)))

	second.Unsubscribe()
	assert.Empty(t, h.engine.OpenDates())
	assert.Equal(t, 0, h.schedules.TotalSubscribers())
	assert.Equal(t, 0, h.events.TotalSubscribers())
}

func TestLateSubscriberGetsReplay(t *testing.T) {
	h := newHarness()
	h.schedule(t, "a", day, "06:00", "14:00")
	h.record(t, "b", day, domain.CheckIn, "07:00")

	first := h.engine.Subscribe(domain.SingleDay(day), Listener{})
	defer first.Unsubscribe()

	var c collector
	second := h.engine.Subscribe(domain.SingleDay(day), c.listener())
	defer second.Unsubscribe()

	require.Equal(t, 1, c.batchCount())
	replay := c.lastBatch()
	require.Len(t, replay, 2)
	assert.Equal(t, "a", replay[0].EmployeeID)
	assert.Equal(t, domain.PhaseInProgress, replay[1].Phase)
}

func TestStoreFailureKeepsState(t *testing.T) {
	h := newHarness()
	h.record(t, "a", day, domain.CheckIn, "07:00")

	var c collector
	sub := h.engine.Subscribe(domain.SingleDay(day), c.listener())
	defer sub.Unsubscribe()

	cause := fmt.Errorf("listener detached")
	h.events.Fail(day, cause)

	require.Len(t, c.errs, 1)
	var subErr *SubscriptionError
	require.True(t, stderrors.As(c.errs[0], &subErr))
	assert.Equal(t, day, subErr.Date)
	assert.ErrorIs(t, c.errs[0], cause)

	st, _ := h.engine.Status("a", day)
	assert.Equal(t, domain.PhaseInProgress, st.Phase)
}

func TestUnsubscribeInsideCallback(t *testing.T) {
	h := newHarness()

	var sub *Subscription
	calls := 0
	sub = h.engine.Subscribe(domain.SingleDay(day), Listener{
		OnChange: func([]domain.DailyAttendanceStatus) {
			calls++
			sub.Unsubscribe()
		},
	})

	h.record(t, "a", day, domain.CheckIn, "07:00")
	h.record(t, "b", day, domain.CheckIn, "07:00")

	assert.Equal(t, 1, calls)
	assert.Empty(t, h.engine.OpenDates())
	assert.Equal(t, 0, h.events.TotalSubscribers())
}

func TestStatuses(t *testing.T) {
	h := newHarness()
	h.schedule(t, "a", day, "06:00", "14:00")
	h.record(t, "b", day.AddDays(1), domain.CheckIn, "07:00")

	statuses, err := h.engine.Statuses(domain.WeekOf(day))
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "b", statuses[0].EmployeeID, "newest date first")
	assert.Empty(t, h.engine.OpenDates())
}

// pushSchedules lets a test deliver arbitrary snapshots
type pushSchedules struct {
	*store.MemorySchedules
	onChange store.ScheduleListener
}

func (p *pushSchedules) SubscribeByDate(date domain.Date, onChange store.ScheduleListener, _ store.ErrorListener) store.Unsubscribe {
	p.onChange = onChange
	onChange(date, nil)
	return func() {}
}

func TestDuplicateSchedulesLatestWins(t *testing.T) {
	push := &pushSchedules{MemorySchedules: store.NewMemorySchedules()}
	e := New(push, store.NewMemoryEvents(), logger.Nop())

	sub := e.Subscribe(domain.SingleDay(day), Listener{})
	defer sub.Unsubscribe()

	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	newer := domain.ScheduleRecord{ID: "s2", EmployeeID: "a", Date: day, StartTime: "10:00", EndTime: "18:00",
		Status: domain.ScheduleActive, UpdatedAt: base.Add(time.Hour)}
	older := domain.ScheduleRecord{ID: "s1", EmployeeID: "a", Date: day, StartTime: "09:00", EndTime: "17:00",
		Status: domain.ScheduleActive, UpdatedAt: base}

	assert.NotPanics(t, func() {
		push.onChange(day, []domain.ScheduleRecord{newer, older})
	})

	st, _ := e.Status("a", day)
	require.NotNil(t, st.Schedule)
	assert.Equal(t, "s2", st.Schedule.ID)
}

// pushEvents lets a test deliver arbitrary event snapshots
type pushEvents struct {
	*store.MemoryEvents
	onChange store.EventListener
}

func (p *pushEvents) SubscribeByDate(date domain.Date, onChange store.EventListener, _ store.ErrorListener) store.Unsubscribe {
	p.onChange = onChange
	onChange(date, nil)
	return func() {}
}

func TestUnknownEventKindIsSkipped(t *testing.T) {
	push := &pushEvents{MemoryEvents: store.NewMemoryEvents()}
	e := New(store.NewMemorySchedules(), push, logger.Nop())

	sub := e.Subscribe(domain.SingleDay(day), Listener{})
	defer sub.Unsubscribe()

	at, err := day.At("09:00", time.UTC)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		push.onChange(day, []domain.AttendanceEvent{
			{ID: "ev-1", EmployeeID: "a", Date: day, Kind: "break-start", Timestamp: at},
			{ID: "ev-2", EmployeeID: "a", Date: day, Kind: domain.CheckIn, Timestamp: at},
			{ID: "ev-3", EmployeeID: "b", Date: day},
		})
	})

	st, _ := e.Status("a", day)
	assert.Equal(t, domain.PhaseInProgress, st.Phase)
	require.NotNil(t, st.CheckIn)
	assert.Equal(t, "ev-2", st.CheckIn.ID)

	st, _ = e.Status("b", day)
	assert.Equal(t, domain.PhaseNotStarted, st.Phase)
}
