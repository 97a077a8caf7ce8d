package handler_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/engine"
	"github.com/gymflow/gymflow-backend/internal/attendance/events"
	"github.com/gymflow/gymflow-backend/internal/attendance/export"
	"github.com/gymflow/gymflow-backend/internal/attendance/guard"
	"github.com/gymflow/gymflow-backend/internal/attendance/handler"
	"github.com/gymflow/gymflow-backend/internal/attendance/service"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/httputil"
	"github.com/gymflow/gymflow-backend/pkg/i18n"
	"github.com/gymflow/gymflow-backend/pkg/logger"
	"github.com/gymflow/gymflow-backend/pkg/testutil"
)

const base = "/api/v1/attendance"

type app struct {
	router    http.Handler
	schedules *store.MemorySchedules
	events    *store.MemoryEvents
	engine    *engine.Engine
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := logger.Nop()

	schedules := store.NewMemorySchedules()
	attendance := store.NewMemoryEvents()
	publisher := events.NewWithSink(testutil.NewMockPublisher(), "test", log)

	eng := engine.New(schedules, attendance, log)
	agg := stats.New(eng, log)

	scheduleSvc := service.NewScheduleService(guard.New(schedules, attendance, log), schedules, publisher, log)
	attendanceSvc := service.NewAttendanceService(attendance, publisher, time.UTC, log)

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Route(base, handler.Routes(
		handler.NewScheduleHandler(scheduleSvc, log),
		handler.NewAttendanceHandler(attendanceSvc, log),
		handler.NewStatisticsHandler(eng, agg, handler.StatisticsOptions{DefaultWindow: "week", Location: time.UTC}, log),
	))

	return &app{router: r, schedules: schedules, events: attendance, engine: eng}
}

func (a *app) createSchedule(t *testing.T, emp, date string) string {
	t.Helper()
	rr := testutil.ExecuteRequest(a.router, testutil.NewHTTPRequest(http.MethodPost, base+"/schedules", map[string]string{
		"employee_id":   emp,
		"employee_name": "Employee " + emp,
		"date":          date,
		"start_time":    "09:00",
		"end_time":      "17:00",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp struct {
		Data domain.ScheduleRecord `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	require.NotEmpty(t, resp.Data.ID)
	return resp.Data.ID
}

func (a *app) recordCheckIn(t *testing.T, emp, date, timestamp string) {
	t.Helper()
	rr := testutil.ExecuteRequest(a.router, testutil.NewHTTPRequest(http.MethodPost, base+"/events", map[string]string{
		"employee_id": emp,
		"kind":        "check-in",
		"source":      "QR",
		"date":        date,
		"timestamp":   timestamp,
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)
}

func TestDeleteSchedule_BlockedAfterCheckIn(t *testing.T) {
	a := newApp(t)
	id := a.createSchedule(t, "emp-1", "2024-03-04")
	a.recordCheckIn(t, "emp-1", "2024-03-04", "2024-03-04T02:00:00Z")

	rr := testutil.ExecuteRequest(a.router, testutil.NewHTTPRequest(http.MethodDelete, base+"/schedules/"+id, nil))

	testutil.AssertStatus(t, rr, http.StatusConflict)
	var resp httputil.Response
	testutil.ParseJSONBody(t, rr, &resp)
	require.NotNil(t, resp.Error)
	assert.False(t, resp.Success)
	assert.Equal(t, "MUTATION_BLOCKED", resp.Error.Code)
	assert.Equal(t, "attendance-exists", resp.Error.Details["kind"])
	assert.Equal(t, "2024-03-04", resp.Error.Details["date"])

	rec, err := a.schedules.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
}

func TestUpdateSchedule_BlockedMessageIsLocalized(t *testing.T) {
	a := newApp(t)
	id := a.createSchedule(t, "emp-1", "2024-03-04")
	a.recordCheckIn(t, "emp-1", "2024-03-04", "2024-03-04T02:00:00Z")

	req := testutil.NewHTTPRequest(http.MethodPut, base+"/schedules/"+id, map[string]string{
		"employee_id": "emp-1",
		"date":        "2024-03-04",
		"start_time":  "10:00",
		"end_time":    "18:00",
	})
	rr := testutil.ExecuteRequest(a.router, testutil.WithLanguage(req, "vi"))

	testutil.AssertStatus(t, rr, http.StatusConflict)
	testutil.AssertBodyContains(t, rr, "MUTATION_BLOCKED")
	testutil.AssertBodyContains(t, rr, "check-in")
	assert.Equal(t, "vi", rr.Header().Get("Content-Language"))
}

func TestScheduleRoutes(t *testing.T) {
	a := newApp(t)
	id := a.createSchedule(t, "emp-1", "2024-03-04")
	a.createSchedule(t, "emp-2", "2024-03-04")

	testutil.RunHTTPTestCases(t, a.router, []testutil.HTTPTestCase{
		{
			Name:             "get by id",
			Method:           http.MethodGet,
			Path:             base + "/schedules/" + id,
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"employee_id":"emp-1"`, `"date":"2024-03-04"`},
		},
		{
			Name:       "unknown id",
			Method:     http.MethodGet,
			Path:       base + "/schedules/nope",
			WantStatus: http.StatusNotFound,
		},
		{
			Name:             "list by date",
			Method:           http.MethodGet,
			Path:             base + "/schedules?date=2024-03-04",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"total":2`},
		},
		{
			Name:             "list needs a filter",
			Method:           http.MethodGet,
			Path:             base + "/schedules",
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"VALIDATION_ERROR"},
		},
		{
			Name:             "day stats",
			Method:           http.MethodGet,
			Path:             base + "/schedules/stats?date=2024-03-04",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"total_schedules":2`, `"09:00-17:00":2`, `"total_hours":16`},
		},
		{
			Name:             "can mutate",
			Method:           http.MethodGet,
			Path:             base + "/schedules/can-mutate?employee_id=emp-1&date=2024-03-04",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"can_mutate":true`},
		},
		{
			Name:   "invalid time",
			Method: http.MethodPost,
			Path:   base + "/schedules",
			Body: map[string]string{
				"employee_id": "emp-3",
				"date":        "2024-03-04",
				"start_time":  "9am",
				"end_time":    "17:00",
			},
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"VALIDATION_ERROR", "start_time"},
		},
		{
			Name:       "unknown field",
			Method:     http.MethodPost,
			Path:       base + "/schedules",
			Body:       map[string]string{"employee": "emp-3"},
			WantStatus: http.StatusBadRequest,
		},
		{
			Name:       "invalid date",
			Method:     http.MethodGet,
			Path:       base + "/schedules/stats?date=03/04/2024",
			WantStatus: http.StatusBadRequest,
		},
	})
}

func TestDeleteSchedule_AllowedWithoutCheckIn(t *testing.T) {
	a := newApp(t)
	id := a.createSchedule(t, "emp-1", "2024-03-04")

	rr := testutil.ExecuteRequest(a.router, testutil.NewHTTPRequest(http.MethodDelete, base+"/schedules/"+id, nil))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	list, err := a.schedules.ListByDate(context.Background(), domain.NewDate(2024, time.March, 4))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAttendanceRoutes(t *testing.T) {
	a := newApp(t)

	testutil.RunHTTPTestCases(t, a.router, []testutil.HTTPTestCase{
		{
			Name:             "check in",
			Method:           http.MethodPost,
			Path:             base + "/checkin",
			Body:             map[string]string{"employee_id": "emp-1", "source": "QR"},
			WantStatus:       http.StatusCreated,
			WantBodyContains: []string{`"kind":"check-in"`, `"source":"QR"`},
		},
		{
			Name:             "check out defaults to manual",
			Method:           http.MethodPost,
			Path:             base + "/checkout",
			Body:             map[string]string{"employee_id": "emp-1"},
			WantStatus:       http.StatusCreated,
			WantBodyContains: []string{`"kind":"check-out"`, `"source":"manual"`},
		},
		{
			Name:             "unknown kind",
			Method:           http.MethodPost,
			Path:             base + "/events",
			Body:             map[string]string{"employee_id": "emp-1", "kind": "break"},
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"kind"},
		},
		{
			Name:             "unknown source",
			Method:           http.MethodPost,
			Path:             base + "/checkin",
			Body:             map[string]string{"employee_id": "emp-1", "source": "nfc"},
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"source"},
		},
		{
			Name:             "list needs a date",
			Method:           http.MethodGet,
			Path:             base + "/events",
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"BAD_REQUEST"},
		},
	})
}

func TestStatuses(t *testing.T) {
	a := newApp(t)
	a.createSchedule(t, "emp-1", "2024-03-04")
	a.createSchedule(t, "emp-2", "2024-03-04")
	a.recordCheckIn(t, "emp-1", "2024-03-04", "2024-03-04T02:00:00Z")

	rr := testutil.ExecuteRequest(a.router, testutil.NewHTTPRequest(http.MethodGet, base+"/statuses?date=2024-03-04", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp struct {
		Data []domain.DailyAttendanceStatus `json:"data"`
		Meta httputil.Meta                  `json:"meta"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "emp-1", resp.Data[0].EmployeeID)
	assert.Equal(t, domain.PhaseInProgress, resp.Data[0].Phase)
	assert.Equal(t, domain.PhaseNotStarted, resp.Data[1].Phase)
	assert.Equal(t, "2024-03-04", resp.Meta.From)

	rr = testutil.ExecuteRequest(a.router, testutil.NewHTTPRequest(http.MethodGet, base+"/statuses?date=2024-03-04&employee_id=emp-2", nil))
	testutil.ParseJSONBody(t, rr, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "emp-2", resp.Data[0].EmployeeID)

	assert.Empty(t, a.engine.OpenDates(), "one-shot reads release their feeds")
}

func TestListSchedulesByEmployee_Paging(t *testing.T) {
	a := newApp(t)
	for _, date := range []string{"2024-03-04", "2024-03-05", "2024-03-06"} {
		a.createSchedule(t, "emp-1", date)
	}

	testutil.RunHTTPTestCases(t, a.router, []testutil.HTTPTestCase{
		{
			Name:             "first page",
			Method:           http.MethodGet,
			Path:             base + "/schedules?employee_id=emp-1&limit=2",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"2024-03-06"`, `"2024-03-05"`, `"next":"2024-03-05"`},
		},
		{
			Name:             "next page",
			Method:           http.MethodGet,
			Path:             base + "/schedules?employee_id=emp-1&limit=2&before=2024-03-05",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"date":"2024-03-04"`, `"total":1`},
		},
		{
			Name:       "bad cursor",
			Method:     http.MethodGet,
			Path:       base + "/schedules?employee_id=emp-1&before=yesterday",
			WantStatus: http.StatusBadRequest,
		},
	})
}

func TestStatistics(t *testing.T) {
	a := newApp(t)
	a.createSchedule(t, "emp-1", "2024-03-04")
	a.recordCheckIn(t, "emp-1", "2024-03-04", "2024-03-04T02:00:00Z")

	testutil.RunHTTPTestCases(t, a.router, []testutil.HTTPTestCase{
		{
			Name:             "weekly summary",
			Method:           http.MethodGet,
			Path:             base + "/statistics?employee_id=emp-1&date=2024-03-06",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"total_days":7`, `"days_with_checkin":1`, `"total_formatted":"0h 0m"`},
		},
		{
			Name:             "explicit range",
			Method:           http.MethodGet,
			Path:             base + "/statistics?employee_id=emp-1&from=2024-03-01&to=2024-03-04",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"total_days":4`},
		},
		{
			Name:       "reversed range",
			Method:     http.MethodGet,
			Path:       base + "/statistics?employee_id=emp-1&from=2024-03-04&to=2024-03-01",
			WantStatus: http.StatusBadRequest,
		},
		{
			Name:             "year is the longest range",
			Method:           http.MethodGet,
			Path:             base + "/statistics?employee_id=emp-1&from=2024-01-01&to=2024-12-31",
			WantStatus:       http.StatusOK,
			WantBodyContains: []string{`"total_days":366`},
		},
		{
			Name:             "range too long",
			Method:           http.MethodGet,
			Path:             base + "/statistics?employee_id=emp-1&from=1900-01-01&to=2099-12-31",
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"366 days", `"max_days":"366"`},
		},
		{
			Name:             "employee required",
			Method:           http.MethodGet,
			Path:             base + "/statistics",
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"employee_id"},
		},
		{
			Name:             "unknown window",
			Method:           http.MethodGet,
			Path:             base + "/statistics?employee_id=emp-1&window=year",
			WantStatus:       http.StatusBadRequest,
			WantBodyContains: []string{"window"},
		},
	})
}

func TestExport(t *testing.T) {
	a := newApp(t)
	a.createSchedule(t, "emp-1", "2024-03-04")

	rr := testutil.ExecuteRequest(a.router, testutil.NewHTTPRequest(http.MethodGet, base+"/statistics/export?employee_id=emp-1&date=2024-03-04", nil))

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, export.ContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attendance_emp-1_2024-03-04_2024-03-10.xlsx")
	assert.NotZero(t, rr.Body.Len())
}

func TestLive_StreamsInitialState(t *testing.T) {
	a := newApp(t)
	a.createSchedule(t, "emp-1", "2024-03-04")

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+base+"/live?employee_id=emp-1&date=2024-03-04", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = line
		}
	}

	assert.Contains(t, data, `"employee_id":"emp-1"`)
	assert.Contains(t, data, `"start_date":"2024-03-04"`)
	assert.Contains(t, data, `"summary"`)

	cancel()
	testutil.RequireEventually(t, func() bool {
		return len(a.engine.OpenDates()) == 0
	}, 2*time.Second, 10*time.Millisecond, "live stream did not release its subscriptions")
}
