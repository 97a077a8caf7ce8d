package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/engine"
	"github.com/gymflow/gymflow-backend/internal/attendance/export"
	"github.com/gymflow/gymflow-backend/internal/attendance/liveview"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/httputil"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

const pingInterval = 15 * time.Second

// StatisticsOptions configures the reporting endpoints
type StatisticsOptions struct {
	// DefaultWindow is used when a request names no window: "week" or "month"
	DefaultWindow string
	// LiveBuffer is the number of pending frames kept per live stream
	LiveBuffer int
	// MaxWindowDays bounds from/to ranges; every day of a window opens a feed
	MaxWindowDays int
	Location      *time.Location
}

// StatisticsHandler serves reconciled statuses, summaries and the live stream
type StatisticsHandler struct {
	engine     *engine.Engine
	aggregator *stats.Aggregator
	opts       StatisticsOptions
	now        func() time.Time
	logger     *logger.Logger
}

// NewStatisticsHandler creates a new statistics handler
func NewStatisticsHandler(e *engine.Engine, agg *stats.Aggregator, opts StatisticsOptions, log *logger.Logger) *StatisticsHandler {
	if opts.DefaultWindow == "" {
		opts.DefaultWindow = "week"
	}
	if opts.LiveBuffer <= 0 {
		opts.LiveBuffer = 16
	}
	if opts.MaxWindowDays <= 0 {
		opts.MaxWindowDays = domain.DefaultMaxWindowDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &StatisticsHandler{
		engine:     e,
		aggregator: agg,
		opts:       opts,
		now:        time.Now,
		logger:     log,
	}
}

// window resolves the requested window. from and to take precedence, then
// window=day|week|month around date (today in the gym time zone by default).
func (h *StatisticsHandler) window(r *http.Request, defaultKind string) (domain.TimeWindow, error) {
	q := r.URL.Query()

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, err := domain.ParseDate(from)
		if err != nil {
			return domain.TimeWindow{}, errors.BadRequestWithKey("errors.invalid_date")
		}
		end, err := domain.ParseDate(to)
		if err != nil {
			return domain.TimeWindow{}, errors.BadRequestWithKey("errors.invalid_date")
		}
		w, err := domain.NewTimeWindow(start, end)
		if err != nil {
			return domain.TimeWindow{}, errors.BadRequestWithKey("errors.invalid_window")
		}
		if w.Days() > h.opts.MaxWindowDays {
			return domain.TimeWindow{}, errors.WindowTooLarge(h.opts.MaxWindowDays)
		}
		return w, nil
	}

	anchor := domain.DateOf(h.now().In(h.opts.Location))
	if raw := q.Get("date"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return domain.TimeWindow{}, errors.BadRequestWithKey("errors.invalid_date")
		}
		anchor = d
	}

	kind := q.Get("window")
	if kind == "" {
		kind = defaultKind
	}
	w, err := domain.WindowOf(kind, anchor)
	if err != nil {
		return domain.TimeWindow{}, errors.Validation(map[string]string{
			"window": "window must be one of: day week month",
		})
	}
	return w, nil
}

// Statuses lists the reconciled statuses of a window, a single day by default
func (h *StatisticsHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	window, err := h.window(r, "day")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	statuses, err := h.engine.Statuses(window)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if employeeID := r.URL.Query().Get("employee_id"); employeeID != "" {
		filtered := statuses[:0]
		for _, st := range statuses {
			if st.EmployeeID == employeeID {
				filtered = append(filtered, st)
			}
		}
		statuses = filtered
	}
	if statuses == nil {
		statuses = []domain.DailyAttendanceStatus{}
	}

	httputil.JSONWithMeta(w, http.StatusOK, statuses, &httputil.Meta{
		Total: len(statuses),
		From:  window.Start.String(),
		To:    window.End.String(),
	})
}

func (h *StatisticsHandler) summary(r *http.Request) (domain.StatisticsSummary, error) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		return domain.StatisticsSummary{}, errors.Validation(map[string]string{
			"employee_id": "employee_id is required",
		})
	}

	window, err := h.window(r, h.opts.DefaultWindow)
	if err != nil {
		return domain.StatisticsSummary{}, err
	}

	statuses, err := h.engine.Statuses(window)
	if err != nil {
		return domain.StatisticsSummary{}, err
	}
	return stats.Compute(employeeID, window, statuses), nil
}

// Statistics returns an employee's summary over a window
func (h *StatisticsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	s, err := h.summary(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"summary":           s,
		"total_hours":       stats.TotalHours(s),
		"avg_hours_per_day": stats.AvgHoursPerDay(s),
		"total_formatted":   stats.FormatTotal(s),
		"avg_formatted":     stats.FormatAverage(s),
	})
}

// Export returns an employee's summary as an XLSX workbook
func (h *StatisticsHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, err := h.summary(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, s, h.opts.Location); err != nil {
		h.logger.Error().Err(err).Str("employee_id", s.EmployeeID).Msg("failed to render workbook")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(s)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// Live streams the live view of a window as Server-Sent Events. Each frame
// is a full state; slow clients skip intermediate frames.
func (h *StatisticsHandler) Live(w http.ResponseWriter, r *http.Request) {
	window, err := h.window(r, h.opts.DefaultWindow)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	// streams outlive the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	stream, err := httputil.NewEventStream(w)
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.Internal(err.Error()))
		return
	}

	frames := make(chan liveview.State, h.opts.LiveBuffer)
	push := func(s liveview.State) {
		select {
		case frames <- s:
			return
		default:
		}
		// full: drop the oldest frame
		select {
		case <-frames:
		default:
		}
		select {
		case frames <- s:
		default:
		}
	}

	view := liveview.New(h.engine, h.aggregator, r.URL.Query().Get("employee_id"), push, h.logger)
	view.Open(window)
	defer view.Close()

	snap := view.Snapshot()
	if err := stream.Send("state", strconv.FormatUint(snap.Version, 10), snap); err != nil {
		return
	}
	last := snap.Version

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-frames:
			if s.Version <= last {
				continue
			}
			last = s.Version
			if err := stream.Send("state", strconv.FormatUint(s.Version, 10), s); err != nil {
				h.logger.Debug().Err(err).Msg("live stream closed")
				return
			}
		case <-ping.C:
			if err := stream.Ping(); err != nil {
				return
			}
		}
	}
}
