package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/service"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/httputil"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// AttendanceHandler handles check-in and check-out endpoints
type AttendanceHandler struct {
	service *service.AttendanceService
	logger  *logger.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc *service.AttendanceService, log *logger.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service: svc,
		logger:  log,
	}
}

// EventRequest records an arbitrary attendance event
type EventRequest struct {
	EmployeeID   string     `json:"employee_id" validate:"required,max=64"`
	EmployeeName string     `json:"employee_name" validate:"max=200"`
	Kind         string     `json:"kind" validate:"required,oneof=check-in check-out"`
	Source       string     `json:"source" validate:"omitempty,oneof=QR manual"`
	Timestamp    *time.Time `json:"timestamp"`
	Date         string     `json:"date" validate:"omitempty,isodate"`
}

// CheckRequest records a check-in or check-out at the current time
type CheckRequest struct {
	EmployeeID   string `json:"employee_id" validate:"required,max=64"`
	EmployeeName string `json:"employee_name" validate:"max=200"`
	Source       string `json:"source" validate:"omitempty,oneof=QR manual"`
}

// Record records an attendance event
func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	ev := &domain.AttendanceEvent{
		EmployeeID:   req.EmployeeID,
		EmployeeName: req.EmployeeName,
		Kind:         domain.EventKind(req.Kind),
		Source:       domain.EventSource(req.Source),
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}
	if req.Date != "" {
		date, err := domain.ParseDate(req.Date)
		if err != nil {
			httputil.ErrorLocalized(w, r, errors.BadRequestWithKey("errors.invalid_date"))
			return
		}
		ev.Date = date
	}

	recorded, err := h.service.Record(r.Context(), ev)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, recorded)
}

// CheckIn records a check-in now
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.check(w, r, h.service.CheckIn)
}

// CheckOut records a check-out now
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.check(w, r, h.service.CheckOut)
}

type checkFunc func(ctx context.Context, employeeID, employeeName string, source domain.EventSource) (*domain.AttendanceEvent, error)

func (h *AttendanceHandler) check(w http.ResponseWriter, r *http.Request, fn checkFunc) {
	var req CheckRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	ev, err := fn(r.Context(), req.EmployeeID, req.EmployeeName, domain.EventSource(req.Source))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, ev)
}

// List lists the events of a date, optionally of one employee
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := domain.ParseDate(q.Get("date"))
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequestWithKey("errors.invalid_date"))
		return
	}

	var list []domain.AttendanceEvent
	if employeeID := q.Get("employee_id"); employeeID != "" {
		list, err = h.service.ListByKey(r.Context(), employeeID, date)
	} else {
		list, err = h.service.ListByDate(r.Context(), date)
	}
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if list == nil {
		list = []domain.AttendanceEvent{}
	}

	httputil.JSONWithMeta(w, http.StatusOK, list, &httputil.Meta{Total: len(list), From: date.String(), To: date.String()})
}
