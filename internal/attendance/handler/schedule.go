package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/service"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/httputil"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// ScheduleHandler handles schedule endpoints
type ScheduleHandler struct {
	service *service.ScheduleService
	logger  *logger.Logger
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(svc *service.ScheduleService, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		service: svc,
		logger:  log,
	}
}

// ScheduleRequest is the body of create and update requests
type ScheduleRequest struct {
	EmployeeID   string `json:"employee_id" validate:"required,max=64"`
	EmployeeName string `json:"employee_name" validate:"max=200"`
	Date         string `json:"date" validate:"required,isodate"`
	StartTime    string `json:"start_time" validate:"required,hhmm"`
	EndTime      string `json:"end_time" validate:"required,hhmm"`
	Status       string `json:"status" validate:"omitempty,oneof=active inactive cancelled"`
	Notes        string `json:"notes" validate:"max=500"`
}

func (req ScheduleRequest) record() (*domain.ScheduleRecord, error) {
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, errors.BadRequestWithKey("errors.invalid_date")
	}
	return &domain.ScheduleRecord{
		EmployeeID:   req.EmployeeID,
		EmployeeName: req.EmployeeName,
		Date:         date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Status:       domain.ScheduleStatus(req.Status),
		Notes:        req.Notes,
	}, nil
}

func decodeSchedule(r *http.Request) (*domain.ScheduleRecord, error) {
	var req ScheduleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := httputil.Validate(req); err != nil {
		return nil, err
	}
	return req.record()
}

// Create creates a schedule, or updates the one of the same employee and date
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeSchedule(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := h.service.Create(r.Context(), rec); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, rec)
}

// Get gets a schedule by ID
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

// Update replaces a schedule
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeSchedule(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	rec.ID = chi.URLParam(r, "id")

	if err := h.service.Update(r.Context(), rec); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

// Delete deletes a schedule
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.NoContent(w)
}

// List lists the schedules of a date, or of an employee when no date is given
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if raw := q.Get("date"); raw != "" {
		date, err := domain.ParseDate(raw)
		if err != nil {
			httputil.ErrorLocalized(w, r, errors.BadRequestWithKey("errors.invalid_date"))
			return
		}
		list, err := h.service.ListByDate(r.Context(), date)
		if err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}
		httputil.JSONWithMeta(w, http.StatusOK, list, &httputil.Meta{Total: len(list), From: date.String(), To: date.String()})
		return
	}

	employeeID := q.Get("employee_id")
	if employeeID == "" {
		httputil.ErrorLocalized(w, r, errors.Validation(map[string]string{
			"date": "date or employee_id is required",
		}))
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var before domain.Date
	if raw := q.Get("before"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			httputil.ErrorLocalized(w, r, errors.BadRequestWithKey("errors.invalid_date"))
			return
		}
		before = d
	}

	list, err := h.service.ListByEmployee(r.Context(), employeeID, before, limit)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	meta := &httputil.Meta{Limit: limit, Total: len(list)}
	if len(list) == limit {
		meta.Next = list[len(list)-1].Date.String()
	}
	httputil.JSONWithMeta(w, http.StatusOK, list, meta)
}

// Stats summarises the active schedules of a date
func (h *ScheduleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequestWithKey("errors.invalid_date"))
		return
	}

	stats, err := h.service.DayStats(r.Context(), date)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// CanMutate reports whether the schedule of an employee on a date may still change
func (h *ScheduleHandler) CanMutate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	employeeID := q.Get("employee_id")
	if employeeID == "" {
		httputil.ErrorLocalized(w, r, errors.Validation(map[string]string{
			"employee_id": "employee_id is required",
		}))
		return
	}
	date, err := domain.ParseDate(q.Get("date"))
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequestWithKey("errors.invalid_date"))
		return
	}

	ok, err := h.service.CanMutate(r.Context(), employeeID, date)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"employee_id": employeeID,
		"date":        date,
		"can_mutate":  ok,
	})
}
