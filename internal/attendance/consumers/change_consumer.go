package consumers

import (
	"context"
	"fmt"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/pkg/logger"
	"github.com/gymflow/gymflow-backend/pkg/messaging"
)

// Refresher re-reads one date and pushes the result to its subscribers
type Refresher interface {
	Refresh(ctx context.Context, date domain.Date) error
}

// ChangeHandler refreshes local snapshots when another instance writes
type ChangeHandler struct {
	schedules Refresher
	events    Refresher
	instance  string
	logger    *logger.Logger
}

// NewChangeHandler creates a handler. Messages tagged with instance were
// sent by this process and already refreshed locally.
func NewChangeHandler(schedules, events Refresher, instance string, log *logger.Logger) *ChangeHandler {
	return &ChangeHandler{
		schedules: schedules,
		events:    events,
		instance:  instance,
		logger:    log.WithComponent("change-consumer"),
	}
}

// Register installs the handlers on router
func (h *ChangeHandler) Register(router *messaging.Router) {
	router.RegisterHandler(messaging.EventScheduleCreated, h.handleScheduleChanged)
	router.RegisterHandler(messaging.EventScheduleUpdated, h.handleScheduleChanged)
	router.RegisterHandler(messaging.EventScheduleDeleted, h.handleScheduleChanged)
	router.RegisterHandler(messaging.EventAttendanceRecorded, h.handleAttendanceRecorded)
}

func (h *ChangeHandler) handleScheduleChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.ScheduleChangedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if data.Instance == h.instance {
		return nil
	}

	h.logger.Debug().
		Str("event_type", event.Type).
		Str("schedule_id", data.ScheduleID).
		Str("date", data.Date).
		Msg("received schedule change")

	if err := h.refresh(ctx, h.schedules, data.Date); err != nil {
		return err
	}
	if data.PreviousDate != "" && data.PreviousDate != data.Date {
		return h.refresh(ctx, h.schedules, data.PreviousDate)
	}
	return nil
}

func (h *ChangeHandler) handleAttendanceRecorded(ctx context.Context, event *messaging.Event) error {
	var data messaging.AttendanceRecordedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if data.Instance == h.instance {
		return nil
	}

	h.logger.Debug().
		Str("event_id", data.EventID).
		Str("employee_id", data.EmployeeID).
		Str("date", data.Date).
		Msg("received attendance event")

	return h.refresh(ctx, h.events, data.Date)
}

func (h *ChangeHandler) refresh(ctx context.Context, r Refresher, raw string) error {
	date, err := domain.ParseDate(raw)
	if err != nil {
		return fmt.Errorf("invalid date in change event: %w", err)
	}
	if err := r.Refresh(ctx, date); err != nil {
		return fmt.Errorf("failed to refresh %s: %w", date, err)
	}
	return nil
}

// AttendanceEventConsumer consumes attendance change events from RabbitMQ
type AttendanceEventConsumer struct {
	consumer *messaging.Consumer
}

// NewAttendanceEventConsumer creates a consumer on a queue private to this instance
func NewAttendanceEventConsumer(rmq *messaging.RabbitMQ, h *ChangeHandler, log *logger.Logger) (*AttendanceEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "attendance-service.changes."+h.instance, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeAttendanceEvents, "attendance.#"); err != nil {
		return nil, err
	}

	h.Register(consumer.Router)

	return &AttendanceEventConsumer{consumer: consumer}, nil
}

// Start starts consuming messages
func (c *AttendanceEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}
