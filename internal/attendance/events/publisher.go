package events

import (
	"context"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/pkg/logger"
	"github.com/gymflow/gymflow-backend/pkg/messaging"
)

// AttendanceEventPublisher publishes schedule and attendance changes so that
// other instances can refresh their live snapshots
type AttendanceEventPublisher struct {
	publisher messaging.Sink
	instance  string
	logger    *logger.Logger
}

// NewAttendanceEventPublisher creates a publisher on the attendance exchange
func NewAttendanceEventPublisher(rmq *messaging.RabbitMQ, instance string, log *logger.Logger) (*AttendanceEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeAttendanceEvents, "attendance-service", log)
	if err != nil {
		return nil, err
	}

	return NewWithSink(publisher, instance, log), nil
}

// NewWithSink creates a publisher over any sink. instance tags every payload
// so the sending instance can skip its own messages.
func NewWithSink(sink messaging.Sink, instance string, log *logger.Logger) *AttendanceEventPublisher {
	return &AttendanceEventPublisher{
		publisher: sink,
		instance:  instance,
		logger:    log,
	}
}

// Instance returns the tag carried by every published payload
func (p *AttendanceEventPublisher) Instance() string {
	return p.instance
}

// PublishScheduleCreated publishes a schedule created event
func (p *AttendanceEventPublisher) PublishScheduleCreated(ctx context.Context, record *domain.ScheduleRecord) {
	p.publishSchedule(ctx, messaging.EventScheduleCreated, record, domain.Date{})
}

// PublishScheduleUpdated publishes a schedule updated event.
// previous is the date the schedule had before the update.
func (p *AttendanceEventPublisher) PublishScheduleUpdated(ctx context.Context, record *domain.ScheduleRecord, previous domain.Date) {
	p.publishSchedule(ctx, messaging.EventScheduleUpdated, record, previous)
}

// PublishScheduleDeleted publishes a schedule deleted event
func (p *AttendanceEventPublisher) PublishScheduleDeleted(ctx context.Context, record *domain.ScheduleRecord) {
	p.publishSchedule(ctx, messaging.EventScheduleDeleted, record, domain.Date{})
}

func (p *AttendanceEventPublisher) publishSchedule(ctx context.Context, eventType string, record *domain.ScheduleRecord, previous domain.Date) {
	data := messaging.ScheduleChangedEvent{
		ScheduleID: record.ID,
		EmployeeID: record.EmployeeID,
		Date:       record.Date.String(),
		StartTime:  record.StartTime,
		EndTime:    record.EndTime,
		Status:     string(record.Status),
		Instance:   p.instance,
	}

	if !previous.IsZero() && previous != record.Date {
		data.PreviousDate = previous.String()
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("schedule_id", record.ID).
			Msg("failed to publish schedule event")
	}
}

// PublishEventRecorded publishes an attendance recorded event
func (p *AttendanceEventPublisher) PublishEventRecorded(ctx context.Context, event *domain.AttendanceEvent) {
	data := messaging.AttendanceRecordedEvent{
		EventID:    event.ID,
		EmployeeID: event.EmployeeID,
		Date:       event.Date.String(),
		Kind:       string(event.Kind),
		Source:     string(event.Source),
		Timestamp:  event.Timestamp,
		Instance:   p.instance,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAttendanceRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to publish attendance recorded event")
	}
}
