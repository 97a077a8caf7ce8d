// Package guard gates destructive schedule writes. A schedule whose
// (employee, date) already has a check-in can no longer be changed.
package guard

import (
	"context"
	"fmt"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// Guard sits in front of a ScheduleStore. It holds no state: every check
// re-reads the attendance store, so the stores' commit order decides races.
type Guard struct {
	schedules store.ScheduleStore
	events    store.AttendanceStore
	logger    *logger.Logger
}

// New creates a guard over the two stores
func New(schedules store.ScheduleStore, events store.AttendanceStore, log *logger.Logger) *Guard {
	return &Guard{
		schedules: schedules,
		events:    events,
		logger:    log.WithComponent("mutation-guard"),
	}
}

// CanMutate reports whether the schedule of (employeeID, date) may still be
// changed, that is whether no check-in has been recorded for it.
func (g *Guard) CanMutate(ctx context.Context, employeeID string, date domain.Date) (bool, error) {
	events, err := g.events.ListByKey(ctx, employeeID, date)
	if err != nil {
		return false, fmt.Errorf("failed to read attendance for %s on %s: %w", employeeID, date, err)
	}

	for _, ev := range events {
		if ev.Kind == domain.CheckIn {
			return false, nil
		}
	}
	return true, nil
}

// Create upserts record. Overwriting an existing schedule of a checked-in
// key is blocked; a first schedule for such a key is allowed. A record that
// carries an ID is an existing schedule and goes through Update.
func (g *Guard) Create(ctx context.Context, record *domain.ScheduleRecord) (string, error) {
	if record.ID != "" {
		if err := g.Update(ctx, record); err != nil {
			return "", err
		}
		return record.ID, nil
	}

	existing, err := g.schedules.Get(ctx, record.EmployeeID, record.Date)
	if err != nil {
		return "", err
	}

	if existing != nil {
		if err := g.check(ctx, existing.Key()); err != nil {
			return "", err
		}
	}

	return g.schedules.Upsert(ctx, record)
}

// Update replaces the schedule record.ID. Both the current key and, when the
// update moves the shift, the target key must be free of check-ins.
func (g *Guard) Update(ctx context.Context, record *domain.ScheduleRecord) error {
	existing, err := g.schedules.GetByID(ctx, record.ID)
	if err != nil {
		return err
	}

	if err := g.check(ctx, existing.Key()); err != nil {
		return err
	}

	if record.Key() != existing.Key() {
		target, err := g.schedules.Get(ctx, record.EmployeeID, record.Date)
		if err != nil {
			return err
		}
		if target != nil {
			if err := g.check(ctx, target.Key()); err != nil {
				return err
			}
		}
	}

	_, err = g.schedules.Upsert(ctx, record)
	return err
}

// Delete removes the schedule id unless its key has a check-in
func (g *Guard) Delete(ctx context.Context, id string) error {
	existing, err := g.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := g.check(ctx, existing.Key()); err != nil {
		return err
	}

	return g.schedules.Delete(ctx, id)
}

func (g *Guard) check(ctx context.Context, key domain.Key) error {
	ok, err := g.CanMutate(ctx, key.EmployeeID, key.Date)
	if err != nil {
		return err
	}
	if !ok {
		g.logger.Info().
			Str("employee_id", key.EmployeeID).
			Str("date", key.Date.String()).
			Msg("schedule mutation blocked")
		return errors.MutationBlocked(key.EmployeeID, key.Date.String())
	}
	return nil
}
