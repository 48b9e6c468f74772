package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/Freeeeeet/venue_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	*base.Repository
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{Repository: base.NewRepository(pool)}
}

// ExistsForDay проверяет, есть ли живое событие расписания на дату
func (r *EventRepository) ExistsForDay(ctx context.Context, scheduleID uuid.UUID, day time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM events
			WHERE schedule_id = $1 AND active_date = $2 AND is_deleted = false
		)
	`

	var exists bool
	err := r.QueryRow(ctx, query, scheduleID, model.DateOf(day)).Scan(&exists)
	if err != nil {
		return false, model.NewStoreError("check event existence", err)
	}

	return exists, nil
}

// CreateForSchedule создаёт событие, если расписание всё ещё активно и не изменилось
// с версии scheduleVersion. Возвращает false, если событие на эту дату уже есть.
func (r *EventRepository) CreateForSchedule(ctx context.Context, event *model.Event, scheduleVersion int64) (bool, error) {
	lockQuery := `
		SELECT version FROM schedules
		WHERE id = $1 AND is_deleted = false AND is_active = true
		FOR SHARE
	`

	insertQuery := `
		INSERT INTO events (organization_id, branch_id, schedule_id, active_date, is_active, is_recurring)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (schedule_id, active_date) WHERE is_deleted = false DO NOTHING
		RETURNING id, created_at, updated_at
	`

	inserted := false
	err := r.InTx(ctx, func(tx pgx.Tx) error {
		var version int64
		err := tx.QueryRow(ctx, lockQuery, event.ScheduleID).Scan(&version)
		if base.IsNotFound(err) {
			return fmt.Errorf("schedule %s is no longer active: %w", event.ScheduleID, model.ErrNotFound)
		}
		if err != nil {
			return model.NewStoreError("lock schedule", err)
		}
		if version != scheduleVersion {
			return fmt.Errorf("schedule %s changed (version %d, snapshot %d): %w",
				event.ScheduleID, version, scheduleVersion, model.ErrConflict)
		}

		err = tx.QueryRow(
			ctx,
			insertQuery,
			event.OrganizationID,
			event.BranchID,
			event.ScheduleID,
			event.ActiveDate,
			event.IsActive,
			event.IsRecurring,
		).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
		if base.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return model.NewStoreError("insert event", err)
		}

		inserted = true
		return nil
	})
	if err != nil {
		return false, model.NewStoreError("create event", err)
	}

	return inserted, nil
}

// ListBySchedule получает живые события расписания
func (r *EventRepository) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*model.Event, error) {
	query := `
		SELECT id, organization_id, branch_id, schedule_id, active_date, is_active, is_deleted, is_recurring, created_at, updated_at
		FROM events
		WHERE schedule_id = $1 AND is_deleted = false
		ORDER BY active_date NULLS LAST, created_at
	`

	rows, err := r.Query(ctx, query, scheduleID)
	if err != nil {
		return nil, model.NewStoreError("list events by schedule", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var event model.Event
		err := rows.Scan(
			&event.ID,
			&event.OrganizationID,
			&event.BranchID,
			&event.ScheduleID,
			&event.ActiveDate,
			&event.IsActive,
			&event.IsDeleted,
			&event.IsRecurring,
			&event.CreatedAt,
			&event.UpdatedAt,
		)
		if err != nil {
			return nil, model.NewStoreError("scan event", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("iterate events", err)
	}

	return events, nil
}

// DeactivateBySchedule выключает все живые активные события расписания
func (r *EventRepository) DeactivateBySchedule(ctx context.Context, scheduleID uuid.UUID) (int64, error) {
	query := `
		UPDATE events
		SET is_active = false, updated_at = now()
		WHERE schedule_id = $1 AND is_deleted = false AND is_active = true
	`

	affected, err := r.ExecAffected(ctx, query, scheduleID)
	if err != nil {
		return 0, model.NewStoreError("deactivate events", err)
	}
	return affected, nil
}

// ToggleActive переключает активность живого события
func (r *EventRepository) ToggleActive(ctx context.Context, scope model.EventScope) (int64, error) {
	query := `
		UPDATE events
		SET is_active = NOT is_active, updated_at = now()
		WHERE id = $1 AND schedule_id = $2 AND branch_id = $3 AND is_deleted = false
	`

	affected, err := r.ExecAffected(ctx, query, scope.ID, scope.Schedule, scope.Branch)
	if err != nil {
		return 0, model.NewStoreError("toggle event activeness", err)
	}
	return affected, nil
}

// ToggleDeleted переключает мягкое удаление неактивного события
func (r *EventRepository) ToggleDeleted(ctx context.Context, scope model.EventScope) (int64, error) {
	query := `
		UPDATE events
		SET is_deleted = NOT is_deleted, updated_at = now()
		WHERE id = $1 AND schedule_id = $2 AND branch_id = $3 AND is_active = false
	`

	affected, err := r.ExecAffected(ctx, query, scope.ID, scope.Schedule, scope.Branch)
	if base.IsUniqueViolation(err) {
		return 0, fmt.Errorf("restore event %s: live event for the same day exists: %w", scope.ID, model.ErrConflict)
	}
	if err != nil {
		return 0, model.NewStoreError("toggle event deletion", err)
	}
	return affected, nil
}
