package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/Freeeeeet/venue_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const scheduleColumns = `
	id, organization_id, branch_id, name, description, image_id,
	start_date, end_date, start_time, end_time,
	is_recurring, recurring_type, is_discounted, discount_rate, is_freebie, fee,
	is_student_event, min_age_limit, max_age_limit,
	is_active, is_cancelled, is_deleted, version, created_at, updated_at`

// ScheduleRepository управляет расписаниями в базе данных
type ScheduleRepository struct {
	*base.Repository
	logger *zap.Logger
}

// NewScheduleRepository создаёт новый репозиторий
func NewScheduleRepository(pool *pgxpool.Pool, logger *zap.Logger) *ScheduleRepository {
	return &ScheduleRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	var (
		s           model.Schedule
		description *string
		startTime   pgtype.Time
		endTime     pgtype.Time
	)

	err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.BranchID,
		&s.Name,
		&description,
		&s.ImageID,
		&s.StartDate,
		&s.EndDate,
		&startTime,
		&endTime,
		&s.IsRecurring,
		&s.RecurringType,
		&s.IsDiscounted,
		&s.DiscountRate,
		&s.IsFreebie,
		&s.Fee,
		&s.IsStudentEvent,
		&s.MinAgeLimit,
		&s.MaxAgeLimit,
		&s.IsActive,
		&s.IsCancelled,
		&s.IsDeleted,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description != nil {
		s.Description = *description
	}
	s.StartTime = fromPgTime(startTime)
	s.EndTime = fromPgTime(endTime)

	return &s, nil
}

func collectSchedules(rows pgx.Rows) ([]*model.Schedule, error) {
	defer rows.Close()

	var schedules []*model.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	return schedules, nil
}

func fromPgTime(t pgtype.Time) *model.TimeOfDay {
	if !t.Valid {
		return nil
	}
	tod := model.TimeOfDayFromMicroseconds(t.Microseconds)
	return &tod
}

func toPgTime(t *model.TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: t.Microseconds(), Valid: true}
}

// Create создаёт новое расписание
func (r *ScheduleRepository) Create(ctx context.Context, schedule *model.Schedule) error {
	query := `
		INSERT INTO schedules (
			organization_id, branch_id, name, description, image_id,
			start_date, end_date, start_time, end_time,
			is_recurring, recurring_type, is_discounted, discount_rate, is_freebie, fee,
			is_student_event, min_age_limit, max_age_limit, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, version, created_at, updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		schedule.OrganizationID,
		schedule.BranchID,
		schedule.Name,
		schedule.Description,
		schedule.ImageID,
		schedule.StartDate,
		schedule.EndDate,
		toPgTime(schedule.StartTime),
		toPgTime(schedule.EndTime),
		schedule.IsRecurring,
		schedule.RecurringType,
		schedule.IsDiscounted,
		schedule.DiscountRate,
		schedule.IsFreebie,
		schedule.Fee,
		schedule.IsStudentEvent,
		schedule.MinAgeLimit,
		schedule.MaxAgeLimit,
		schedule.IsActive,
	).Scan(&schedule.ID, &schedule.Version, &schedule.CreatedAt, &schedule.UpdatedAt)

	if err != nil {
		return model.NewStoreError("create schedule", err)
	}

	return nil
}

// GetActiveByID получает активное неудалённое расписание по ID
func (r *ScheduleRepository) GetActiveByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE id = $1 AND is_deleted = false AND is_active = true
	`

	schedule, err := scanSchedule(r.QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, fmt.Errorf("get schedule %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, model.NewStoreError("get schedule by id", err)
	}

	return schedule, nil
}

// ListByOrganization получает все неудалённые расписания организации
func (r *ScheduleRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE organization_id = $1 AND is_deleted = false
		ORDER BY created_at, id
	`

	rows, err := r.Query(ctx, query, organizationID)
	if err != nil {
		return nil, model.NewStoreError("list schedules by organization", err)
	}

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, model.NewStoreError("list schedules by organization", err)
	}
	return schedules, nil
}

// ListByBranch получает все неудалённые расписания филиала
func (r *ScheduleRepository) ListByBranch(ctx context.Context, organizationID, branchID uuid.UUID) ([]*model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE organization_id = $1 AND branch_id = $2 AND is_deleted = false
		ORDER BY created_at, id
	`

	rows, err := r.Query(ctx, query, organizationID, branchID)
	if err != nil {
		return nil, model.NewStoreError("list schedules by branch", err)
	}

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, model.NewStoreError("list schedules by branch", err)
	}
	return schedules, nil
}

// ListMaterializable получает расписания, для которых генерируются события
func (r *ScheduleRepository) ListMaterializable(ctx context.Context) ([]*model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE is_active = true AND is_deleted = false
		ORDER BY created_at, id
	`

	rows, err := r.Query(ctx, query)
	if err != nil {
		return nil, model.NewStoreError("list materializable schedules", err)
	}

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, model.NewStoreError("list materializable schedules", err)
	}
	return schedules, nil
}

// ListNonRecurring получает разовые неудалённые расписания
func (r *ScheduleRepository) ListNonRecurring(ctx context.Context) ([]*model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE is_recurring = false AND is_deleted = false
		ORDER BY created_at, id
	`

	rows, err := r.Query(ctx, query)
	if err != nil {
		return nil, model.NewStoreError("list non-recurring schedules", err)
	}

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, model.NewStoreError("list non-recurring schedules", err)
	}
	return schedules, nil
}

// Transition блокирует строку расписания, применяет переход fn и сохраняет результат
// с увеличением версии. Если fn вернула ошибку или результат не проходит Validate,
// ничего не записывается.
func (r *ScheduleRepository) Transition(ctx context.Context, scope model.ScheduleScope, fn func(*model.Schedule) error) (*model.Schedule, error) {
	selectQuery := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE id = $1 AND branch_id = $2 AND organization_id = $3 AND is_deleted = false
		FOR UPDATE
	`

	updateQuery := `
		UPDATE schedules
		SET start_date = $2, end_date = $3, start_time = $4, end_time = $5,
			is_recurring = $6, recurring_type = $7, is_discounted = $8, discount_rate = $9,
			is_active = $10, is_student_event = $11,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $12
		RETURNING version, updated_at
	`

	var schedule *model.Schedule
	err := r.InTx(ctx, func(tx pgx.Tx) error {
		current, err := scanSchedule(tx.QueryRow(ctx, selectQuery, scope.ID, scope.Branch, scope.Organization))
		if base.IsNotFound(err) {
			return fmt.Errorf("schedule %s: %w", scope.ID, model.ErrNotFound)
		}
		if err != nil {
			return model.NewStoreError("lock schedule", err)
		}

		if err := fn(current); err != nil {
			return err
		}
		if err := current.Validate(); err != nil {
			return err
		}

		err = tx.QueryRow(
			ctx,
			updateQuery,
			current.ID,
			current.StartDate,
			current.EndDate,
			toPgTime(current.StartTime),
			toPgTime(current.EndTime),
			current.IsRecurring,
			current.RecurringType,
			current.IsDiscounted,
			current.DiscountRate,
			current.IsActive,
			current.IsStudentEvent,
			current.Version,
		).Scan(&current.Version, &current.UpdatedAt)
		if base.IsNotFound(err) {
			return fmt.Errorf("schedule %s version %d: %w", scope.ID, current.Version, model.ErrConflict)
		}
		if err != nil {
			return model.NewStoreError("update schedule", err)
		}

		schedule = current
		return nil
	})
	if err != nil {
		return nil, model.NewStoreError("transition schedule", err)
	}

	r.logger.Debug("Schedule transition saved",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Int64("version", schedule.Version),
	)

	return schedule, nil
}
