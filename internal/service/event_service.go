package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
)

// MaxMaterializeDays ограничивает окно генерации за один вызов
const MaxMaterializeDays = model.MaxWindowDays

// EventStore хранилище событий
type EventStore interface {
	ExistsForDay(ctx context.Context, scheduleID uuid.UUID, day time.Time) (bool, error)
	CreateForSchedule(ctx context.Context, event *model.Event, scheduleVersion int64) (bool, error)
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*model.Event, error)
	DeactivateBySchedule(ctx context.Context, scheduleID uuid.UUID) (int64, error)
	ToggleActive(ctx context.Context, scope model.EventScope) (int64, error)
	ToggleDeleted(ctx context.Context, scope model.EventScope) (int64, error)
}

type EventService struct {
	events EventStore
	logger *zap.Logger
}

func NewEventService(events EventStore, logger *zap.Logger) *EventService {
	return &EventService{
		events: events,
		logger: logger,
	}
}

// Materialize создаёт по одному событию на каждый день окна [StartDate, EndDate],
// пропуская дни, для которых живое событие уже есть
func (s *EventService) Materialize(ctx context.Context, req model.MaterializeRequest) (model.MaterializeResult, error) {
	var result model.MaterializeResult

	days, err := windowDays(req.StartDate, req.EndDate)
	if err != nil {
		return result, fmt.Errorf("materialize schedule %s: %w", req.ScheduleID, err)
	}

	for _, day := range days {
		exists, err := s.events.ExistsForDay(ctx, req.ScheduleID, day)
		if err != nil {
			return result, fmt.Errorf("materialize schedule %s on %s: %w", req.ScheduleID, day.Format(time.DateOnly), err)
		}

		if exists {
			s.logger.Debug("Event already exists, skipping",
				zap.String("schedule_id", req.ScheduleID.String()),
				zap.String("active_date", day.Format(time.DateOnly)),
			)
			result.Skipped++
			continue
		}

		activeDate := day
		event := &model.Event{
			OrganizationID: req.OrganizationID,
			BranchID:       req.BranchID,
			ScheduleID:     req.ScheduleID,
			ActiveDate:     &activeDate,
			IsActive:       true,
			IsRecurring:    req.IsRecurring,
		}

		inserted, err := s.events.CreateForSchedule(ctx, event, req.Version)
		if err != nil {
			return result, fmt.Errorf("materialize schedule %s on %s: %w", req.ScheduleID, day.Format(time.DateOnly), err)
		}

		// событие успел создать другой экземпляр
		if !inserted {
			result.Skipped++
			continue
		}

		result.Created++
	}

	if result.Created > 0 {
		s.logger.Info("Events materialized",
			zap.String("schedule_id", req.ScheduleID.String()),
			zap.Int("created", result.Created),
			zap.Int("skipped", result.Skipped),
		)
	}

	return result, nil
}

// windowDays возвращает календарные дни окна по возрастанию, включая обе границы
func windowDays(start, end time.Time) ([]time.Time, error) {
	start, end = model.DateOf(start), model.DateOf(end)

	if end.Before(start) {
		return nil, model.Invalid("end date %s is before start date %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if model.WindowDays(start, end) > MaxMaterializeDays {
		return nil, model.Invalid("window %s..%s exceeds %d days",
			start.Format(time.DateOnly), end.Format(time.DateOnly), MaxMaterializeDays)
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: start,
		Until:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("build daily rule: %w", err)
	}

	return rule.All(), nil
}

// ActivenessJob выключает все живые события расписания
func (s *EventService) ActivenessJob(ctx context.Context, scheduleID uuid.UUID) error {
	affected, err := s.events.DeactivateBySchedule(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("deactivate events of schedule %s: %w", scheduleID, err)
	}

	if affected == 0 {
		return fmt.Errorf("active events of schedule %s: %w", scheduleID, model.ErrNotFound)
	}

	s.logger.Info("Events deactivated",
		zap.String("schedule_id", scheduleID.String()),
		zap.Int64("events", affected),
	)

	return nil
}

// EndEvent завершает события разового расписания, если его окно прошло.
// Повторяющиеся расписания здесь никогда не завершаются.
func (s *EventService) EndEvent(ctx context.Context, schedule *model.Schedule, endDate, today time.Time) error {
	if schedule.IsRecurring {
		return nil
	}

	if !model.DateOf(today).After(model.DateOf(endDate)) {
		return nil
	}

	return s.ActivenessJob(ctx, schedule.ID)
}

// GetScheduleEvents возвращает живые события расписания
func (s *EventService) GetScheduleEvents(ctx context.Context, scheduleID uuid.UUID) ([]*model.Event, error) {
	return s.events.ListBySchedule(ctx, scheduleID)
}

// ToggleEventActivation переключает активность события в пределах филиала
func (s *EventService) ToggleEventActivation(ctx context.Context, scope model.EventScope) error {
	affected, err := s.events.ToggleActive(ctx, scope)
	if err != nil {
		return fmt.Errorf("toggle event activation: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("event %s: %w", scope.ID, model.ErrNotFound)
	}

	s.logger.Info("Event activation toggled",
		zap.String("event_id", scope.ID.String()),
		zap.String("schedule_id", scope.Schedule.String()),
	)

	return nil
}

// ToggleEventDeletion переключает мягкое удаление события; активное событие удалить нельзя
func (s *EventService) ToggleEventDeletion(ctx context.Context, scope model.EventScope) error {
	affected, err := s.events.ToggleDeleted(ctx, scope)
	if err != nil {
		return fmt.Errorf("toggle event deletion: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("inactive event %s: %w", scope.ID, model.ErrNotFound)
	}

	s.logger.Info("Event deletion toggled",
		zap.String("event_id", scope.ID.String()),
		zap.String("schedule_id", scope.Schedule.String()),
	)

	return nil
}

// IsNotFound сообщает, что ошибка означает отсутствие подходящей записи
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
