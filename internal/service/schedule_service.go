package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScheduleStore хранилище расписаний
type ScheduleStore interface {
	Create(ctx context.Context, schedule *model.Schedule) error
	GetActiveByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*model.Schedule, error)
	ListByBranch(ctx context.Context, organizationID, branchID uuid.UUID) ([]*model.Schedule, error)
	ListMaterializable(ctx context.Context) ([]*model.Schedule, error)
	ListNonRecurring(ctx context.Context) ([]*model.Schedule, error)
	Transition(ctx context.Context, scope model.ScheduleScope, fn func(*model.Schedule) error) (*model.Schedule, error)
}

type ScheduleService struct {
	schedules ScheduleStore
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewScheduleService(schedules ScheduleStore, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		validate:  newValidator(),
		logger:    logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateDateOrder, model.ToggleRecurringInput{}, model.CreateScheduleInput{})
	v.RegisterStructValidation(validateDiscountInput, model.ToggleDiscountInput{})
	return v
}

func validateDateOrder(sl validator.StructLevel) {
	var start, end *time.Time
	switch in := sl.Current().Interface().(type) {
	case model.ToggleRecurringInput:
		start, end = in.StartDate, in.EndDate
	case model.CreateScheduleInput:
		start, end = in.StartDate, in.EndDate
	}

	if start != nil && end != nil && end.Before(*start) {
		sl.ReportError(end, "EndDate", "end_date", "gtefield", "StartDate")
	}
}

func validateDiscountInput(sl validator.StructLevel) {
	in := sl.Current().Interface().(model.ToggleDiscountInput)
	if in.Rate == nil {
		return
	}
	if !in.Rate.IsPositive() || in.Rate.GreaterThan(model.MaxDiscountRate) {
		sl.ReportError(in.Rate, "Rate", "rate", "range", "(0,100]")
	}
}

func (s *ScheduleService) validateInput(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return model.Invalid("%v", err)
	}
	return nil
}

// CreateSchedule создаёт расписание
func (s *ScheduleService) CreateSchedule(ctx context.Context, in model.CreateScheduleInput) (*model.Schedule, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	recurringType := in.RecurringType
	if recurringType == "" {
		recurringType = model.RecurringDaily
	}

	schedule := &model.Schedule{
		OrganizationID: in.Organization,
		BranchID:       in.Branch,
		Name:           in.Name,
		Description:    in.Description,
		Fee:            in.Fee,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		IsRecurring:    in.IsRecurring,
		RecurringType:  recurringType,
		IsFreebie:      in.IsFreebie,
		IsStudentEvent: in.IsStudentEvent,
		IsActive:       in.IsActive,
		MinAgeLimit:    model.DefaultMinAgeLimit,
		MaxAgeLimit:    model.DefaultMaxAgeLimit,
	}

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if err := s.schedules.Create(ctx, schedule); err != nil {
		s.logger.Error("Failed to create schedule",
			zap.String("organization_id", in.Organization.String()),
			zap.String("branch_id", in.Branch.String()),
			zap.Error(err))
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.logger.Info("Schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("branch_id", schedule.BranchID.String()),
		zap.Bool("is_recurring", schedule.IsRecurring),
	)

	return schedule, nil
}

// GetSchedule получает активное расписание по ID
func (s *ScheduleService) GetSchedule(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	return s.schedules.GetActiveByID(ctx, id)
}

// GetOrganizationSchedules получает расписания организации
func (s *ScheduleService) GetOrganizationSchedules(ctx context.Context, organizationID uuid.UUID) ([]*model.Schedule, error) {
	return s.schedules.ListByOrganization(ctx, organizationID)
}

// GetBranchSchedules получает расписания филиала
func (s *ScheduleService) GetBranchSchedules(ctx context.Context, organizationID, branchID uuid.UUID) ([]*model.Schedule, error) {
	return s.schedules.ListByBranch(ctx, organizationID, branchID)
}

// ToggleRecurring переключает повторение расписания
func (s *ScheduleService) ToggleRecurring(ctx context.Context, id uuid.UUID, in model.ToggleRecurringInput) (*model.Schedule, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	scope := model.ScheduleScope{ID: id, Branch: in.Branch, Organization: in.Organization}
	schedule, err := s.schedules.Transition(ctx, scope, func(sc *model.Schedule) error {
		return sc.SetRecurring(!sc.IsRecurring, in.Window())
	})
	if err != nil {
		return nil, fmt.Errorf("toggle recurring: %w", err)
	}

	s.logger.Info("Schedule recurrence toggled",
		zap.String("schedule_id", id.String()),
		zap.Bool("is_recurring", schedule.IsRecurring),
		zap.String("recurring_type", string(schedule.RecurringType)),
	)

	return schedule, nil
}

// ToggleDiscount переключает скидку расписания
func (s *ScheduleService) ToggleDiscount(ctx context.Context, id uuid.UUID, in model.ToggleDiscountInput) (*model.Schedule, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	scope := model.ScheduleScope{ID: id, Branch: in.Branch, Organization: in.Organization}
	schedule, err := s.schedules.Transition(ctx, scope, func(sc *model.Schedule) error {
		return sc.SetDiscounted(!sc.IsDiscounted, in.Rate)
	})
	if err != nil {
		return nil, fmt.Errorf("toggle discount: %w", err)
	}

	s.logger.Info("Schedule discount toggled",
		zap.String("schedule_id", id.String()),
		zap.Bool("is_discounted", schedule.IsDiscounted),
		zap.String("discount_rate", schedule.DiscountRate.String()),
	)

	return schedule, nil
}

// ToggleActivation переключает активность расписания
func (s *ScheduleService) ToggleActivation(ctx context.Context, id, branch, organization uuid.UUID) (*model.Schedule, error) {
	scope := model.ScheduleScope{ID: id, Branch: branch, Organization: organization}
	schedule, err := s.schedules.Transition(ctx, scope, func(sc *model.Schedule) error {
		sc.SetActive(!sc.IsActive)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("toggle activation: %w", err)
	}

	s.logger.Info("Schedule activation toggled",
		zap.String("schedule_id", id.String()),
		zap.Bool("is_active", schedule.IsActive),
	)

	return schedule, nil
}

// SetStudentSchedule переключает признак студенческого расписания
func (s *ScheduleService) SetStudentSchedule(ctx context.Context, id, branch, organization uuid.UUID) (*model.Schedule, error) {
	scope := model.ScheduleScope{ID: id, Branch: branch, Organization: organization}
	schedule, err := s.schedules.Transition(ctx, scope, func(sc *model.Schedule) error {
		sc.SetStudentEvent(!sc.IsStudentEvent)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set student schedule: %w", err)
	}

	s.logger.Info("Schedule student flag toggled",
		zap.String("schedule_id", id.String()),
		zap.Bool("is_student_event", schedule.IsStudentEvent),
	)

	return schedule, nil
}
