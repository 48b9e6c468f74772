package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ToggleRecurringInput параметры переключения повторения
type ToggleRecurringInput struct {
	Organization  uuid.UUID      `json:"organization" validate:"required"`
	Branch        uuid.UUID      `json:"branch" validate:"required"`
	StartDate     *time.Time     `json:"start_date"`
	EndDate       *time.Time     `json:"end_date"`
	StartTime     *TimeOfDay     `json:"start_time" validate:"required"`
	EndTime       *TimeOfDay     `json:"end_time" validate:"required"`
	RecurringType *RecurringType `json:"recurring_type" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY YEARLY"`
}

// Window возвращает окно повторения из входных данных
func (in ToggleRecurringInput) Window() RecurrenceWindow {
	return RecurrenceWindow{
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		RecurringType: in.RecurringType,
	}
}

// ToggleDiscountInput параметры переключения скидки
type ToggleDiscountInput struct {
	Organization uuid.UUID        `json:"organization" validate:"required"`
	Branch       uuid.UUID        `json:"branch" validate:"required"`
	Rate         *decimal.Decimal `json:"rate"`
}

// CreateScheduleInput параметры создания расписания
type CreateScheduleInput struct {
	Organization   uuid.UUID       `json:"organization" validate:"required"`
	Branch         uuid.UUID       `json:"branch" validate:"required"`
	Name           string          `json:"name" validate:"required,min=3,max=20"`
	Description    string          `json:"description" validate:"omitempty,min=3,max=50"`
	Fee            decimal.Decimal `json:"fee"`
	StartDate      *time.Time      `json:"start_date"`
	EndDate        *time.Time      `json:"end_date"`
	StartTime      *TimeOfDay      `json:"start_time"`
	EndTime        *TimeOfDay      `json:"end_time"`
	IsRecurring    bool            `json:"is_recurring"`
	RecurringType  RecurringType   `json:"recurring_type" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY YEARLY"`
	IsFreebie      bool            `json:"is_freebie"`
	IsStudentEvent bool            `json:"is_student_event"`
	IsActive       bool            `json:"is_active"`
}
