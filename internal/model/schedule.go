package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RecurringType string

const (
	RecurringDaily   RecurringType = "DAILY"
	RecurringWeekly  RecurringType = "WEEKLY"
	RecurringMonthly RecurringType = "MONTHLY"
	RecurringYearly  RecurringType = "YEARLY"
)

// Valid проверяет, что тип повторения из допустимого набора
func (t RecurringType) Valid() bool {
	switch t {
	case RecurringDaily, RecurringWeekly, RecurringMonthly, RecurringYearly:
		return true
	}
	return false
}

const (
	DefaultMinAgeLimit = 18
	DefaultMaxAgeLimit = 100

	// MaxWindowDays наибольшая длина окна разового расписания, включая обе границы
	MaxWindowDays = 366
)

// MaxDiscountRate верхняя граница ставки скидки в процентах
var MaxDiscountRate = decimal.NewFromInt(100)

// TimeOfDay время начала/окончания без привязки к дате
type TimeOfDay struct {
	Hour   int `json:"hour" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

// Microseconds возвращает количество микросекунд с полуночи (формат колонки time в Postgres)
func (t TimeOfDay) Microseconds() int64 {
	return int64(t.Hour*60+t.Minute) * int64(time.Minute/time.Microsecond)
}

// TimeOfDayFromMicroseconds обратное преобразование к Microseconds
func TimeOfDayFromMicroseconds(us int64) TimeOfDay {
	minutes := us / int64(time.Minute/time.Microsecond)
	return TimeOfDay{Hour: int(minutes / 60), Minute: int(minutes % 60)}
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Schedule представляет опубликованное организацией/филиалом расписание
type Schedule struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	BranchID       uuid.UUID       `json:"branch_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	ImageID        *string         `json:"image_id"`
	StartDate      *time.Time      `json:"start_date"` // у повторяющихся расписаний необязательная граница
	EndDate        *time.Time      `json:"end_date"`
	StartTime      *TimeOfDay      `json:"start_time"`
	EndTime        *TimeOfDay      `json:"end_time"`
	IsRecurring    bool            `json:"is_recurring"`
	RecurringType  RecurringType   `json:"recurring_type"`
	IsDiscounted   bool            `json:"is_discounted"`
	DiscountRate   decimal.Decimal `json:"discount_rate"` // сохраняется при выключении скидки
	IsFreebie      bool            `json:"is_freebie"`
	Fee            decimal.Decimal `json:"fee"`
	IsStudentEvent bool            `json:"is_student_event"`
	MinAgeLimit    int             `json:"min_age_limit"`
	MaxAgeLimit    int             `json:"max_age_limit"`
	IsActive       bool            `json:"is_active"`
	IsCancelled    bool            `json:"is_cancelled"`
	IsDeleted      bool            `json:"is_deleted"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ScheduleScope ограничивает изменение расписания владельцем
type ScheduleScope struct {
	ID           uuid.UUID
	Branch       uuid.UUID
	Organization uuid.UUID
}

// Matches проверяет принадлежность расписания области видимости
func (sc ScheduleScope) Matches(s *Schedule) bool {
	return s.ID == sc.ID && s.BranchID == sc.Branch && s.OrganizationID == sc.Organization
}

// RecurrenceWindow данные, которые приходят вместе с переключением повторения
type RecurrenceWindow struct {
	StartDate     *time.Time
	EndDate       *time.Time
	StartTime     *TimeOfDay
	EndTime       *TimeOfDay
	RecurringType *RecurringType
}

// Validate проверяет инварианты расписания целиком
func (s *Schedule) Validate() error {
	if !s.IsRecurring {
		if s.StartDate == nil || s.EndDate == nil {
			return Invalid("non-recurring schedule requires start_date and end_date")
		}
		if err := validateWindow(*s.StartDate, *s.EndDate); err != nil {
			return err
		}
	}
	if s.IsDiscounted {
		if err := validateRate(s.DiscountRate); err != nil {
			return err
		}
	}
	if s.RecurringType != "" && !s.RecurringType.Valid() {
		return Invalid("unknown recurring_type %q", s.RecurringType)
	}
	if s.Fee.IsNegative() {
		return Invalid("fee must be non-negative")
	}
	if s.MinAgeLimit > s.MaxAgeLimit {
		return Invalid("min_age_limit %d is greater than max_age_limit %d", s.MinAgeLimit, s.MaxAgeLimit)
	}
	return nil
}

// SetRecurring переводит расписание в повторяющееся или разовое.
// Выключение повторения требует окно дат, включение сбрасывает окно.
func (s *Schedule) SetRecurring(desired bool, w RecurrenceWindow) error {
	if w.RecurringType != nil && !w.RecurringType.Valid() {
		return Invalid("unknown recurring_type %q", *w.RecurringType)
	}
	if !desired {
		if w.StartDate == nil || w.EndDate == nil {
			return Invalid("start_date and end_date are required when recurrence is turned off")
		}
		if err := validateWindow(*w.StartDate, *w.EndDate); err != nil {
			return err
		}
		start, end := DateOf(*w.StartDate), DateOf(*w.EndDate)
		s.StartDate = &start
		s.EndDate = &end
	} else {
		s.StartDate = nil
		s.EndDate = nil
	}
	if w.RecurringType != nil {
		s.RecurringType = *w.RecurringType
	}

	s.IsRecurring = desired
	s.StartTime = w.StartTime
	s.EndTime = w.EndTime
	return nil
}

// SetDiscounted включает или выключает скидку.
// При выключении ставка не сбрасывается, при включении без новой ставки используется прежняя.
func (s *Schedule) SetDiscounted(desired bool, rate *decimal.Decimal) error {
	if desired {
		next := s.DiscountRate
		if rate != nil {
			next = *rate
		}
		if err := validateRate(next); err != nil {
			return err
		}
		s.DiscountRate = next
	}

	s.IsDiscounted = desired
	return nil
}

// SetActive активирует или деактивирует расписание
func (s *Schedule) SetActive(desired bool) {
	s.IsActive = desired
}

// SetStudentEvent помечает расписание как студенческое
func (s *Schedule) SetStudentEvent(desired bool) {
	s.IsStudentEvent = desired
}

// WindowDays количество календарных дней в окне [start, end]
func WindowDays(start, end time.Time) int {
	return int(DateOf(end).Sub(DateOf(start)).Hours()/24) + 1
}

func validateWindow(start, end time.Time) error {
	if DateOf(end).Before(DateOf(start)) {
		return Invalid("end_date %s is before start_date %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if days := WindowDays(start, end); days > MaxWindowDays {
		return Invalid("window %s..%s spans %d days, at most %d allowed",
			start.Format(time.DateOnly), end.Format(time.DateOnly), days, MaxWindowDays)
	}
	return nil
}

func validateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() || rate.GreaterThan(MaxDiscountRate) {
		return Invalid("discount_rate %s must be in (0, 100]", rate.String())
	}
	return nil
}

// DateOf отбрасывает время и возвращает полночь UTC той же календарной даты
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today возвращает текущую календарную дату в заданной временной зоне
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}
