package model

import (
	"time"

	"github.com/google/uuid"
)

// Event конкретное датированное вхождение расписания, на которое можно бронировать
type Event struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	BranchID       uuid.UUID  `json:"branch_id"`
	ScheduleID     uuid.UUID  `json:"schedule_id"`
	ActiveDate     *time.Time `json:"active_date"`
	IsActive       bool       `json:"is_active"`
	IsDeleted      bool       `json:"is_deleted"`
	IsRecurring    bool       `json:"is_recurring"` // снимок флага расписания на момент генерации
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EventScope ограничивает переключения события владельцем
type EventScope struct {
	ID       uuid.UUID
	Schedule uuid.UUID
	Branch   uuid.UUID
}

// MaterializeRequest снимок расписания, по которому генерируются события
type MaterializeRequest struct {
	ScheduleID     uuid.UUID
	OrganizationID uuid.UUID
	BranchID       uuid.UUID
	IsRecurring    bool
	Version        int64
	StartDate      time.Time
	EndDate        time.Time
}

// MaterializeWindow возвращает окно генерации на дату today.
// Разовое расписание отдаёт своё окно целиком. Повторяющееся отдаёт только today,
// и только если today попадает в необязательные границы start_date/end_date.
func (s *Schedule) MaterializeWindow(today time.Time) (start, end time.Time, ok bool) {
	today = DateOf(today)

	if s.IsRecurring {
		if s.StartDate != nil && today.Before(DateOf(*s.StartDate)) {
			return time.Time{}, time.Time{}, false
		}
		if s.EndDate != nil && today.After(DateOf(*s.EndDate)) {
			return time.Time{}, time.Time{}, false
		}
		return today, today, true
	}

	start, end = today, today
	if s.StartDate != nil {
		start = DateOf(*s.StartDate)
	}
	if s.EndDate != nil {
		end = DateOf(*s.EndDate)
	}
	return start, end, true
}

// NewMaterializeRequest собирает запрос на дату today.
// ok == false, если расписанию сегодня нечего генерировать.
func NewMaterializeRequest(s *Schedule, today time.Time) (MaterializeRequest, bool) {
	start, end, ok := s.MaterializeWindow(today)
	if !ok {
		return MaterializeRequest{}, false
	}

	return MaterializeRequest{
		ScheduleID:     s.ID,
		OrganizationID: s.OrganizationID,
		BranchID:       s.BranchID,
		IsRecurring:    s.IsRecurring,
		Version:        s.Version,
		StartDate:      start,
		EndDate:        end,
	}, true
}

// MaterializeResult итог генерации по одному расписанию
type MaterializeResult struct {
	Created int
	Skipped int
}

// ResolveEndDate возвращает дату окончания расписания или today, если она не задана
func ResolveEndDate(s *Schedule, today time.Time) time.Time {
	if s.EndDate != nil {
		return DateOf(*s.EndDate)
	}
	return DateOf(today)
}
