// Package memstore хранит расписания и события в памяти с той же семантикой,
// что и репозитории Postgres. Используется в тестах и локальных прогонах.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	schedules []*model.Schedule
	events    []*model.Event
	writes    int
	failures  map[uuid.UUID]error
	now       func() time.Time
}

func New() *Store {
	return &Store{
		failures: make(map[uuid.UUID]error),
		now:      time.Now,
	}
}

// FailEventsFor заставляет операции с событиями расписания возвращать err
func (s *Store) FailEventsFor(scheduleID uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[scheduleID] = err
}

// Writes количество выполненных записей
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Put кладёт расписание как есть, без проверок
func (s *Store) Put(schedule *model.Schedule) *model.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.Version == 0 {
		schedule.Version = 1
	}
	cp := *schedule
	s.schedules = append(s.schedules, &cp)
	return schedule
}

// Schedule возвращает копию расписания по ID
func (s *Store) Schedule(id uuid.UUID) (*model.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range s.schedules {
		if sc.ID == id {
			cp := *sc
			return &cp, true
		}
	}
	return nil, false
}

// Events возвращает копии всех событий расписания, включая удалённые
func (s *Store) Events(scheduleID uuid.UUID) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Event
	for _, ev := range s.events {
		if ev.ScheduleID == scheduleID {
			out = append(out, *ev)
		}
	}
	return out
}

func (s *Store) Create(_ context.Context, schedule *model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	schedule.ID = uuid.New()
	schedule.Version = 1
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	cp := *schedule
	s.schedules = append(s.schedules, &cp)
	s.writes++
	return nil
}

func (s *Store) GetActiveByID(_ context.Context, id uuid.UUID) (*model.Schedule, error) {
	return s.findOne(func(sc *model.Schedule) bool {
		return sc.ID == id && sc.IsActive && !sc.IsDeleted
	})
}

func (s *Store) ListByOrganization(_ context.Context, organizationID uuid.UUID) ([]*model.Schedule, error) {
	return s.filter(func(sc *model.Schedule) bool {
		return sc.OrganizationID == organizationID && !sc.IsDeleted
	}), nil
}

func (s *Store) ListByBranch(_ context.Context, organizationID, branchID uuid.UUID) ([]*model.Schedule, error) {
	return s.filter(func(sc *model.Schedule) bool {
		return sc.OrganizationID == organizationID && sc.BranchID == branchID && !sc.IsDeleted
	}), nil
}

func (s *Store) ListMaterializable(_ context.Context) ([]*model.Schedule, error) {
	return s.filter(func(sc *model.Schedule) bool {
		return sc.IsActive && !sc.IsDeleted
	}), nil
}

func (s *Store) ListNonRecurring(_ context.Context) ([]*model.Schedule, error) {
	return s.filter(func(sc *model.Schedule) bool {
		return !sc.IsRecurring && !sc.IsDeleted
	}), nil
}

func (s *Store) Transition(_ context.Context, scope model.ScheduleScope, fn func(*model.Schedule) error) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range s.schedules {
		if !scope.Matches(sc) || sc.IsDeleted {
			continue
		}

		next := *sc
		if err := fn(&next); err != nil {
			return nil, err
		}
		if err := next.Validate(); err != nil {
			return nil, err
		}

		next.Version++
		next.UpdatedAt = s.now()
		*sc = next
		s.writes++

		cp := next
		return &cp, nil
	}

	return nil, fmt.Errorf("schedule %s: %w", scope.ID, model.ErrNotFound)
}

func (s *Store) ExistsForDay(_ context.Context, scheduleID uuid.UUID, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[scheduleID]; err != nil {
		return false, model.NewStoreError("check event existence", err)
	}

	return s.liveEventLocked(scheduleID, model.DateOf(day)) != nil, nil
}

func (s *Store) CreateForSchedule(_ context.Context, event *model.Event, scheduleVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[event.ScheduleID]; err != nil {
		return false, model.NewStoreError("insert event", err)
	}

	var schedule *model.Schedule
	for _, sc := range s.schedules {
		if sc.ID == event.ScheduleID && sc.IsActive && !sc.IsDeleted {
			schedule = sc
		}
	}
	if schedule == nil {
		return false, fmt.Errorf("schedule %s is no longer active: %w", event.ScheduleID, model.ErrNotFound)
	}
	if schedule.Version != scheduleVersion {
		return false, fmt.Errorf("schedule %s changed: %w", event.ScheduleID, model.ErrConflict)
	}

	if event.ActiveDate != nil && s.liveEventLocked(event.ScheduleID, model.DateOf(*event.ActiveDate)) != nil {
		return false, nil
	}

	now := s.now()
	event.ID = uuid.New()
	event.CreatedAt = now
	event.UpdatedAt = now

	cp := *event
	s.events = append(s.events, &cp)
	s.writes++
	return true, nil
}

func (s *Store) ListBySchedule(_ context.Context, scheduleID uuid.UUID) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Event
	for _, ev := range s.events {
		if ev.ScheduleID == scheduleID && !ev.IsDeleted {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) DeactivateBySchedule(_ context.Context, scheduleID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[scheduleID]; err != nil {
		return 0, model.NewStoreError("deactivate events", err)
	}

	var affected int64
	for _, ev := range s.events {
		if ev.ScheduleID == scheduleID && !ev.IsDeleted && ev.IsActive {
			ev.IsActive = false
			ev.UpdatedAt = s.now()
			affected++
		}
	}
	s.writes += int(affected)
	return affected, nil
}

func (s *Store) ToggleActive(_ context.Context, scope model.EventScope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.events {
		if ev.ID == scope.ID && ev.ScheduleID == scope.Schedule && ev.BranchID == scope.Branch && !ev.IsDeleted {
			ev.IsActive = !ev.IsActive
			ev.UpdatedAt = s.now()
			s.writes++
			return 1, nil
		}
	}
	return 0, nil
}

func (s *Store) ToggleDeleted(_ context.Context, scope model.EventScope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.events {
		if ev.ID == scope.ID && ev.ScheduleID == scope.Schedule && ev.BranchID == scope.Branch && !ev.IsActive {
			if ev.IsDeleted && ev.ActiveDate != nil && s.liveEventLocked(ev.ScheduleID, *ev.ActiveDate) != nil {
				return 0, fmt.Errorf("restore event %s: %w", ev.ID, model.ErrConflict)
			}
			ev.IsDeleted = !ev.IsDeleted
			ev.UpdatedAt = s.now()
			s.writes++
			return 1, nil
		}
	}
	return 0, nil
}

func (s *Store) liveEventLocked(scheduleID uuid.UUID, day time.Time) *model.Event {
	for _, ev := range s.events {
		if ev.ScheduleID == scheduleID && !ev.IsDeleted && ev.ActiveDate != nil && ev.ActiveDate.Equal(day) {
			return ev
		}
	}
	return nil
}

func (s *Store) findOne(match func(*model.Schedule) bool) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range s.schedules {
		if match(sc) {
			cp := *sc
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *Store) filter(match func(*model.Schedule) bool) []*model.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Schedule
	for _, sc := range s.schedules {
		if match(sc) {
			cp := *sc
			out = append(out, &cp)
		}
	}
	return out
}
