package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/Freeeeeet/venue_scheduler/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func newOneOffSchedule(start, end time.Time) *model.Schedule {
	return &model.Schedule{
		OrganizationID: uuid.New(),
		BranchID:       uuid.New(),
		Name:           "Jazz night",
		StartDate:      ptr(start),
		EndDate:        ptr(end),
		RecurringType:  model.RecurringDaily,
		IsActive:       true,
	}
}

func request(t *testing.T, s *model.Schedule, today time.Time) model.MaterializeRequest {
	t.Helper()
	req, ok := model.NewMaterializeRequest(s, today)
	require.True(t, ok, "schedule %s has nothing to generate on %s", s.ID, today.Format(time.DateOnly))
	return req
}

func activeDates(events []model.Event) []time.Time {
	var out []time.Time
	for _, ev := range events {
		if !ev.IsDeleted && ev.ActiveDate != nil {
			out = append(out, *ev.ActiveDate)
		}
	}
	return out
}

func TestMaterialize_OneEventPerDayOfWindow(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 3)))
	req := request(t, schedule, date(2025, 1, 1))

	result, err := svc.Materialize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, []time.Time{date(2025, 1, 1), date(2025, 1, 2), date(2025, 1, 3)}, activeDates(store.Events(schedule.ID)))

	for _, ev := range store.Events(schedule.ID) {
		assert.Equal(t, schedule.OrganizationID, ev.OrganizationID)
		assert.Equal(t, schedule.BranchID, ev.BranchID)
		assert.True(t, ev.IsActive)
		assert.False(t, ev.IsRecurring)
	}
}

func TestMaterialize_SecondRunIsNoop(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 3)))
	req := request(t, schedule, date(2025, 1, 1))

	_, err := svc.Materialize(context.Background(), req)
	require.NoError(t, err)
	before := len(store.Events(schedule.ID))

	result, err := svc.Materialize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, before, len(store.Events(schedule.ID)))
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 3, result.Skipped)
}

func TestMaterialize_FillsOnlyMissingDays(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 2), date(2025, 1, 2)))
	_, err := svc.Materialize(context.Background(), request(t, schedule, date(2025, 1, 2)))
	require.NoError(t, err)

	req := request(t, schedule, date(2025, 1, 2))
	req.StartDate, req.EndDate = date(2025, 1, 1), date(2025, 1, 3)

	result, err := svc.Materialize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, store.Events(schedule.ID), 3)
}

func TestMaterialize_RecurringWithoutWindowUsesToday(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(&model.Schedule{
		OrganizationID: uuid.New(),
		BranchID:       uuid.New(),
		IsRecurring:    true,
		RecurringType:  model.RecurringWeekly,
		IsActive:       true,
	})
	today := date(2026, 3, 14)

	result, err := svc.Materialize(context.Background(), request(t, schedule, today))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	events := store.Events(schedule.ID)
	require.Len(t, events, 1)
	assert.Equal(t, today, *events[0].ActiveDate)
	assert.True(t, events[0].IsRecurring)

	// на следующий день появляется ещё одно событие
	_, err = svc.Materialize(context.Background(), request(t, schedule, today.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Len(t, store.Events(schedule.ID), 2)
}

func TestMaterialize_RejectsInvertedWindow(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 3), date(2025, 1, 1)))

	_, err := svc.Materialize(context.Background(), request(t, schedule, date(2025, 1, 1)))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Empty(t, store.Events(schedule.ID))
}

func TestMaterialize_RejectsOversizedWindow(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 1)))
	req := request(t, schedule, date(2025, 1, 1))
	req.EndDate = date(2026, 6, 1)

	_, err := svc.Materialize(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Zero(t, store.Writes())
}

func TestMaterialize_FullYearWindow(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2024, 1, 1), date(2024, 12, 31)))

	result, err := svc.Materialize(context.Background(), request(t, schedule, date(2024, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, model.MaxWindowDays, result.Created)
}

func TestMaterialize_StaleSnapshotConflicts(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 1)))
	req := request(t, schedule, date(2025, 1, 1))

	// расписание изменили после того, как драйвер его прочитал
	_, err := store.Transition(context.Background(),
		model.ScheduleScope{ID: schedule.ID, Branch: schedule.BranchID, Organization: schedule.OrganizationID},
		func(s *model.Schedule) error {
			s.SetStudentEvent(true)
			return nil
		})
	require.NoError(t, err)

	_, err = svc.Materialize(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Empty(t, store.Events(schedule.ID))
}

func TestMaterialize_StoreErrorIsReturned(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 2)))
	store.FailEventsFor(schedule.ID, errors.New("connection reset"))

	_, err := svc.Materialize(context.Background(), request(t, schedule, date(2025, 1, 1)))

	var storeErr *model.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestEndEvent_ExpiresElapsedOneOffSchedule(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 2)))
	_, err := svc.Materialize(ctx, request(t, schedule, date(2025, 1, 1)))
	require.NoError(t, err)

	// в последний день окна события ещё активны
	require.NoError(t, svc.EndEvent(ctx, schedule, *schedule.EndDate, date(2025, 1, 2)))
	for _, ev := range store.Events(schedule.ID) {
		assert.True(t, ev.IsActive)
	}

	require.NoError(t, svc.EndEvent(ctx, schedule, *schedule.EndDate, date(2025, 1, 3)))
	for _, ev := range store.Events(schedule.ID) {
		assert.False(t, ev.IsActive)
	}

	// повторный запуск не включает события обратно
	err = svc.EndEvent(ctx, schedule, *schedule.EndDate, date(2025, 1, 4))
	assert.ErrorIs(t, err, model.ErrNotFound)
	for _, ev := range store.Events(schedule.ID) {
		assert.False(t, ev.IsActive)
	}
}

func TestEndEvent_NeverExpiresRecurringSchedule(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 1)))
	_, err := svc.Materialize(ctx, request(t, schedule, date(2025, 1, 1)))
	require.NoError(t, err)

	recurring := *schedule
	recurring.IsRecurring = true

	require.NoError(t, svc.EndEvent(ctx, &recurring, date(2025, 1, 1), date(2025, 6, 1)))
	for _, ev := range store.Events(schedule.ID) {
		assert.True(t, ev.IsActive)
	}
}

func TestActivenessJob_NoEventsIsNotFound(t *testing.T) {
	svc := NewEventService(memstore.New(), zaptest.NewLogger(t))

	err := svc.ActivenessJob(context.Background(), uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestToggleEventDeletion_OnlyInactiveEvents(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 1)))
	_, err := svc.Materialize(ctx, request(t, schedule, date(2025, 1, 1)))
	require.NoError(t, err)

	event := store.Events(schedule.ID)[0]
	scope := model.EventScope{ID: event.ID, Schedule: schedule.ID, Branch: schedule.BranchID}

	err = svc.ToggleEventDeletion(ctx, scope)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, svc.ToggleEventActivation(ctx, scope))
	require.NoError(t, svc.ToggleEventDeletion(ctx, scope))

	live, err := svc.GetScheduleEvents(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	// после удаления день снова можно сгенерировать
	result, err := svc.Materialize(ctx, request(t, schedule, date(2025, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	// восстановление удалённого события конфликтует с новым
	err = svc.ToggleEventDeletion(ctx, scope)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestToggleEventActivation_WrongBranch(t *testing.T) {
	store := memstore.New()
	svc := NewEventService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	schedule := store.Put(newOneOffSchedule(date(2025, 1, 1), date(2025, 1, 1)))
	_, err := svc.Materialize(ctx, request(t, schedule, date(2025, 1, 1)))
	require.NoError(t, err)

	event := store.Events(schedule.ID)[0]
	err = svc.ToggleEventActivation(ctx, model.EventScope{ID: event.ID, Schedule: schedule.ID, Branch: uuid.New()})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, store.Events(schedule.ID)[0].IsActive)
}
