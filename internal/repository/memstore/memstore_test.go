package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneOff() *model.Schedule {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)
	return &model.Schedule{
		OrganizationID: uuid.New(),
		BranchID:       uuid.New(),
		StartDate:      &start,
		EndDate:        &end,
		IsActive:       true,
	}
}

func scopeOf(s *model.Schedule) model.ScheduleScope {
	return model.ScheduleScope{ID: s.ID, Branch: s.BranchID, Organization: s.OrganizationID}
}

func TestTransition_InvalidResultIsNotWritten(t *testing.T) {
	store := New()
	schedule := store.Put(oneOff())

	_, err := store.Transition(context.Background(), scopeOf(schedule), func(s *model.Schedule) error {
		s.EndDate = nil
		return nil
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Zero(t, store.Writes())

	stored, ok := store.Schedule(schedule.ID)
	require.True(t, ok)
	assert.NotNil(t, stored.EndDate)
	assert.Equal(t, int64(1), stored.Version)
}

func TestTransition_BumpsVersion(t *testing.T) {
	store := New()
	schedule := store.Put(oneOff())

	updated, err := store.Transition(context.Background(), scopeOf(schedule), func(s *model.Schedule) error {
		s.SetStudentEvent(true)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, 1, store.Writes())
}

func TestCreateForSchedule_SameDayOnce(t *testing.T) {
	store := New()
	schedule := store.Put(oneOff())
	day := *schedule.StartDate

	newEvent := func() *model.Event {
		d := day
		return &model.Event{ScheduleID: schedule.ID, BranchID: schedule.BranchID, ActiveDate: &d, IsActive: true}
	}

	inserted, err := store.CreateForSchedule(context.Background(), newEvent(), schedule.Version)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.CreateForSchedule(context.Background(), newEvent(), schedule.Version)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = store.CreateForSchedule(context.Background(), newEvent(), schedule.Version+1)
	assert.ErrorIs(t, err, model.ErrConflict)

	assert.Len(t, store.Events(schedule.ID), 1)
}
