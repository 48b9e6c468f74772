package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/lease"
	"github.com/Freeeeeet/venue_scheduler/internal/model"
	"github.com/Freeeeeet/venue_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	JobGenerateEvents = "generate_events"
	JobEndEvents      = "end_events"
)

// ScheduleLister источник расписаний для фоновых задач
type ScheduleLister interface {
	GetActiveByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	ListMaterializable(ctx context.Context) ([]*model.Schedule, error)
	ListNonRecurring(ctx context.Context) ([]*model.Schedule, error)
}

// leaseOwner реализуют локеры, которые знают владельца аренды
type leaseOwner interface {
	Owner(ctx context.Context, key string) (string, error)
}

// EventProcessor генерация и завершение событий
type EventProcessor interface {
	Materialize(ctx context.Context, req model.MaterializeRequest) (model.MaterializeResult, error)
	EndEvent(ctx context.Context, schedule *model.Schedule, endDate, today time.Time) error
}

// SchedulerOptions настройки планировщика
type SchedulerOptions struct {
	Enabled    bool
	Spec       string
	Location   *time.Location
	LeaseTTL   time.Duration
	JobTimeout time.Duration
}

// JobReport итог одного запуска задачи
type JobReport struct {
	Schedules int
	Failed    int
	Created   int
	Skipped   int
	Idle      int // расписания, которым сегодня нечего генерировать
	Ended     int
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	schedules ScheduleLister
	events    EventProcessor
	locker    lease.Locker
	opts      SchedulerOptions
	cron      *cron.Cron
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler создаёт новый планировщик
func NewScheduler(schedules ScheduleLister, events EventProcessor, locker lease.Locker, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if locker == nil {
		locker = lease.NewLocalLocker()
	}

	cl := newCronLogger(logger)

	return &Scheduler{
		schedules: schedules,
		events:    events,
		locker:    locker,
		opts:      opts,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		now:    time.Now,
	}
}

// Start регистрирует и запускает фоновые задачи. Если задачи выключены, ничего не делает.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.opts.Enabled {
		s.logger.Info("Cron jobs not started: ENABLE_CRON is false")
		return nil
	}

	s.logger.Info("Starting background scheduler", zap.String("spec", s.opts.Spec))

	jobs := []struct {
		name string
		run  func(context.Context) JobReport
	}{
		{JobGenerateEvents, s.GenerateEvents},
		{JobEndEvents, s.EndEvents},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(s.opts.Spec, func() {
			s.runLeased(ctx, job.name, job.run)
		})
		if err != nil {
			return fmt.Errorf("add cron job %s: %w", job.name, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop останавливает фоновые задачи и ждёт завершения выполняющихся
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

// RunNow выполняет обе задачи немедленно (под арендой), как при первом запуске
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runLeased(ctx, JobGenerateEvents, s.GenerateEvents)
	s.runLeased(ctx, JobEndEvents, s.EndEvents)
}

func (s *Scheduler) runLeased(ctx context.Context, name string, run func(context.Context) JobReport) {
	today := model.Today(s.now(), s.opts.Location)
	key := name + ":" + today.Format(time.DateOnly)

	acquired, err := s.locker.Acquire(ctx, key, s.opts.LeaseTTL)
	if err != nil {
		s.logger.Error("Failed to acquire job lease", zap.String("job", name), zap.Error(err))
		return
	}
	if !acquired {
		fields := []zap.Field{zap.String("job", name), zap.String("lease", key)}
		if lo, ok := s.locker.(leaseOwner); ok {
			if owner, err := lo.Owner(ctx, key); err == nil && owner != "" {
				fields = append(fields, zap.String("owner", owner))
			}
		}
		s.logger.Info("Job lease held by another instance, skipping", fields...)
		return
	}

	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}

	s.logger.Info("Running job", zap.String("job", name), zap.Time("at", s.now()))
	report := run(ctx)
	s.logger.Info("Job finished",
		zap.String("job", name),
		zap.Int("schedules", report.Schedules),
		zap.Int("failed", report.Failed),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("idle", report.Idle),
		zap.Int("ended", report.Ended),
	)
}

// GenerateEvents генерирует события для всех активных неудалённых расписаний.
// Ошибка одного расписания логируется и не прерывает обработку остальных.
func (s *Scheduler) GenerateEvents(ctx context.Context) JobReport {
	var report JobReport

	schedules, err := s.schedules.ListMaterializable(ctx)
	if err != nil {
		s.logger.Error("Failed to list schedules for event generation", zap.Error(err))
		return report
	}

	today := model.Today(s.now(), s.opts.Location)
	report.Schedules = len(schedules)

	for _, schedule := range schedules {
		result, idle, err := s.materializeSchedule(ctx, schedule, today)
		report.Created += result.Created
		report.Skipped += result.Skipped
		if idle {
			report.Idle++
		}
		if err != nil {
			report.Failed++
			s.logger.Error("Event generation failed",
				zap.String("schedule_id", schedule.ID.String()),
				zap.String("error_kind", model.ErrorKind(err)),
				zap.Error(err),
			)
		}
	}

	return report
}

// materializeSchedule генерирует события одного расписания на today.
// Если расписание изменили между чтением и вставкой, оно перечитывается и генерация повторяется один раз.
func (s *Scheduler) materializeSchedule(ctx context.Context, schedule *model.Schedule, today time.Time) (model.MaterializeResult, bool, error) {
	req, ok := model.NewMaterializeRequest(schedule, today)
	if !ok {
		s.logger.Debug("Schedule has nothing to generate today",
			zap.String("schedule_id", schedule.ID.String()),
			zap.String("today", today.Format(time.DateOnly)),
		)
		return model.MaterializeResult{}, true, nil
	}

	result, err := s.events.Materialize(ctx, req)
	if service.IsNotFound(err) {
		s.logDeactivated(schedule)
		return result, true, nil
	}
	if !errors.Is(err, model.ErrConflict) {
		return result, false, err
	}

	fresh, err := s.schedules.GetActiveByID(ctx, schedule.ID)
	if service.IsNotFound(err) {
		s.logDeactivated(schedule)
		return result, true, nil
	}
	if err != nil {
		return result, false, fmt.Errorf("reload schedule %s: %w", schedule.ID, err)
	}

	s.logger.Debug("Schedule changed during generation, retrying",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Int64("version", fresh.Version),
	)

	req, ok = model.NewMaterializeRequest(fresh, today)
	if !ok {
		return result, true, nil
	}

	retry, err := s.events.Materialize(ctx, req)
	result.Created += retry.Created
	result.Skipped += retry.Skipped
	return result, false, err
}

// logDeactivated расписание выключили или удалили после чтения списка, генерировать нечего
func (s *Scheduler) logDeactivated(schedule *model.Schedule) {
	s.logger.Debug("Schedule deactivated during generation",
		zap.String("schedule_id", schedule.ID.String()))
}

// EndEvents деактивирует события разовых расписаний с истёкшим окном
func (s *Scheduler) EndEvents(ctx context.Context) JobReport {
	var report JobReport

	schedules, err := s.schedules.ListNonRecurring(ctx)
	if err != nil {
		s.logger.Error("Failed to list non-recurring schedules", zap.Error(err))
		return report
	}

	today := model.Today(s.now(), s.opts.Location)
	report.Schedules = len(schedules)

	for _, schedule := range schedules {
		endDate := model.ResolveEndDate(schedule, today)

		err := s.events.EndEvent(ctx, schedule, endDate, today)
		switch {
		case err == nil:
			if today.After(endDate) {
				report.Ended++
			}
		case service.IsNotFound(err):
			s.logger.Debug("No active events to end",
				zap.String("schedule_id", schedule.ID.String()))
		default:
			report.Failed++
			s.logger.Error("Event ending failed",
				zap.String("schedule_id", schedule.ID.String()),
				zap.String("end_date", endDate.Format(time.DateOnly)),
				zap.String("error_kind", model.ErrorKind(err)),
				zap.Error(err),
			)
		}
	}

	return report
}
