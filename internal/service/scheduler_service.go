package service

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerService wraps cron-based jobs. A job never overlaps with itself:
// a firing that comes while the previous run is still busy waits for it.
type SchedulerService struct {
	cron *cron.Cron
}

func NewSchedulerService(loc *time.Location, log *zap.Logger) *SchedulerService {
	cl := cronLogger{log: log.Named("cron").Sugar()}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(jobWrappers(cl)...),
		),
	}
}

// jobWrappers recover panics and serialize runs of the same job.
func jobWrappers(l cron.Logger) []cron.JobWrapper {
	return []cron.JobWrapper{cron.Recover(l), cron.DelayIfStillRunning(l)}
}

// ScheduleHourly registers a job that fires at minute past the hour and then
// every `every` hours.
func (s *SchedulerService) ScheduleHourly(every, minute int, job func()) (cron.EntryID, error) {
	schedule, err := newHourlySchedule(every, minute)
	if err != nil {
		return 0, err
	}
	return s.cron.Schedule(schedule, cron.FuncJob(job)), nil
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// hourlySchedule fires at HH:minute, every `every` hours.
type hourlySchedule struct {
	every  time.Duration
	minute int
}

func newHourlySchedule(every, minute int) (hourlySchedule, error) {
	if every <= 0 {
		return hourlySchedule{}, fmt.Errorf("interval must be a positive number of hours, got %d", every)
	}
	if minute < 0 || minute > 59 {
		return hourlySchedule{}, fmt.Errorf("invalid minute %d", minute)
	}
	return hourlySchedule{every: time.Duration(every) * time.Hour, minute: minute}, nil
}

// Next returns the first aligned slot after t.
func (s hourlySchedule) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), s.minute, 0, 0, t.Location())
	if next.After(t) {
		return next
	}
	return next.Add(s.every)
}

// cronLogger routes cron's logging into zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
