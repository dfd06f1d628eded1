package schedulersvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
)

const statusRefreshJob = "refresh-track-statuses"

// Scheduler runs the periodic jobs of the api.
type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

func New(logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		logger: logger,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Register schedules fn under spec; a job registered twice replaces the previous one.
func (s *Scheduler) Register(name, spec string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return errors.Wrapf(err, "scheduling %s (%q)", name, spec)
	}
	s.jobs[name] = id
	return nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Sprintf("job %s panicked: %v", name, r))
		}
	}()
	if err := fn(context.Background()); err != nil {
		s.logger.Error(fmt.Sprintf("job %s: %v", name, err), err)
	}
}

// Next returns the next run of the named job, zero if it is unknown or the scheduler is stopped.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("scheduler started with %d job(s)", len(s.cron.Entries())))
}

// Stop waits for the running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RefreshStatusesJob persists the date-derived status of every track.
func RefreshStatusesJob(courseSvc course.Service, logger core.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		changed, err := courseSvc.RefreshStatuses(ctx, core.NowFunc())
		if err != nil {
			return errors.Wrap(err, "refreshing track statuses")
		}
		if len(changed) > 0 {
			logger.Info(fmt.Sprintf("refreshed the status of %d track(s)", len(changed)),
				map[string]interface{}{"track_ids": changed})
		}
		return nil
	}
}

// RegisterStatusRefresh schedules RefreshStatusesJob under the configured spec.
func (s *Scheduler) RegisterStatusRefresh(conf *core.Config, courseSvc course.Service) error {
	return s.Register(statusRefreshJob, conf.Scheduler.StatusRefreshSpec, RefreshStatusesJob(courseSvc, s.logger))
}
