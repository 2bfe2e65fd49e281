// Package scheduler submits recurring download tasks on a cron schedule.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/models"
)

// Submitter starts a download task in the background.
type Submitter interface {
	Submit(params models.DownloadParams) (string, error)
}

type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	logger    *logrus.Entry
}

// New builds a scheduler whose specs carry a seconds field.
func New(submitter Submitter, logger logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		submitter: submitter,
		logger:    logger.WithField("component", "scheduler"),
	}
}

// Register submits params every time spec fires. params are validated up
// front so a bad schedule fails at startup.
func (s *Scheduler) Register(spec string, params models.DownloadParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("scheduled download: %w", err)
	}
	if _, err := s.cron.AddFunc(spec, s.job(params)); err != nil {
		return fmt.Errorf("register schedule %q: %w", spec, err)
	}
	s.logger.WithFields(logrus.Fields{"spec": spec, "exchange": params.Exchange}).Info("Download scheduled")
	return nil
}

func (s *Scheduler) job(params models.DownloadParams) func() {
	return func() {
		id, err := s.submitter.Submit(params)
		if err != nil {
			s.logger.WithError(err).Error("Scheduled download rejected")
			return
		}
		s.logger.WithField("task_id", id).Info("Scheduled download submitted")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule. Jobs already submitted keep running.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
