// Package service runs download tasks: it ties the task manager, exchange
// adapters, the collector and storage together.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/collector"
	"github.com/navid-fn/radar-history/internal/events"
	"github.com/navid-fn/radar-history/internal/models"
	"github.com/navid-fn/radar-history/internal/storage"
)

// Tasks is the part of the task manager the service drives.
type Tasks interface {
	Create(params models.TaskParams) (string, error)
	Start(id string) error
	UpdateProgress(id, current string, completed, total, failed int) error
	Complete(id string) error
	Fail(id, msg string) error
}

// Options holds optional collaborators. Zero values disable them.
type Options struct {
	// SaveDir is used when a request has no save_dir.
	SaveDir string

	// BaseContext bounds background jobs started by Submit.
	BaseContext context.Context

	Publisher events.Publisher
	Mirror    storage.CandleStorage
}

type DownloadService struct {
	tasks     Tasks
	exchanges ExchangeFactory
	saveDir   string
	baseCtx   context.Context
	publisher events.Publisher
	mirror    storage.CandleStorage
	logger    *logrus.Entry

	wg sync.WaitGroup
}

func NewDownloadService(tasks Tasks, exchanges ExchangeFactory, opts Options, logger logrus.FieldLogger) *DownloadService {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.SaveDir == "" {
		opts.SaveDir = "data/crypto"
	}
	return &DownloadService{
		tasks:     tasks,
		exchanges: exchanges,
		saveDir:   opts.SaveDir,
		baseCtx:   opts.BaseContext,
		publisher: opts.Publisher,
		mirror:    opts.Mirror,
		logger:    logger.WithField("component", "download"),
	}
}

// Submit registers a task and runs it in the background. It returns as soon
// as the task exists.
func (s *DownloadService) Submit(params models.DownloadParams) (string, error) {
	id, err := s.tasks.Create(params)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Run(s.baseCtx, id, params)
	}()
	return id, nil
}

// Wait blocks until every background task has finished.
func (s *DownloadService) Wait() {
	s.wg.Wait()
}

// Run executes task id synchronously and records its outcome.
func (s *DownloadService) Run(ctx context.Context, id string, params models.DownloadParams) error {
	log := s.logger.WithField("task_id", id)
	if err := s.tasks.Start(id); err != nil {
		log.WithError(err).Error("Cannot start task")
		return err
	}

	err := s.execute(ctx, id, params)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("interrupted: %w", ctx.Err())
	}
	if err != nil {
		_ = s.tasks.Fail(id, err.Error())
		s.publish(ctx, events.Event{Type: events.TaskFailed, TaskID: id, Exchange: params.Exchange, Error: err.Error()})
		return err
	}

	_ = s.tasks.Complete(id)
	s.publish(ctx, events.Event{Type: events.TaskCompleted, TaskID: id, Exchange: params.Exchange})
	return nil
}

func (s *DownloadService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WithField("task_id", e.TaskID).WithError(err).Warn("Failed to publish event")
	}
}

func (s *DownloadService) execute(ctx context.Context, id string, params models.DownloadParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := params.Validate(); err != nil {
		return err
	}
	kind, err := models.ParseContractKind(params.CandleType)
	if err != nil {
		return err
	}
	start, end, err := params.Window()
	if err != nil {
		return err
	}
	exchange, err := s.exchanges(params.Exchange, kind)
	if err != nil {
		return err
	}

	saveDir := params.SaveDir
	if saveDir == "" {
		saveDir = s.saveDir
	}

	for _, raw := range params.Intervals {
		interval, err := models.ParseInterval(raw)
		if err != nil {
			return err
		}
		cfg := collector.Config{
			Interval:        interval,
			Kind:            kind,
			Start:           start,
			End:             end,
			MaxWorkers:      params.MaxWorkers,
			MaxRounds:       params.MaxRounds,
			Delay:           params.Delay(),
			CheckDataLength: params.SmallSampleThreshold(),
			LimitNums:       params.LimitNums,
			Symbols:         params.Symbols,
		}
		if err := s.collectInterval(ctx, id, exchange, saveDir, cfg); err != nil {
			return fmt.Errorf("interval %s: %w", interval, err)
		}
	}
	return nil
}

func (s *DownloadService) collectInterval(ctx context.Context, id string, exchange collector.Exchange, saveDir string, cfg collector.Config) error {
	log := s.logger.WithFields(logrus.Fields{"task_id": id, "interval": string(cfg.Interval)})

	bucket, err := storage.OpenBucket(ctx, saveDir, string(cfg.Interval))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	hooks := []storage.Option{
		storage.WithHook(storage.LogHook(log)),
		storage.WithHook(events.SavedHook(s.publisher, events.Event{
			TaskID:   id,
			Exchange: exchange.Name(),
			Interval: string(cfg.Interval),
			Location: saveDir,
		})),
	}
	if s.mirror != nil {
		hooks = append(hooks, storage.WithHook(storage.MirrorHook(s.mirror, exchange.Name(), string(cfg.Interval))))
	}
	files := storage.NewFileStore(bucket, log, hooks...)
	defer files.Close()

	c, err := collector.New(cfg, exchange, files, log)
	if err != nil {
		return err
	}

	res, err := c.Run(ctx, func(p models.Progress) {
		if err := s.tasks.UpdateProgress(id, p.Current, p.Completed, p.Total, p.Failed); err != nil {
			log.WithError(err).Debug("Progress update rejected")
		}
	})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"symbols":       len(res.Symbols),
		"failed":        len(res.Failed),
		"small_samples": len(res.SmallSamples),
		"saved":         res.Saved,
	}).Info("Interval finished")
	if len(res.Failed) > 0 {
		log.WithField("symbols", res.Failed).Warn("Symbols without a complete download")
	}
	return nil
}
