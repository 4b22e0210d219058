package scheduler

import (
	"context"
	"errors"
	"time"

	"qc-inspector/core/models"

	"go.uber.org/zap"
)

// Trainer starts a training run; the retrain scheduler only ever needs the
// synchronous form.
type Trainer interface {
	Train(ctx context.Context, mt models.ModelType) (*models.TrainResult, error)
}

// CorpusWatcher reports how many normal samples were added since a cutoff
type CorpusWatcher interface {
	CountAddedSince(cutoff time.Time) (int, error)
}

// RetrainScheduler triggers a training run once per day, at a fixed local
// time, when new normal samples arrived since midnight. Guard contention is
// dropped, not queued: a skipped day is retried at the next scheduled tick.
type RetrainScheduler struct {
	trainer   Trainer
	corpus    CorpusWatcher
	modelType models.ModelType
	hour      int
	minute    int
	stopChan  chan struct{}
	now       func() time.Time
	log       *zap.SugaredLogger
}

// New creates a retrain scheduler firing daily at hour:minute
func New(trainer Trainer, corpus CorpusWatcher, mt models.ModelType, hour, minute int, log *zap.SugaredLogger) *RetrainScheduler {
	return &RetrainScheduler{
		trainer:   trainer,
		corpus:    corpus,
		modelType: mt,
		hour:      hour,
		minute:    minute,
		stopChan:  make(chan struct{}),
		now:       time.Now,
		log:       log,
	}
}

// Start runs the scheduler loop until the context is canceled or Stop is called
func (s *RetrainScheduler) Start(ctx context.Context) {
	for {
		next := s.nextRun(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		s.log.Infow("retrain scheduled", "at", next)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

// Stop stops the scheduler
func (s *RetrainScheduler) Stop() {
	close(s.stopChan)
}

// Tick runs one scheduled check: count samples added since local midnight,
// skip when none, otherwise attempt a training run.
func (s *RetrainScheduler) Tick(ctx context.Context) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	added, err := s.corpus.CountAddedSince(midnight)
	if err != nil {
		s.log.Errorw("retrain check failed", "error", err)
		return
	}
	if added == 0 {
		s.log.Infow("no new samples since midnight, skipping retrain")
		return
	}

	s.log.Infow("starting scheduled retrain", "model_type", s.modelType, "new_samples", added)
	result, err := s.trainer.Train(ctx, s.modelType)
	if err != nil {
		if errors.Is(err, models.ErrTrainingInProgress) {
			s.log.Infow("retrain skipped, training already in progress")
			return
		}
		s.log.Errorw("scheduled retrain failed", "model_type", s.modelType, "error", err)
		return
	}
	s.log.Infow("scheduled retrain finished", "model_type", s.modelType, "version", result.Version)
}

// nextRun returns the next occurrence of the configured time of day strictly
// after now.
func (s *RetrainScheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
