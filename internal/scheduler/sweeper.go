// Package scheduler runs the periodic completion sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/ledger"
)

// Completer is the part of the ledger the sweeper drives.
type Completer interface {
	CompleteExpired(ctx context.Context) (ledger.SweepResult, error)
}

// SweepRecorder receives one sample per run.
type SweepRecorder interface {
	RecordSweep(completed int, err error)
}

// Sweeper calls CompleteExpired on a cron schedule. Overlapping runs are
// skipped rather than queued.
type Sweeper struct {
	cron    *cron.Cron
	ledger  Completer
	metrics SweepRecorder
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewSweeper parses spec (standard five-field cron or a descriptor such as
// "@every 1m") and returns a stopped sweeper.
func NewSweeper(spec string, l Completer, metrics SweepRecorder, log logrus.FieldLogger) (*Sweeper, error) {
	log = log.WithField("component", "sweeper")
	s := &Sweeper{
		ledger:  l,
		metrics: metrics,
		log:     log,
		timeout: 30 * time.Second,
	}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{log}),
		cron.SkipIfStillRunning(cronLogger{log}),
	))
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduler: bad sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running the schedule in its own goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep, or ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (ledger.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.ledger.CompleteExpired(ctx)
	if s.metrics != nil {
		s.metrics.RecordSweep(len(res.Completed), err)
	}
	if err != nil {
		s.log.WithError(err).Error("sweep failed")
		return res, err
	}
	if len(res.Completed) > 0 || res.Reconciled > 0 {
		s.log.WithFields(logrus.Fields{
			"completed":  len(res.Completed),
			"reconciled": res.Reconciled,
		}).Info("sweep finished")
	}
	return res, nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct{ log logrus.FieldLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.WithFields(fields(kv)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.WithError(err).WithFields(fields(kv)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
