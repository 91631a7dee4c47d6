package jobs

import (
	"context"
	"fmt"
	"time"

	"quiz-reward-service/internal/app"
	"quiz-reward-service/internal/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper reconciles every known user.
type Sweeper interface {
	SweepAll(ctx context.Context) (app.SweepReport, error)
}

// ReconcileJob runs periodic reconciliation sweeps on a cron schedule.
// A sweep that overruns its slot makes the next one skip.
type ReconcileJob struct {
	sweeper Sweeper
	timeout time.Duration
	cron    *cron.Cron
}

func NewReconcileJob(sweeper Sweeper, schedule string, timeout time.Duration) (*ReconcileJob, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	job := &ReconcileJob{sweeper: sweeper, timeout: timeout}

	log := cronLogger{logger.Get().Sugar().Named("cron")}
	job.cron = cron.New(cron.WithLogger(log), cron.WithChain(
		cron.Recover(log),
		cron.SkipIfStillRunning(log),
	))
	if _, err := job.cron.AddJob(schedule, job); err != nil {
		return nil, fmt.Errorf("reconcile schedule %q: %w", schedule, err)
	}
	return job, nil
}

// Run performs one sweep. It satisfies cron.Job.
func (j *ReconcileJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.sweeper.SweepAll(ctx); err != nil {
		logger.Get().Warn("scheduled reconcile sweep failed", zap.Error(err))
	}
}

func (j *ReconcileJob) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *ReconcileJob) Stop() {
	<-j.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
