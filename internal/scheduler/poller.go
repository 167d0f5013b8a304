package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/metrics"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/fundacion-cms/content-scheduler/internal/tracing"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultBatchSize = 100

// FailureNotifier is told about every schedule a poller pass records as failed.
type FailureNotifier interface {
	ScheduleFailed(ctx context.Context, res Result) error
}

type Poller struct {
	schedules repository.ScheduleRepository
	executor  *Executor
	notifier  FailureNotifier
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// NewPoller builds a poller. notifier may be nil.
func NewPoller(schedules repository.ScheduleRepository, executor *Executor, notifier FailureNotifier, logger *slog.Logger, batchSize int) *Poller {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Poller{
		schedules: schedules,
		executor:  executor,
		notifier:  notifier,
		logger:    logger.With("component", "poller"),
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Summary aggregates one ProcessPending pass.
type Summary struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"` // handled concurrently by another pass
	Errors    []string `json:"errors"`
}

// ProcessPending executes due PENDING schedules, oldest first. A limit <= 0 uses
// the poller's batch size. Only a failure to list due schedules is returned as an
// error; per-schedule failures land in the summary.
func (p *Poller) ProcessPending(ctx context.Context, limit int) (Summary, error) {
	if limit <= 0 {
		limit = p.batchSize
	}

	start := time.Now()
	defer func() { metrics.PollerCycleDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := tracing.StartSpan(ctx, "poller.process_pending", attribute.Int("poller.limit", limit))
	defer span.End()

	due, err := p.schedules.ListDue(ctx, p.now(), limit)
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("list due schedules: %w", err)
	}
	metrics.PollerDueBatch.Observe(float64(len(due)))

	summary := Summary{Errors: []string{}}
	for _, s := range due {
		if ctx.Err() != nil {
			break
		}

		res := p.executor.Execute(ctx, s.ID)
		switch {
		case res.Success:
			summary.Processed++
		case errors.Is(res.Err, domain.ErrScheduleStateChanged), errors.Is(res.Err, domain.ErrScheduleNotPending):
			summary.Skipped++
		default:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", s.ID, res.Err))
			if res.Recorded == domain.StatusFailed {
				p.notify(ctx, res)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("poller.due", len(due)),
		attribute.Int("poller.processed", summary.Processed),
		attribute.Int("poller.failed", summary.Failed),
	)
	metrics.PollerLastRun.SetToCurrentTime()

	if len(due) > 0 {
		p.logger.InfoContext(ctx, "poller pass complete",
			"due", len(due),
			"processed", summary.Processed,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"duration", time.Since(start),
		)
	}
	return summary, nil
}

func (p *Poller) notify(ctx context.Context, res Result) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.ScheduleFailed(ctx, res); err != nil {
		p.logger.WarnContext(ctx, "failure alert not sent", "schedule_id", res.ScheduleID, "error", err)
	}
}

// Start triggers ProcessPending on the cron spec until ctx is cancelled. A pass
// still running when the next tick fires is not overlapped.
func (p *Poller) Start(ctx context.Context, spec string) error {
	cl := cronLogger{p.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(spec, func() {
		if _, err := p.ProcessPending(ctx, p.batchSize); err != nil {
			p.logger.ErrorContext(ctx, "poller pass", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}

	c.Start()
	p.logger.Info("poller started", "schedule", spec, "batch_size", p.batchSize)

	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Info("poller shut down")
	return nil
}

// cronLogger routes robfig/cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
