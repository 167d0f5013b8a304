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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Executor applies one schedule's content mutation and records the outcome on the schedule.
type Executor struct {
	schedules repository.ScheduleRepository
	contents  repository.ContentRepository
	logger    *slog.Logger
	now       func() time.Time
}

func NewExecutor(schedules repository.ScheduleRepository, contents repository.ContentRepository, logger *slog.Logger) *Executor {
	return &Executor{
		schedules: schedules,
		contents:  contents,
		logger:    logger.With("component", "executor"),
		now:       time.Now,
	}
}

// Result is the outcome of one execution attempt. Execute and Retry never return
// a Go error: everything is reported here.
type Result struct {
	ScheduleID  string
	ContentID   string // empty when the schedule could not be loaded
	ContentType domain.ContentType
	Action      domain.Action
	Success     bool
	// Recorded is the status written to the schedule, empty when nothing was written.
	Recorded domain.Status
	// Reason is the failure reason stored on the schedule when Recorded is failed.
	Reason string
	Err    error
}

// Execute runs a PENDING schedule regardless of its scheduled date.
func (e *Executor) Execute(ctx context.Context, scheduleID string) Result {
	return e.run(ctx, scheduleID, domain.StatusPending, domain.ErrScheduleNotPending)
}

// Retry re-runs a FAILED schedule. Success moves it to executed, another failure
// keeps it failed with the new reason.
func (e *Executor) Retry(ctx context.Context, scheduleID string) Result {
	return e.run(ctx, scheduleID, domain.StatusFailed, domain.ErrScheduleNotFailed)
}

func (e *Executor) run(ctx context.Context, scheduleID string, expected domain.Status, wrongState error) Result {
	ctx, span := tracing.StartSpan(ctx, "schedule.execute",
		attribute.String("schedule.id", scheduleID),
		attribute.String("schedule.expected_status", string(expected)),
	)
	defer span.End()

	metrics.ExecutionsInFlight.Inc()
	defer metrics.ExecutionsInFlight.Dec()

	res := e.execute(ctx, scheduleID, expected, wrongState)

	span.SetAttributes(
		attribute.String("content.id", res.ContentID),
		attribute.String("content.type", string(res.ContentType)),
		attribute.String("schedule.action", string(res.Action)),
		attribute.Bool("schedule.success", res.Success),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}

	metrics.ExecutionsTotal.WithLabelValues(string(res.ContentType), string(res.Action), outcome(res)).Inc()
	return res
}

func (e *Executor) execute(ctx context.Context, scheduleID string, expected domain.Status, wrongState error) Result {
	s, err := e.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		if !errors.Is(err, domain.ErrScheduleNotFound) {
			err = fmt.Errorf("load schedule: %w", err)
		}
		e.logger.WarnContext(ctx, "schedule not loaded", "schedule_id", scheduleID, "error", err)
		return Result{ScheduleID: scheduleID, Err: err}
	}

	res := Result{
		ScheduleID:  s.ID,
		ContentID:   s.ContentID,
		ContentType: s.ContentType,
		Action:      s.Action,
	}
	if s.Status != expected {
		res.Err = wrongState
		return res
	}

	target, err := domain.TargetStatus(s.ContentType, s.Action)
	if err != nil {
		reason := fmt.Sprintf("%v: %s/%s", err, s.ContentType, s.Action)
		return e.fail(ctx, s, expected, res, reason, err)
	}

	now := e.now()
	change := repository.ContentChange{Type: s.ContentType, ID: s.ContentID, Status: target}
	if err := e.apply(ctx, s.ID, expected, now, change); err != nil {
		if errors.Is(err, domain.ErrScheduleStateChanged) {
			e.logger.InfoContext(ctx, "schedule already handled elsewhere", "schedule_id", s.ID)
			res.Err = err
			return res
		}
		reason := err.Error()
		if errors.Is(err, domain.ErrContentNotFound) {
			reason = fmt.Sprintf("%s %s not found", s.ContentType, s.ContentID)
		}
		return e.fail(ctx, s, expected, res, reason, fmt.Errorf("update content: %w", err))
	}

	metrics.ExecutionLag.Observe(now.Sub(s.ScheduledDate).Seconds())
	e.logger.InfoContext(ctx, "schedule executed",
		"schedule_id", s.ID,
		"content_type", s.ContentType,
		"content_id", s.ContentID,
		"action", s.Action,
		"content_status", target,
	)

	res.Success = true
	res.Recorded = domain.StatusExecuted
	return res
}

// apply writes the content status and marks the schedule executed. Stores that
// share a database do both in one transaction; otherwise the content write goes
// first and the conditional mark decides who won.
func (e *Executor) apply(ctx context.Context, scheduleID string, expected domain.Status, at time.Time, change repository.ContentChange) error {
	if w, ok := e.contents.(repository.ScheduledContentWriter); ok {
		return w.ApplyScheduled(ctx, scheduleID, expected, at, change)
	}
	if err := e.contents.UpdateStatus(ctx, change.Type, change.ID, change.Status); err != nil {
		return err
	}
	return e.schedules.MarkExecuted(ctx, scheduleID, expected, at)
}

// fail records the failure on the schedule and returns cause as the result error.
func (e *Executor) fail(ctx context.Context, s *domain.Schedule, expected domain.Status, res Result, reason string, cause error) Result {
	res.Reason = reason
	res.Err = cause

	now := e.now()
	if err := e.schedules.MarkFailed(ctx, s.ID, expected, now, reason); err != nil {
		if errors.Is(err, domain.ErrScheduleStateChanged) {
			e.logger.InfoContext(ctx, "schedule already handled elsewhere", "schedule_id", s.ID)
			res.Err = err
			return res
		}
		e.logger.ErrorContext(ctx, "mark schedule failed", "schedule_id", s.ID, "error", err)
		res.Err = fmt.Errorf("%w (mark failed: %v)", cause, err)
		return res
	}

	metrics.ExecutionLag.Observe(now.Sub(s.ScheduledDate).Seconds())
	e.logger.WarnContext(ctx, "schedule failed",
		"schedule_id", s.ID,
		"content_type", s.ContentType,
		"content_id", s.ContentID,
		"action", s.Action,
		"reason", reason,
	)

	res.Recorded = domain.StatusFailed
	return res
}

func outcome(res Result) string {
	switch {
	case res.Success:
		return "executed"
	case res.Recorded == domain.StatusFailed:
		return "failed"
	case errors.Is(res.Err, domain.ErrScheduleStateChanged),
		errors.Is(res.Err, domain.ErrScheduleNotPending),
		errors.Is(res.Err, domain.ErrScheduleNotFailed):
		return "skipped"
	}
	return "error"
}
