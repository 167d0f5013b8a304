package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/metrics"
	"github.com/fundacion-cms/content-scheduler/internal/recurrence"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/fundacion-cms/content-scheduler/internal/scheduler"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Executor runs one schedule on demand. Satisfied by *scheduler.Executor.
type Executor interface {
	Execute(ctx context.Context, scheduleID string) scheduler.Result
	Retry(ctx context.Context, scheduleID string) scheduler.Result
}

// PendingProcessor runs one poller pass. Satisfied by *scheduler.Poller.
type PendingProcessor interface {
	ProcessPending(ctx context.Context, limit int) (scheduler.Summary, error)
}

type ScheduleUsecase struct {
	repo     repository.ScheduleRepository
	executor Executor
	poller   PendingProcessor
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduleUsecase(repo repository.ScheduleRepository, executor Executor, poller PendingProcessor, logger *slog.Logger) *ScheduleUsecase {
	return &ScheduleUsecase{
		repo:     repo,
		executor: executor,
		poller:   poller,
		logger:   logger.With("component", "schedule_usecase"),
		now:      time.Now,
	}
}

type CreateScheduleInput struct {
	ContentID     string
	ContentType   domain.ContentType
	Action        domain.Action
	ScheduledDate time.Time
	Timezone      string
	CreatedBy     string
	Metadata      map[string]any
}

// Schedule creates one PENDING schedule. The content item is not checked for
// existence: a missing item surfaces as a FAILED execution.
func (u *ScheduleUsecase) Schedule(ctx context.Context, input CreateScheduleInput) (*domain.Schedule, error) {
	if err := validateTarget(input.ContentType, input.Action, input.CreatedBy); err != nil {
		return nil, err
	}

	created, err := u.repo.Create(ctx, newPending(input, input.ScheduledDate, nil))
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	metrics.SchedulesCreatedTotal.WithLabelValues("single").Inc()
	return created, nil
}

type CreateRecurringInput struct {
	CreateScheduleInput // ScheduledDate is the first occurrence
	Pattern             recurrence.Pattern
}

// ScheduleRecurring expands the pattern and stores one schedule per date, all or none.
func (u *ScheduleUsecase) ScheduleRecurring(ctx context.Context, input CreateRecurringInput) ([]*domain.Schedule, error) {
	if err := validateTarget(input.ContentType, input.Action, input.CreatedBy); err != nil {
		return nil, err
	}

	pattern := input.Pattern
	if pattern.Interval <= 0 {
		pattern.Interval = 1
	}
	if err := pattern.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRecurrence, err)
	}

	dates := recurrence.Expand(input.ScheduledDate, pattern)
	if len(dates) == 0 {
		return nil, domain.ErrNoOccurrences
	}

	patternMeta := pattern.Map()
	schedules := make([]*domain.Schedule, len(dates))
	for i, at := range dates {
		schedules[i] = newPending(input.CreateScheduleInput, at, map[string]any{
			domain.MetaIsRecurring:       true,
			domain.MetaRecurrencePattern: patternMeta,
			domain.MetaOccurrence:        i + 1,
		})
	}

	created, err := u.repo.CreateBatch(ctx, schedules)
	if err != nil {
		return nil, fmt.Errorf("create recurring schedules: %w", err)
	}

	metrics.SchedulesCreatedTotal.WithLabelValues("recurring").Add(float64(len(created)))
	u.logger.InfoContext(ctx, "recurring schedules created",
		"content_type", input.ContentType,
		"content_id", input.ContentID,
		"pattern", pattern.Frequency,
		"count", len(created),
	)
	return created, nil
}

type BatchScheduleInput struct {
	ContentIDs     []string
	ContentType    domain.ContentType
	Action         domain.Action
	ScheduledDate  time.Time
	Timezone       string
	CreatedBy      string
	StaggerMinutes int
	Metadata       map[string]any
}

// BatchSchedule stores one schedule per content id. The i-th id runs
// i*StaggerMinutes after ScheduledDate. All rows are stored or none.
func (u *ScheduleUsecase) BatchSchedule(ctx context.Context, input BatchScheduleInput) ([]*domain.Schedule, error) {
	if err := validateTarget(input.ContentType, input.Action, input.CreatedBy); err != nil {
		return nil, err
	}
	if len(input.ContentIDs) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if input.StaggerMinutes < 0 {
		return nil, fmt.Errorf("%w: stagger must not be negative", domain.ErrInvalidFilter)
	}

	stagger := time.Duration(input.StaggerMinutes) * time.Minute
	schedules := make([]*domain.Schedule, len(input.ContentIDs))
	for i, contentID := range input.ContentIDs {
		schedules[i] = newPending(CreateScheduleInput{
			ContentID:   contentID,
			ContentType: input.ContentType,
			Action:      input.Action,
			Timezone:    input.Timezone,
			CreatedBy:   input.CreatedBy,
			Metadata:    input.Metadata,
		}, input.ScheduledDate.Add(time.Duration(i)*stagger), map[string]any{
			domain.MetaBatchIndex: i,
		})
	}

	created, err := u.repo.CreateBatch(ctx, schedules)
	if err != nil {
		return nil, fmt.Errorf("create schedule batch: %w", err)
	}

	metrics.SchedulesCreatedTotal.WithLabelValues("batch").Add(float64(len(created)))
	return created, nil
}

func newPending(input CreateScheduleInput, at time.Time, extra map[string]any) *domain.Schedule {
	metadata := make(map[string]any, len(input.Metadata)+len(extra))
	maps.Copy(metadata, input.Metadata)
	maps.Copy(metadata, extra)

	tz := input.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return &domain.Schedule{
		ContentID:     input.ContentID,
		ContentType:   input.ContentType,
		Action:        input.Action,
		ScheduledDate: at,
		Timezone:      tz,
		Status:        domain.StatusPending,
		CreatedBy:     input.CreatedBy,
		Metadata:      metadata,
	}
}

func validateTarget(ct domain.ContentType, action domain.Action, createdBy string) error {
	if !ct.Valid() {
		return domain.ErrUnknownContentType
	}
	if !action.Valid() {
		return domain.ErrUnknownAction
	}
	if createdBy == "" {
		return domain.ErrMissingActor
	}
	return nil
}

func (u *ScheduleUsecase) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

type ListSchedulesInput struct {
	ContentType domain.ContentType
	ContentID   string
	Status      domain.Status
	Action      domain.Action
	From        *time.Time
	To          *time.Time
	Search      string
	Page        int
	Limit       int
}

type ListSchedulesResult struct {
	Schedules  []*domain.Schedule
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

func (u *ScheduleUsecase) List(ctx context.Context, input ListSchedulesInput) (ListSchedulesResult, error) {
	if input.ContentType != "" && !input.ContentType.Valid() {
		return ListSchedulesResult{}, fmt.Errorf("%w: content type %q", domain.ErrInvalidFilter, input.ContentType)
	}
	if input.Status != "" && !input.Status.Valid() {
		return ListSchedulesResult{}, fmt.Errorf("%w: status %q", domain.ErrInvalidFilter, input.Status)
	}
	if input.Action != "" && !input.Action.Valid() {
		return ListSchedulesResult{}, fmt.Errorf("%w: action %q", domain.ErrInvalidFilter, input.Action)
	}
	if input.From != nil && input.To != nil && input.From.After(*input.To) {
		return ListSchedulesResult{}, fmt.Errorf("%w: from is after to", domain.ErrInvalidFilter)
	}

	page := max(input.Page, 1)
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	schedules, total, err := u.repo.List(ctx, repository.ListSchedulesInput{
		ContentType: input.ContentType,
		ContentID:   input.ContentID,
		Status:      input.Status,
		Action:      input.Action,
		From:        input.From,
		To:          input.To,
		Search:      input.Search,
		Offset:      (page - 1) * limit,
		Limit:       limit,
	})
	if err != nil {
		return ListSchedulesResult{}, fmt.Errorf("list schedules: %w", err)
	}
	if schedules == nil {
		schedules = []*domain.Schedule{}
	}

	return ListSchedulesResult{
		Schedules:  schedules,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Cancel moves a PENDING schedule to CANCELLED.
func (u *ScheduleUsecase) Cancel(ctx context.Context, id, actor string) error {
	if actor == "" {
		return domain.ErrMissingActor
	}
	if err := u.repo.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	u.logger.InfoContext(ctx, "schedule cancelled", "schedule_id", id, "actor", actor)
	return nil
}

// ExecuteNow runs a PENDING schedule immediately, ignoring its scheduled date.
// A failed content mutation is not an error here: the returned schedule carries
// status failed and the reason.
func (u *ScheduleUsecase) ExecuteNow(ctx context.Context, id string) (*domain.Schedule, error) {
	return u.runAndReload(ctx, id, "execute schedule", u.executor.Execute)
}

// Retry re-runs a FAILED schedule.
func (u *ScheduleUsecase) Retry(ctx context.Context, id string) (*domain.Schedule, error) {
	return u.runAndReload(ctx, id, "retry schedule", u.executor.Retry)
}

func (u *ScheduleUsecase) runAndReload(ctx context.Context, id, op string, run func(context.Context, string) scheduler.Result) (*domain.Schedule, error) {
	res := run(ctx, id)
	if res.Recorded == "" && res.Err != nil {
		return nil, fmt.Errorf("%s: %w", op, res.Err)
	}

	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: reload: %w", op, err)
	}
	return s, nil
}

func (u *ScheduleUsecase) Stats(ctx context.Context) (domain.ScheduleStats, error) {
	st, err := u.repo.CountByStatus(ctx, u.now())
	if err != nil {
		return domain.ScheduleStats{}, fmt.Errorf("schedule stats: %w", err)
	}
	return st, nil
}

// ProcessPending runs one poller pass on behalf of an external trigger.
func (u *ScheduleUsecase) ProcessPending(ctx context.Context, limit int) (scheduler.Summary, error) {
	summary, err := u.poller.ProcessPending(ctx, limit)
	if err != nil {
		return scheduler.Summary{}, fmt.Errorf("process pending: %w", err)
	}
	return summary, nil
}
