package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/recurrence"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/fundacion-cms/content-scheduler/internal/scheduler"
	"github.com/fundacion-cms/content-scheduler/internal/usecase"
)

// ---- fakes ----

type fakeScheduleRepo struct {
	repository.ScheduleRepository // unimplemented methods panic

	create        func(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	createBatch   func(ctx context.Context, schedules []*domain.Schedule) ([]*domain.Schedule, error)
	getByID       func(ctx context.Context, id string) (*domain.Schedule, error)
	list          func(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, int, error)
	cancel        func(ctx context.Context, id string) error
	countByStatus func(ctx context.Context, now time.Time) (domain.ScheduleStats, error)
}

func (r *fakeScheduleRepo) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	return r.create(ctx, s)
}

func (r *fakeScheduleRepo) CreateBatch(ctx context.Context, schedules []*domain.Schedule) ([]*domain.Schedule, error) {
	return r.createBatch(ctx, schedules)
}

func (r *fakeScheduleRepo) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	return r.getByID(ctx, id)
}

func (r *fakeScheduleRepo) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, int, error) {
	return r.list(ctx, input)
}

func (r *fakeScheduleRepo) Cancel(ctx context.Context, id string) error {
	return r.cancel(ctx, id)
}

func (r *fakeScheduleRepo) CountByStatus(ctx context.Context, now time.Time) (domain.ScheduleStats, error) {
	return r.countByStatus(ctx, now)
}

type fakeExecutor struct {
	execute func(ctx context.Context, id string) scheduler.Result
	retry   func(ctx context.Context, id string) scheduler.Result
}

func (e *fakeExecutor) Execute(ctx context.Context, id string) scheduler.Result {
	return e.execute(ctx, id)
}

func (e *fakeExecutor) Retry(ctx context.Context, id string) scheduler.Result {
	return e.retry(ctx, id)
}

type fakeProcessor struct {
	processPending func(ctx context.Context, limit int) (scheduler.Summary, error)
}

func (p *fakeProcessor) ProcessPending(ctx context.Context, limit int) (scheduler.Summary, error) {
	return p.processPending(ctx, limit)
}

// ---- helpers ----

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var base = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC) // a Monday

func newUsecase(repo *fakeScheduleRepo, exec *fakeExecutor, proc *fakeProcessor) *usecase.ScheduleUsecase {
	if exec == nil {
		exec = &fakeExecutor{}
	}
	if proc == nil {
		proc = &fakeProcessor{}
	}
	return usecase.NewScheduleUsecase(repo, exec, proc, testLogger)
}

func echoBatch(_ context.Context, schedules []*domain.Schedule) ([]*domain.Schedule, error) {
	return schedules, nil
}

func singleInput() usecase.CreateScheduleInput {
	return usecase.CreateScheduleInput{
		ContentID:     "news-1",
		ContentType:   domain.ContentNews,
		Action:        domain.ActionPublish,
		ScheduledDate: base,
		Timezone:      "America/Mexico_City",
		CreatedBy:     "editor-1",
	}
}

// ---- Schedule ----

func TestSchedule_CreatesPending(t *testing.T) {
	var stored *domain.Schedule
	repo := &fakeScheduleRepo{create: func(_ context.Context, s *domain.Schedule) (*domain.Schedule, error) {
		stored = s
		return s, nil
	}}

	_, err := newUsecase(repo, nil, nil).Schedule(context.Background(), singleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", stored.Status)
	}
	if stored.CreatedBy != "editor-1" {
		t.Fatalf("expected created by editor-1, got %q", stored.CreatedBy)
	}
	if stored.ExecutedAt != nil || stored.FailureReason != nil {
		t.Fatal("executedAt and failureReason must be unset on creation")
	}
}

func TestSchedule_RequiresActor(t *testing.T) {
	in := singleInput()
	in.CreatedBy = ""

	_, err := newUsecase(&fakeScheduleRepo{}, nil, nil).Schedule(context.Background(), in)
	if !errors.Is(err, domain.ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}
}

func TestSchedule_RejectsUnknownTypeAndAction(t *testing.T) {
	uc := newUsecase(&fakeScheduleRepo{}, nil, nil)

	in := singleInput()
	in.ContentType = "event"
	if _, err := uc.Schedule(context.Background(), in); !errors.Is(err, domain.ErrUnknownContentType) {
		t.Fatalf("expected ErrUnknownContentType, got %v", err)
	}

	in = singleInput()
	in.Action = "delete"
	if _, err := uc.Schedule(context.Background(), in); !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestSchedule_WrapsStoreError(t *testing.T) {
	boom := errors.New("insert failed")
	repo := &fakeScheduleRepo{create: func(context.Context, *domain.Schedule) (*domain.Schedule, error) {
		return nil, boom
	}}

	_, err := newUsecase(repo, nil, nil).Schedule(context.Background(), singleInput())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

// ---- BatchSchedule ----

func TestBatchSchedule_Staggers(t *testing.T) {
	repo := &fakeScheduleRepo{createBatch: echoBatch}

	created, err := newUsecase(repo, nil, nil).BatchSchedule(context.Background(), usecase.BatchScheduleInput{
		ContentIDs:     []string{"a", "b", "c"},
		ContentType:    domain.ContentPublication,
		Action:         domain.ActionPublish,
		ScheduledDate:  base,
		CreatedBy:      "editor-1",
		StaggerMinutes: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 schedules, got %d", len(created))
	}
	for i, s := range created {
		want := base.Add(time.Duration(i*10) * time.Minute)
		if !s.ScheduledDate.Equal(want) {
			t.Errorf("schedule %d: expected %v, got %v", i, want, s.ScheduledDate)
		}
		if s.Metadata[domain.MetaBatchIndex] != i {
			t.Errorf("schedule %d: expected batch index %d, got %v", i, i, s.Metadata[domain.MetaBatchIndex])
		}
		if s.Timezone != "UTC" {
			t.Errorf("schedule %d: expected default timezone UTC, got %q", i, s.Timezone)
		}
	}
}

func TestBatchSchedule_ZeroStaggerSameDate(t *testing.T) {
	repo := &fakeScheduleRepo{createBatch: echoBatch}

	created, err := newUsecase(repo, nil, nil).BatchSchedule(context.Background(), usecase.BatchScheduleInput{
		ContentIDs:    []string{"a", "b"},
		ContentType:   domain.ContentNews,
		Action:        domain.ActionArchive,
		ScheduledDate: base,
		CreatedBy:     "editor-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range created {
		if !s.ScheduledDate.Equal(base) {
			t.Fatalf("expected base date, got %v", s.ScheduledDate)
		}
	}
}

func TestBatchSchedule_Empty(t *testing.T) {
	_, err := newUsecase(&fakeScheduleRepo{}, nil, nil).BatchSchedule(context.Background(), usecase.BatchScheduleInput{
		ContentType: domain.ContentNews,
		Action:      domain.ActionPublish,
		CreatedBy:   "editor-1",
	})
	if !errors.Is(err, domain.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

// ---- ScheduleRecurring ----

func TestScheduleRecurring_WeeklyDaysTagsMetadata(t *testing.T) {
	repo := &fakeScheduleRepo{createBatch: echoBatch}

	in := usecase.CreateRecurringInput{
		CreateScheduleInput: singleInput(),
		Pattern: recurrence.Pattern{
			Frequency:      recurrence.Weekly,
			Interval:       1,
			DaysOfWeek:     []int{1, 3, 5},
			MaxOccurrences: 6,
		},
	}
	created, err := newUsecase(repo, nil, nil).ScheduleRecurring(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 6 {
		t.Fatalf("expected 6 schedules, got %d", len(created))
	}

	wantDays := []time.Weekday{time.Monday, time.Wednesday, time.Friday, time.Monday, time.Wednesday, time.Friday}
	for i, s := range created {
		if s.ScheduledDate.Weekday() != wantDays[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i+1, wantDays[i], s.ScheduledDate.Weekday())
		}
		if s.Metadata[domain.MetaIsRecurring] != true {
			t.Errorf("occurrence %d: missing isRecurring", i+1)
		}
		if s.Metadata[domain.MetaOccurrence] != i+1 {
			t.Errorf("occurrence %d: wrong occurrence index %v", i+1, s.Metadata[domain.MetaOccurrence])
		}
		pattern, ok := s.Metadata[domain.MetaRecurrencePattern].(map[string]any)
		if !ok || pattern["pattern"] != "weekly" {
			t.Errorf("occurrence %d: missing recurrence pattern, got %v", i+1, s.Metadata[domain.MetaRecurrencePattern])
		}
	}
}

func TestScheduleRecurring_KeepsCallerMetadata(t *testing.T) {
	repo := &fakeScheduleRepo{createBatch: echoBatch}

	in := usecase.CreateRecurringInput{
		CreateScheduleInput: singleInput(),
		Pattern:             recurrence.Pattern{Frequency: recurrence.Daily, MaxOccurrences: 2},
	}
	in.Metadata = map[string]any{"campaign": "donaciones"}

	created, err := newUsecase(repo, nil, nil).ScheduleRecurring(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created[1].Metadata["campaign"] != "donaciones" {
		t.Fatalf("caller metadata lost: %v", created[1].Metadata)
	}
	if !created[1].ScheduledDate.Equal(base.AddDate(0, 0, 1)) {
		t.Fatalf("expected interval 0 to behave as 1, got %v", created[1].ScheduledDate)
	}
}

func TestScheduleRecurring_InvalidPattern(t *testing.T) {
	in := usecase.CreateRecurringInput{
		CreateScheduleInput: singleInput(),
		Pattern:             recurrence.Pattern{Frequency: "hourly", Interval: 1},
	}

	_, err := newUsecase(&fakeScheduleRepo{}, nil, nil).ScheduleRecurring(context.Background(), in)
	if !errors.Is(err, domain.ErrInvalidRecurrence) {
		t.Fatalf("expected ErrInvalidRecurrence, got %v", err)
	}
}

func TestScheduleRecurring_EndBeforeStart(t *testing.T) {
	end := base.Add(-time.Hour)
	in := usecase.CreateRecurringInput{
		CreateScheduleInput: singleInput(),
		Pattern:             recurrence.Pattern{Frequency: recurrence.Daily, Interval: 1, EndDate: &end},
	}

	_, err := newUsecase(&fakeScheduleRepo{}, nil, nil).ScheduleRecurring(context.Background(), in)
	if !errors.Is(err, domain.ErrNoOccurrences) {
		t.Fatalf("expected ErrNoOccurrences, got %v", err)
	}
}

// ---- List ----

func TestList_DefaultsAndPages(t *testing.T) {
	var got repository.ListSchedulesInput
	repo := &fakeScheduleRepo{list: func(_ context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, int, error) {
		got = input
		return nil, 45, nil
	}}

	res, err := newUsecase(repo, nil, nil).List(context.Background(), usecase.ListSchedulesInput{Page: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Limit != 20 || got.Offset != 40 {
		t.Fatalf("expected limit 20 offset 40, got %d/%d", got.Limit, got.Offset)
	}
	if res.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", res.TotalPages)
	}
	if res.Schedules == nil {
		t.Fatal("expected empty slice, got nil")
	}
}

func TestList_CapsLimit(t *testing.T) {
	var got repository.ListSchedulesInput
	repo := &fakeScheduleRepo{list: func(_ context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, int, error) {
		got = input
		return nil, 0, nil
	}}

	res, err := newUsecase(repo, nil, nil).List(context.Background(), usecase.ListSchedulesInput{Limit: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Limit != 100 || res.Page != 1 {
		t.Fatalf("expected limit 100 page 1, got %d/%d", got.Limit, res.Page)
	}
}

func TestList_RejectsBadFilters(t *testing.T) {
	uc := newUsecase(&fakeScheduleRepo{}, nil, nil)
	later := base.Add(time.Hour)

	bad := []usecase.ListSchedulesInput{
		{Status: "done"},
		{ContentType: "event"},
		{Action: "delete"},
		{From: &later, To: &base},
	}
	for _, in := range bad {
		if _, err := uc.List(context.Background(), in); !errors.Is(err, domain.ErrInvalidFilter) {
			t.Errorf("expected ErrInvalidFilter for %+v, got %v", in, err)
		}
	}
}

// ---- Cancel ----

func TestCancel_PropagatesNotPending(t *testing.T) {
	repo := &fakeScheduleRepo{cancel: func(context.Context, string) error {
		return domain.ErrScheduleNotPending
	}}

	err := newUsecase(repo, nil, nil).Cancel(context.Background(), "s-1", "editor-1")
	if !errors.Is(err, domain.ErrScheduleNotPending) {
		t.Fatalf("expected ErrScheduleNotPending, got %v", err)
	}
}

func TestCancel_RequiresActor(t *testing.T) {
	err := newUsecase(&fakeScheduleRepo{}, nil, nil).Cancel(context.Background(), "s-1", "")
	if !errors.Is(err, domain.ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}
}

// ---- ExecuteNow / Retry ----

func TestExecuteNow_ReturnsReloadedSchedule(t *testing.T) {
	reason := "news missing-1 not found"
	repo := &fakeScheduleRepo{getByID: func(_ context.Context, id string) (*domain.Schedule, error) {
		return &domain.Schedule{ID: id, Status: domain.StatusFailed, FailureReason: &reason}, nil
	}}
	exec := &fakeExecutor{execute: func(_ context.Context, id string) scheduler.Result {
		return scheduler.Result{ScheduleID: id, Recorded: domain.StatusFailed, Err: domain.ErrContentNotFound}
	}}

	s, err := newUsecase(repo, exec, nil).ExecuteNow(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("recorded failure should not be an error, got %v", err)
	}
	if s.Status != domain.StatusFailed {
		t.Fatalf("expected failed schedule, got %s", s.Status)
	}
}

func TestExecuteNow_NotPending(t *testing.T) {
	exec := &fakeExecutor{execute: func(_ context.Context, id string) scheduler.Result {
		return scheduler.Result{ScheduleID: id, Err: domain.ErrScheduleNotPending}
	}}

	_, err := newUsecase(&fakeScheduleRepo{}, exec, nil).ExecuteNow(context.Background(), "s-1")
	if !errors.Is(err, domain.ErrScheduleNotPending) {
		t.Fatalf("expected ErrScheduleNotPending, got %v", err)
	}
}

func TestRetry_NotFailed(t *testing.T) {
	exec := &fakeExecutor{retry: func(_ context.Context, id string) scheduler.Result {
		return scheduler.Result{ScheduleID: id, Err: domain.ErrScheduleNotFailed}
	}}

	_, err := newUsecase(&fakeScheduleRepo{}, exec, nil).Retry(context.Background(), "s-1")
	if !errors.Is(err, domain.ErrScheduleNotFailed) {
		t.Fatalf("expected ErrScheduleNotFailed, got %v", err)
	}
}

// ---- Stats / ProcessPending ----

func TestStats(t *testing.T) {
	repo := &fakeScheduleRepo{countByStatus: func(context.Context, time.Time) (domain.ScheduleStats, error) {
		return domain.ScheduleStats{Pending: 2, DueNow: 1}, nil
	}}

	st, err := newUsecase(repo, nil, nil).Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Pending != 2 || st.DueNow != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestProcessPending_PassesLimit(t *testing.T) {
	var gotLimit int
	proc := &fakeProcessor{processPending: func(_ context.Context, limit int) (scheduler.Summary, error) {
		gotLimit = limit
		return scheduler.Summary{Processed: 4}, nil
	}}

	summary, err := newUsecase(&fakeScheduleRepo{}, nil, proc).ProcessPending(context.Background(), 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 25 || summary.Processed != 4 {
		t.Fatalf("unexpected limit %d / summary %+v", gotLimit, summary)
	}
}
