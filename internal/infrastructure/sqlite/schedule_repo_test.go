package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/infrastructure/sqlite"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newSchedule(contentID string, at time.Time) *domain.Schedule {
	return &domain.Schedule{
		ContentID:     contentID,
		ContentType:   domain.ContentNews,
		Action:        domain.ActionPublish,
		ScheduledDate: at,
		Timezone:      "America/Mexico_City",
		Status:        domain.StatusPending,
		CreatedBy:     "editor@example.org",
	}
}

func TestCreate_AssignsIDAndPersists(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	s := newSchedule("news-1", base)
	s.Metadata = map[string]any{"note": "launch"}

	created, err := repo.Create(ctx, s)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "news-1", got.ContentID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, got.ScheduledDate.Equal(base))
	assert.Equal(t, "America/Mexico_City", got.Timezone)
	assert.Equal(t, "launch", got.Metadata["note"])
	assert.Nil(t, got.ExecutedAt)
	assert.Nil(t, got.FailureReason)
}

func TestGetByID_NotFound(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}

func TestCreateBatch_InsertsAll(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.CreateBatch(ctx, []*domain.Schedule{
		newSchedule("news-1", base),
		newSchedule("news-2", base.Add(time.Hour)),
		newSchedule("news-3", base.Add(2*time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	ids := map[string]bool{}
	for _, c := range created {
		ids[c.ID] = true
	}
	assert.Len(t, ids, 3)

	_, total, err := repo.List(ctx, repository.ListSchedulesInput{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestList_FiltersAndOrders(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	late := newSchedule("news-1", base.Add(48*time.Hour))
	early := newSchedule("news-1", base)
	program := newSchedule("prog-1", base.Add(24*time.Hour))
	program.ContentType = domain.ContentProgram
	program.Action = domain.ActionArchive
	for _, s := range []*domain.Schedule{late, early, program} {
		_, err := repo.Create(ctx, s)
		require.NoError(t, err)
	}

	all, total, err := repo.List(ctx, repository.ListSchedulesInput{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	assert.True(t, all[0].ScheduledDate.Equal(base))
	assert.Equal(t, "prog-1", all[1].ContentID)

	news, total, err := repo.List(ctx, repository.ListSchedulesInput{ContentType: domain.ContentNews, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, news, 2)

	archived, _, err := repo.List(ctx, repository.ListSchedulesInput{Action: domain.ActionArchive, Limit: 10})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "prog-1", archived[0].ContentID)

	from := base.Add(time.Hour)
	to := base.Add(30 * time.Hour)
	window, _, err := repo.List(ctx, repository.ListSchedulesInput{From: &from, To: &to, Limit: 10})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "prog-1", window[0].ContentID)

	found, total, err := repo.List(ctx, repository.ListSchedulesInput{Search: "prog", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, found, 1)
}

func TestList_Paginates(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	for i := range 5 {
		_, err := repo.Create(ctx, newSchedule("news-1", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	page, total, err := repo.List(ctx, repository.ListSchedulesInput{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].ScheduledDate.Equal(base.Add(2*time.Hour)))
}

func TestList_SearchEscapesWildcards(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, newSchedule("news-1", base))
	require.NoError(t, err)

	found, _, err := repo.List(ctx, repository.ListSchedulesInput{Search: "%", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestListDue_OnlyPendingAndPast(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()
	now := base.Add(time.Hour)

	due, err := repo.Create(ctx, newSchedule("news-1", base))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newSchedule("news-2", now.Add(time.Minute)))
	require.NoError(t, err)
	cancelled, err := repo.Create(ctx, newSchedule("news-3", base))
	require.NoError(t, err)
	require.NoError(t, repo.Cancel(ctx, cancelled.ID))

	got, err := repo.ListDue(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func TestListDue_RespectsLimit(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	for i := range 4 {
		_, err := repo.Create(ctx, newSchedule("news-1", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	got, err := repo.ListDue(ctx, base.Add(time.Hour), 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMarkExecuted_ConditionalOnStatus(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	s, err := repo.Create(ctx, newSchedule("news-1", base))
	require.NoError(t, err)

	at := base.Add(time.Minute)
	require.NoError(t, repo.MarkExecuted(ctx, s.ID, domain.StatusPending, at))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, got.Status)
	require.NotNil(t, got.ExecutedAt)
	assert.True(t, got.ExecutedAt.Equal(at))

	err = repo.MarkExecuted(ctx, s.ID, domain.StatusPending, at)
	assert.ErrorIs(t, err, domain.ErrScheduleStateChanged)

	err = repo.MarkFailed(ctx, s.ID, domain.StatusPending, at, "late")
	assert.ErrorIs(t, err, domain.ErrScheduleStateChanged)

	got, err = repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, got.Status)
	assert.Nil(t, got.FailureReason)
}

func TestMarkFailed_ThenRetrySucceeds(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	s, err := repo.Create(ctx, newSchedule("news-1", base))
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, s.ID, domain.StatusPending, base, "content not found"))
	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "content not found", *got.FailureReason)

	require.NoError(t, repo.MarkExecuted(ctx, s.ID, domain.StatusFailed, base.Add(time.Hour)))
	got, err = repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, got.Status)
	assert.Nil(t, got.FailureReason)
}

func TestMarkExecuted_RejectsIllegalTransition(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))

	err := repo.MarkExecuted(context.Background(), "any", domain.StatusCancelled, base)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMarkExecuted_NotFound(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))

	err := repo.MarkExecuted(context.Background(), "missing", domain.StatusPending, base)
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}

func TestCancel(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	s, err := repo.Create(ctx, newSchedule("news-1", base))
	require.NoError(t, err)

	require.NoError(t, repo.Cancel(ctx, s.ID))
	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)

	assert.ErrorIs(t, repo.Cancel(ctx, s.ID), domain.ErrScheduleNotPending)
	assert.ErrorIs(t, repo.Cancel(ctx, "missing"), domain.ErrScheduleNotFound)
}

func TestCancel_TerminalStatusLeavesRowUntouched(t *testing.T) {
	tests := []struct {
		name     string
		finalize func(ctx context.Context, repo *sqlite.ScheduleRepository, id string) error
		status   domain.Status
	}{
		{
			name: "executed",
			finalize: func(ctx context.Context, repo *sqlite.ScheduleRepository, id string) error {
				return repo.MarkExecuted(ctx, id, domain.StatusPending, base.Add(time.Minute))
			},
			status: domain.StatusExecuted,
		},
		{
			name: "failed",
			finalize: func(ctx context.Context, repo *sqlite.ScheduleRepository, id string) error {
				return repo.MarkFailed(ctx, id, domain.StatusPending, base.Add(time.Minute), "content not found")
			},
			status: domain.StatusFailed,
		},
		{
			name: "cancelled",
			finalize: func(ctx context.Context, repo *sqlite.ScheduleRepository, id string) error {
				return repo.Cancel(ctx, id)
			},
			status: domain.StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := sqlite.NewScheduleRepository(openTestDB(t))
			ctx := context.Background()

			s, err := repo.Create(ctx, newSchedule("news-1", base))
			require.NoError(t, err)
			require.NoError(t, tt.finalize(ctx, repo, s.ID))

			before, err := repo.GetByID(ctx, s.ID)
			require.NoError(t, err)
			require.Equal(t, tt.status, before.Status)

			assert.ErrorIs(t, repo.Cancel(ctx, s.ID), domain.ErrScheduleNotPending)

			after, err := repo.GetByID(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, after.Status)
			assert.Equal(t, before.ExecutedAt, after.ExecutedAt)
			assert.Equal(t, before.FailureReason, after.FailureReason)
			assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt), "updated_at moved from %s to %s", before.UpdatedAt, after.UpdatedAt)
		})
	}
}

func TestMarkExecuted_ConcurrentWritersOnlyOneWins(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()

	s, err := repo.Create(ctx, newSchedule("news-1", base))
	require.NoError(t, err)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.MarkExecuted(ctx, s.ID, domain.StatusPending, base); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrScheduleStateChanged)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestCountByStatus(t *testing.T) {
	repo := sqlite.NewScheduleRepository(openTestDB(t))
	ctx := context.Background()
	now := base.Add(time.Hour)

	a, err := repo.Create(ctx, newSchedule("news-1", base))
	require.NoError(t, err)
	b, err := repo.Create(ctx, newSchedule("news-2", base))
	require.NoError(t, err)
	c, err := repo.Create(ctx, newSchedule("news-3", base))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newSchedule("news-4", base))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newSchedule("news-5", now.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, repo.MarkExecuted(ctx, a.ID, domain.StatusPending, now))
	require.NoError(t, repo.MarkFailed(ctx, b.ID, domain.StatusPending, now, "boom"))
	require.NoError(t, repo.Cancel(ctx, c.ID))

	st, err := repo.CountByStatus(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStats{Pending: 2, Executed: 1, Failed: 1, Cancelled: 1, DueNow: 1}, st)
	assert.Equal(t, 5, st.Total())
}
