package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scheduleColumns = `id, content_id, content_type, action, scheduled_date, timezone,
	       status, executed_at, failure_reason, created_by, metadata,
	       created_at, updated_at`

type ScheduleRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewScheduleRepository(pool *pgxpool.Pool, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, logger: logger.With("component", "schedule_repo")}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	created, err := insertSchedule(ctx, r.pool, s)
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}
	return created, nil
}

// CreateBatch inserts all schedules in a single transaction.
func (r *ScheduleRepository) CreateBatch(ctx context.Context, schedules []*domain.Schedule) ([]*domain.Schedule, error) {
	created := make([]*domain.Schedule, 0, len(schedules))

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for i, s := range schedules {
			c, err := insertSchedule(ctx, tx, s)
			if err != nil {
				return fmt.Errorf("insert schedule %d of %d: %w", i+1, len(schedules), err)
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "batch inserted", "count", len(created))
	return created, nil
}

// pgxpool.Pool and pgx.Tx both implement this.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertSchedule(ctx context.Context, q querier, s *domain.Schedule) (*domain.Schedule, error) {
	metadata := s.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	row := q.QueryRow(ctx, `
		INSERT INTO content_schedules (
			content_id, content_type, action, scheduled_date, timezone,
			status, created_by, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+scheduleColumns,
		s.ContentID, s.ContentType, s.Action, s.ScheduledDate, s.Timezone,
		s.Status, s.CreatedBy, metadata,
	)
	return scanSchedule(row)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM content_schedules
		WHERE id = $1`, id)
	return scanSchedule(row)
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, int, error) {
	var (
		args  []any
		where []string
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if input.ContentType != "" {
		add("content_type = $%d", input.ContentType)
	}
	if input.ContentID != "" {
		add("content_id = $%d", input.ContentID)
	}
	if input.Status != "" {
		add("status = $%d", input.Status)
	}
	if input.Action != "" {
		add("action = $%d", input.Action)
	}
	if input.From != nil {
		add("scheduled_date >= $%d", *input.From)
	}
	if input.To != nil {
		add("scheduled_date <= $%d", *input.To)
	}
	if input.Search != "" {
		add("(content_id ILIKE $%[1]d OR created_by ILIKE $%[1]d OR COALESCE(failure_reason, '') ILIKE $%[1]d)",
			"%"+escapeLike(input.Search)+"%")
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM content_schedules `+whereSQL, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	args = append(args, input.Limit, input.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM content_schedules
		%s
		ORDER BY scheduled_date ASC, id ASC
		LIMIT $%d OFFSET $%d`,
		scheduleColumns, whereSQL, len(args)-1, len(args))

	schedules, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, total, nil
}

func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error) {
	schedules, err := r.query(ctx, `
		SELECT `+scheduleColumns+`
		FROM content_schedules
		WHERE status = 'pending'
		  AND scheduled_date <= $1
		ORDER BY scheduled_date ASC, id ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return schedules, nil
}

func (r *ScheduleRepository) CountByStatus(ctx context.Context, now time.Time) (domain.ScheduleStats, error) {
	var st domain.ScheduleStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'executed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COUNT(*) FILTER (WHERE status = 'pending' AND scheduled_date <= $1)
		FROM content_schedules`, now,
	).Scan(&st.Pending, &st.Executed, &st.Failed, &st.Cancelled, &st.DueNow)
	if err != nil {
		return domain.ScheduleStats{}, fmt.Errorf("count schedules by status: %w", err)
	}
	return st, nil
}

func (r *ScheduleRepository) MarkExecuted(ctx context.Context, id string, expected domain.Status, executedAt time.Time) error {
	if !expected.CanTransitionTo(domain.StatusExecuted) {
		return domain.ErrInvalidTransition
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_schedules
		SET    status         = 'executed',
		       executed_at    = $3,
		       failure_reason = NULL,
		       updated_at     = NOW()
		WHERE  id = $1 AND status = $2`,
		id, expected, executedAt)
	if err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conditionalMiss(ctx, id)
	}
	return nil
}

func (r *ScheduleRepository) MarkFailed(ctx context.Context, id string, expected domain.Status, executedAt time.Time, reason string) error {
	if !expected.CanTransitionTo(domain.StatusFailed) {
		return domain.ErrInvalidTransition
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_schedules
		SET    status         = 'failed',
		       executed_at    = $3,
		       failure_reason = $4,
		       updated_at     = NOW()
		WHERE  id = $1 AND status = $2`,
		id, expected, executedAt, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conditionalMiss(ctx, id)
	}
	return nil
}

func (r *ScheduleRepository) Cancel(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_schedules
		SET    status = 'cancelled', updated_at = NOW()
		WHERE  id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish not-found vs not-pending
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrScheduleNotPending
	}
	return nil
}

// conditionalMiss explains why a status-guarded update touched no rows.
func (r *ScheduleRepository) conditionalMiss(ctx context.Context, id string) error {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return err // ErrScheduleNotFound
	}
	r.logger.WarnContext(ctx, "conditional status write lost", "schedule_id", id, "status", s.Status)
	return domain.ErrScheduleStateChanged
}

func (r *ScheduleRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	err := row.Scan(
		&s.ID, &s.ContentID, &s.ContentType, &s.Action, &s.ScheduledDate, &s.Timezone,
		&s.Status, &s.ExecutedAt, &s.FailureReason, &s.CreatedBy, &s.Metadata,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
