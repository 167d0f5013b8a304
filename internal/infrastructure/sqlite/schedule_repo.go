package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db.gorm}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	m := newRow(s)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}
	return m.toDomain(), nil
}

func (r *ScheduleRepository) CreateBatch(ctx context.Context, schedules []*domain.Schedule) ([]*domain.Schedule, error) {
	if len(schedules) == 0 {
		return nil, nil
	}

	rows := make([]scheduleModel, len(schedules))
	for i, s := range schedules {
		rows[i] = newRow(s)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("insert schedule batch: %w", err)
	}

	created := make([]*domain.Schedule, len(rows))
	for i := range rows {
		created[i] = rows[i].toDomain()
	}
	return created, nil
}

func newRow(s *domain.Schedule) scheduleModel {
	m := toScheduleModel(s)
	m.ID = uuid.NewString()
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	if m.Timezone == "" {
		m.Timezone = "UTC"
	}
	return m
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	var m scheduleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return m.toDomain(), nil
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, int, error) {
	q := r.db.WithContext(ctx).Model(&scheduleModel{})

	if input.ContentType != "" {
		q = q.Where("content_type = ?", input.ContentType)
	}
	if input.ContentID != "" {
		q = q.Where("content_id = ?", input.ContentID)
	}
	if input.Status != "" {
		q = q.Where("status = ?", input.Status)
	}
	if input.Action != "" {
		q = q.Where("action = ?", input.Action)
	}
	if input.From != nil {
		q = q.Where("scheduled_date >= ?", input.From.UTC())
	}
	if input.To != nil {
		q = q.Where("scheduled_date <= ?", input.To.UTC())
	}
	if input.Search != "" {
		pattern := "%" + escapeLike(input.Search) + "%"
		q = q.Where(`content_id LIKE ? ESCAPE '\' OR created_by LIKE ? ESCAPE '\' OR COALESCE(failure_reason, '') LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	var rows []scheduleModel
	err := q.Order("scheduled_date ASC").Order("id ASC").
		Limit(input.Limit).Offset(input.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	return toDomainList(rows), int(total), nil
}

func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error) {
	var rows []scheduleModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_date <= ?", domain.StatusPending, now.UTC()).
		Order("scheduled_date ASC").Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return toDomainList(rows), nil
}

func (r *ScheduleRepository) CountByStatus(ctx context.Context, now time.Time) (domain.ScheduleStats, error) {
	var counts []struct {
		Status string
		Count  int
	}
	err := r.db.WithContext(ctx).Model(&scheduleModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return domain.ScheduleStats{}, fmt.Errorf("count schedules by status: %w", err)
	}

	var st domain.ScheduleStats
	for _, c := range counts {
		switch domain.Status(c.Status) {
		case domain.StatusPending:
			st.Pending = c.Count
		case domain.StatusExecuted:
			st.Executed = c.Count
		case domain.StatusFailed:
			st.Failed = c.Count
		case domain.StatusCancelled:
			st.Cancelled = c.Count
		}
	}

	var due int64
	err = r.db.WithContext(ctx).Model(&scheduleModel{}).
		Where("status = ? AND scheduled_date <= ?", domain.StatusPending, now.UTC()).
		Count(&due).Error
	if err != nil {
		return domain.ScheduleStats{}, fmt.Errorf("count due schedules: %w", err)
	}
	st.DueNow = int(due)
	return st, nil
}

func (r *ScheduleRepository) MarkExecuted(ctx context.Context, id string, expected domain.Status, executedAt time.Time) error {
	if !expected.CanTransitionTo(domain.StatusExecuted) {
		return domain.ErrInvalidTransition
	}
	return r.conditionalUpdate(ctx, id, expected, map[string]any{
		"status":         string(domain.StatusExecuted),
		"executed_at":    executedAt.UTC(),
		"failure_reason": gorm.Expr("NULL"),
	})
}

func (r *ScheduleRepository) MarkFailed(ctx context.Context, id string, expected domain.Status, executedAt time.Time, reason string) error {
	if !expected.CanTransitionTo(domain.StatusFailed) {
		return domain.ErrInvalidTransition
	}
	return r.conditionalUpdate(ctx, id, expected, map[string]any{
		"status":         string(domain.StatusFailed),
		"executed_at":    executedAt.UTC(),
		"failure_reason": reason,
	})
}

func (r *ScheduleRepository) Cancel(ctx context.Context, id string) error {
	err := r.conditionalUpdate(ctx, id, domain.StatusPending, map[string]any{
		"status": string(domain.StatusCancelled),
	})
	if errors.Is(err, domain.ErrScheduleStateChanged) {
		return domain.ErrScheduleNotPending
	}
	return err
}

// conditionalUpdate applies fields only while the row still has the expected status.
func (r *ScheduleRepository) conditionalUpdate(ctx context.Context, id string, expected domain.Status, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).Model(&scheduleModel{}).
		Where("id = ? AND status = ?", id, string(expected)).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update schedule status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrScheduleStateChanged
	}
	return nil
}

func toDomainList(rows []scheduleModel) []*domain.Schedule {
	out := make([]*domain.Schedule, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
