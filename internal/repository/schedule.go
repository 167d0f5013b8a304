package repository

import (
	"context"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
)

// ListSchedulesInput filters the admin schedule list. Zero values mean "no filter".
type ListSchedulesInput struct {
	ContentType domain.ContentType
	ContentID   string
	Status      domain.Status
	Action      domain.Action
	From        *time.Time // scheduled_date >= From
	To          *time.Time // scheduled_date <= To
	Search      string     // case-insensitive match on content id, created by, failure reason
	Offset      int
	Limit       int
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	// CreateBatch inserts every schedule in one transaction: all rows or none.
	CreateBatch(ctx context.Context, schedules []*domain.Schedule) ([]*domain.Schedule, error)
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	// List returns one page ordered by scheduled_date ASC, id ASC, plus the total match count.
	List(ctx context.Context, input ListSchedulesInput) ([]*domain.Schedule, int, error)
	// ListDue returns pending schedules with scheduled_date <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error)
	CountByStatus(ctx context.Context, now time.Time) (domain.ScheduleStats, error)

	// Status writes are conditional on the expected current status. When the row
	// exists but its status moved on, they return domain.ErrScheduleStateChanged
	// and change nothing.
	MarkExecuted(ctx context.Context, id string, expected domain.Status, executedAt time.Time) error
	MarkFailed(ctx context.Context, id string, expected domain.Status, executedAt time.Time, reason string) error
	Cancel(ctx context.Context, id string) error
}
