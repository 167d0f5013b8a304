package repository

import (
	"context"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
)

// ContentRepository is the only view the scheduler has of content items: an
// id-driven status update. It never lists or searches content.
type ContentRepository interface {
	// UpdateStatus returns domain.ErrContentNotFound when no item has the id.
	UpdateStatus(ctx context.Context, contentType domain.ContentType, contentID string, status domain.ContentStatus) error
}

// ContentChange is the content mutation a schedule applies when it executes.
type ContentChange struct {
	Type   domain.ContentType
	ID     string
	Status domain.ContentStatus
}

// ScheduledContentWriter is implemented by content stores that share a database
// with the schedule store. ApplyScheduled marks the schedule executed and applies
// change in one transaction. When the schedule is no longer in the expected status
// it returns domain.ErrScheduleStateChanged and the content is left untouched; a
// missing content item returns domain.ErrContentNotFound and nothing is written.
type ScheduledContentWriter interface {
	ApplyScheduled(ctx context.Context, scheduleID string, expected domain.Status, executedAt time.Time, change ContentChange) error
}

// ContentSeeder loads fixture content items for local environments.
type ContentSeeder interface {
	UpsertContent(ctx context.Context, contentType domain.ContentType, id, titleES, titleEN string, status domain.ContentStatus) error
}
