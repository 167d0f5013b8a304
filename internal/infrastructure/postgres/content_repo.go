package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// contentTables maps each content type to the table holding its items.
var contentTables = map[domain.ContentType]string{
	domain.ContentNews:        "news_articles",
	domain.ContentProgram:     "programs",
	domain.ContentPublication: "publications",
}

type ContentRepository struct {
	pool *pgxpool.Pool
}

func NewContentRepository(pool *pgxpool.Pool) *ContentRepository {
	return &ContentRepository{pool: pool}
}

func (r *ContentRepository) UpdateStatus(ctx context.Context, contentType domain.ContentType, contentID string, status domain.ContentStatus) error {
	return updateContentStatus(ctx, r.pool, contentType, contentID, status)
}

// ApplyScheduled claims the schedule and writes the content status in one
// transaction. The conditional UPDATE holds the schedule row lock until commit,
// so a concurrent Cancel either lands first or waits and then finds it executed.
func (r *ContentRepository) ApplyScheduled(ctx context.Context, scheduleID string, expected domain.Status, executedAt time.Time, change repository.ContentChange) error {
	if !expected.CanTransitionTo(domain.StatusExecuted) {
		return domain.ErrInvalidTransition
	}
	if _, ok := contentTables[change.Type]; !ok {
		return domain.ErrUnknownContentType
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE content_schedules
			SET    status         = 'executed',
			       executed_at    = $3,
			       failure_reason = NULL,
			       updated_at     = NOW()
			WHERE  id = $1 AND status = $2`,
			scheduleID, expected, executedAt)
		if err != nil {
			return fmt.Errorf("mark executed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM content_schedules WHERE id = $1)`, scheduleID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check schedule: %w", err)
			}
			if !exists {
				return domain.ErrScheduleNotFound
			}
			return domain.ErrScheduleStateChanged
		}

		return updateContentStatus(ctx, tx, change.Type, change.ID, change.Status)
	})
}

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateContentStatus(ctx context.Context, db execer, contentType domain.ContentType, contentID string, status domain.ContentStatus) error {
	table, ok := contentTables[contentType]
	if !ok {
		return domain.ErrUnknownContentType
	}

	tag, err := db.Exec(ctx,
		`UPDATE `+table+` SET status = $2, updated_at = NOW() WHERE id = $1`,
		contentID, status)
	if err != nil {
		return fmt.Errorf("update %s status: %w", contentType, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrContentNotFound
	}
	return nil
}

// UpsertContent inserts or renames a content item. Used by the seed command.
func (r *ContentRepository) UpsertContent(ctx context.Context, contentType domain.ContentType, id, titleES, titleEN string, status domain.ContentStatus) error {
	table, ok := contentTables[contentType]
	if !ok {
		return domain.ErrUnknownContentType
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO `+table+` (id, title_es, title_en, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET title_es = EXCLUDED.title_es,
		    title_en = EXCLUDED.title_en,
		    updated_at = NOW()`,
		id, titleES, titleEN, status)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", contentType, id, err)
	}
	return nil
}
