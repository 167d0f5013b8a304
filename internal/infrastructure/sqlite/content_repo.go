package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{db: db.gorm}
}

func modelFor(contentType domain.ContentType) (any, error) {
	switch contentType {
	case domain.ContentNews:
		return &newsArticleModel{}, nil
	case domain.ContentProgram:
		return &programModel{}, nil
	case domain.ContentPublication:
		return &publicationModel{}, nil
	}
	return nil, domain.ErrUnknownContentType
}

func (r *ContentRepository) UpdateStatus(ctx context.Context, contentType domain.ContentType, contentID string, status domain.ContentStatus) error {
	return updateContentStatus(r.db.WithContext(ctx), contentType, contentID, status)
}

// ApplyScheduled claims the schedule and writes the content status in one transaction.
func (r *ContentRepository) ApplyScheduled(ctx context.Context, scheduleID string, expected domain.Status, executedAt time.Time, change repository.ContentChange) error {
	if !expected.CanTransitionTo(domain.StatusExecuted) {
		return domain.ErrInvalidTransition
	}
	if _, err := modelFor(change.Type); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&scheduleModel{}).
			Where("id = ? AND status = ?", scheduleID, string(expected)).
			Updates(map[string]any{
				"status":         string(domain.StatusExecuted),
				"executed_at":    executedAt.UTC(),
				"failure_reason": gorm.Expr("NULL"),
				"updated_at":     time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("mark executed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&scheduleModel{}).Where("id = ?", scheduleID).Count(&n).Error; err != nil {
				return fmt.Errorf("check schedule: %w", err)
			}
			if n == 0 {
				return domain.ErrScheduleNotFound
			}
			return domain.ErrScheduleStateChanged
		}

		return updateContentStatus(tx, change.Type, change.ID, change.Status)
	})
}

func updateContentStatus(db *gorm.DB, contentType domain.ContentType, contentID string, status domain.ContentStatus) error {
	model, err := modelFor(contentType)
	if err != nil {
		return err
	}

	res := db.Model(model).
		Where("id = ?", contentID).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update %s status: %w", contentType, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrContentNotFound
	}
	return nil
}

func (r *ContentRepository) UpsertContent(ctx context.Context, contentType domain.ContentType, id, titleES, titleEN string, status domain.ContentStatus) error {
	row := contentModel{ID: id, TitleES: titleES, TitleEN: titleEN, Status: string(status)}

	var value any
	switch contentType {
	case domain.ContentNews:
		value = &newsArticleModel{Content: row}
	case domain.ContentProgram:
		value = &programModel{Content: row}
	case domain.ContentPublication:
		value = &publicationModel{Content: row}
	default:
		return domain.ErrUnknownContentType
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title_es", "title_en", "updated_at"}),
	}).Create(value).Error
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", contentType, id, err)
	}
	return nil
}

// Status reads back a content item's status.
func (r *ContentRepository) Status(ctx context.Context, contentType domain.ContentType, id string) (domain.ContentStatus, error) {
	model, err := modelFor(contentType)
	if err != nil {
		return "", err
	}

	var statuses []string
	err = r.db.WithContext(ctx).Model(model).Where("id = ?", id).Limit(1).Pluck("status", &statuses).Error
	if err != nil {
		return "", fmt.Errorf("read %s status: %w", contentType, err)
	}
	if len(statuses) == 0 {
		return "", domain.ErrContentNotFound
	}
	return domain.ContentStatus(statuses[0]), nil
}
