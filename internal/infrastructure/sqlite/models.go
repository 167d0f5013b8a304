package sqlite

import (
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
)

type scheduleModel struct {
	ID            string         `gorm:"primaryKey"`
	ContentID     string         `gorm:"not null;index:idx_content_schedules_content"`
	ContentType   string         `gorm:"not null;index:idx_content_schedules_content"`
	Action        string         `gorm:"not null"`
	ScheduledDate time.Time      `gorm:"not null;index:idx_content_schedules_due"`
	Timezone      string         `gorm:"not null;default:UTC"`
	Status        string         `gorm:"not null;index:idx_content_schedules_due"`
	ExecutedAt    *time.Time
	FailureReason *string
	CreatedBy     string         `gorm:"not null"`
	Metadata      map[string]any `gorm:"serializer:json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (scheduleModel) TableName() string { return "content_schedules" }

func toScheduleModel(s *domain.Schedule) scheduleModel {
	return scheduleModel{
		ID:            s.ID,
		ContentID:     s.ContentID,
		ContentType:   string(s.ContentType),
		Action:        string(s.Action),
		ScheduledDate: s.ScheduledDate.UTC(),
		Timezone:      s.Timezone,
		Status:        string(s.Status),
		ExecutedAt:    s.ExecutedAt,
		FailureReason: s.FailureReason,
		CreatedBy:     s.CreatedBy,
		Metadata:      s.Metadata,
	}
}

func (m *scheduleModel) toDomain() *domain.Schedule {
	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &domain.Schedule{
		ID:            m.ID,
		ContentID:     m.ContentID,
		ContentType:   domain.ContentType(m.ContentType),
		Action:        domain.Action(m.Action),
		ScheduledDate: m.ScheduledDate,
		Timezone:      m.Timezone,
		Status:        domain.Status(m.Status),
		ExecutedAt:    m.ExecutedAt,
		FailureReason: m.FailureReason,
		CreatedBy:     m.CreatedBy,
		Metadata:      metadata,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// contentModel is the column set shared by every content table.
type contentModel struct {
	ID        string `gorm:"primaryKey"`
	TitleES   string `gorm:"column:title_es;not null"`
	TitleEN   string `gorm:"column:title_en;not null;default:''"`
	Status    string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type newsArticleModel struct {
	Content contentModel `gorm:"embedded"`
}

func (newsArticleModel) TableName() string { return "news_articles" }

type programModel struct {
	Content contentModel `gorm:"embedded"`
}

func (programModel) TableName() string { return "programs" }

type publicationModel struct {
	Content contentModel `gorm:"embedded"`
}

func (publicationModel) TableName() string { return "publications" }
