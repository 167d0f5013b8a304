package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/recurrence"
	"github.com/fundacion-cms/content-scheduler/internal/scheduler"
	"github.com/fundacion-cms/content-scheduler/internal/transport/http/middleware"
	"github.com/fundacion-cms/content-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
)

const maxProcessLimit = 1000

type scheduleUsecaser interface {
	Schedule(ctx context.Context, input usecase.CreateScheduleInput) (*domain.Schedule, error)
	ScheduleRecurring(ctx context.Context, input usecase.CreateRecurringInput) ([]*domain.Schedule, error)
	BatchSchedule(ctx context.Context, input usecase.BatchScheduleInput) ([]*domain.Schedule, error)
	Get(ctx context.Context, id string) (*domain.Schedule, error)
	List(ctx context.Context, input usecase.ListSchedulesInput) (usecase.ListSchedulesResult, error)
	Cancel(ctx context.Context, id, actor string) error
	ExecuteNow(ctx context.Context, id string) (*domain.Schedule, error)
	Retry(ctx context.Context, id string) (*domain.Schedule, error)
	Stats(ctx context.Context) (domain.ScheduleStats, error)
	ProcessPending(ctx context.Context, limit int) (scheduler.Summary, error)
}

type ScheduleHandler struct {
	uc     scheduleUsecaser
	logger *slog.Logger
}

func NewScheduleHandler(uc scheduleUsecaser, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, logger: logger.With("component", "schedule_handler")}
}

type scheduleTarget struct {
	ContentType   domain.ContentType `json:"contentType"   binding:"required,oneof=news program publication"`
	Action        domain.Action      `json:"action"        binding:"required,oneof=publish unpublish archive"`
	ScheduledDate time.Time          `json:"scheduledDate" binding:"required"`
	Timezone      string             `json:"timezone"      binding:"omitempty,max=64"`
	Metadata      map[string]any     `json:"metadata"`
}

type createScheduleRequest struct {
	scheduleTarget
	ContentID string `json:"contentId" binding:"required,max=128"`
}

type recurrenceRequest struct {
	Pattern        recurrence.Frequency `json:"pattern"        binding:"required,oneof=daily weekly monthly yearly"`
	Interval       int                  `json:"interval"       binding:"omitempty,min=0,max=365"`
	DaysOfWeek     []int                `json:"daysOfWeek"     binding:"omitempty,max=7,dive,min=0,max=6"`
	EndDate        *time.Time           `json:"endDate"`
	MaxOccurrences int                  `json:"maxOccurrences" binding:"omitempty,min=0,max=366"`
}

type createRecurringRequest struct {
	createScheduleRequest
	Recurrence recurrenceRequest `json:"recurrence" binding:"required"`
}

type batchScheduleRequest struct {
	scheduleTarget
	ContentIDs     []string `json:"contentIds"             binding:"required,min=1,max=500,dive,required,max=128"`
	StaggerMinutes int      `json:"staggerIntervalMinutes" binding:"omitempty,min=0,max=1440"`
}

type scheduleResponse struct {
	ID            string             `json:"id"`
	ContentID     string             `json:"contentId"`
	ContentType   domain.ContentType `json:"contentType"`
	Action        domain.Action      `json:"action"`
	ScheduledDate time.Time          `json:"scheduledDate"`
	Timezone      string             `json:"timezone"`
	Status        domain.Status      `json:"status"`
	ExecutedAt    *time.Time         `json:"executedAt,omitempty"`
	FailureReason *string            `json:"failureReason,omitempty"`
	CreatedBy     string             `json:"createdBy"`
	Metadata      map[string]any     `json:"metadata"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:            s.ID,
		ContentID:     s.ContentID,
		ContentType:   s.ContentType,
		Action:        s.Action,
		ScheduledDate: s.ScheduledDate,
		Timezone:      s.Timezone,
		Status:        s.Status,
		ExecutedAt:    s.ExecutedAt,
		FailureReason: s.FailureReason,
		CreatedBy:     s.CreatedBy,
		Metadata:      s.Metadata,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toScheduleResponses(schedules []*domain.Schedule) []scheduleResponse {
	items := make([]scheduleResponse, len(schedules))
	for i, s := range schedules {
		items[i] = toScheduleResponse(s)
	}
	return items
}

func (r createScheduleRequest) input(actor string) usecase.CreateScheduleInput {
	return usecase.CreateScheduleInput{
		ContentID:     r.ContentID,
		ContentType:   r.ContentType,
		Action:        r.Action,
		ScheduledDate: r.ScheduledDate,
		Timezone:      r.Timezone,
		CreatedBy:     actor,
		Metadata:      r.Metadata,
	}
}

func actor(ctx *gin.Context) string {
	return ctx.GetString(middleware.ActorKey)
}

func (h *ScheduleHandler) Create(ctx *gin.Context) {
	var req createScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBadRequest(ctx, err)
		return
	}

	s, err := h.uc.Schedule(ctx.Request.Context(), req.input(actor(ctx)))
	if err != nil {
		respondError(ctx, h.logger, "create schedule", err, "content_id", req.ContentID)
		return
	}

	ctx.JSON(http.StatusCreated, toScheduleResponse(s))
}

func (h *ScheduleHandler) CreateRecurring(ctx *gin.Context) {
	var req createRecurringRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBadRequest(ctx, err)
		return
	}

	schedules, err := h.uc.ScheduleRecurring(ctx.Request.Context(), usecase.CreateRecurringInput{
		CreateScheduleInput: req.input(actor(ctx)),
		Pattern: recurrence.Pattern{
			Frequency:      req.Recurrence.Pattern,
			Interval:       req.Recurrence.Interval,
			DaysOfWeek:     req.Recurrence.DaysOfWeek,
			EndDate:        req.Recurrence.EndDate,
			MaxOccurrences: req.Recurrence.MaxOccurrences,
		},
	})
	if err != nil {
		respondError(ctx, h.logger, "create recurring schedules", err, "content_id", req.ContentID)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"count":     len(schedules),
		"schedules": toScheduleResponses(schedules),
	})
}

func (h *ScheduleHandler) CreateBatch(ctx *gin.Context) {
	var req batchScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBadRequest(ctx, err)
		return
	}

	schedules, err := h.uc.BatchSchedule(ctx.Request.Context(), usecase.BatchScheduleInput{
		ContentIDs:     req.ContentIDs,
		ContentType:    req.ContentType,
		Action:         req.Action,
		ScheduledDate:  req.ScheduledDate,
		Timezone:       req.Timezone,
		CreatedBy:      actor(ctx),
		StaggerMinutes: req.StaggerMinutes,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(ctx, h.logger, "create schedule batch", err, "count", len(req.ContentIDs))
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"count":     len(schedules),
		"schedules": toScheduleResponses(schedules),
	})
}

type listQuery struct {
	ContentType domain.ContentType `form:"content_type"`
	ContentID   string             `form:"content_id"`
	Status      domain.Status      `form:"status"`
	Action      domain.Action      `form:"action"`
	From        *time.Time         `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To          *time.Time         `form:"to"   time_format:"2006-01-02T15:04:05Z07:00"`
	Search      string             `form:"q"    binding:"max=200"`
	Page        int                `form:"page"  binding:"omitempty,min=1"`
	Limit       int                `form:"limit" binding:"omitempty,min=1"`
}

func (h *ScheduleHandler) List(ctx *gin.Context) {
	var q listQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		respondBadRequest(ctx, err)
		return
	}

	result, err := h.uc.List(ctx.Request.Context(), usecase.ListSchedulesInput{
		ContentType: q.ContentType,
		ContentID:   q.ContentID,
		Status:      q.Status,
		Action:      q.Action,
		From:        q.From,
		To:          q.To,
		Search:      q.Search,
		Page:        q.Page,
		Limit:       q.Limit,
	})
	if err != nil {
		respondError(ctx, h.logger, "list schedules", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"schedules": toScheduleResponses(result.Schedules),
		"pagination": gin.H{
			"page":       result.Page,
			"limit":      result.Limit,
			"total":      result.Total,
			"totalPages": result.TotalPages,
		},
	})
}

func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	s, err := h.uc.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, h.logger, "get schedule", err, "schedule_id", id)
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.Cancel(ctx.Request.Context(), id, actor(ctx)); err != nil {
		respondError(ctx, h.logger, "cancel schedule", err, "schedule_id", id)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// Execute runs a pending schedule now ("Ejecutar Ahora"). A failed content
// mutation still answers 200: the body carries status failed and the reason.
func (h *ScheduleHandler) Execute(ctx *gin.Context) {
	id := ctx.Param("id")

	s, err := h.uc.ExecuteNow(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, h.logger, "execute schedule", err, "schedule_id", id)
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")

	s, err := h.uc.Retry(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, h.logger, "retry schedule", err, "schedule_id", id)
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Stats(ctx *gin.Context) {
	st, err := h.uc.Stats(ctx.Request.Context())
	if err != nil {
		respondError(ctx, h.logger, "schedule stats", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"pending":   st.Pending,
		"executed":  st.Executed,
		"failed":    st.Failed,
		"cancelled": st.Cancelled,
		"dueNow":    st.DueNow,
		"total":     st.Total(),
	})
}

type processQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

// Process runs one poller pass, for deployments driven by an external cron.
func (h *ScheduleHandler) Process(ctx *gin.Context) {
	var q processQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		respondBadRequest(ctx, err)
		return
	}

	summary, err := h.uc.ProcessPending(ctx.Request.Context(), min(q.Limit, maxProcessLimit))
	if err != nil {
		respondError(ctx, h.logger, "process pending schedules", err)
		return
	}

	ctx.JSON(http.StatusOK, summary)
}
