package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	errInternalServer     = "Internal server error"
	errInvalidRequest     = "Invalid request"
	errUnauthorized       = "Unauthorized"
	errScheduleNotFound   = "Schedule not found"
	errScheduleNotPending = "Schedule is not pending"
	errScheduleNotFailed  = "Only failed schedules can be retried"
	errScheduleConflict   = "Schedule was modified by another request"
	errUnknownContentType = "Unknown content type"
	errUnknownAction      = "Unknown action"
	errInvalidRecurrence  = "Invalid recurrence pattern"
	errNoOccurrences      = "Recurrence produces no dates before its end date"
	errEmptyBatch         = "At least one content id is required"
	errInvalidFilter      = "Invalid filter"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{domain.ErrScheduleNotFound, http.StatusNotFound, errScheduleNotFound},
	{domain.ErrScheduleNotPending, http.StatusConflict, errScheduleNotPending},
	{domain.ErrScheduleNotFailed, http.StatusConflict, errScheduleNotFailed},
	{domain.ErrScheduleStateChanged, http.StatusConflict, errScheduleConflict},
	{domain.ErrUnknownContentType, http.StatusBadRequest, errUnknownContentType},
	{domain.ErrUnknownAction, http.StatusBadRequest, errUnknownAction},
	{domain.ErrInvalidRecurrence, http.StatusBadRequest, errInvalidRecurrence},
	{domain.ErrNoOccurrences, http.StatusBadRequest, errNoOccurrences},
	{domain.ErrEmptyBatch, http.StatusBadRequest, errEmptyBatch},
	{domain.ErrInvalidFilter, http.StatusBadRequest, errInvalidFilter},
	{domain.ErrMissingActor, http.StatusUnauthorized, errUnauthorized},
}

// respondError maps a usecase error to a status and a constant message. Unmapped
// errors are logged and reported as 500.
func respondError(ctx *gin.Context, logger *slog.Logger, op string, err error, attrs ...any) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			ctx.JSON(m.status, gin.H{"error": m.message})
			return
		}
	}
	logger.ErrorContext(ctx.Request.Context(), op, append(attrs, "error", err)...)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}

func respondBadRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest, "details": err.Error()})
}
