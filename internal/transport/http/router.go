package httptransport

import (
	"log/slog"

	"github.com/fundacion-cms/content-scheduler/internal/transport/http/handler"
	"github.com/fundacion-cms/content-scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, scheduleHandler *handler.ScheduleHandler, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Observe())

	schedules := r.Group("/schedules", middleware.Auth(jwtKey))
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.List)
	schedules.POST("/recurring", scheduleHandler.CreateRecurring)
	schedules.POST("/batch", scheduleHandler.CreateBatch)
	schedules.GET("/stats", scheduleHandler.Stats)
	schedules.POST("/process", scheduleHandler.Process)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.POST("/:id/cancel", scheduleHandler.Cancel)
	schedules.POST("/:id/execute", scheduleHandler.Execute)
	schedules.POST("/:id/retry", scheduleHandler.Retry)

	return r
}
