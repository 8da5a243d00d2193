package api

import (
	"log/slog"
	"net/http"
	"time"

	"remotevibes/internal/config"
	"remotevibes/internal/orchestrator"
	"remotevibes/internal/session"

	"github.com/gin-gonic/gin"
)

func NewRouter(orch *orchestrator.Orchestrator, store session.Store, agentCfg config.AgentConfig, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())

	// Global health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: formatTime(time.Now()),
		})
	})

	sessionHandler := NewSessionHandler(orch)
	chatHandler := NewChatHandler(orch, store, agentCfg, logger)
	containerHandler := NewContainerHandler(orch)

	authed := r.Group("/api", OwnerMiddleware())
	{
		sessions := authed.Group("/sessions")
		{
			sessions.POST("", sessionHandler.StartSession)
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.DELETE("/:id", sessionHandler.StopSession)
			sessions.GET("/:id/status", sessionHandler.GetStatus)
			sessions.GET("/:id/logs", sessionHandler.GetLogs)

			// agent 代理
			sessions.POST("/:id/chat/stream", chatHandler.StreamChat)
			sessions.POST("/:id/pr", chatHandler.CreatePullRequest)
			sessions.GET("/:id/agent/health", chatHandler.AgentHealth)

			// workspace 里的 compose 栈
			sessions.GET("/:id/compose", sessionHandler.ListCompose)
			sessions.GET("/:id/compose/:service/logs", sessionHandler.ComposeLogs)
			sessions.POST("/:id/compose/:service/restart", sessionHandler.RestartComposeService)
		}

		containers := authed.Group("/containers")
		{
			containers.GET("", containerHandler.ListFleet)
			containers.POST("/cleanup", containerHandler.Cleanup)
		}
	}

	return r
}
