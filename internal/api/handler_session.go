package api

import (
	"net/http"
	"strconv"
	"strings"

	"remotevibes/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

const defaultLogTail = 300

type SessionHandler struct {
	orch *orchestrator.Orchestrator
}

func NewSessionHandler(orch *orchestrator.Orchestrator) *SessionHandler {
	return &SessionHandler{orch: orch}
}

// StartSession POST /api/sessions
// 为一个仓库启动全新的 agent 容器
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	repoName := req.RepoFullName
	if idx := strings.LastIndex(req.RepoFullName, "/"); idx >= 0 {
		repoName = req.RepoFullName[idx+1:]
	}

	s, err := h.orch.StartSession(c.Request.Context(), orchestrator.StartParams{
		OwnerID:      ownerID(c),
		RepoFullName: req.RepoFullName,
		RepoName:     repoName,
		Branch:       req.Branch,
		GitHubPAT:    req.GithubPAT,
	})
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(s))
}

// ListSessions GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.orch.ListSessions(c.Request.Context(), ownerID(c))
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, err := h.orch.GetSession(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s))
}

// StopSession DELETE /api/sessions/:id
func (h *SessionHandler) StopSession(c *gin.Context) {
	if err := h.orch.StopSession(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// GetStatus GET /api/sessions/:id/status
// 返回数据库状态和引擎实时状态
func (h *SessionHandler) GetStatus(c *gin.Context) {
	report, err := h.orch.GetStatus(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Session:         toSessionResponse(report.Session),
		ContainerStatus: report.ContainerStatus,
	})
}

// GetLogs GET /api/sessions/:id/logs?tail=300
func (h *SessionHandler) GetLogs(c *gin.Context) {
	tail := defaultLogTail
	if v := c.Query("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			tail = n
		}
	}

	logs, err := h.orch.GetLogs(c.Request.Context(), ownerID(c), c.Param("id"), tail)
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, LogsResponse{Logs: logs})
}

// ListCompose GET /api/sessions/:id/compose
func (h *SessionHandler) ListCompose(c *gin.Context) {
	siblings, err := h.orch.ListCompose(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, siblings)
}

// ComposeLogs GET /api/sessions/:id/compose/:service/logs
func (h *SessionHandler) ComposeLogs(c *gin.Context) {
	tail := defaultLogTail
	if v := c.Query("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			tail = n
		}
	}

	logs, err := h.orch.ComposeLogs(c.Request.Context(), ownerID(c), c.Param("id"), c.Param("service"), tail)
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, LogsResponse{Logs: logs})
}

// RestartComposeService POST /api/sessions/:id/compose/:service/restart
// 重启在后台排队执行，接口立即返回
func (h *SessionHandler) RestartComposeService(c *gin.Context) {
	service := c.Param("service")
	if err := h.orch.RestartComposeService(c.Request.Context(), ownerID(c), c.Param("id"), service); err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusAccepted, RestartResponse{
		Status:  "queued",
		Service: service,
	})
}
