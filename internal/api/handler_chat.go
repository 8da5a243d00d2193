package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"remotevibes/internal/agent"
	"remotevibes/internal/config"
	"remotevibes/internal/monitor"
	"remotevibes/internal/orchestrator"
	"remotevibes/internal/session"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	orch     *orchestrator.Orchestrator
	store    session.Store
	agentCfg config.AgentConfig
	logger   *slog.Logger
}

func NewChatHandler(orch *orchestrator.Orchestrator, store session.Store, agentCfg config.AgentConfig, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		orch:     orch,
		store:    store,
		agentCfg: agentCfg,
		logger:   logger.With("component", "chat-handler"),
	}
}

// agentClient builds a client for the session's published agent port.
func (h *ChatHandler) agentClient(c *gin.Context) (*agent.Client, *session.Session, bool) {
	s, err := h.orch.GetSession(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return nil, nil, false
	}
	if s.Status != session.StatusRunning || s.AgentAPIPort == 0 {
		respondError(c, http.StatusConflict, orchestrator.ErrSessionTerminal)
		return nil, nil, false
	}

	client := agent.NewClient(
		agent.BaseURLForPort(s.AgentAPIPort),
		h.agentCfg.ChatTimeout,
		h.agentCfg.PRTimeout,
		h.logger,
	)
	return client, s, true
}

// StreamChat POST /api/sessions/:id/chat/stream
// 把 agent 的 SSE 流原样转发给客户端
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	client, s, ok := h.agentClient(c)
	if !ok {
		return
	}

	monitor.ChatStreamsTotal.Inc()
	monitor.ChatStreamsActive.Inc()
	defer monitor.ChatStreamsActive.Dec()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// 长连接要关掉服务器级别的 WriteTimeout，否则流式传输中途会被掐断
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("Failed to disable write deadline for SSE", "error", err)
	}

	history := make([]agent.ChatTurn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, agent.ChatTurn{Role: turn.Role, Content: turn.Content})
	}

	// 客户端断连时取消对 agent 的请求
	chunks := client.StreamChat(c.Request.Context(), agent.ChatRequest{
		Message:   req.Message,
		History:   history,
		SessionID: s.ID,
	})

	// 对外的流格式和 agent 一致：data: <json> 帧，最后一帧是 data: [DONE]
	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				fmt.Fprint(w, "data: [DONE]\n\n")
				return false
			}

			data, err := json.Marshal(chunk)
			if err != nil {
				h.logger.Warn("Failed to marshal chunk", "session_id", s.ID, "error", err)
				return true
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}

// CreatePullRequest POST /api/sessions/:id/pr
// 让 agent 提交、推送并开 PR，成功后把 PR 信息记到 session 上
func (h *ChatHandler) CreatePullRequest(c *gin.Context) {
	var req CreatePRRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	client, s, ok := h.agentClient(c)
	if !ok {
		return
	}

	result, err := client.TriggerPullRequest(c.Request.Context(), agent.PRRequest{
		FeatureName: req.FeatureName,
		SessionID:   s.ID,
	})
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}

	monitor.PullRequestsTotal.Inc()
	if err := h.store.UpdatePR(c.Request.Context(), s.ID, result.PRURL, req.FeatureName); err != nil {
		// PR 已经开了，记录失败只打日志
		h.logger.Warn("Failed to record pr info", "session_id", s.ID, "error", err)
	}

	c.JSON(http.StatusOK, result)
}

// AgentHealth GET /api/sessions/:id/agent/health
func (h *ChatHandler) AgentHealth(c *gin.Context) {
	client, _, ok := h.agentClient(c)
	if !ok {
		return
	}

	if err := client.HealthCheck(c.Request.Context()); err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: formatTime(time.Now()),
	})
}
