package api

import (
	"time"

	"remotevibes/internal/session"
)

type CreateSessionRequest struct {
	RepoFullName string `json:"repo_full_name" binding:"required"`
	Branch       string `json:"branch"`
	// GithubPAT 可选，覆盖全局配置的 token
	GithubPAT string `json:"github_pat"`
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string     `json:"message" binding:"required"`
	History []ChatTurn `json:"history"`
}

type CreatePRRequest struct {
	FeatureName string `json:"feature_name"`
}

type SessionResponse struct {
	ID           string `json:"id"`
	RepoFullName string `json:"repo_full_name"`
	RepoName     string `json:"repo_name"`
	Branch       string `json:"branch"`
	Status       string `json:"status"`

	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	EditorPort    int    `json:"editor_port,omitempty"`
	AgentAPIPort  int    `json:"agent_api_port,omitempty"`
	DevServerPort int    `json:"dev_server_port,omitempty"`

	TunnelURL    string `json:"tunnel_url,omitempty"`
	TunnelActive bool   `json:"tunnel_active"`

	LastPRURL   string `json:"last_pr_url,omitempty"`
	LastPRTitle string `json:"last_pr_title,omitempty"`

	CreatedAt string `json:"created_at"`
	StoppedAt string `json:"stopped_at,omitempty"`
}

type StatusResponse struct {
	Session         SessionResponse `json:"session"`
	ContainerStatus string          `json:"container_status"`
}

type LogsResponse struct {
	Logs string `json:"logs"`
}

type CleanupResponse struct {
	Removed int `json:"removed"`
}

type RestartResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

func toSessionResponse(s *session.Session) SessionResponse {
	resp := SessionResponse{
		ID:            s.ID,
		RepoFullName:  s.RepoFullName,
		RepoName:      s.RepoName,
		Branch:        s.Branch,
		Status:        string(s.Status),
		ContainerID:   s.ContainerID,
		ContainerName: s.ContainerName,
		EditorPort:    s.EditorPort,
		AgentAPIPort:  s.AgentAPIPort,
		DevServerPort: s.DevServerPort,
		TunnelURL:     s.TunnelURL,
		TunnelActive:  s.TunnelActive,
		LastPRURL:     s.LastPRURL,
		LastPRTitle:   s.LastPRTitle,
		CreatedAt:     formatTime(s.CreatedAt),
	}
	if s.StoppedAt != nil {
		resp.StoppedAt = formatTime(*s.StoppedAt)
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
