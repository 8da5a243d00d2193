package repo

import (
	"time"

	"remotevibes/internal/session"
)

const sessionCacheTTL = time.Minute * 5

type SessionModel struct {
	tableName struct{} `pg:"agent_sessions"` //nolint:unused

	ID      string `pg:"id,pk"`
	OwnerID string `pg:"owner_id,notnull"`

	RepoFullName string `pg:"repo_full_name,notnull"`
	RepoName     string `pg:"repo_name,notnull"`
	Branch       string `pg:"branch,notnull,default:'main'"`

	ContainerID   string `pg:"container_id"`
	ContainerName string `pg:"container_name"`
	EditorPort    int    `pg:"editor_port"`
	AgentAPIPort  int    `pg:"agent_api_port"`
	DevServerPort int    `pg:"dev_server_port"`

	Status session.Status `pg:"status,notnull"`

	TunnelURL    string `pg:"tunnel_url"`
	TunnelActive bool   `pg:"tunnel_active,use_zero"`

	LastPRURL   string `pg:"last_pr_url"`
	LastPRTitle string `pg:"last_pr_title"`

	CreatedAt time.Time  `pg:"created_at,notnull"`
	UpdatedAt time.Time  `pg:"updated_at,notnull"`
	StoppedAt *time.Time `pg:"stopped_at"`
}

func (m *SessionModel) toDomain() *session.Session {
	return &session.Session{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		RepoFullName:  m.RepoFullName,
		RepoName:      m.RepoName,
		Branch:        m.Branch,
		ContainerID:   m.ContainerID,
		ContainerName: m.ContainerName,
		EditorPort:    m.EditorPort,
		AgentAPIPort:  m.AgentAPIPort,
		DevServerPort: m.DevServerPort,
		Status:        m.Status,
		TunnelURL:     m.TunnelURL,
		TunnelActive:  m.TunnelActive,
		LastPRURL:     m.LastPRURL,
		LastPRTitle:   m.LastPRTitle,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		StoppedAt:     m.StoppedAt,
	}
}

func fromDomain(s *session.Session) *SessionModel {
	return &SessionModel{
		ID:            s.ID,
		OwnerID:       s.OwnerID,
		RepoFullName:  s.RepoFullName,
		RepoName:      s.RepoName,
		Branch:        s.Branch,
		ContainerID:   s.ContainerID,
		ContainerName: s.ContainerName,
		EditorPort:    s.EditorPort,
		AgentAPIPort:  s.AgentAPIPort,
		DevServerPort: s.DevServerPort,
		Status:        s.Status,
		TunnelURL:     s.TunnelURL,
		TunnelActive:  s.TunnelActive,
		LastPRURL:     s.LastPRURL,
		LastPRTitle:   s.LastPRTitle,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		StoppedAt:     s.StoppedAt,
	}
}

func sessionCacheKey(sessionID string) string {
	return "session:" + sessionID
}
