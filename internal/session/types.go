package session

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition is allowed. A stopped or
// errored session is never revived; a new session is created instead.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError
}

// Session binds an owner to a running (or historical) agent container for
// one repository.
type Session struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	RepoFullName string `json:"repo_full_name"` // owner/repo
	RepoName     string `json:"repo_name"`
	Branch       string `json:"branch"`

	// Container bindings, empty until the container starts
	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	EditorPort    int    `json:"editor_port,omitempty"`
	AgentAPIPort  int    `json:"agent_api_port,omitempty"`
	DevServerPort int    `json:"dev_server_port,omitempty"`

	Status Status `json:"status"`

	TunnelURL    string `json:"tunnel_url,omitempty"`
	TunnelActive bool   `json:"tunnel_active"`

	LastPRURL   string `json:"last_pr_url,omitempty"`
	LastPRTitle string `json:"last_pr_title,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// ContainerBindings is everything recorded when a container comes up.
type ContainerBindings struct {
	ContainerID   string
	ContainerName string
	EditorPort    int
	AgentAPIPort  int
	DevServerPort int
}
