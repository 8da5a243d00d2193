package orchestrator

import (
	"remotevibes/internal/session"
)

// agent 容器内部的固定端口
const (
	internalEditorPort = 8080
	internalAgentPort  = 3000
)

const dockerSocket = "/var/run/docker.sock"

// StartParams is everything needed to launch a session.
type StartParams struct {
	OwnerID      string
	RepoFullName string // owner/repo
	RepoName     string
	Branch       string
	// GitHubPAT is the caller's personal token. Empty falls back to the
	// globally configured one.
	GitHubPAT string
}

// StatusReport pairs the persisted session with a live engine probe.
type StatusReport struct {
	Session         *session.Session `json:"session"`
	ContainerStatus string           `json:"container_status"`
}
