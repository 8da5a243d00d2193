package worker

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	ComposeRestartTask = "compose:restart"
	ContainerSweepTask = "containers:sweep"
)

// ComposeRestartPayload identifies one compose service inside a session's
// workspace.
type ComposeRestartPayload struct {
	SessionID string `json:"session_id"`
	RepoName  string `json:"repo_name"`
	Service   string `json:"service"`
}

func NewComposeRestartTask(sessionID, repoName, service string) (*asynq.Task, error) {
	payload, err := json.Marshal(ComposeRestartPayload{
		SessionID: sessionID,
		RepoName:  repoName,
		Service:   service,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal compose restart payload: %w", err)
	}
	return asynq.NewTask(ComposeRestartTask, payload), nil
}

func NewContainerSweepTask() *asynq.Task {
	return asynq.NewTask(ContainerSweepTask, nil)
}
