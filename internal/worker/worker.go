package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"remotevibes/internal/monitor"
	"remotevibes/internal/runtime"
	"remotevibes/internal/session"

	"github.com/hibiken/asynq"
)

const composeRestartTimeout = 5 * time.Minute

var _ ContainerWorker = (*ContainerTaskWorker)(nil)

// ContainerTaskWorker runs the detached container jobs: compose restarts
// queued by the API and the periodic stale container sweep.
type ContainerTaskWorker struct {
	store  session.Store
	rt     runtime.Client
	logger *slog.Logger
}

func NewContainerTaskWorker(store session.Store, rt runtime.Client, logger *slog.Logger) *ContainerTaskWorker {
	return &ContainerTaskWorker{
		store:  store,
		rt:     rt,
		logger: logger.With("component", "container-worker"),
	}
}

// HandleComposeRestart restarts one compose service inside the session's
// agent container. The agent container carries the docker CLI and the host
// socket, so the restart runs where the stack was brought up.
func (w *ContainerTaskWorker) HandleComposeRestart(ctx context.Context, task *asynq.Task) error {
	var payload ComposeRestartPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("json unmarshal error: %w", err)
	}

	w.logger.Info("Processing compose restart",
		"session_id", payload.SessionID,
		"service", payload.Service)

	s, err := w.store.GetByID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", payload.SessionID, err)
	}
	if s.Status != session.StatusRunning || s.ContainerID == "" {
		// session 已停止，重启没有意义，任务直接完成
		w.logger.Info("Session no longer running, skipping restart", "session_id", payload.SessionID)
		return nil
	}

	// pull + force-recreate，和手工升级一个 compose 服务的操作一致
	cmd := []string{
		"sh", "-c",
		fmt.Sprintf("cd /repos/%s && docker compose pull %s && docker compose up -d --force-recreate %s",
			payload.RepoName, payload.Service, payload.Service),
	}
	// image pull 可能卡很久，限定重启任务自身的时限，不占满 worker 槽位
	execCtx, cancel := context.WithTimeout(ctx, composeRestartTimeout)
	defer cancel()
	result, err := w.rt.Exec(execCtx, s.ContainerID, cmd)
	if err != nil {
		return fmt.Errorf("exec compose restart: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("compose restart exited with %d: %s", result.ExitCode, result.Output)
	}

	w.logger.Info("Compose service restarted",
		"session_id", payload.SessionID,
		"service", payload.Service)
	return nil
}

// HandleContainerSweep force-removes exited managed containers left behind
// by crashed sessions.
func (w *ContainerTaskWorker) HandleContainerSweep(ctx context.Context, _ *asynq.Task) error {
	removed, err := w.rt.RemoveStoppedManaged(ctx)
	if err != nil {
		return fmt.Errorf("sweep stale containers: %w", err)
	}
	if removed > 0 {
		monitor.StaleContainersRemoved.Add(float64(removed))
		w.logger.Info("Swept stale containers", "count", removed)
	}
	return nil
}
