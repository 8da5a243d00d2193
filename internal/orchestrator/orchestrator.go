package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"remotevibes/internal/config"
	"remotevibes/internal/monitor"
	"remotevibes/internal/ports"
	"remotevibes/internal/runtime"
	"remotevibes/internal/session"
	"remotevibes/internal/session/repo"
	"remotevibes/internal/tunnel"
	"remotevibes/internal/worker"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Orchestrator drives the session lifecycle: allocate ports, create the
// network, run the container, record bindings, tear everything down again.
// All engine-facing steps for one session run under that session's lock.
type Orchestrator struct {
	store     session.Store
	rt        runtime.Client
	ports     *ports.Allocator
	registrar tunnel.Registrar
	queue     *asynq.Client
	cfg       config.AgentConfig
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store session.Store, rt runtime.Client, alloc *ports.Allocator, registrar tunnel.Registrar, queue *asynq.Client, cfg config.AgentConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		rt:        rt,
		ports:     alloc,
		registrar: registrar,
		queue:     queue,
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
		locks:     make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex for one session, creating it on first use.
// Locks are never removed; sessions are short-lived enough that the map
// stays small.
func (o *Orchestrator) sessionLock(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	return l
}

// StartSession provisions a fresh container for the repo and returns the
// running session. The credential check happens before anything is created;
// after the pending row exists, every failure path flips it to error.
func (o *Orchestrator) StartSession(ctx context.Context, p StartParams) (*session.Session, error) {
	pat := p.GitHubPAT
	if pat == "" {
		pat = o.cfg.GitHubPAT
	}
	if pat == "" {
		return nil, ErrNoCredential
	}

	if p.Branch == "" {
		p.Branch = "main"
	}

	id := uuid.NewString()
	s := &session.Session{
		ID:           id,
		OwnerID:      p.OwnerID,
		RepoFullName: p.RepoFullName,
		RepoName:     p.RepoName,
		Branch:       p.Branch,
		Status:       session.StatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := o.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session record: %w", err)
	}

	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	o.logger.Info("Starting session", "session_id", id, "repo", p.RepoFullName, "branch", p.Branch)

	editorPort, agentPort, devPort, err := o.ports.AllocateTriple(o.cfg.BasePort)
	if err != nil {
		return nil, o.fail(id, "allocate ports", err)
	}

	networkName := runtime.NetworkName(id)
	labels := map[string]string{
		runtime.LabelSessionID: id,
		runtime.LabelRepo:      p.RepoFullName,
		runtime.LabelManaged:   "true",
	}
	if err := o.rt.CreateNetwork(ctx, networkName, labels); err != nil {
		return nil, o.fail(id, "create network", err)
	}

	env := map[string]string{
		"GITHUB_PAT":        pat,
		"REPO_FULL_NAME":    p.RepoFullName,
		"REPO_NAME":         p.RepoName,
		"SESSION_ID":        id,
		"BRANCH":            p.Branch,
		"DEV_SERVER_PORT":   strconv.Itoa(o.cfg.InternalDevPort),
		"REPOS_VOLUME_NAME": o.cfg.ReposVolume,
	}
	if o.cfg.TunnelToken != "" {
		env["CLOUDFLARE_TUNNEL_TOKEN"] = o.cfg.TunnelToken
	}

	containerName := runtime.ContainerName(id)
	spec := runtime.ContainerSpec{
		Name:  containerName,
		Image: o.cfg.Image,
		Env:   env,
		Volumes: []runtime.VolumeBinding{
			{Source: o.cfg.ReposVolume, Target: "/repos", Mode: "rw"},
			{Source: dockerSocket, Target: dockerSocket, Mode: "rw"},
		},
		Ports: map[int]int{
			internalEditorPort:    editorPort,
			internalAgentPort:     agentPort,
			o.cfg.InternalDevPort: devPort,
		},
		Network:     networkName,
		Labels:      labels,
		User:        "root",
		MemoryBytes: o.cfg.MemoryLimitMB << 20,
		CPUQuota:    o.cfg.CPUQuota,
	}

	started, err := o.rt.RunContainer(ctx, spec)
	if err != nil {
		if rmErr := o.rt.RemoveNetwork(context.WithoutCancel(ctx), networkName); rmErr != nil {
			o.logger.Warn("Failed to remove network after start failure", "network", networkName, "error", rmErr)
		}
		return nil, o.fail(id, "run container", err)
	}

	// 加入编排器所在的共享网络，方便服务间直接互访；失败不影响 session
	if o.cfg.MainNetwork != "" {
		if err := o.rt.JoinNetwork(ctx, started.ID, o.cfg.MainNetwork, containerName); err != nil {
			o.logger.Warn("Failed to join main network", "session_id", id, "error", err)
		}
	}

	bindings := session.ContainerBindings{
		ContainerID:   started.ID,
		ContainerName: started.Name,
		EditorPort:    editorPort,
		AgentAPIPort:  agentPort,
		DevServerPort: devPort,
	}
	if err := o.store.MarkRunning(ctx, id, bindings); err != nil {
		o.teardownContainer(context.WithoutCancel(ctx), started.ID, networkName)
		return nil, o.fail(id, "record bindings", err)
	}

	if o.registrar.Enabled() {
		if urls, err := o.registrar.Register(ctx, id, p.RepoName, editorPort, devPort); err != nil {
			o.logger.Warn("Tunnel registration failed", "session_id", id, "error", err)
		} else if err := o.store.UpdateTunnel(ctx, id, urls.App, true); err != nil {
			o.logger.Warn("Failed to record tunnel url", "session_id", id, "error", err)
		}
	}

	monitor.SessionsStartedTotal.Inc()
	monitor.SessionsActive.Inc()
	monitor.SessionStartLatency.Observe(time.Since(start).Seconds())
	o.logger.Info("Session running",
		"session_id", id,
		"container", started.Name,
		"editor_port", editorPort,
		"agent_port", agentPort,
		"dev_port", devPort)

	return o.store.GetByID(ctx, id)
}

// fail flips the session to error and returns a wrapped error. The status
// write uses a fresh context so caller cancellation cannot strand the row
// in pending.
func (o *Orchestrator) fail(id, stage string, err error) error {
	monitor.SessionStartErrorsTotal.Inc()
	o.logger.Error("Session start failed", "session_id", id, "stage", stage, "error", err)

	updateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if updErr := o.store.UpdateStatus(updateCtx, id, session.StatusError); updErr != nil {
		o.logger.Error("Failed to mark session errored", "session_id", id, "error", updErr)
	}

	return fmt.Errorf("%s: %w", stage, err)
}

func (o *Orchestrator) teardownContainer(ctx context.Context, containerID, networkName string) {
	if err := o.rt.StopAndRemove(ctx, containerID, o.cfg.StopGracePeriod); err != nil {
		o.logger.Warn("Failed to remove container during teardown", "container_id", containerID, "error", err)
	}
	if err := o.rt.RemoveNetwork(ctx, networkName); err != nil {
		o.logger.Warn("Failed to remove network during teardown", "network", networkName, "error", err)
	}
}

// StopSession tears down the session's container and network. Resource
// removal is best-effort; the stopped status write is what must succeed.
// Stopping an already stopped session is a no-op.
func (o *Orchestrator) StopSession(ctx context.Context, ownerID, id string) error {
	if _, err := o.getOwned(ctx, ownerID, id); err != nil {
		return err
	}

	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	// 拿到锁后重读，并发的 stop 只有第一个做真正的清理
	s, err := o.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if s.Status.Terminal() {
		return nil
	}

	if s.ContainerID != "" {
		if err := o.rt.StopAndRemove(ctx, s.ContainerID, o.cfg.StopGracePeriod); err != nil {
			o.logger.Warn("Failed to remove container", "session_id", id, "error", err)
		}
	}
	if err := o.rt.RemoveNetwork(ctx, runtime.NetworkName(id)); err != nil {
		o.logger.Warn("Failed to remove network", "session_id", id, "error", err)
	}
	if o.registrar.Enabled() {
		if err := o.registrar.Unregister(ctx, id); err != nil {
			o.logger.Warn("Failed to unregister tunnel", "session_id", id, "error", err)
		}
	}

	// 容器已经拆掉，这条状态写入不能再被调用方断开连累
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.MarkStopped(stopCtx, id); err != nil {
		return fmt.Errorf("mark session stopped: %w", err)
	}

	monitor.SessionsStoppedTotal.Inc()
	if s.Status == session.StatusRunning {
		monitor.SessionsActive.Dec()
	}
	o.logger.Info("Session stopped", "session_id", id)
	return nil
}

// GetSession returns the session if it exists and belongs to ownerID.
// Someone else's session looks exactly like a missing one.
func (o *Orchestrator) GetSession(ctx context.Context, ownerID, id string) (*session.Session, error) {
	return o.getOwned(ctx, ownerID, id)
}

func (o *Orchestrator) getOwned(ctx context.Context, ownerID, id string) (*session.Session, error) {
	s, err := o.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return s, nil
}

// ListSessions returns the owner's sessions, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context, ownerID string) ([]*session.Session, error) {
	return o.store.ListByOwner(ctx, ownerID)
}

// GetStatus pairs the stored record with a live engine probe. A missing or
// unreachable container reads as "unknown"; the probe never fails the call.
func (o *Orchestrator) GetStatus(ctx context.Context, ownerID, id string) (*StatusReport, error) {
	s, err := o.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	containerStatus := runtime.StateUnknown
	if s.ContainerID != "" {
		if state, err := o.rt.Status(ctx, s.ContainerID); err == nil {
			containerStatus = state
		}
	}

	return &StatusReport{Session: s, ContainerStatus: containerStatus}, nil
}

// GetLogs returns recent container logs. Diagnostic only; always returns
// text.
func (o *Orchestrator) GetLogs(ctx context.Context, ownerID, id string, tail int) (string, error) {
	s, err := o.getOwned(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if s.ContainerName == "" {
		return "(container not started)", nil
	}
	return o.rt.Logs(ctx, s.ContainerName, tail), nil
}

// ListCompose lists the containers of the compose stack the agent brought up
// inside the session workspace.
func (o *Orchestrator) ListCompose(ctx context.Context, ownerID, id string) ([]runtime.Sibling, error) {
	s, err := o.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if s.ContainerName == "" || s.Status != session.StatusRunning {
		return []runtime.Sibling{}, nil
	}
	return o.rt.Siblings(ctx, s.ContainerName)
}

// ComposeLogs fetches recent logs for one compose sibling by service name.
func (o *Orchestrator) ComposeLogs(ctx context.Context, ownerID, id, service string, tail int) (string, error) {
	siblings, err := o.ListCompose(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	for _, sib := range siblings {
		if sib.Service == service {
			return o.rt.Logs(ctx, sib.ID, tail), nil
		}
	}
	return "", fmt.Errorf("%w: compose service %q", ErrNotFound, service)
}

// RestartComposeService queues a detached restart of one compose service.
// The restart outlives the HTTP request that asked for it.
func (o *Orchestrator) RestartComposeService(ctx context.Context, ownerID, id, service string) error {
	s, err := o.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if s.Status != session.StatusRunning {
		return fmt.Errorf("%w: session %s", ErrSessionTerminal, id)
	}

	task, err := worker.NewComposeRestartTask(id, s.RepoName, service)
	if err != nil {
		return err
	}
	info, err := o.queue.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue compose restart: %w", err)
	}

	o.logger.Info("Compose restart queued", "session_id", id, "service", service, "task_id", info.ID)
	return nil
}

// CleanupStale removes every exited managed container on the host. Used by
// the periodic sweep and the manual cleanup endpoint.
func (o *Orchestrator) CleanupStale(ctx context.Context) (int, error) {
	removed, err := o.rt.RemoveStoppedManaged(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		monitor.StaleContainersRemoved.Add(float64(removed))
		o.logger.Info("Removed stale containers", "count", removed)
	}
	return removed, nil
}

// ListFleet lists every managed container on the host regardless of owner.
func (o *Orchestrator) ListFleet(ctx context.Context) ([]runtime.ManagedContainer, error) {
	return o.rt.ListManaged(ctx)
}
