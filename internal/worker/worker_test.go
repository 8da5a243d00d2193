package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"remotevibes/internal/runtime"
	"remotevibes/internal/session"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	session.Store
	sessions map[string]*session.Session
}

func (s *stubStore) GetByID(_ context.Context, id string) (*session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return sess, nil
}

type stubRuntime struct {
	runtime.Client
	mu           sync.Mutex
	execCmds     [][]string
	execDeadline bool
	exitCode     int
	removed      int
	block        bool
}

func (s *stubRuntime) Exec(ctx context.Context, _ string, cmd []string) (*runtime.ExecResult, error) {
	s.mu.Lock()
	s.execCmds = append(s.execCmds, cmd)
	_, s.execDeadline = ctx.Deadline()
	block := s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &runtime.ExecResult{ExitCode: s.exitCode}, nil
}

func (s *stubRuntime) RemoveStoppedManaged(_ context.Context) (int, error) {
	return s.removed, nil
}

func TestHandleComposeRestart(t *testing.T) {
	store := &stubStore{sessions: map[string]*session.Session{
		"s1": {ID: "s1", RepoName: "hello", Status: session.StatusRunning, ContainerID: "ctr-1"},
	}}
	rt := &stubRuntime{}
	w := NewContainerTaskWorker(store, rt, slog.Default())

	task, err := NewComposeRestartTask("s1", "hello", "web")
	require.NoError(t, err)
	require.NoError(t, w.HandleComposeRestart(context.Background(), task))

	require.Len(t, rt.execCmds, 1)
	assert.Contains(t, rt.execCmds[0][2], "cd /repos/hello")
	assert.Contains(t, rt.execCmds[0][2], "docker compose pull web")
	assert.Contains(t, rt.execCmds[0][2], "--force-recreate web")
}

func TestHandleComposeRestartExecIsBounded(t *testing.T) {
	store := &stubStore{sessions: map[string]*session.Session{
		"s1": {ID: "s1", RepoName: "hello", Status: session.StatusRunning, ContainerID: "ctr-1"},
	}}
	rt := &stubRuntime{block: true}
	w := NewContainerTaskWorker(store, rt, slog.Default())

	task, err := NewComposeRestartTask("s1", "hello", "web")
	require.NoError(t, err)

	// 任务 context 本身没有 deadline，exec 也必须被限时，卡住的 pull 不能吊死任务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.HandleComposeRestart(ctx, task) }()

	time.Sleep(20 * time.Millisecond)
	rt.mu.Lock()
	assert.True(t, rt.execDeadline, "exec context should carry a deadline")
	rt.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("restart handler did not return")
	}
}

func TestHandleComposeRestartStoppedSessionSkips(t *testing.T) {
	stopped := time.Now()
	store := &stubStore{sessions: map[string]*session.Session{
		"s1": {ID: "s1", Status: session.StatusStopped, StoppedAt: &stopped},
	}}
	rt := &stubRuntime{}
	w := NewContainerTaskWorker(store, rt, slog.Default())

	task, err := NewComposeRestartTask("s1", "hello", "web")
	require.NoError(t, err)
	// 已停止的 session 任务直接完成，不报错也不执行 exec
	require.NoError(t, w.HandleComposeRestart(context.Background(), task))
	assert.Empty(t, rt.execCmds)
}

func TestHandleComposeRestartNonZeroExit(t *testing.T) {
	store := &stubStore{sessions: map[string]*session.Session{
		"s1": {ID: "s1", RepoName: "hello", Status: session.StatusRunning, ContainerID: "ctr-1"},
	}}
	rt := &stubRuntime{exitCode: 1}
	w := NewContainerTaskWorker(store, rt, slog.Default())

	task, err := NewComposeRestartTask("s1", "hello", "web")
	require.NoError(t, err)
	assert.Error(t, w.HandleComposeRestart(context.Background(), task))
}

func TestHandleContainerSweep(t *testing.T) {
	rt := &stubRuntime{removed: 2}
	w := NewContainerTaskWorker(&stubStore{}, rt, slog.Default())

	require.NoError(t, w.HandleContainerSweep(context.Background(), asynq.NewTask(ContainerSweepTask, nil)))
}
