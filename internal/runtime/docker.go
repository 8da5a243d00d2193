package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

var _ Client = (*DockerClient)(nil)

// DockerClient adapts the Docker engine API to the Client capability set.
type DockerClient struct {
	cli        *client.Client
	networkMTU int
	logger     *slog.Logger
}

// NewDockerClient connects to the engine from the environment and verifies it
// is reachable. An unreachable daemon is reported as ErrUnavailable so the
// caller can distinguish it from per-container failures.
func NewDockerClient(ctx context.Context, networkMTU int, logger *slog.Logger) (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &DockerClient{
		cli:        cli,
		networkMTU: networkMTU,
		logger:     logger.With("component", "docker"),
	}, nil
}

func (d *DockerClient) Close() error {
	return d.cli.Close()
}

func (d *DockerClient) CreateNetwork(ctx context.Context, name string, labels map[string]string) error {
	opts := network.CreateOptions{
		Driver: "bridge",
		Labels: labels,
	}
	if d.networkMTU > 0 {
		opts.Options = map[string]string{
			"com.docker.network.driver.mtu": strconv.Itoa(d.networkMTU),
		}
	}

	_, err := d.cli.NetworkCreate(ctx, name, opts)
	if err != nil {
		// 网络已存在时继续使用
		if errdefs.IsConflict(err) || errdefs.IsAlreadyExists(err) {
			d.logger.Debug("Network already exists", "network", name)
			return nil
		}
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

func (d *DockerClient) RunContainer(ctx context.Context, spec ContainerSpec) (StartedContainer, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range spec.Ports {
		p, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return StartedContainer{}, fmt.Errorf("%w: bad port %d: %v", ErrContainerStartFailed, containerPort, err)
		}
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPort)}}
	}

	binds := make([]string, 0, len(spec.Volumes))
	for _, v := range spec.Volumes {
		mode := v.Mode
		if mode == "" {
			mode = "rw"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", v.Source, v.Target, mode))
	}

	config := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Env:          env,
		User:         spec.User,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		Binds:        binds,
		PortBindings: bindings,
		SecurityOpt:  []string{"no-new-privileges:true"},
		Resources: container.Resources{
			Memory:   spec.MemoryBytes,
			NanoCPUs: int64(spec.CPUQuota * 1e9),
		},
		AutoRemove: false,
	}

	netConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			spec.Network: {},
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, netConfig, nil, spec.Name)
	if err != nil {
		return StartedContainer{}, fmt.Errorf("%w: %v", ErrContainerStartFailed, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// 启动失败时清理掉已创建的容器
		_ = d.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return StartedContainer{}, fmt.Errorf("%w: %v", ErrContainerStartFailed, err)
	}

	d.logger.Info("Container started",
		"container_id", shortID12(resp.ID),
		"name", spec.Name,
		"image", spec.Image,
	)

	return StartedContainer{ID: resp.ID, Name: spec.Name}, nil
}

func (d *DockerClient) JoinNetwork(ctx context.Context, containerID, networkName, alias string) error {
	settings := &network.EndpointSettings{}
	if alias != "" {
		settings.Aliases = []string{alias}
	}
	if err := d.cli.NetworkConnect(ctx, networkName, containerID, settings); err != nil {
		return fmt.Errorf("join network %s: %w", networkName, err)
	}
	return nil
}

func (d *DockerClient) StopAndRemove(ctx context.Context, containerID string, grace time.Duration) error {
	graceSeconds := int(grace.Seconds())
	err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &graceSeconds})
	if err != nil && !errdefs.IsNotFound(err) {
		d.logger.Warn("Failed to stop container, forcing removal",
			"container_id", shortID12(containerID), "error", err)
	}

	err = d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil {
		if errdefs.IsNotFound(err) {
			d.logger.Warn("Container already gone", "container_id", shortID12(containerID))
			return nil
		}
		return fmt.Errorf("remove container: %w", err)
	}

	d.logger.Info("Container stopped and removed", "container_id", shortID12(containerID))
	return nil
}

func (d *DockerClient) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.cli.NetworkRemove(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove network %s: %w", name, err)
	}
	return nil
}

func (d *DockerClient) RestartContainer(ctx context.Context, nameOrID string, grace time.Duration) error {
	graceSeconds := int(grace.Seconds())
	if err := d.cli.ContainerRestart(ctx, nameOrID, container.StopOptions{Timeout: &graceSeconds}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrContainerNotFound, nameOrID)
		}
		return fmt.Errorf("restart container %s: %w", nameOrID, err)
	}
	return nil
}

func (d *DockerClient) Status(ctx context.Context, containerID string) (string, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return StateNotFound, nil
		}
		return "", fmt.Errorf("inspect container: %w", err)
	}
	return string(inspect.State.Status), nil
}

// Logs 永远不返回 error：日志只用于诊断页面，不能让状态页失败
func (d *DockerClient) Logs(ctx context.Context, nameOrID string, tail int) string {
	tailStr := "all"
	if tail > 0 {
		tailStr = strconv.Itoa(tail)
	}

	reader, err := d.cli.ContainerLogs(ctx, nameOrID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       tailStr,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Sprintf("(container %q not found)", nameOrID)
		}
		return fmt.Sprintf("(error fetching logs: %v)", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		// TTY=false 时 Docker 输出为多路复用格式，stdcopy 负责解包
		_, _ = stdcopy.StdCopy(&buf, &buf, reader)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Sprintf("(log read cancelled: %v)", ctx.Err())
	}

	return buf.String()
}

func (d *DockerClient) Exec(ctx context.Context, containerID string, cmd []string) (*ExecResult, error) {
	created, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create: %v", ErrExecFailed, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: attach: %v", ErrExecFailed, err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&buf, &buf, attach.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect: %v", ErrExecFailed, err)
	}

	return &ExecResult{ExitCode: inspect.ExitCode, Output: buf.String()}, nil
}

func (d *DockerClient) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", LabelManaged+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("list managed containers: %w", err)
	}

	result := make([]ManagedContainer, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = trimSlash(c.Names[0])
		}
		result = append(result, ManagedContainer{
			ID:        shortID12(c.ID),
			Name:      name,
			Status:    string(c.State),
			SessionID: c.Labels[LabelSessionID],
			Repo:      c.Labels[LabelRepo],
		})
	}
	return result, nil
}

func (d *DockerClient) RemoveStoppedManaged(ctx context.Context) (int, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManaged+"=true"),
			filters.Arg("status", "exited"),
		),
	})
	if err != nil {
		return 0, fmt.Errorf("list stopped managed containers: %w", err)
	}

	removed := 0
	for _, c := range containers {
		if err := d.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Warn("Failed to remove stale container",
				"container_id", shortID12(c.ID), "error", err)
			continue
		}
		removed++
	}

	d.logger.Info("Stale containers removed", "count", removed)
	return removed, nil
}

func (d *DockerClient) Siblings(ctx context.Context, containerName string) ([]Sibling, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return []Sibling{}, nil
		}
		return nil, fmt.Errorf("inspect container %s: %w", containerName, err)
	}

	seen := make(map[string]bool)
	var result []Sibling

	for netName, endpoint := range inspect.NetworkSettings.Networks {
		if isInternalNetwork(netName) {
			continue
		}
		if endpoint.NetworkID == "" {
			continue
		}

		netInspect, err := d.cli.NetworkInspect(ctx, endpoint.NetworkID, network.InspectOptions{})
		if err != nil {
			d.logger.Warn("Failed to inspect joined network", "network", netName, "error", err)
			continue
		}

		for cid, member := range netInspect.Containers {
			if seen[cid] {
				continue
			}
			seen[cid] = true
			if member.Name == containerName {
				continue
			}

			ci, err := d.cli.ContainerInspect(ctx, cid)
			if err != nil {
				// 网络成员可能在枚举期间退出
				continue
			}

			name := trimSlash(ci.Name)
			service := ci.Config.Labels["com.docker.compose.service"]
			if service == "" {
				service = name
			}

			result = append(result, Sibling{
				ID:      shortID12(cid),
				Name:    name,
				Service: service,
				Status:  string(ci.State.Status),
				Project: ci.Config.Labels["com.docker.compose.project"],
				Network: netName,
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Service < result[j].Service
	})
	return result, nil
}

func isInternalNetwork(name string) bool {
	for _, p := range internalNetworkPrefixes {
		if name == p || len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

func shortID12(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
