package runtime

import (
	"context"
	"time"
)

// Client is the capability set the orchestrator needs from the container
// engine. Implementations must be safe for concurrent use; the Docker client
// is shared process-wide.
type Client interface {
	// CreateNetwork creates an isolated bridge network. An already existing
	// network with the same name is not an error.
	CreateNetwork(ctx context.Context, name string, labels map[string]string) error

	RunContainer(ctx context.Context, spec ContainerSpec) (StartedContainer, error)

	// JoinNetwork connects a running container to an additional network under
	// the given alias. Best-effort from the caller's perspective.
	JoinNetwork(ctx context.Context, containerID, networkName, alias string) error

	// StopAndRemove stops the container within the grace period and force
	// removes it. A container that is already gone counts as success.
	StopAndRemove(ctx context.Context, containerID string, grace time.Duration) error

	// RemoveNetwork removes a network; not-found is success.
	RemoveNetwork(ctx context.Context, name string) error

	// RestartContainer restarts a container by name or id.
	RestartContainer(ctx context.Context, nameOrID string, grace time.Duration) error

	// Status reports the engine state of a container: running, exited,
	// paused, ... or StateNotFound when it no longer exists.
	Status(ctx context.Context, containerID string) (string, error)

	// Logs returns recent log lines with timestamps. Logs are diagnostic:
	// failures come back as sentinel text, never as an error.
	Logs(ctx context.Context, nameOrID string, tail int) string

	// Exec runs a command inside a running container and waits for it.
	Exec(ctx context.Context, containerID string, cmd []string) (*ExecResult, error)

	// ListManaged lists all orchestrator-labelled containers on the host.
	ListManaged(ctx context.Context) ([]ManagedContainer, error)

	// RemoveStoppedManaged force-removes every exited managed container and
	// returns how many were removed.
	RemoveStoppedManaged(ctx context.Context) (int, error)

	// Siblings inspects the named container's network memberships, skips the
	// orchestrator's own networks, and lists every other container on the
	// remaining ones, deduplicated by id and sorted by service name.
	Siblings(ctx context.Context, containerName string) ([]Sibling, error)
}
