package runtime

import "errors"

var (
	ErrUnavailable = errors.New("container engine unavailable")

	ErrContainerNotFound = errors.New("container not found")

	ErrContainerStartFailed = errors.New("failed to start container")

	ErrExecFailed = errors.New("exec failed")
)
