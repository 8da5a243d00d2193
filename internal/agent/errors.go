package agent

import "errors"

var (
	ErrAgentUnreachable = errors.New("agent not reachable")

	ErrAgentTimeout = errors.New("agent request timed out")
)
