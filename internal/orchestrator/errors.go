package orchestrator

import "errors"

var (
	// ErrNotFound covers both a missing session and a session owned by
	// someone else; callers cannot tell the two apart.
	ErrNotFound = errors.New("session not found")

	// ErrNoCredential means no GitHub token was available for the repo, so
	// no resources were touched.
	ErrNoCredential = errors.New("no github credential available")

	ErrSessionTerminal = errors.New("session already stopped")
)
