package tunnel

import "context"

// Registrar exposes a session's editor and dev server under public
// hostnames. Registration failures never abort a session start; callers
// treat both methods as best-effort.
type Registrar interface {
	Register(ctx context.Context, sessionID, repoName string, editorPort, devPort int) (URLs, error)
	Unregister(ctx context.Context, sessionID string) error
	Enabled() bool
}
