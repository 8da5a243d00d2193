package session

import "context"

// Store persists Session records. Implementations must keep updated_at
// non-decreasing on every mutation.
type Store interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Session, error)

	UpdateStatus(ctx context.Context, id string, status Status) error
	// MarkRunning records the container bindings and flips the session to
	// running in one update.
	MarkRunning(ctx context.Context, id string, b ContainerBindings) error
	// MarkStopped flips the session to stopped and stamps stopped_at once.
	MarkStopped(ctx context.Context, id string) error
	UpdateTunnel(ctx context.Context, id string, url string, active bool) error
	UpdatePR(ctx context.Context, id string, prURL, prTitle string) error
}
