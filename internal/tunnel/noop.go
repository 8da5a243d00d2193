package tunnel

import "context"

var _ Registrar = (*Noop)(nil)

// Noop is used when no tunnel is configured. Sessions still work, just
// without public URLs.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Enabled() bool { return false }

func (n *Noop) Register(_ context.Context, _, _ string, _, _ int) (URLs, error) {
	return URLs{}, nil
}

func (n *Noop) Unregister(_ context.Context, _ string) error { return nil }
