package ports

import (
	"errors"
	"fmt"
	"net"
)

var ErrPortsExhausted = errors.New("no free ports available in range")

// rangeSize 限制单次扫描的端口数量
const rangeSize = 1000

// Allocator finds free host TCP ports by probing with an exclusive bind.
//
// The port is released again before the caller binds it to a container, so
// there is a narrow window in which another process could grab it. Allocation
// happens under the orchestrator's per-session lock and the three ports for a
// container are picked back-to-back in one synchronous step, which keeps the
// window small; it is not eliminated.
type Allocator struct {
	host string
}

func NewAllocator() *Allocator {
	return &Allocator{host: "0.0.0.0"}
}

// Allocate scans [start, start+rangeSize) ascending and returns the first
// port that accepts an exclusive bind. Returns ErrPortsExhausted when the
// whole range is busy.
func (a *Allocator) Allocate(start int) (int, error) {
	for port := start; port < start+rangeSize; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.host, port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("%w: [%d, %d)", ErrPortsExhausted, start, start+rangeSize)
}

// AllocateTriple picks three distinct ports for one container: editor, agent
// API and dev server. Each search starts just above the previous pick so the
// three never collide with each other.
func (a *Allocator) AllocateTriple(base int) (editor, agentAPI, devServer int, err error) {
	editor, err = a.Allocate(base)
	if err != nil {
		return 0, 0, 0, err
	}
	agentAPI, err = a.Allocate(editor + 1)
	if err != nil {
		return 0, 0, 0, err
	}
	devServer, err = a.Allocate(agentAPI + 1)
	if err != nil {
		return 0, 0, 0, err
	}
	return editor, agentAPI, devServer, nil
}
