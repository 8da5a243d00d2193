package ports

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateReturnsPortInRange(t *testing.T) {
	a := NewAllocator()

	port, err := a.Allocate(29000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 29000)
	assert.Less(t, port, 30000)

	// The returned port must be bindable again after release.
	l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	require.NoError(t, err)
	l.Close()
}

func TestAllocateSkipsBusyPort(t *testing.T) {
	a := NewAllocator()

	l, err := net.Listen("tcp", "0.0.0.0:29100")
	require.NoError(t, err)
	defer l.Close()

	port, err := a.Allocate(29100)
	require.NoError(t, err)
	assert.NotEqual(t, 29100, port)
	assert.Greater(t, port, 29100)
}

func TestAllocateTripleDistinct(t *testing.T) {
	a := NewAllocator()

	editor, agentAPI, devServer, err := a.AllocateTriple(29200)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, editor, 29200)
	assert.Greater(t, agentAPI, editor)
	assert.Greater(t, devServer, agentAPI)
}
