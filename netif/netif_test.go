package netif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetlinkMissingLinkIsNotAnError(t *testing.T) {
	state, err := NewNetlink().Link("l2tp-nosuchif0")
	require.NoError(t, err)
	assert.False(t, state.Exists)
	assert.False(t, state.Up)
}

func TestNetlinkLoopback(t *testing.T) {
	state, err := NewNetlink().Link("lo")
	if err != nil || !state.Exists {
		t.Skip("loopback not visible in this environment")
	}
	assert.True(t, state.Up)
	assert.Contains(t, state.Addrs, "127.0.0.1/8")
}

func TestStatic(t *testing.T) {
	s := Static{"l2tp-t1": {Exists: true, Up: true, Addrs: []string{"10.30.30.1/30"}}}

	state, err := s.Link("l2tp-t1")
	require.NoError(t, err)
	assert.True(t, state.Up)

	state, err = s.Link("other")
	require.NoError(t, err)
	assert.False(t, state.Exists)
}
