package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInetAddress_StringFormat(t *testing.T) {
	addr, err := NewInetAddress("127.0.0.1", 8080)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", addr.String())
}

func TestInetAddress_WildcardOnEmptyHost(t *testing.T) {
	addr, err := NewInetAddress("", 9090)
	require.NoError(t, err)
	assert.Equal(t, uint16(9090), addr.Port())
	assert.True(t, addr.IP().IsUnspecified())
}

func TestInetAddress_LoopbackOrWildcard(t *testing.T) {
	loopback := NewLoopbackOrWildcardAddress(18747, true, false)
	assert.Equal(t, "127.0.0.1:18747", loopback.String())
	assert.False(t, loopback.IsIPv6())

	wildcard := NewLoopbackOrWildcardAddress(18747, false, false)
	assert.True(t, wildcard.IP().IsUnspecified())

	loopback6 := NewLoopbackOrWildcardAddress(18747, true, true)
	assert.True(t, loopback6.IsIPv6())
	assert.True(t, loopback6.IP().IsLoopback())

	wildcard6 := NewLoopbackOrWildcardAddress(18747, false, true)
	assert.True(t, wildcard6.IsIPv6())
	assert.True(t, wildcard6.IP().IsUnspecified())
}

func TestInetAddress_SockaddrRoundTrip(t *testing.T) {
	addr, err := NewInetAddress("127.0.0.1", 12345)
	require.NoError(t, err)

	sa := addr.ToSockaddr()
	back, err := InetAddressFromSockaddr(sa)
	require.NoError(t, err)
	assert.Equal(t, addr.Port(), back.Port())
	assert.True(t, addr.IP().Equal(back.IP()))
}
