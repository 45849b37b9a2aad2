package net

import (
	stdnet "net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkRoundTrip(t *testing.T) {
	for _, l := range []Link{
		{Addr: "192.168.1.4:8888"},
		{Addr: "10.0.0.2:9000", Room: 7, SessionKey: "k-1"},
	} {
		got, err := ParseLink(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
}

func TestParseLink(t *testing.T) {
	l, err := ParseLink("liveboard://host.local:8888/?room=3")
	require.NoError(t, err)
	assert.Equal(t, Link{Addr: "host.local:8888", Room: 3}, l)

	for _, bad := range []string{
		"http://host:1",
		"liveboard://nohost",
		"liveboard://h:1?room=abc",
		"liveboard://h:1?%zz",
	} {
		_, err := ParseLink(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetOutgoingIP(t *testing.T) {
	assert.NotNil(t, stdnet.ParseIP(GetOutgoingIP()))
}

func TestEntryAddr(t *testing.T) {
	addr, ok := entryAddr(&mdns.ServiceEntry{AddrV4: stdnet.IPv4(10, 1, 2, 3), Port: 8888})
	require.True(t, ok)
	assert.Equal(t, "10.1.2.3:8888", addr)

	_, ok = entryAddr(&mdns.ServiceEntry{Port: 8888})
	assert.False(t, ok)
	_, ok = entryAddr(nil)
	assert.False(t, ok)
}
