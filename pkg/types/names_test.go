package types

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullNames(t *testing.T) {
	assert.Equal(t, "myhost.local.", LocalHostFullName("myhost"))
	assert.Equal(t, "_foo._tcp.local.", LocalServiceFullName("_foo._tcp"))
	assert.Equal(t, "_foo._tcp.local.", LocalServiceFullName("_foo._tcp."))
	assert.Equal(t, "My\\ Printer._ipp._tcp.local.", LocalInstanceFullName("My Printer", "_ipp._tcp"))
	assert.Equal(t, "_color._sub._ipp._tcp.local.", LocalServiceSubtypeFullName("_ipp._tcp", "_color"))
}

func TestMatchServiceName(t *testing.T) {
	tests := []struct {
		name    string
		subtype string
		ok      bool
	}{
		{"_foo._tcp.local.", "", true},
		{"_FOO._tcp.local", "", true},
		{"_bar._sub._foo._tcp.local.", "_bar", true},
		{"a._bar._sub._foo._tcp.local.", "", false},
		{"._sub._foo._tcp.local.", "", false},
		{"_foo._udp.local.", "", false},
		{"inst._foo._tcp.local.", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subtype, ok := MatchServiceName(tt.name, "_foo._tcp")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.subtype, subtype)
		})
	}
}

func TestInstanceNameFromFullName(t *testing.T) {
	name, ok := InstanceNameFromFullName("My\\.Dotted\\ Name._foo._tcp.local.", "_foo._tcp")
	require.True(t, ok)
	assert.Equal(t, "My.Dotted Name", name)

	_, ok = InstanceNameFromFullName("a.b._foo._tcp.local.", "_foo._tcp")
	assert.False(t, ok)

	_, ok = InstanceNameFromFullName("_foo._tcp.local.", "_foo._tcp")
	assert.False(t, ok)
}

func TestHostNameFromFullName(t *testing.T) {
	assert.Equal(t, "myhost", HostNameFromFullName("myhost.local."))
	assert.Equal(t, "myhost", HostNameFromFullName("myhost.local"))
}

func TestEscapeLabel(t *testing.T) {
	for _, label := range []string{
		"plain",
		"with space",
		"dots.and;semis",
		"quote\"back\\slash",
		"bytes\x00\x7f\xff",
		"ünïcödé",
	} {
		t.Run(label, func(t *testing.T) {
			escaped := EscapeLabel(label)
			assert.Equal(t, 1, labelCount(escaped))
			assert.Equal(t, label, UnescapeLabel(escaped))
		})
	}

	t.Run("与线上解包结果一致", func(t *testing.T) {
		fullName := LocalInstanceFullName("a.b c\x01", "_foo._tcp")
		rr := NewPTR("_foo._tcp.local.", fullName, LongTTL)

		buf := make([]byte, 512)
		off, err := dns.PackRR(rr, buf, 0, nil, false)
		require.NoError(t, err)
		got, _, err := dns.UnpackRR(buf[:off], 0)
		require.NoError(t, err)

		assert.Equal(t, fullName, got.(*dns.PTR).Ptr)
	})
}

func TestValidation(t *testing.T) {
	t.Run("主机名", func(t *testing.T) {
		assert.True(t, IsValidHostName("myhost"))
		assert.True(t, IsValidHostName("my-host-1"))
		assert.False(t, IsValidHostName(""))
		assert.False(t, IsValidHostName("-host"))
		assert.False(t, IsValidHostName("my.host"))
		assert.False(t, IsValidHostName("my_host"))
	})

	t.Run("服务名", func(t *testing.T) {
		assert.True(t, IsValidServiceName("_foo._tcp"))
		assert.True(t, IsValidServiceName("_foo._udp."))
		assert.False(t, IsValidServiceName("foo._tcp"))
		assert.False(t, IsValidServiceName("_foo._sctp"))
		assert.False(t, IsValidServiceName("_foo"))
		assert.False(t, IsValidServiceName("_waytoolongservicename._tcp"))
	})

	t.Run("实例名与子类型", func(t *testing.T) {
		assert.True(t, IsValidInstanceName("My Printer"))
		assert.False(t, IsValidInstanceName(""))
		assert.True(t, IsValidSubtype("_color"))
		assert.False(t, IsValidSubtype("_a.b"))
	})
}
