package types

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublication(t *testing.T) {
	p := NewPublication(8080, "a=1")
	assert.Equal(t, LongTTL, p.PtrTTL)
	assert.Equal(t, ShortTTL, p.SrvTTL)
	assert.Equal(t, LongTTL, p.TxtTTL)

	t.Run("Goodbye 不修改原值", func(t *testing.T) {
		bye := p.Goodbye()
		assert.Zero(t, bye.PtrTTL)
		assert.Zero(t, bye.SrvTTL)
		assert.Zero(t, bye.TxtTTL)
		assert.Equal(t, LongTTL, p.PtrTTL)
		assert.True(t, p.SameService(bye))
	})

	t.Run("SameService", func(t *testing.T) {
		c := p.Clone()
		c.Text[0] = "a=2"
		assert.False(t, p.SameService(c))
		assert.False(t, p.SameService(nil))
	})
}

func TestServiceInstance(t *testing.T) {
	inst := ServiceInstance{
		ServiceName:  "_foo._tcp",
		InstanceName: "x",
		HostName:     "myhost.local.",
		Port:         80,
		IPv4:         netip.MustParseAddr("10.0.0.1"),
	}
	assert.Equal(t, []netip.AddrPort{netip.MustParseAddrPort("10.0.0.1:80")}, inst.Addrs())

	other := inst
	other.HostName = "MYHOST.local"
	assert.True(t, inst.Equal(other))

	other.IPv6 = netip.MustParseAddr("fe80::1")
	assert.False(t, inst.Equal(other))
	assert.Len(t, other.Addrs(), 2)
}

func TestHostAddresses(t *testing.T) {
	assert.False(t, HostAddresses{Name: "x"}.Resolved())
	assert.True(t, HostAddresses{Name: "x", IPv6: netip.MustParseAddr("fe80::1")}.Resolved())
}
