package agent

import (
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

func newTestResponder(h *fakeHost, subtypes ...string) (*InstanceResponder, *fakePublisher) {
	publisher := &fakePublisher{now: h.Now, publication: types.NewPublication(8080, "a=1")}
	r := NewInstanceResponder(h, "_foo._tcp", "bar", publisher, subtypes, testConfig())
	return r, publisher
}

func TestInstanceResponder_AnnouncementSchedule(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h)
	start := h.Now()
	r.Start("myhost.local.")

	h.advance(time.Minute)
	assert.Equal(t,
		[]time.Duration{0, time.Second, 3 * time.Second, 7 * time.Second},
		offsets(start, publisher.callTimes(types.CauseAnnouncement)))

	t.Run("重新通告从最小间隔开始", func(t *testing.T) {
		publisher.calls = nil
		restart := h.Now()
		r.Reannounce()
		h.advance(2 * time.Second)

		// 中途再次通告，旧的序列作废
		restart2 := h.Now()
		r.Reannounce()
		h.advance(time.Minute)

		times := publisher.callTimes(types.CauseAnnouncement)
		assert.Equal(t, []time.Duration{0, time.Second}, offsets(restart, times[:2]))
		assert.Equal(t,
			[]time.Duration{0, time.Second, 3 * time.Second, 7 * time.Second},
			offsets(restart2, times[2:]))
	})
}

func TestInstanceResponder_SendOrder(t *testing.T) {
	h := newFakeHost()
	r, _ := newTestResponder(h, "_color")
	r.Start("myhost.local.")
	h.reset()

	reply := types.Unicast(1, netip.MustParseAddrPort("192.168.1.9:40000"))
	r.ReceiveQuestion(types.NewQuestion("_color._sub._foo._tcp.local.", dns.TypePTR, true), reply, reply)

	require.Len(t, h.resources, 4)
	assert.Equal(t, "_color._sub._foo._tcp.local.", h.resources[0].rr.Header().Name)
	assert.Equal(t, types.SectionAnswer, h.resources[0].section)
	assert.Equal(t, "_foo._tcp.local.", h.resources[1].rr.Header().Name)
	assert.Equal(t, types.SectionAnswer, h.resources[1].section)
	assert.IsType(t, &dns.SRV{}, h.resources[2].rr)
	assert.Equal(t, types.SectionAdditional, h.resources[2].section)
	assert.IsType(t, &dns.TXT{}, h.resources[3].rr)
	for _, res := range h.resources {
		assert.Equal(t, reply, res.dest)
	}

	srv := h.resources[2].rr.(*dns.SRV)
	assert.Equal(t, uint16(8080), srv.Port)
	assert.Equal(t, "myhost.local.", srv.Target)
	assert.Equal(t, types.ShortTTL, srv.Hdr.Ttl)

	require.Len(t, h.addresses, 1)
	assert.Equal(t, types.SectionAdditional, h.addresses[0].section)
	assert.Equal(t, reply, h.addresses[0].dest)
}

func TestInstanceResponder_MatchQuestions(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h, "_color")
	r.Start("myhost.local.")
	publisher.calls = nil
	reply := types.Unicast(1, netip.MustParseAddrPort("192.168.1.9:40000"))

	for _, q := range []dns.Question{
		types.NewQuestion("_foo._tcp.local.", dns.TypePTR, false),
		types.NewQuestion("bar._foo._tcp.local.", dns.TypeSRV, false),
		types.NewQuestion("bar._foo._tcp.local.", dns.TypeTXT, false),
		types.NewQuestion("bar._foo._tcp.local.", dns.TypeANY, false),
		types.NewQuestion("_foo._tcp.local.", dns.TypeANY, false),
		types.NewQuestion("_color._sub._foo._tcp.local.", dns.TypePTR, false),
	} {
		r.ReceiveQuestion(q, reply, reply)
	}
	assert.Len(t, publisher.calls, 6)
	for _, c := range publisher.calls {
		assert.Equal(t, types.CauseUnicastQuery, c.cause)
	}

	publisher.calls = nil
	for _, q := range []dns.Question{
		types.NewQuestion("_bar._tcp.local.", dns.TypePTR, false),
		types.NewQuestion("_mono._sub._foo._tcp.local.", dns.TypePTR, false),
		types.NewQuestion("baz._foo._tcp.local.", dns.TypeSRV, false),
		types.NewQuestion("bar._foo._tcp.local.", dns.TypeA, false),
	} {
		r.ReceiveQuestion(q, reply, reply)
	}
	assert.Empty(t, publisher.calls)
}

func TestInstanceResponder_AnyService(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h)
	r.Start("myhost.local.")
	h.reset()
	publisher.calls = nil

	reply := types.Multicast(1, types.FamilyIPv4)
	r.ReceiveQuestion(types.NewQuestion(types.AnyServiceFullName, dns.TypePTR, false), reply, types.Unicast(1, netip.MustParseAddrPort("192.168.1.9:5353")))

	require.Len(t, h.resources, 1)
	ptr := h.resources[0].rr.(*dns.PTR)
	assert.Equal(t, types.AnyServiceFullName, ptr.Hdr.Name)
	assert.Equal(t, "_foo._tcp.local.", ptr.Ptr)
	assert.Empty(t, publisher.calls)
}

func TestInstanceResponder_Throttle(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h)
	start := h.Now()
	r.Start("myhost.local.")

	reply := types.Multicast(1, types.FamilyIPv4)
	senderA := types.Unicast(1, netip.MustParseAddrPort("192.168.1.9:5353"))
	senderB := types.Unicast(1, netip.MustParseAddrPort("192.168.1.10:5353"))
	query := types.NewQuestion("_foo._tcp.local.", dns.TypePTR, false)

	r.ReceiveQuestion(query, reply, senderA)
	h.advance(100 * time.Millisecond)
	r.ReceiveQuestion(query, reply, senderB)

	h.advance(2 * time.Second)
	times := publisher.callTimes(types.CauseMulticastQuery)
	require.Len(t, times, 1, "窗口内的两个请求只产生一次多播应答")
	assert.Equal(t, time.Second, times[0].Sub(start))

	var call publicationCall
	for _, c := range publisher.calls {
		if c.cause == types.CauseMulticastQuery {
			call = c
		}
	}
	assert.Equal(t, []netip.AddrPort{senderA.AddrPort(), senderB.AddrPort()}, call.senders)

	t.Run("窗口结束后的请求等满一个窗口", func(t *testing.T) {
		// t=2.1s，上次多播应答在 t=1s，窗口已结束
		asked := h.Now()
		r.ReceiveQuestion(query, reply, senderA)
		require.Len(t, publisher.callTimes(types.CauseMulticastQuery), 1)

		h.advance(2 * time.Second)
		times := publisher.callTimes(types.CauseMulticastQuery)
		require.Len(t, times, 2)
		assert.Equal(t, time.Second, times[1].Sub(asked))
	})

	t.Run("发送方缓冲在发送后清空", func(t *testing.T) {
		last := publisher.calls[len(publisher.calls)-1]
		assert.Equal(t, []netip.AddrPort{senderA.AddrPort()}, last.senders)

		reply := types.Unicast(1, netip.MustParseAddrPort("192.168.1.11:40000"))
		r.ReceiveQuestion(query, reply, reply)
		last = publisher.calls[len(publisher.calls)-1]
		assert.Equal(t, []netip.AddrPort{reply.AddrPort()}, last.senders)
	})
}

func TestInstanceResponder_ThrottleFirstRequest(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h, "_color")
	r.Start("myhost.local.")
	h.advance(10 * time.Second)
	publisher.calls = nil

	reply := types.Multicast(1, types.FamilyIPv4)
	senderA := types.Unicast(1, netip.MustParseAddrPort("192.168.1.9:5353"))
	senderB := types.Unicast(1, netip.MustParseAddrPort("192.168.1.10:5353"))
	query := types.NewQuestion("_color._sub._foo._tcp.local.", dns.TypePTR, false)

	first := h.Now()
	r.ReceiveQuestion(query, reply, senderA)
	assert.Empty(t, publisher.calls, "第一个请求同样等到窗口结束")
	h.advance(100 * time.Millisecond)
	r.ReceiveQuestion(query, reply, senderB)

	h.advance(3 * time.Second)
	times := publisher.callTimes(types.CauseMulticastQuery)
	require.Len(t, times, 1, "相隔 100ms 的两个请求只产生一次多播应答")
	assert.Equal(t, time.Second, times[0].Sub(first))

	call := publisher.calls[0]
	assert.Equal(t, "_color", call.subtype)
	assert.Equal(t, []netip.AddrPort{senderA.AddrPort(), senderB.AddrPort()}, call.senders)
}

func TestInstanceResponder_ThrottleSubtypesIndependent(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h, "_color")
	r.Start("myhost.local.")
	h.advance(10 * time.Second)
	publisher.calls = nil

	reply := types.Multicast(1, types.FamilyIPv4)
	sender := types.Unicast(1, netip.MustParseAddrPort("192.168.1.9:5353"))
	r.ReceiveQuestion(types.NewQuestion("_foo._tcp.local.", dns.TypePTR, false), reply, sender)
	r.ReceiveQuestion(types.NewQuestion("_color._sub._foo._tcp.local.", dns.TypePTR, false), reply, sender)
	h.advance(time.Second)

	require.Len(t, publisher.calls, 2, "两个子类型各自应答一次")
	subtypes := []string{publisher.calls[0].subtype, publisher.calls[1].subtype}
	assert.ElementsMatch(t, []string{"", "_color"}, subtypes)
}

func TestInstanceResponder_UnicastNotThrottled(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h)
	r.Start("myhost.local.")
	publisher.calls = nil

	reply := types.Unicast(1, netip.MustParseAddrPort("192.168.1.9:40000"))
	query := types.NewQuestion("_foo._tcp.local.", dns.TypePTR, true)
	r.ReceiveQuestion(query, reply, reply)
	r.ReceiveQuestion(query, reply, reply)

	assert.Len(t, publisher.calls, 2)
}

func TestInstanceResponder_Goodbye(t *testing.T) {
	h := newFakeHost()
	r, _ := newTestResponder(h, "_color")
	r.Start("myhost.local.")
	h.reset()

	r.Quit()

	require.NotEmpty(t, h.resources)
	for _, res := range h.resources {
		assert.Zero(t, res.rr.Header().Ttl, res.rr.String())
		assert.Equal(t, types.MulticastAll(), res.dest)
	}
	srv := h.resources[1].rr.(*dns.SRV)
	assert.Equal(t, uint16(8080), srv.Port, "goodbye 使用最近的发布内容")
	assert.Equal(t, "_color._sub._foo._tcp.local.", h.resources[len(h.resources)-1].rr.Header().Name)
	assert.Empty(t, h.addresses, "goodbye 不含地址记录")

	assert.Equal(t, []removal{{id: r.ID(), name: "bar._foo._tcp.local."}}, h.removed)
	assert.Equal(t, []string{"bar"}, h.gone)

	t.Run("退出后不再应答与通告", func(t *testing.T) {
		h.reset()
		r.Quit()
		r.ReceiveQuestion(types.NewQuestion("_foo._tcp.local.", dns.TypePTR, true), types.MulticastAll(), types.MulticastAll())
		h.advance(time.Minute)
		assert.Empty(t, h.resources)
		assert.Len(t, h.removed, 1)
	})
}

func TestInstanceResponder_SetSubtypes(t *testing.T) {
	h := newFakeHost()
	r, _ := newTestResponder(h, "_color", "_duplex")
	r.Start("myhost.local.")
	h.advance(time.Minute)
	h.reset()

	r.SetSubtypes([]string{"_duplex", "_a4"})
	assert.Equal(t, []string{"_duplex", "_a4"}, r.Subtypes())

	require.NotEmpty(t, h.resources)
	first := h.resources[0].rr.(*dns.PTR)
	assert.Equal(t, "_color._sub._foo._tcp.local.", first.Hdr.Name)
	assert.Zero(t, first.Hdr.Ttl)

	var announced []string
	for _, res := range h.resources[1:] {
		if name := res.rr.Header().Name; res.rr.Header().Ttl > 0 {
			if _, ok := types.MatchServiceName(name, "_foo._tcp"); ok && name != "_foo._tcp.local." {
				announced = append(announced, name)
			}
		}
	}
	assert.Equal(t, []string{"_duplex._sub._foo._tcp.local.", "_a4._sub._foo._tcp.local."}, announced)
}

func TestInstanceResponder_Directory(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h)
	r.Start("myhost.local.")

	require.Len(t, h.added, 1)
	assert.Equal(t, "bar", h.added[0].InstanceName)
	assert.Equal(t, uint16(8080), h.added[0].Port)

	h.advance(time.Minute)
	assert.Empty(t, h.changed, "内容不变时不通知")

	publisher.publication.Port = 9090
	r.Reannounce()
	require.Len(t, h.changed, 1)
	assert.Equal(t, uint16(9090), h.changed[0].Port)
	assert.Len(t, h.added, 1)
}

func TestInstanceResponder_PublisherDeclines(t *testing.T) {
	h := newFakeHost()
	r, publisher := newTestResponder(h)
	publisher.publication = nil
	r.Start("myhost.local.")
	h.advance(time.Minute)

	assert.Empty(t, h.resources)
	assert.Empty(t, h.added)

	r.Quit()
	assert.Empty(t, h.resources, "未发布过则不发送 goodbye")
	assert.Empty(t, h.gone)
}
