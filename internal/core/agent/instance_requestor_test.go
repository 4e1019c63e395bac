package agent

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// deliver 模拟引擎分发一条消息的所有记录
func deliver(a Agent, section types.Section, rrs ...dns.RR) {
	for _, rr := range rrs {
		a.ReceiveResource(rr, section)
	}
	a.EndOfMessage()
}

func barRecords(port uint16, text ...string) []dns.RR {
	return []dns.RR{
		types.NewPTR("_foo._tcp.local.", "bar._foo._tcp.local.", types.LongTTL),
		types.NewSRV("bar._foo._tcp.local.", "peer.local.", port, 0, 0, types.ShortTTL),
		types.NewTXT("bar._foo._tcp.local.", text, types.LongTTL),
		types.NewAddress("peer.local.", mustAddr("10.0.0.9"), types.ShortTTL),
	}
}

func TestInstanceRequestor_QuerySchedule(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	assert.Equal(t, "_foo._tcp", r.ServiceName())
	start := h.Now()
	r.Start("myhost.local.")

	h.advance(20 * time.Second)
	assert.Equal(t,
		[]time.Duration{0, time.Second, 3 * time.Second, 7 * time.Second, 15 * time.Second},
		questionTimes(h, start))
	for _, q := range h.questions {
		assert.Equal(t, "_foo._tcp.local.", q.q.Name)
		assert.Equal(t, dns.TypePTR, q.q.Qtype)
	}

	t.Run("间隔不超过上限", func(t *testing.T) {
		h.reset()
		h.advance(5 * time.Hour)
		times := questionTimes(h, start)
		for i := 1; i < len(times); i++ {
			assert.LessOrEqual(t, times[i]-times[i-1], time.Hour)
		}
	})
}

func TestInstanceRequestor_Discovery(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	sub := &fakeSubscriber{}
	r.AddSubscriber(1, sub)
	r.Start("myhost.local.")

	deliver(r, types.SectionAnswer, barRecords(8080, "a=1")...)

	require.Len(t, sub.discovered, 1)
	inst := sub.discovered[0]
	assert.Equal(t, "_foo._tcp", inst.ServiceName)
	assert.Equal(t, "bar", inst.InstanceName)
	assert.Equal(t, "peer.local.", inst.HostName)
	assert.Equal(t, uint16(8080), inst.Port)
	assert.Equal(t, []string{"a=1"}, inst.Text)
	assert.Equal(t, mustAddr("10.0.0.9"), inst.IPv4)
	assert.Len(t, h.renewed, 4, "每条记录都请求续期")

	t.Run("重复记录不产生回调", func(t *testing.T) {
		deliver(r, types.SectionAnswer, barRecords(8080, "a=1")...)
		assert.Len(t, sub.discovered, 1)
		assert.Empty(t, sub.changed)
	})

	t.Run("文本变化", func(t *testing.T) {
		deliver(r, types.SectionAdditional, types.NewTXT("bar._foo._tcp.local.", []string{"a=2"}, types.LongTTL))
		require.Len(t, sub.changed, 1)
		assert.Equal(t, []string{"a=2"}, sub.changed[0].Text)
	})

	t.Run("地址变化", func(t *testing.T) {
		deliver(r, types.SectionAdditional, types.NewAddress("peer.local.", mustAddr("fe80::9"), types.ShortTTL))
		require.Len(t, sub.changed, 2)
		assert.Equal(t, mustAddr("fe80::9"), sub.changed[1].IPv6)
		assert.Equal(t, mustAddr("10.0.0.9"), sub.changed[1].IPv4)
	})

	t.Run("新订阅方收到回放", func(t *testing.T) {
		late := &fakeSubscriber{}
		r.AddSubscriber(2, late)
		require.Len(t, late.discovered, 1)
		assert.Equal(t, "bar", late.discovered[0].InstanceName)
	})

	t.Run("PTR goodbye 移除实例", func(t *testing.T) {
		deliver(r, types.SectionAnswer, types.NewPTR("_foo._tcp.local.", "bar._foo._tcp.local.", 0))
		assert.Equal(t, []string{"bar"}, sub.lost)
	})
}

func TestInstanceRequestor_WaitsForAddress(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	sub := &fakeSubscriber{}
	r.AddSubscriber(1, sub)
	r.Start("myhost.local.")
	h.reset()

	records := barRecords(8080)
	deliver(r, types.SectionAnswer, records[:3]...)
	assert.Empty(t, sub.discovered)

	require.Len(t, h.questions, 2, "查询目标主机地址")
	assert.Equal(t, "peer.local.", h.questions[0].q.Name)
	assert.Equal(t, dns.TypeA, h.questions[0].q.Qtype)
	assert.Equal(t, dns.TypeAAAA, h.questions[1].q.Qtype)

	deliver(r, types.SectionAnswer, records[3])
	require.Len(t, sub.discovered, 1)
	assert.Empty(t, sub.changed)
}

func TestInstanceRequestor_QueriesMissingSRV(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	r.AddSubscriber(1, &fakeSubscriber{})
	r.Start("myhost.local.")
	h.reset()

	deliver(r, types.SectionAnswer, types.NewPTR("_foo._tcp.local.", "bar._foo._tcp.local.", types.LongTTL))
	require.Len(t, h.questions, 2)
	assert.Equal(t, dns.TypeSRV, h.questions[0].q.Qtype)
	assert.Equal(t, dns.TypeTXT, h.questions[1].q.Qtype)
	assert.Equal(t, "bar._foo._tcp.local.", h.questions[0].q.Name)

	deliver(r, types.SectionAnswer, types.NewPTR("_foo._tcp.local.", "bar._foo._tcp.local.", types.LongTTL))
	assert.Len(t, h.questions, 2, "只查询一次")
}

func TestInstanceRequestor_Expired(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	sub := &fakeSubscriber{}
	r.AddSubscriber(1, sub)
	r.Start("myhost.local.")
	deliver(r, types.SectionAnswer, barRecords(8080)...)

	t.Run("PTR 过期不影响已解析的实例", func(t *testing.T) {
		deliver(r, types.SectionExpired, types.NewExpired("_foo._tcp.local.", dns.TypePTR))
		assert.Empty(t, sub.lost)
		assert.Contains(t, r.instances, "bar._foo._tcp.local.")
	})

	deliver(r, types.SectionExpired, types.NewExpired("bar._foo._tcp.local.", dns.TypeSRV))
	assert.Equal(t, []string{"bar"}, sub.lost)
}

func TestInstanceRequestor_ExpiredDropsUnresolved(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	sub := &fakeSubscriber{}
	r.AddSubscriber(1, sub)
	r.Start("myhost.local.")

	deliver(r, types.SectionAnswer, types.NewPTR("_foo._tcp.local.", "baz._foo._tcp.local.", types.LongTTL))
	require.Contains(t, r.instances, "baz._foo._tcp.local.")

	// 其他服务的 PTR 过期不影响
	deliver(r, types.SectionExpired, types.NewExpired("_bar._tcp.local.", dns.TypePTR))
	require.Contains(t, r.instances, "baz._foo._tcp.local.")

	deliver(r, types.SectionExpired, types.NewExpired("_foo._tcp.local.", dns.TypePTR))
	assert.Empty(t, r.instances)
	assert.Empty(t, sub.lost, "未报告过的实例不通知丢失")

	// 迟到的 SRV 不再使实例复活
	deliver(r, types.SectionAnswer,
		types.NewSRV("baz._foo._tcp.local.", "peer.local.", 8080, 0, 0, types.ShortTTL),
		types.NewAddress("peer.local.", mustAddr("10.0.0.9"), types.ShortTTL),
	)
	assert.Empty(t, sub.discovered)
}

func TestInstanceRequestor_IgnoresOtherServices(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	sub := &fakeSubscriber{}
	r.AddSubscriber(1, sub)
	r.Start("myhost.local.")

	deliver(r, types.SectionAnswer,
		types.NewPTR("_bar._tcp.local.", "x._bar._tcp.local.", types.LongTTL),
		types.NewSRV("x._bar._tcp.local.", "peer.local.", 1, 0, 0, types.ShortTTL),
		types.NewAddress("peer.local.", mustAddr("10.0.0.9"), types.ShortTTL),
	)
	assert.Empty(t, sub.discovered)
	assert.Empty(t, h.renewed)
}

func TestInstanceRequestor_Subscribers(t *testing.T) {
	h := newFakeHost()
	r := NewInstanceRequestor(h, "_foo._tcp", testConfig())
	a, b := &fakeSubscriber{}, &fakeSubscriber{}
	r.AddSubscriber(1, a)
	r.AddSubscriber(2, b)
	r.AddSubscriber(2, b)
	r.Start("myhost.local.")
	assert.Equal(t, 2, r.SubscriberCount())

	deliver(r, types.SectionAnswer, barRecords(8080)...)
	assert.Len(t, a.discovered, 1)
	assert.Len(t, b.discovered, 1)

	r.RemoveSubscriber(1)
	r.RemoveSubscriber(1)
	assert.Empty(t, h.removed)

	r.RemoveSubscriber(2)
	assert.Equal(t, []removal{{id: r.ID()}}, h.removed, "最后一个订阅方离开后退出")
	assert.Zero(t, h.sched.Len())
}
