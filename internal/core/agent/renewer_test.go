package agent

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

func questionTimes(h *fakeHost, start time.Time) []time.Duration {
	times := make([]time.Time, len(h.questions))
	for i, q := range h.questions {
		times[i] = q.at
	}
	return offsets(start, times)
}

func TestRenewer_QueriesThenExpires(t *testing.T) {
	h := newFakeHost()
	r := NewRenewer(h)
	r.Start("myhost.local.")
	start := h.Now()

	rr := types.NewSRV("x._foo._tcp.local.", "peer.local.", 80, 0, 0, 100)
	r.Renew(rr)
	require.Equal(t, 1, r.Tracked())

	h.advance(99 * time.Second)
	assert.Equal(t, []time.Duration{80 * time.Second, 85 * time.Second, 90 * time.Second, 95 * time.Second},
		questionTimes(h, start))
	for _, q := range h.questions {
		assert.Equal(t, dns.TypeSRV, q.q.Qtype)
		assert.Equal(t, "x._foo._tcp.local.", q.q.Name)
		assert.False(t, types.IsUnicastQuestion(q.q))
		assert.True(t, q.dest.IsMulticast())
	}
	assert.Empty(t, h.expired)

	h.advance(time.Second)
	require.Len(t, h.expired, 1)
	assert.Equal(t, types.KeyOf(rr), types.KeyOf(h.expired[0]))
	assert.True(t, types.IsGoodbye(h.expired[0]))
	assert.Zero(t, r.Tracked())

	t.Run("过期只广播一次", func(t *testing.T) {
		h.advance(time.Hour)
		assert.Len(t, h.expired, 1)
		assert.Len(t, h.questions, 4)
	})
}

func TestRenewer_ObservedRecordRestarts(t *testing.T) {
	h := newFakeHost()
	r := NewRenewer(h)
	start := h.Now()

	r.Renew(types.NewPTR("_foo._tcp.local.", "x._foo._tcp.local.", 100))

	h.advance(50 * time.Second)
	r.ReceiveResource(types.NewPTR("_foo._tcp.local.", "x._foo._tcp.local.", 100), types.SectionAnswer)

	h.advance(99 * time.Second)
	require.NotEmpty(t, h.questions)
	assert.Equal(t, 130*time.Second, questionTimes(h, start)[0])
	assert.Empty(t, h.expired)

	h.advance(time.Minute)
	assert.Len(t, h.expired, 1)
}

func TestRenewer_ShorterTTLMovesEarlier(t *testing.T) {
	h := newFakeHost()
	r := NewRenewer(h)
	start := h.Now()

	r.Renew(types.NewTXT("x._foo._tcp.local.", nil, 100))
	h.advance(10 * time.Second)
	r.Renew(types.NewTXT("x._foo._tcp.local.", nil, 20))

	h.advance(19 * time.Second)
	assert.Equal(t, []time.Duration{26 * time.Second, 27 * time.Second, 28 * time.Second, 29 * time.Second},
		questionTimes(h, start))

	h.advance(time.Second)
	assert.Len(t, h.expired, 1)
	assert.Zero(t, r.Tracked())
}

func TestRenewer_GoodbyeStopsTracking(t *testing.T) {
	h := newFakeHost()
	r := NewRenewer(h)

	addr := types.NewAddress("peer.local.", mustAddr("10.0.0.9"), 100)
	r.Renew(addr)
	r.ReceiveResource(types.WithTTL(addr, 0), types.SectionAnswer)

	h.advance(time.Hour)
	assert.Empty(t, h.expired, "TTL 为 0 的记录不再广播过期")
	assert.Empty(t, h.questions)
	assert.Zero(t, r.Tracked())

	t.Run("删除前再次续期则继续跟踪", func(t *testing.T) {
		r.Renew(addr)
		r.ReceiveResource(types.WithTTL(addr, 0), types.SectionAnswer)
		r.Renew(addr)

		h.advance(100 * time.Second)
		assert.Len(t, h.questions, 4)
		assert.Len(t, h.expired, 1)
	})
}

func TestRenewer_IgnoresUntracked(t *testing.T) {
	h := newFakeHost()
	r := NewRenewer(h)

	r.ReceiveResource(types.NewPTR("_foo._tcp.local.", "x._foo._tcp.local.", 100), types.SectionAnswer)
	r.Renew(types.NewPTR("_foo._tcp.local.", "x._foo._tcp.local.", 0))

	assert.Zero(t, r.Tracked())
	assert.Zero(t, h.sched.Len())
}

func TestRenewer_Quit(t *testing.T) {
	h := newFakeHost()
	r := NewRenewer(h)
	r.Renew(types.NewPTR("_foo._tcp.local.", "x._foo._tcp.local.", 100))

	r.Quit()
	assert.Equal(t, []removal{{id: r.ID()}}, h.removed)
	assert.Zero(t, h.sched.Len())
}
