package agent

import (
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/internal/core/scheduler"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// ============================================================================
//                              fakeHost
// ============================================================================

type sentQuestion struct {
	q    dns.Question
	dest types.ReplyAddress
	at   time.Time
}

type sentResource struct {
	rr      dns.RR
	section types.Section
	dest    types.ReplyAddress
	at      time.Time
}

type sentAddresses struct {
	section types.Section
	dest    types.ReplyAddress
	at      time.Time
}

type removal struct {
	id   ID
	name string
}

// fakeHost 记录 agent 的所有调用，定时任务由真实的 Scheduler 与 clock.Mock 驱动
type fakeHost struct {
	clk   *clock.Mock
	sched *scheduler.Scheduler
	local []netip.Addr

	questions []sentQuestion
	resources []sentResource
	addresses []sentAddresses
	expired   []dns.RR
	renewed   []dns.RR
	removed   []removal

	added   []types.ServiceInstance
	changed []types.ServiceInstance
	gone    []string
}

var _ Host = (*fakeHost)(nil)

func newFakeHost() *fakeHost {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return &fakeHost{
		clk:   clk,
		sched: scheduler.New(clk, nil, nil),
		local: []netip.Addr{netip.MustParseAddr("192.168.1.2"), netip.MustParseAddr("fe80::2")},
	}
}

func (h *fakeHost) Now() time.Time { return h.clk.Now() }

func (h *fakeHost) PostTaskForTime(id ID, fn func(), at time.Time) {
	h.sched.PostTask(id, fn, at)
}

func (h *fakeHost) SendQuestion(q dns.Question, dest types.ReplyAddress) {
	h.questions = append(h.questions, sentQuestion{q: q, dest: dest, at: h.Now()})
}

func (h *fakeHost) SendResource(rr dns.RR, section types.Section, dest types.ReplyAddress) {
	if section == types.SectionExpired {
		h.expired = append(h.expired, rr)
		return
	}
	h.resources = append(h.resources, sentResource{rr: rr, section: section, dest: dest, at: h.Now()})
}

func (h *fakeHost) SendAddresses(section types.Section, dest types.ReplyAddress) {
	h.addresses = append(h.addresses, sentAddresses{section: section, dest: dest, at: h.Now()})
}

func (h *fakeHost) Renew(rr dns.RR) { h.renewed = append(h.renewed, rr) }

func (h *fakeHost) RemoveAgent(id ID, publishedName string) {
	h.removed = append(h.removed, removal{id: id, name: publishedName})
	h.sched.CancelAll(id)
}

func (h *fakeHost) LocalAddresses() []netip.Addr { return h.local }

func (h *fakeHost) AddLocalServiceInstance(inst types.ServiceInstance) {
	h.added = append(h.added, inst)
}

func (h *fakeHost) ChangeLocalServiceInstance(inst types.ServiceInstance) {
	h.changed = append(h.changed, inst)
}

func (h *fakeHost) RemoveLocalServiceInstance(_, instanceName string) {
	h.gone = append(h.gone, instanceName)
}

// advance 推进模拟时钟，依次执行途中到期的任务
func (h *fakeHost) advance(d time.Duration) {
	target := h.clk.Now().Add(d)
	for {
		at, ok := h.sched.NextFireTime()
		if !ok || at.After(target) {
			break
		}
		if at.After(h.clk.Now()) {
			h.clk.Set(at)
		}
		h.sched.Wake()
	}
	if target.After(h.clk.Now()) {
		h.clk.Set(target)
	}
}

func (h *fakeHost) reset() {
	h.questions = nil
	h.resources = nil
	h.addresses = nil
	h.expired = nil
	h.renewed = nil
}

// offsets 将时间转换为相对 start 的偏移
func offsets(start time.Time, times []time.Time) []time.Duration {
	out := make([]time.Duration, len(times))
	for i, t := range times {
		out[i] = t.Sub(start)
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ProbeJitter = 0
	return cfg
}

// ============================================================================
//                              fakePublisher / fakeSubscriber
// ============================================================================

type publicationCall struct {
	cause   types.PublicationCause
	subtype string
	senders []netip.AddrPort
	at      time.Time
}

type fakePublisher struct {
	now         func() time.Time
	publication *types.Publication
	calls       []publicationCall
	results     []bool
}

func (p *fakePublisher) GetPublication(cause types.PublicationCause, subtype string, senders []netip.AddrPort) *types.Publication {
	p.calls = append(p.calls, publicationCall{cause: cause, subtype: subtype, senders: senders, at: p.now()})
	if p.publication == nil {
		return nil
	}
	return p.publication.Clone()
}

func (p *fakePublisher) ReportSuccess(success bool) {
	p.results = append(p.results, success)
}

func (p *fakePublisher) callTimes(cause types.PublicationCause) []time.Time {
	var out []time.Time
	for _, c := range p.calls {
		if c.cause == cause {
			out = append(out, c.at)
		}
	}
	return out
}

type fakeSubscriber struct {
	discovered []types.ServiceInstance
	changed    []types.ServiceInstance
	lost       []string
}

func (s *fakeSubscriber) InstanceDiscovered(inst types.ServiceInstance) {
	s.discovered = append(s.discovered, inst)
}

func (s *fakeSubscriber) InstanceChanged(inst types.ServiceInstance) {
	s.changed = append(s.changed, inst)
}

func (s *fakeSubscriber) InstanceLost(_, instanceName string) {
	s.lost = append(s.lost, instanceName)
}

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func mustAddrPort(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}
