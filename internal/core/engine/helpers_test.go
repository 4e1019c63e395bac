package engine

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdnsd/internal/core/agent"
	"github.com/dep2p/go-mdnsd/internal/core/scheduler"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// ============================================================================
//                              fakeTransport
// ============================================================================

type sentMessage struct {
	msg  *dns.Msg
	dest types.ReplyAddress
	at   time.Time
}

type fakeTransport struct {
	mu         sync.Mutex
	now        func() time.Time
	inbound    chan types.InboundMessage
	started    bool
	closed     bool
	startErr   error
	interfaces []types.Interface
	sent       []sentMessage
}

func newFakeTransport(now func() time.Time) *fakeTransport {
	return &fakeTransport{now: now, inbound: make(chan types.InboundMessage, 16)}
}

func (t *fakeTransport) Start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startErr != nil {
		return t.startErr
	}
	t.started = true
	return nil
}

func (t *fakeTransport) Inbound() <-chan types.InboundMessage { return t.inbound }

func (t *fakeTransport) SetInterfaces(ifs []types.Interface) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interfaces = ifs
	return nil
}

func (t *fakeTransport) Send(msg *dns.Msg, dest types.ReplyAddress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentMessage{msg: msg, dest: dest, at: t.now()})
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) messages() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

func (t *fakeTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// withRecord 返回指定段中含有 (name, rrtype) 记录的消息
func (t *fakeTransport) withRecord(section types.Section, name string, rrtype uint16) []sentMessage {
	var out []sentMessage
	for _, m := range t.messages() {
		if findRecord(m.msg, section, name, rrtype) != nil {
			out = append(out, m)
		}
	}
	return out
}

// withQuestion 返回含有 (name, qtype) 问题的消息
func (t *fakeTransport) withQuestion(name string, qtype uint16) []sentMessage {
	var out []sentMessage
	for _, m := range t.messages() {
		for _, q := range m.msg.Question {
			if q.Qtype == qtype && types.NameEqual(q.Name, name) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func findRecord(msg *dns.Msg, section types.Section, name string, rrtype uint16) dns.RR {
	var rrs []dns.RR
	switch section {
	case types.SectionAnswer:
		rrs = msg.Answer
	case types.SectionAuthority:
		rrs = msg.Ns
	case types.SectionAdditional:
		rrs = msg.Extra
	}
	for _, rr := range rrs {
		if rr.Header().Rrtype == rrtype && types.NameEqual(rr.Header().Name, name) {
			return rr
		}
	}
	return nil
}

// distinctTimes 按出现顺序去重的发送时间
func distinctTimes(msgs []sentMessage) []time.Time {
	var out []time.Time
	for _, m := range msgs {
		if len(out) == 0 || !out[len(out)-1].Equal(m.at) {
			out = append(out, m.at)
		}
	}
	return out
}

// ============================================================================
//                              testEngine
// ============================================================================

var (
	testIPv4 = netip.MustParseAddr("192.168.1.2")
	testIPv6 = netip.MustParseAddr("fe80::2")
)

func testInterfaces() []types.Interface {
	return []types.Interface{{Index: 1, Name: "eth0", Addrs: []netip.Addr{testIPv4, testIPv6}}}
}

// testEngine 不启动事件循环，测试直接调用事件循环上的方法
type testEngine struct {
	*Engine
	tr  *fakeTransport
	clk *clock.Mock
	dir *fakeDirectory
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := DefaultConfig()
	cfg.HostName = "myhost"
	cfg.Agent.ProbeJitter = 0

	tr := newFakeTransport(clk.Now)
	dir := &fakeDirectory{}
	e, err := newEngine(cfg, tr, nil, WithClock(clk), WithDirectory(dir))
	require.NoError(t, err)

	// 由测试显式推进时间，不使用定时器
	e.sched = scheduler.New(clk, nil, e.flush)
	return &testEngine{Engine: e, tr: tr, clk: clk, dir: dir}
}

// advance 推进模拟时钟，依次执行途中到期的任务
func (te *testEngine) advance(d time.Duration) {
	target := te.clk.Now().Add(d)
	for {
		at, ok := te.sched.NextFireTime()
		if !ok || at.After(target) {
			break
		}
		if at.After(te.clk.Now()) {
			te.clk.Set(at)
		}
		te.sched.Wake()
	}
	if target.After(te.clk.Now()) {
		te.clk.Set(target)
	}
}

// activate 启动并完成主机名探测
func (te *testEngine) activate(t *testing.T) {
	t.Helper()
	te.start("myhost")
	te.updateInterfaces(testInterfaces())
	te.advance(time.Second)
	require.Equal(t, StateActive, te.State())
}

// deliver 以入站消息的形式投递
func (te *testEngine) deliver(from types.ReplyAddress, build func(m *dns.Msg)) {
	msg := new(dns.Msg)
	build(msg)
	te.receiveMessage(msg, from)
}

// ============================================================================
//                              其他 fake
// ============================================================================

type fakePublisher struct {
	publication *types.Publication
	results     []bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{publication: types.NewPublication(8080, "a=1")}
}

func (p *fakePublisher) GetPublication(types.PublicationCause, string, []netip.AddrPort) *types.Publication {
	if p.publication == nil {
		return nil
	}
	return p.publication.Clone()
}

func (p *fakePublisher) ReportSuccess(success bool) {
	p.results = append(p.results, success)
}

type fakeSubscriber struct {
	mu         sync.Mutex
	discovered []types.ServiceInstance
	lost       []string
}

func (s *fakeSubscriber) InstanceDiscovered(inst types.ServiceInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = append(s.discovered, inst)
}

func (s *fakeSubscriber) InstanceChanged(types.ServiceInstance) {}

func (s *fakeSubscriber) InstanceLost(_, instanceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = append(s.lost, instanceName)
}

func (s *fakeSubscriber) discoveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.discovered)
}

type fakeDirectory struct {
	added   []types.ServiceInstance
	removed []string
}

func (d *fakeDirectory) AddInstance(inst types.ServiceInstance) { d.added = append(d.added, inst) }

func (d *fakeDirectory) ChangeInstance(types.ServiceInstance) {}

func (d *fakeDirectory) RemoveInstance(_, instanceName string) {
	d.removed = append(d.removed, instanceName)
}

// recordingAgent 记录收到的所有调用
type recordingAgent struct {
	agent.Base

	name       string
	trace      *[]string
	questions  []dns.Question
	replies    []types.ReplyAddress
	resources  []dns.RR
	sections   []types.Section
	onQuestion func()
}

func newRecordingAgent(h agent.Host, name string, trace *[]string) *recordingAgent {
	return &recordingAgent{Base: agent.NewBase(h), name: name, trace: trace}
}

func (a *recordingAgent) ReceiveQuestion(q dns.Question, reply, _ types.ReplyAddress) {
	a.questions = append(a.questions, q)
	a.replies = append(a.replies, reply)
	if a.trace != nil {
		*a.trace = append(*a.trace, a.name+":question")
	}
	if a.onQuestion != nil {
		a.onQuestion()
	}
}

func (a *recordingAgent) ReceiveResource(rr dns.RR, section types.Section) {
	a.resources = append(a.resources, rr)
	a.sections = append(a.sections, section)
	if a.trace != nil {
		*a.trace = append(*a.trace, a.name+":resource")
	}
}

func (a *recordingAgent) EndOfMessage() {
	if a.trace != nil {
		*a.trace = append(*a.trace, a.name+":end")
	}
}
