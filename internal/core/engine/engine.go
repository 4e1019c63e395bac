package engine

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"go.uber.org/multierr"

	"github.com/dep2p/go-mdnsd/internal/core/agent"
	"github.com/dep2p/go-mdnsd/internal/core/scheduler"
	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

var log = logger.Logger("mdns.engine")

// State 引擎状态
type State int32

const (
	// StateNotStarted 未启动
	StateNotStarted State = iota
	// StateWaitingForInterfaces 等待可用接口
	StateWaitingForInterfaces
	// StateAddressProbeInProgress 正在探测主机名
	StateAddressProbeInProgress
	// StateActive 主机名已确定，正常工作
	StateActive
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateWaitingForInterfaces:
		return "waiting_for_interfaces"
	case StateAddressProbeInProgress:
		return "address_probe_in_progress"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 指定时钟，测试中使用 clock.Mock
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithDirectory 指定本地服务目录
func WithDirectory(dir interfaces.ServiceDirectory) Option {
	return func(e *Engine) { e.directory = dir }
}

// WithMetrics 指定指标
func WithMetrics(m interfaces.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine mDNS 引擎
type Engine struct {
	cfg       *Config
	clock     clock.Clock
	transport interfaces.Transport
	watcher   interfaces.InterfaceWatcher
	directory interfaces.ServiceDirectory
	metrics   interfaces.Metrics

	started   atomic.Bool
	closed    atomic.Bool
	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once

	// 投递到事件循环的操作
	postMu  sync.Mutex
	posted  []func()
	wakeup  chan struct{}
	closing chan struct{}
	done    chan struct{}

	nextSubscriberID atomic.Uint64

	// 以下字段只在事件循环上访问
	host    *agentHost
	sched   *scheduler.Scheduler
	timer   *clock.Timer
	inbound <-chan types.InboundMessage
	changes <-chan []types.Interface
	out     *outbound

	rules      []InterfaceRule
	interfaces []types.Interface

	originalHostName string
	hostName         string
	hostFullName     string
	renameCount      int

	agents   map[agent.ID]agent.Agent
	order    []agent.ID
	awaiting []agent.Agent

	renewer          *agent.Renewer
	addressResponder *agent.AddressResponder

	requestors   map[string]*agent.InstanceRequestor
	publications map[string]*publication
}

// publication 一个本地发布的服务实例
//
// 探测期间 prober 非空，探测成功后由 responder 接替。
type publication struct {
	key          string
	serviceName  string
	instanceName string
	subtypes     []string
	publisher    interfaces.Publisher
	prober       *agent.InstanceProber
	responder    *agent.InstanceResponder
}

// agentID 返回当前代表该发布的 agent
func (p *publication) agentID() agent.ID {
	if p.responder != nil {
		return p.responder.ID()
	}
	return p.prober.ID()
}

// New 创建引擎并启动事件循环
//
// 事件循环在 Stop 时退出。Start 之前即可发布、订阅与解析，
// 这些操作排队等待主机名探测成功。
func New(cfg *Config, transport interfaces.Transport, watcher interfaces.InterfaceWatcher, opts ...Option) (*Engine, error) {
	e, err := newEngine(cfg, transport, watcher, opts...)
	if err != nil {
		return nil, err
	}
	go e.run()
	return e, nil
}

func newEngine(cfg *Config, transport interfaces.Transport, watcher interfaces.InterfaceWatcher, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNilTransport
	}

	e := &Engine{
		cfg:          cfg,
		transport:    transport,
		watcher:      watcher,
		metrics:      interfaces.NoopMetrics{},
		ready:        make(chan struct{}),
		wakeup:       make(chan struct{}, 1),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		rules:        slices.Clone(cfg.Interfaces),
		agents:       make(map[agent.ID]agent.Agent),
		requestors:   make(map[string]*agent.InstanceRequestor),
		publications: make(map[string]*publication),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.New()
	}

	e.host = &agentHost{e: e}
	e.sched = scheduler.New(e.clock, e.armTimer, e.flush)
	e.out = newOutbound()
	return e, nil
}

// ============================================================================
//                              公共接口
// ============================================================================

// EnableInterface 限定使用的接口，只能在 Start 之前调用
//
// 未调用时使用全部支持多播的接口。
func (e *Engine) EnableInterface(name string, family types.Family) error {
	if e.started.Load() {
		return ErrAlreadyStarted
	}
	return e.exec(func() {
		e.rules = append(e.rules, InterfaceRule{Name: name, Family: family})
	})
}

// Start 启动传输层与接口监视，开始等待接口并探测主机名
//
// 传输层无法工作时返回错误；没有可用接口不是错误，引擎停留在 WaitingForInterfaces。
func (e *Engine) Start(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if e.started.Swap(true) {
		return ErrAlreadyStarted
	}

	if err := e.transport.Start(ctx); err != nil {
		e.started.Store(false)
		return NewEngineError("start", err, "failed to start transport")
	}
	if e.watcher != nil {
		if err := e.watcher.Start(ctx); err != nil {
			e.started.Store(false)
			return NewEngineError("start", multierr.Append(err, e.transport.Close()), "failed to start interface watcher")
		}
	}

	log.Info("mDNS 引擎启动中", "host", e.cfg.HostName)
	return e.exec(func() {
		e.inbound = e.transport.Inbound()
		e.start(e.cfg.HostName)
		if e.watcher != nil {
			e.changes = e.watcher.Changes()
			e.updateInterfaces(e.watcher.Interfaces())
		}
	})
}

// Stop 停止引擎
//
// 已发布的实例先多播 goodbye，然后关闭事件循环、接口监视与传输层。幂等。
// 事件循环提前退出导致 goodbye 未发送时，仍关闭其余部分并返回错误。
func (e *Engine) Stop(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}

	var err error

	// 未启动时事件循环里没有需要告别的实例
	if e.started.Load() {
		if gerr := e.exec(e.shutdown); gerr != nil {
			log.Warn("事件循环已退出，未发送 goodbye", "error", gerr)
			err = NewEngineError("stop", gerr, "goodbye not sent")
		}
	}
	close(e.closing)

	select {
	case <-e.done:
	case <-ctx.Done():
		log.Debug("等待事件循环退出超时")
	}

	if e.started.Load() {
		if e.watcher != nil {
			err = multierr.Append(err, e.watcher.Stop())
		}
		err = multierr.Append(err, e.transport.Close())
	}
	log.Info("mDNS 引擎已停止")
	return err
}

// State 返回当前状态
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Ready 返回在首次进入 Active 时关闭的 channel
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Closed 引擎是否已关闭
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// HostName 返回当前使用的主机名（可能带冲突后缀）
func (e *Engine) HostName() string {
	var name string
	_ = e.exec(func() { name = e.hostName })
	return name
}

// ResolveHostName 解析主机名，结果通过 callback 在事件循环上回调
//
// timeout 不大于 0 时使用配置的默认超时。超时时回调的地址均无效。
func (e *Engine) ResolveHostName(hostName string, timeout time.Duration, callback agent.ResolveCallback) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if timeout <= 0 {
		timeout = e.cfg.ResolveTimeout
	}
	e.post(func() {
		e.addAgent(agent.NewHostNameResolver(e.host, hostName, timeout, callback))
	})
	return nil
}

// SubscribeToService 订阅服务，同一服务的多个订阅方共享一个查询
func (e *Engine) SubscribeToService(serviceName string, subscriber interfaces.Subscriber) (*SubscriptionHandle, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	h := newSubscriptionHandle(e, serviceName, e.nextSubscriberID.Add(1))
	err := e.exec(func() {
		e.subscribe(serviceName, h.id, subscriber)
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// PublishServiceInstance 发布服务实例
//
// 同一 (服务, 实例) 已在本地发布时返回 false，不创建任何 agent。
// 引擎已关闭时同样返回 false。
func (e *Engine) PublishServiceInstance(serviceName, instanceName string, subtypes []string, publisher interfaces.Publisher) (*PublicationHandle, bool) {
	if e.closed.Load() {
		return nil, false
	}
	var pub *publication
	err := e.exec(func() {
		pub = e.publish(serviceName, instanceName, subtypes, publisher)
	})
	if err != nil || pub == nil {
		return nil, false
	}
	return newPublicationHandle(e, pub), true
}

// ============================================================================
//                              状态机（事件循环）
// ============================================================================

func (e *Engine) setState(s State) {
	old := State(e.state.Swap(int32(s)))
	if old != s {
		log.Debug("引擎状态变化", "from", old, "to", s)
	}
	if s == StateActive {
		e.readyOnce.Do(func() { close(e.ready) })
	}
}

// start 记录请求的主机名，进入 WaitingForInterfaces
func (e *Engine) start(hostName string) {
	e.originalHostName = hostName
	e.hostName = hostName
	e.setState(StateWaitingForInterfaces)
	if len(e.interfaces) > 0 {
		e.startAddressProbe()
	}
}

// startAddressProbe 以当前主机名开始探测
//
// Renewer 与 AddressResponder 从探测开始即参与工作。
func (e *Engine) startAddressProbe() {
	e.setState(StateAddressProbeInProgress)
	e.hostFullName = types.LocalHostFullName(e.hostName)
	log.Info("开始探测主机名", "host", e.hostFullName)

	e.renewer = agent.NewRenewer(e.host)
	e.startAgent(e.renewer)
	e.addressResponder = agent.NewAddressResponder(e.host)
	e.startAgent(e.addressResponder)
	e.startAgent(agent.NewAddressProber(e.host, e.cfg.Agent, e.onAddressProbeComplete))
}

// onAddressProbeComplete 主机名探测结束
func (e *Engine) onAddressProbeComplete(success bool) {
	if !success {
		e.metrics.ProbeConflict("host")
		e.renameCount++
		e.hostName = renamedHostName(e.originalHostName, e.renameCount)
		log.Warn("主机名冲突，改名后重新探测", "host", e.hostName)

		// 丢弃探测期间创建的 agent，排队等待的 agent 保留
		e.discardAgents()
		e.startAddressProbe()
		return
	}

	log.Info("主机名探测成功", "host", e.hostFullName)
	e.setState(StateActive)
	e.addressResponder.Announce()

	awaiting := e.awaiting
	e.awaiting = nil
	for _, a := range awaiting {
		e.startAgent(a)
	}
}

// renamedHostName 在原始主机名后追加序号，超长时截断原始名
func renamedHostName(original string, n int) string {
	suffix := strconv.Itoa(n)
	if len(original)+len(suffix) > 63 {
		original = original[:63-len(suffix)]
	}
	return original + suffix
}

// discardAgents 移除所有已注册 agent 及其定时任务
func (e *Engine) discardAgents() {
	for _, id := range e.order {
		e.sched.CancelAll(id)
	}
	clear(e.agents)
	e.order = nil
	e.renewer = nil
	e.addressResponder = nil
	e.metrics.AgentsRegistered(0)
}

// shutdown 发布中的实例发送 goodbye，然后丢弃所有 agent
func (e *Engine) shutdown() {
	keys := make([]string, 0, len(e.publications))
	for key := range e.publications {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if pub, ok := e.publications[key]; ok && pub.responder != nil {
			pub.responder.Quit()
		}
	}
	e.flush()

	e.discardAgents()
	e.awaiting = nil
	clear(e.requestors)
	clear(e.publications)
	e.sched.Clear()
	if e.timer != nil {
		e.timer.Stop()
	}
}

// ============================================================================
//                              接口（事件循环）
// ============================================================================

// updateInterfaces 按启用规则与地址族过滤接口，交给传输层
func (e *Engine) updateInterfaces(all []types.Interface) {
	filtered := e.filterInterfaces(all)
	changed := !slices.EqualFunc(filtered, e.interfaces, types.Interface.Equal)
	e.interfaces = filtered
	if !changed {
		return
	}

	log.Debug("可用接口变化", "count", len(filtered))
	if err := e.transport.SetInterfaces(filtered); err != nil {
		log.Warn("设置传输层接口失败", "error", err)
	}

	switch e.State() {
	case StateWaitingForInterfaces:
		if len(filtered) > 0 {
			e.startAddressProbe()
		}
	case StateActive:
		// 地址变化后重新通告
		if len(filtered) > 0 {
			e.addressResponder.Announce()
		}
	}
}

func (e *Engine) filterInterfaces(all []types.Interface) []types.Interface {
	var out []types.Interface
	for _, iface := range all {
		var addrs []netip.Addr
		for _, addr := range iface.Addrs {
			family := types.FamilyOf(addr)
			if family == types.FamilyIPv4 && !e.cfg.EnableIPv4 || family == types.FamilyIPv6 && !e.cfg.EnableIPv6 {
				continue
			}
			if !e.interfaceEnabled(iface.Name, family) {
				continue
			}
			addrs = append(addrs, addr)
		}
		if len(addrs) == 0 {
			continue
		}
		iface.Addrs = addrs
		out = append(out, iface)
	}
	return out
}

func (e *Engine) interfaceEnabled(name string, family types.Family) bool {
	if len(e.rules) == 0 {
		return true
	}
	for _, r := range e.rules {
		if r.Matches(name, family) {
			return true
		}
	}
	return false
}

// interfaceByIndex 返回指定索引的接口
func (e *Engine) interfaceByIndex(index int) (types.Interface, bool) {
	for _, iface := range e.interfaces {
		if iface.Index == index {
			return iface, true
		}
	}
	return types.Interface{}, false
}

// localAddresses 返回所有启用接口上的地址
func (e *Engine) localAddresses() []netip.Addr {
	var out []netip.Addr
	for _, iface := range e.interfaces {
		out = append(out, iface.Addrs...)
	}
	return out
}

// ============================================================================
//                              agent 注册（事件循环）
// ============================================================================

// addAgent Active 时立即启动，否则排队
func (e *Engine) addAgent(a agent.Agent) {
	if e.State() != StateActive {
		e.awaiting = append(e.awaiting, a)
		return
	}
	e.startAgent(a)
}

// startAgent 注册并启动 agent
func (e *Engine) startAgent(a agent.Agent) {
	e.agents[a.ID()] = a
	e.order = append(e.order, a.ID())
	e.metrics.AgentsRegistered(len(e.agents))
	a.Start(e.hostFullName)
}

// removeAgent 移除 agent 并取消其定时任务
//
// 分发过程中可以调用：分发遍历的是 agent 标识的快照。
func (e *Engine) removeAgent(id agent.ID, publishedName string) {
	e.sched.CancelAll(id)
	e.awaiting = slices.DeleteFunc(e.awaiting, func(a agent.Agent) bool { return a.ID() == id })
	if _, ok := e.agents[id]; ok {
		delete(e.agents, id)
		e.order = slices.DeleteFunc(e.order, func(v agent.ID) bool { return v == id })
		e.metrics.AgentsRegistered(len(e.agents))
	}

	if publishedName != "" {
		key := dns.CanonicalName(publishedName)
		if pub, ok := e.publications[key]; ok && pub.agentID() == id {
			delete(e.publications, key)
			log.Debug("释放实例名", "instance", publishedName)
		}
	}
}

// ============================================================================
//                              发布与订阅（事件循环）
// ============================================================================

// publish 预留实例名并开始探测；已发布时返回 nil
func (e *Engine) publish(serviceName, instanceName string, subtypes []string, publisher interfaces.Publisher) *publication {
	fullName := types.LocalInstanceFullName(instanceName, serviceName)
	key := dns.CanonicalName(fullName)
	if _, ok := e.publications[key]; ok {
		log.Debug("实例已发布", "instance", fullName)
		return nil
	}

	pub := &publication{
		key:          key,
		serviceName:  serviceName,
		instanceName: instanceName,
		subtypes:     slices.Clone(subtypes),
		publisher:    publisher,
	}
	pub.prober = agent.NewInstanceProber(e.host, serviceName, instanceName, publisher, e.cfg.Agent, func(success bool) {
		e.onInstanceProbeComplete(pub, success)
	})
	e.publications[key] = pub
	e.addAgent(pub.prober)
	return pub
}

// onInstanceProbeComplete 实例名探测结束：成功则由 InstanceResponder 接替
func (e *Engine) onInstanceProbeComplete(pub *publication, success bool) {
	pub.publisher.ReportSuccess(success)
	if !success {
		e.metrics.ProbeConflict("instance")
		log.Warn("实例名冲突", "instance", pub.prober.InstanceFullName())
		if e.publications[pub.key] == pub {
			delete(e.publications, pub.key)
		}
		return
	}

	pub.responder = agent.NewInstanceResponder(e.host, pub.serviceName, pub.instanceName,
		pub.publisher, pub.subtypes, e.cfg.Agent)
	e.addAgent(pub.responder)
}

// unpublish 撤销发布：已在发布的实例发送 goodbye，探测中的直接放弃
func (e *Engine) unpublish(pub *publication) {
	if e.publications[pub.key] != pub {
		return
	}
	if pub.responder != nil {
		pub.responder.Quit()
		return
	}
	delete(e.publications, pub.key)
	if _, ok := e.agents[pub.prober.ID()]; ok {
		pub.prober.Quit()
		return
	}
	e.removeAgent(pub.prober.ID(), "")
}

// subscribe 为服务添加订阅方，按服务名复用 InstanceRequestor
func (e *Engine) subscribe(serviceName string, id uint64, subscriber interfaces.Subscriber) {
	key := dns.CanonicalName(types.LocalServiceFullName(serviceName))
	r, ok := e.requestors[key]
	if !ok {
		r = agent.NewInstanceRequestor(e.host, serviceName, e.cfg.Agent)
		e.requestors[key] = r
		e.addAgent(r)
	}
	r.AddSubscriber(id, subscriber)
}

// unsubscribe 移除订阅方，最后一个订阅方离开时 InstanceRequestor 退出
func (e *Engine) unsubscribe(serviceName string, id uint64) {
	key := dns.CanonicalName(types.LocalServiceFullName(serviceName))
	r, ok := e.requestors[key]
	if !ok {
		return
	}
	r.RemoveSubscriber(id)
	if r.SubscriberCount() == 0 {
		delete(e.requestors, key)
	}
}

// ============================================================================
//                              agentHost
// ============================================================================

// agentHost 实现 agent.Host，所有方法都在事件循环上被调用
type agentHost struct {
	e *Engine
}

var _ agent.Host = (*agentHost)(nil)

func (h *agentHost) Now() time.Time { return h.e.sched.Now() }

func (h *agentHost) PostTaskForTime(id agent.ID, fn func(), at time.Time) {
	h.e.sched.PostTask(id, fn, at)
}

func (h *agentHost) SendQuestion(q dns.Question, dest types.ReplyAddress) {
	h.e.out.message(dest).addQuestion(q)
}

func (h *agentHost) SendResource(rr dns.RR, section types.Section, dest types.ReplyAddress) {
	if section == types.SectionExpired {
		h.e.deliverExpired(rr)
		return
	}
	h.e.out.message(dest).addResource(rr, section)
}

func (h *agentHost) SendAddresses(section types.Section, dest types.ReplyAddress) {
	h.e.out.message(dest).addAddresses(section)
}

func (h *agentHost) Renew(rr dns.RR) {
	if h.e.renewer == nil {
		return
	}
	h.e.metrics.RenewRequested()
	h.e.renewer.Renew(rr)
}

func (h *agentHost) RemoveAgent(id agent.ID, publishedName string) {
	h.e.removeAgent(id, publishedName)
}

func (h *agentHost) LocalAddresses() []netip.Addr {
	return h.e.localAddresses()
}

func (h *agentHost) AddLocalServiceInstance(inst types.ServiceInstance) {
	if h.e.directory != nil {
		h.e.directory.AddInstance(inst)
	}
}

func (h *agentHost) ChangeLocalServiceInstance(inst types.ServiceInstance) {
	if h.e.directory != nil {
		h.e.directory.ChangeInstance(inst)
	}
}

func (h *agentHost) RemoveLocalServiceInstance(serviceName, instanceName string) {
	if h.e.directory != nil {
		h.e.directory.RemoveInstance(serviceName, instanceName)
	}
}
