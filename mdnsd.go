package mdnsd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdnsd/internal/core/directory"
	"github.com/dep2p/go-mdnsd/internal/core/engine"
	"github.com/dep2p/go-mdnsd/internal/core/metrics"
	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

var log = logger.Logger("mdns.daemon")

// ════════════════════════════════════════════════════════════════════════════
//                              Daemon
// ════════════════════════════════════════════════════════════════════════════

// Daemon mDNS 守护进程
//
// 组装传输、接口监视、本地目录、指标与引擎。所有方法并发安全。
type Daemon struct {
	mu      sync.Mutex
	app     *fx.App
	started bool
	closed  bool

	engine    *engine.Engine
	directory *directory.Directory
	registry  *prometheus.Registry
}

// New 创建守护进程，不启动网络
//
// Start 之前可以调用 EnableInterface 与 Publish，发布会在引擎就绪后开始探测。
func New(opts ...Option) (*Daemon, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	cfg, err := o.toConfig()
	if err != nil {
		return nil, err
	}
	configureLogging(cfg.Log)

	d := &Daemon{}
	d.app = buildFxApp(o, cfg, d)
	if err := d.app.Err(); err != nil {
		return nil, newDaemonError("new", err, "failed to assemble daemon")
	}
	return d, nil
}

// Start 创建并启动守护进程
func Start(ctx context.Context, opts ...Option) (*Daemon, error) {
	d, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := d.Start(ctx); err != nil {
		_ = d.Stop(context.Background())
		return nil, err
	}
	return d, nil
}

// Start 启动传输层、接口监视与引擎
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDaemonClosed
	}
	if d.started {
		return ErrAlreadyStarted
	}

	if err := d.app.Start(ctx); err != nil {
		log.Error("守护进程启动失败", "error", err)
		return newDaemonError("start", err, "failed to start")
	}
	d.started = true
	log.Info("守护进程已启动", "version", Version)
	return nil
}

// Stop 为已发布实例发送 goodbye 并释放所有资源
//
// 停止后不能再次启动。未启动时直接关闭引擎。幂等。
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if !d.started {
		// fx 未启动时不会调用 OnStop，由这里结束引擎的事件循环
		return d.engine.Stop(ctx)
	}
	if err := d.app.Stop(ctx); err != nil {
		log.Error("守护进程停止失败", "error", err)
		return newDaemonError("stop", err, "failed to stop")
	}
	log.Info("守护进程已停止")
	return nil
}

// HostName 返回当前使用的主机名（冲突后可能带数字后缀）
func (d *Daemon) HostName() string {
	return d.engine.HostName()
}

// State 返回引擎状态
func (d *Daemon) State() engine.State {
	return d.engine.State()
}

// WaitReady 等待主机名探测完成
//
// ctx 结束时仍在等待接口返回 ErrNoInterfaces，其余情况返回 ctx.Err()。
func (d *Daemon) WaitReady(ctx context.Context) error {
	select {
	case <-d.engine.Ready():
		return nil
	case <-ctx.Done():
		if d.engine.State() == engine.StateWaitingForInterfaces {
			return fmt.Errorf("%w: %v", ErrNoInterfaces, ctx.Err())
		}
		return ctx.Err()
	}
}

// EnableInterface 限定使用的接口，只能在 Start 之前调用
//
// family 为 "ipv4"、"ipv6" 或空（两者）。
func (d *Daemon) EnableInterface(name, family string) error {
	f, err := types.ParseFamily(family)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := d.engine.EnableInterface(name, f); err != nil {
		return translate(err)
	}
	return nil
}

// Directory 返回本地服务目录
func (d *Daemon) Directory() *directory.Directory {
	return d.directory
}

// MetricsHandler 返回 Prometheus 指标的 HTTP 处理器
func (d *Daemon) MetricsHandler() http.Handler {
	return metrics.Handler(d.registry)
}

// ════════════════════════════════════════════════════════════════════════════
//                              发布
// ════════════════════════════════════════════════════════════════════════════

// Service 要发布的服务实例
type Service struct {
	// Service 服务名，如 "_http._tcp"
	Service string

	// Instance 实例名
	Instance string

	// Port 服务端口
	Port uint16

	// Text TXT 字符串，如 "path=/"
	Text []string

	// Subtypes 子类型
	Subtypes []string
}

// Publish 发布服务实例
//
// 名称不合法返回 ErrInvalidName；同一实例已发布返回 ErrDuplicatePublication。
// 实例名冲突不会作为错误返回，可通过 Publication.WaitProbed 获知。
func (d *Daemon) Publish(svc Service) (*Publication, error) {
	if err := validateService(svc); err != nil {
		return nil, err
	}
	p := newStaticPublisher(types.NewPublication(svc.Port, svc.Text...))
	h, err := d.PublishWith(svc.Service, svc.Instance, svc.Subtypes, p)
	if err != nil {
		return nil, err
	}
	return &Publication{handle: h, publisher: p}, nil
}

// PublishWith 以自定义 Publisher 发布服务实例
func (d *Daemon) PublishWith(service, instance string, subtypes []string, publisher interfaces.Publisher) (*engine.PublicationHandle, error) {
	if !types.IsValidServiceName(service) || !types.IsValidInstanceName(instance) {
		return nil, fmt.Errorf("%w: %s.%s", ErrInvalidName, instance, service)
	}
	if d.engine.Closed() {
		return nil, ErrDaemonClosed
	}
	h, ok := d.engine.PublishServiceInstance(service, instance, subtypes, publisher)
	if !ok {
		if d.engine.Closed() {
			return nil, ErrDaemonClosed
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePublication, types.LocalInstanceFullName(instance, service))
	}
	return h, nil
}

func validateService(svc Service) error {
	if !types.IsValidServiceName(svc.Service) {
		return fmt.Errorf("%w: service %q", ErrInvalidName, svc.Service)
	}
	if !types.IsValidInstanceName(svc.Instance) {
		return fmt.Errorf("%w: instance %q", ErrInvalidName, svc.Instance)
	}
	for _, st := range svc.Subtypes {
		if !types.IsValidSubtype(st) {
			return fmt.Errorf("%w: subtype %q", ErrInvalidName, st)
		}
	}
	return nil
}

// Publication 已发布的服务实例
type Publication struct {
	handle    *engine.PublicationHandle
	publisher *staticPublisher
}

// Update 替换端口与 TXT 并重新通告
func (p *Publication) Update(port uint16, text ...string) {
	p.publisher.set(port, text)
	p.handle.Reannounce()
}

// SetSubtypes 替换子类型
func (p *Publication) SetSubtypes(subtypes []string) {
	p.handle.SetSubtypes(subtypes)
}

// Unpublish 撤销发布；已通告的实例发送 goodbye
func (p *Publication) Unpublish() {
	p.handle.Unpublish()
}

// WaitProbed 等待实例名探测结束
//
// 探测成功返回 nil，名称冲突返回 ErrNameConflict。
func (p *Publication) WaitProbed(ctx context.Context) error {
	select {
	case ok := <-p.publisher.result:
		// 放回去，后续调用得到同样的结果
		p.publisher.report(ok)
		if !ok {
			return ErrNameConflict
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// staticPublisher 发布固定内容的 Publisher
type staticPublisher struct {
	mu     sync.Mutex
	pub    *types.Publication
	result chan bool
}

func newStaticPublisher(pub *types.Publication) *staticPublisher {
	return &staticPublisher{pub: pub, result: make(chan bool, 1)}
}

func (p *staticPublisher) GetPublication(types.PublicationCause, string, []netip.AddrPort) *types.Publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pub.Clone()
}

// ReportSuccess 在事件循环上调用，不能阻塞
func (p *staticPublisher) ReportSuccess(success bool) {
	p.report(success)
}

func (p *staticPublisher) report(success bool) {
	select {
	case p.result <- success:
	default:
	}
}

func (p *staticPublisher) set(port uint16, text []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pub.Port = port
	p.pub.Text = slices.Clone(text)
}

// ════════════════════════════════════════════════════════════════════════════
//                              订阅与解析
// ════════════════════════════════════════════════════════════════════════════

// Subscribe 订阅服务，回调在引擎事件循环上执行，不应阻塞
func (d *Daemon) Subscribe(service string, subscriber interfaces.Subscriber) (*engine.SubscriptionHandle, error) {
	if !types.IsValidServiceName(service) {
		return nil, fmt.Errorf("%w: service %q", ErrInvalidName, service)
	}
	h, err := d.engine.SubscribeToService(service, subscriber)
	if err != nil {
		return nil, translate(err)
	}
	return h, nil
}

// SubscriberFuncs 以函数实现 Subscriber，未设置的回调被忽略
type SubscriberFuncs struct {
	OnDiscovered func(inst types.ServiceInstance)
	OnChanged    func(inst types.ServiceInstance)
	OnLost       func(service, instance string)
}

var _ interfaces.Subscriber = SubscriberFuncs{}

// InstanceDiscovered 实现 Subscriber
func (s SubscriberFuncs) InstanceDiscovered(inst types.ServiceInstance) {
	if s.OnDiscovered != nil {
		s.OnDiscovered(inst)
	}
}

// InstanceChanged 实现 Subscriber
func (s SubscriberFuncs) InstanceChanged(inst types.ServiceInstance) {
	if s.OnChanged != nil {
		s.OnChanged(inst)
	}
}

// InstanceLost 实现 Subscriber
func (s SubscriberFuncs) InstanceLost(service, instance string) {
	if s.OnLost != nil {
		s.OnLost(service, instance)
	}
}

// ResolveHostName 解析主机名（不含 .local.）
//
// ctx 带截止时间时以其为超时，否则使用配置的默认超时（3 秒）。
// 没有解析到任何地址时返回 ErrResolveTimeout。
func (d *Daemon) ResolveHostName(ctx context.Context, hostName string) (types.HostAddresses, error) {
	if !types.IsValidHostName(hostName) {
		return types.HostAddresses{}, fmt.Errorf("%w: host name %q", ErrInvalidName, hostName)
	}

	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return types.HostAddresses{}, ctx.Err()
		}
	}

	results := make(chan types.HostAddresses, 1)
	err := d.engine.ResolveHostName(hostName, timeout, func(r types.HostAddresses) {
		results <- r
	})
	if err != nil {
		return types.HostAddresses{}, translate(err)
	}

	select {
	case r := <-results:
		if !r.Resolved() {
			return r, fmt.Errorf("%w: %s", ErrResolveTimeout, types.LocalHostFullName(hostName))
		}
		return r, nil
	case <-ctx.Done():
		// 截止时间与解析超时同时到达时优先返回解析结果
		select {
		case r := <-results:
			if r.Resolved() {
				return r, nil
			}
			return r, fmt.Errorf("%w: %s", ErrResolveTimeout, types.LocalHostFullName(hostName))
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.HostAddresses{Name: hostName}, fmt.Errorf("%w: %v", ErrResolveTimeout, ctx.Err())
		}
		return types.HostAddresses{Name: hostName}, ctx.Err()
	}
}

// translate 把引擎错误映射为公共错误
func translate(err error) error {
	switch {
	case errors.Is(err, engine.ErrEngineClosed):
		return fmt.Errorf("%w: %v", ErrDaemonClosed, err)
	case errors.Is(err, engine.ErrAlreadyStarted):
		return fmt.Errorf("%w: %v", ErrAlreadyStarted, err)
	default:
		return err
	}
}
