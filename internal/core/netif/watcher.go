package netif

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

var log = logger.Logger("mdns.netif")

// ============================================================================
//                              Watcher
// ============================================================================

// Watcher 基于轮询的接口监视器
type Watcher struct {
	cfg   Config
	clock clock.Clock
	list  ListFunc

	mu      sync.RWMutex
	current []types.Interface

	changes  chan []types.Interface
	running  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

var _ interfaces.InterfaceWatcher = (*Watcher)(nil)

// Option 监视器选项
type Option func(*Watcher)

// WithClock 指定时钟（测试使用 clock.Mock）
func WithClock(c clock.Clock) Option {
	return func(w *Watcher) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithListFunc 替换接口枚举函数
func WithListFunc(fn ListFunc) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.list = fn
		}
	}
}

// NewWatcher 创建监视器
func NewWatcher(cfg Config, opts ...Option) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:     cfg,
		clock:   clock.New(),
		changes: make(chan []types.Interface, cfg.ChangeBuffer),
	}
	w.list = func() ([]types.Interface, error) {
		return SystemInterfaces(cfg.IncludeLoopback)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start 枚举一次接口并开始轮询
//
// 首次枚举失败不视为错误，按空集合处理，之后的轮询会补上。
func (w *Watcher) Start(_ context.Context) error {
	if w.stopped.Load() {
		return nil
	}
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}

	ifaces, err := w.list()
	if err != nil {
		log.Warn("枚举网络接口失败", "error", err)
	}
	w.mu.Lock()
	w.current = ifaces
	w.mu.Unlock()

	// 轮询的生命周期由 Stop 控制
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	// ticker 在返回前创建，模拟时钟推进时不会错过
	ticker := w.clock.Ticker(w.cfg.PollInterval)
	w.wg.Add(1)
	go w.pollLoop(ctx, ticker)

	log.Info("接口监视已启动", "interfaces", len(ifaces), "poll_interval", w.cfg.PollInterval)
	return nil
}

// Stop 停止轮询并关闭 Changes 通道；可重复调用
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		close(w.changes)
		w.running.Store(false)
		log.Info("接口监视已停止")
	})
	return nil
}

// Interfaces 返回最近一次枚举的接口
func (w *Watcher) Interfaces() []types.Interface {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.current)
}

// Changes 返回接口集合变化通道
func (w *Watcher) Changes() <-chan []types.Interface {
	return w.changes
}

// ============================================================================
//                              轮询
// ============================================================================

func (w *Watcher) pollLoop(ctx context.Context, ticker *clock.Ticker) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll 重新枚举，集合变化时通知
func (w *Watcher) poll() {
	ifaces, err := w.list()
	if err != nil {
		log.Debug("枚举网络接口失败", "error", err)
		return
	}

	w.mu.Lock()
	changed := !sameInterfaces(w.current, ifaces)
	if changed {
		w.current = ifaces
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	log.Debug("检测到接口变化", "interfaces", len(ifaces))
	w.notify(slices.Clone(ifaces))
}

// notify 发送新集合；通道满时丢弃最旧的一个，接收方总能拿到最新集合
func (w *Watcher) notify(ifaces []types.Interface) {
	for {
		select {
		case w.changes <- ifaces:
			return
		default:
		}
		select {
		case <-w.changes:
			log.Warn("接口变化通道已满，丢弃旧集合")
		default:
		}
	}
}

func sameInterfaces(a, b []types.Interface) bool {
	return slices.EqualFunc(a, b, func(x, y types.Interface) bool { return x.Equal(y) })
}
