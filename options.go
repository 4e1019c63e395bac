package mdnsd

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置（WithConfig 或默认值）
	base *config.Config

	// 主机名覆盖
	hostName string

	// 启用接口
	interfaces []config.InterfaceConfig

	// 注入的协作方（测试或自定义环境）
	clock     clock.Clock
	transport interfaces.Transport
	watcher   interfaces.InterfaceWatcher

	// fx 生命周期日志
	verbose bool
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// toConfig 转换为统一配置
//
// 显式选项覆盖 WithConfig 中的对应字段，WithInterface 追加到已有规则之后。
func (o *options) toConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if o.base != nil {
		cfg = config.CloneConfig(o.base)
	}

	if o.hostName != "" {
		cfg.HostName = o.hostName
	}
	cfg.Interfaces = append(cfg.Interfaces, o.interfaces...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置作为基础
//
// 示例：
//
//	cfg, _ := config.LoadFile("mdnsd.json")
//	d, _ := mdnsd.New(mdnsd.WithConfig(cfg))
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
		}
		o.base = cfg
		return nil
	}
}

// WithHostName 设置本机主机名（不含 .local.）
func WithHostName(name string) Option {
	return func(o *options) error {
		name = strings.TrimSuffix(strings.TrimSuffix(name, "."), ".local")
		if !types.IsValidHostName(name) {
			return fmt.Errorf("%w: host name %q", ErrInvalidName, name)
		}
		o.hostName = name
		return nil
	}
}

// WithInterface 启用一个接口
//
// family 为 "ipv4"、"ipv6" 或空（两者）。可多次使用；
// 未使用时启用所有支持多播的接口。
func WithInterface(name, family string) Option {
	return func(o *options) error {
		ic := config.InterfaceConfig{Name: name, Family: family}
		if err := ic.Validate(); err != nil {
			return err
		}
		o.interfaces = append(o.interfaces, ic)
		return nil
	}
}

// WithClock 替换时钟
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithTransport 替换多播 UDP 传输
func WithTransport(t interfaces.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return fmt.Errorf("%w: transport is nil", ErrInvalidConfig)
		}
		o.transport = t
		return nil
	}
}

// WithInterfaceWatcher 替换接口监视器
func WithInterfaceWatcher(w interfaces.InterfaceWatcher) Option {
	return func(o *options) error {
		if w == nil {
			return fmt.Errorf("%w: interface watcher is nil", ErrInvalidConfig)
		}
		o.watcher = w
		return nil
	}
}

// WithVerboseLifecycle 通过 zap 输出 fx 生命周期事件
func WithVerboseLifecycle() Option {
	return func(o *options) error {
		o.verbose = true
		return nil
	}
}
