package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/internal/core/agent"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// InterfaceRule 启用接口规则：按接口名与地址族筛选
type InterfaceRule struct {
	Name   string
	Family types.Family
}

// Matches 规则是否覆盖接口 name 上 family 的地址
func (r InterfaceRule) Matches(name string, family types.Family) bool {
	return r.Name == name && r.Family.Matches(family)
}

// Config 引擎配置
type Config struct {
	// HostName 请求的主机名（不含 .local.），冲突时追加数字后缀
	HostName string

	// Interfaces 启用接口规则，为空表示使用全部接口
	Interfaces []InterfaceRule

	// EnableIPv4 是否使用 IPv4 地址
	EnableIPv4 bool

	// EnableIPv6 是否使用 IPv6 地址
	EnableIPv6 bool

	// Agent agent 行为参数
	Agent agent.Config

	// ResolveTimeout 主机名解析的默认超时
	ResolveTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		HostName:       DefaultHostName(),
		EnableIPv4:     true,
		EnableIPv6:     true,
		Agent:          agent.DefaultConfig(),
		ResolveTimeout: 3 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !types.IsValidHostName(c.HostName) {
		return fmt.Errorf("%w: host name %q", ErrInvalidConfig, c.HostName)
	}
	if !c.EnableIPv4 && !c.EnableIPv6 {
		return fmt.Errorf("%w: no address family enabled", ErrInvalidConfig)
	}
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("%w: resolve timeout must be positive", ErrInvalidConfig)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建引擎配置
func ConfigFromUnified(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}

	if cfg.HostName != "" {
		out.HostName = cfg.HostName
	}
	out.EnableIPv4 = cfg.EnableIPv4
	out.EnableIPv6 = cfg.EnableIPv6
	for _, ic := range cfg.Interfaces {
		// 非法地址族已由 config.Validate 拒绝
		family, _ := types.ParseFamily(ic.Family)
		out.Interfaces = append(out.Interfaces, InterfaceRule{Name: ic.Name, Family: family})
	}

	out.Agent = agent.Config{
		ProbeJitter:     cfg.Probe.Jitter.Duration(),
		ProbeInterval:   cfg.Probe.Interval.Duration(),
		ProbeCount:      cfg.Probe.Count,
		AnnounceInitial: cfg.Announce.Initial.Duration(),
		AnnounceMax:     cfg.Announce.Max.Duration(),
		ThrottleWindow:  cfg.Throttle.Window.Duration(),
		MaxSenders:      cfg.Throttle.MaxSenders,
		QueryInitial:    cfg.Query.Initial.Duration(),
		QueryMax:        cfg.Query.Max.Duration(),
	}
	out.ResolveTimeout = cfg.Query.ResolveTimeout.Duration()
	return out
}

// DefaultHostName 返回操作系统主机名的第一个标签，不可用时生成随机主机名
func DefaultHostName() string {
	if name, err := os.Hostname(); err == nil {
		label, _, _ := strings.Cut(name, ".")
		if types.IsValidHostName(label) {
			return label
		}
	}
	return "mdnsd-" + uuid.NewString()[:8]
}
