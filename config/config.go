// Package config 提供 mdnsd 的统一配置
//
// 本包采用分段配置模式：
//   - 主 Config 结构体聚合所有子配置
//   - 每个子配置在独立文件中定义，提供 DefaultXxxConfig 与 Validate
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.HostName = "myhost"
//	cfg.Interfaces = append(cfg.Interfaces, config.InterfaceConfig{Name: "eth0"})
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config 是 mdnsd 的完整配置结构
//
// 配置按照功能模块组织：
//   - HostName / Interfaces / EnableIPv4 / EnableIPv6: 引擎标识与网络范围
//   - Probe: 冲突探测
//   - Announce: 公告节奏
//   - Throttle: 多播应答限流
//   - Netif: 网络接口监视
//   - Metrics: Prometheus 指标
//   - Log: 日志
type Config struct {
	// HostName 本机主机名（不含 .local.）
	//
	// 为空时使用操作系统主机名。
	HostName string `json:"host_name,omitempty"`

	// Interfaces 启用的接口列表
	//
	// 为空表示启用所有支持多播的接口。
	Interfaces []InterfaceConfig `json:"interfaces,omitempty"`

	// EnableIPv4 是否使用 IPv4
	EnableIPv4 bool `json:"enable_ipv4"`

	// EnableIPv6 是否使用 IPv6
	EnableIPv6 bool `json:"enable_ipv6"`

	// Probe 冲突探测配置
	Probe ProbeConfig `json:"probe"`

	// Announce 公告配置
	Announce AnnounceConfig `json:"announce"`

	// Throttle 限流配置
	Throttle ThrottleConfig `json:"throttle"`

	// Query 服务查询配置
	Query QueryConfig `json:"query"`

	// Netif 网络接口监视配置
	Netif NetifConfig `json:"netif"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
//
// 返回的配置使用所有组件的默认值，适用于大多数场景。
func NewConfig() *Config {
	return &Config{
		EnableIPv4: true,
		EnableIPv6: true,
		Probe:      DefaultProbeConfig(),
		Announce:   DefaultAnnounceConfig(),
		Throttle:   DefaultThrottleConfig(),
		Query:      DefaultQueryConfig(),
		Netif:      DefaultNetifConfig(),
		Metrics:    DefaultMetricsConfig(),
		Log:        DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
//
// 依次验证所有子配置，返回第一个错误。
func (c *Config) Validate() error {
	if c.HostName != "" && !isValidHostLabel(c.HostName) {
		return fmt.Errorf("%w: host name %q", ErrInvalidConfig, c.HostName)
	}
	if !c.EnableIPv4 && !c.EnableIPv6 {
		return fmt.Errorf("%w: at least one address family must be enabled", ErrInvalidConfig)
	}
	for i, iface := range c.Interfaces {
		if err := iface.Validate(); err != nil {
			return fmt.Errorf("interfaces[%d]: %w", i, err)
		}
	}

	subs := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"probe", c.Probe},
		{"announce", c.Announce},
		{"throttle", c.Throttle},
		{"query", c.Query},
		{"netif", c.Netif},
		{"metrics", c.Metrics},
		{"log", c.Log},
	}
	for _, s := range subs {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("invalid config")

// InterfaceConfig 一条启用接口规则
type InterfaceConfig struct {
	// Name 接口名，如 "eth0"
	Name string `json:"name"`

	// Family 地址族："ipv4"、"ipv6" 或空（两者）
	Family string `json:"family,omitempty"`
}

// Validate 验证接口规则
func (c InterfaceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: interface name is empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Family) {
	case "", "any", "ipv4", "ipv6":
		return nil
	default:
		return fmt.Errorf("%w: unknown family %q", ErrInvalidConfig, c.Family)
	}
}

// 与 pkg/types.IsValidHostName 相同的规则；config 不依赖 pkg/types
func isValidHostLabel(name string) bool {
	name = strings.TrimSuffix(name, ".")
	if len(name) == 0 || len(name) > 63 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return name[0] != '-' && name[len(name)-1] != '-'
}
