package config

import (
	"fmt"
	"strings"
	"time"
)

// NetifConfig 网络接口监视配置
type NetifConfig struct {
	// PollInterval 轮询接口变化的间隔
	PollInterval Duration `json:"poll_interval"`
}

// DefaultNetifConfig 返回默认接口监视配置
func DefaultNetifConfig() NetifConfig {
	return NetifConfig{PollInterval: Duration(5 * time.Second)}
}

// Validate 验证接口监视配置
func (c NetifConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否采集 Prometheus 指标
	Enabled bool `json:"enabled"`

	// Addr 指标 HTTP 监听地址，为空时不监听
	Addr string `json:"addr,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.Addr != "" && !c.Enabled {
		return fmt.Errorf("%w: metrics address set while metrics disabled", ErrInvalidConfig)
	}
	return nil
}

// LogConfig 日志配置
//
// Level 语法与 MDNSD_LOG_LEVEL 环境变量一致，如 "info" 或 "mdns.engine=debug,warn"。
type LogConfig struct {
	// Level 日志级别
	Level string `json:"level,omitempty"`

	// Format 输出格式："text" 或 "json"
	Format string `json:"format,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Format)
	}
}
