package config

import (
	"fmt"
	"time"
)

// ProbeConfig 冲突探测配置
//
// 主机名与服务实例名在使用前都要经过探测（RFC 6762 §8.1）。
type ProbeConfig struct {
	// Jitter 首次探测前的随机延迟上限
	Jitter Duration `json:"jitter"`

	// Interval 两次探测之间的间隔
	Interval Duration `json:"interval"`

	// Count 探测次数
	Count int `json:"count"`
}

// DefaultProbeConfig 返回默认探测配置
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Jitter:   Duration(250 * time.Millisecond),
		Interval: Duration(250 * time.Millisecond),
		Count:    3,
	}
}

// Validate 验证探测配置
func (c ProbeConfig) Validate() error {
	if c.Jitter < 0 {
		return fmt.Errorf("%w: probe jitter must be non-negative", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: probe interval must be positive", ErrInvalidConfig)
	}
	if c.Count <= 0 {
		return fmt.Errorf("%w: probe count must be positive", ErrInvalidConfig)
	}
	return nil
}

// AnnounceConfig 公告配置
//
// 公告间隔从 Initial 开始翻倍，超过 Max 后停止。
type AnnounceConfig struct {
	// Initial 第一次与第二次公告之间的间隔
	Initial Duration `json:"initial"`

	// Max 公告间隔上限
	Max Duration `json:"max"`
}

// DefaultAnnounceConfig 返回默认公告配置（0、1、3、7 秒各一次）
func DefaultAnnounceConfig() AnnounceConfig {
	return AnnounceConfig{
		Initial: Duration(time.Second),
		Max:     Duration(4 * time.Second),
	}
}

// Validate 验证公告配置
func (c AnnounceConfig) Validate() error {
	if c.Initial <= 0 {
		return fmt.Errorf("%w: announce initial interval must be positive", ErrInvalidConfig)
	}
	if c.Max < c.Initial {
		return fmt.Errorf("%w: announce max interval must not be less than initial", ErrInvalidConfig)
	}
	return nil
}

// ThrottleConfig 多播应答限流配置
type ThrottleConfig struct {
	// Window 同一记录集两次多播应答之间的最短间隔
	Window Duration `json:"window"`

	// MaxSenders 限流期间缓存的提问方地址上限
	MaxSenders int `json:"max_senders"`
}

// DefaultThrottleConfig 返回默认限流配置
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Window:     Duration(time.Second),
		MaxSenders: 64,
	}
}

// Validate 验证限流配置
func (c ThrottleConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: throttle window must be positive", ErrInvalidConfig)
	}
	if c.MaxSenders <= 0 {
		return fmt.Errorf("%w: max senders must be positive", ErrInvalidConfig)
	}
	return nil
}

// QueryConfig 服务查询配置
type QueryConfig struct {
	// Initial 第一次与第二次查询之间的间隔
	Initial Duration `json:"initial"`

	// Max 查询间隔上限
	Max Duration `json:"max"`

	// ResolveTimeout 主机名解析的默认超时
	ResolveTimeout Duration `json:"resolve_timeout"`
}

// DefaultQueryConfig 返回默认查询配置
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Initial:        Duration(time.Second),
		Max:            Duration(time.Hour),
		ResolveTimeout: Duration(3 * time.Second),
	}
}

// Validate 验证查询配置
func (c QueryConfig) Validate() error {
	if c.Initial <= 0 {
		return fmt.Errorf("%w: query initial interval must be positive", ErrInvalidConfig)
	}
	if c.Max < c.Initial {
		return fmt.Errorf("%w: query max interval must not be less than initial", ErrInvalidConfig)
	}
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("%w: resolve timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
