package agent

import (
	"errors"
	"time"
)

// Config agent 行为参数
type Config struct {
	// ProbeJitter 首次探测前的随机延迟上限，0 表示不延迟
	ProbeJitter time.Duration

	// ProbeInterval 探测间隔
	ProbeInterval time.Duration

	// ProbeCount 探测次数
	ProbeCount int

	// AnnounceInitial 首个通告间隔
	AnnounceInitial time.Duration

	// AnnounceMax 通告间隔超过该值后停止通告
	AnnounceMax time.Duration

	// ThrottleWindow 同一子类型多播应答的最小间隔
	ThrottleWindow time.Duration

	// MaxSenders 保留的请求方地址数量上限
	MaxSenders int

	// QueryInitial 订阅查询的首个间隔
	QueryInitial time.Duration

	// QueryMax 订阅查询的最大间隔
	QueryMax time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ProbeJitter:     250 * time.Millisecond,
		ProbeInterval:   250 * time.Millisecond,
		ProbeCount:      3,
		AnnounceInitial: time.Second,
		AnnounceMax:     4 * time.Second,
		ThrottleWindow:  time.Second,
		MaxSenders:      64,
		QueryInitial:    time.Second,
		QueryMax:        time.Hour,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.ProbeJitter < 0 {
		return errors.New("probe jitter must not be negative")
	}
	if c.ProbeInterval <= 0 || c.ProbeCount <= 0 {
		return errors.New("probe interval and count must be positive")
	}
	if c.AnnounceInitial <= 0 || c.AnnounceMax < c.AnnounceInitial {
		return errors.New("announce intervals are invalid")
	}
	if c.ThrottleWindow <= 0 {
		return errors.New("throttle window must be positive")
	}
	if c.MaxSenders <= 0 {
		return errors.New("max senders must be positive")
	}
	if c.QueryInitial <= 0 || c.QueryMax < c.QueryInitial {
		return errors.New("query intervals are invalid")
	}
	return nil
}
