package netif

import (
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-mdnsd/config"
)

// ErrInvalidConfig 无效配置
var ErrInvalidConfig = errors.New("netif: invalid config")

// Config 接口监视配置
type Config struct {
	// PollInterval 轮询间隔
	PollInterval time.Duration

	// IncludeLoopback 是否包含回环接口
	IncludeLoopback bool

	// ChangeBuffer Changes 通道容量
	ChangeBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		ChangeBuffer: 4,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.ChangeBuffer < 1 {
		return fmt.Errorf("%w: change buffer must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建接口监视配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	if cfg.Netif.PollInterval > 0 {
		out.PollInterval = time.Duration(cfg.Netif.PollInterval)
	}
	return out
}
