package transport

import (
	"fmt"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// Config 传输配置
type Config struct {
	// EnableIPv4 是否打开 IPv4 套接字
	EnableIPv4 bool

	// EnableIPv6 是否打开 IPv6 套接字
	EnableIPv6 bool

	// Port 绑定端口，0 表示随机端口（仅用于测试）
	Port int

	// MaxMessageSize 接收缓冲区大小（RFC 6762 §17 允许最多 9000 字节）
	MaxMessageSize int

	// Loopback 是否接收本机发出的多播报文
	Loopback bool

	// InboundBuffer 入站通道容量
	InboundBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		EnableIPv4:     true,
		EnableIPv6:     true,
		Port:           types.Port,
		MaxMessageSize: 9000,
		Loopback:       true,
		InboundBuffer:  64,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if !c.EnableIPv4 && !c.EnableIPv6 {
		return fmt.Errorf("%w: no address family enabled", ErrInvalidConfig)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.MaxMessageSize < 512 {
		return fmt.Errorf("%w: max message size must be at least 512", ErrInvalidConfig)
	}
	if c.InboundBuffer < 0 {
		return fmt.Errorf("%w: inbound buffer must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.EnableIPv4 = cfg.EnableIPv4
	out.EnableIPv6 = cfg.EnableIPv6
	return out
}
