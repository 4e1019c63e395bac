package metrics

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-mdnsd/config"
)

// ErrInvalidConfig 无效配置
var ErrInvalidConfig = errors.New("metrics: invalid config")

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool

	// Namespace 指标名前缀
	Namespace string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "mdnsd",
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return fmt.Errorf("%w: namespace is empty", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.Enabled = cfg.Metrics.Enabled
	return out
}

// MetricsError 指标错误
type MetricsError struct {
	Op      string // 操作名称
	Err     error  // 原始错误
	Message string // 错误信息
}

// Error 实现 error 接口
func (e *MetricsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("metrics: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("metrics: %s: %s", e.Op, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *MetricsError) Unwrap() error {
	return e.Err
}

// NewMetricsError 创建指标错误
func NewMetricsError(op string, err error, message string) *MetricsError {
	return &MetricsError{Op: op, Err: err, Message: message}
}
