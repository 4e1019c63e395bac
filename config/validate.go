package config

import (
	"fmt"
)

// ValidateAll 验证整个配置的有效性
//
// 这是 Config.Validate() 的别名，额外处理 nil。
func ValidateAll(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 两个地址族都被禁用 -> 全部启用
//   - 公告上限小于初始间隔 -> 上限取初始间隔
//   - 查询上限小于初始间隔 -> 上限取初始间隔
//   - 设置了指标地址但未启用指标 -> 启用指标
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	if !c.EnableIPv4 && !c.EnableIPv6 {
		c.EnableIPv4, c.EnableIPv6 = true, true
	}
	if c.Announce.Max < c.Announce.Initial {
		c.Announce.Max = c.Announce.Initial
	}
	if c.Query.Max < c.Query.Initial {
		c.Query.Max = c.Query.Initial
	}
	if c.Metrics.Addr != "" {
		c.Metrics.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

