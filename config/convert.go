package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "host_name": "myhost",
//	  "interfaces": [{"name": "eth0", "family": "ipv4"}],
//	  "probe": {"interval": "250ms"},
//	  "metrics": {"enabled": true, "addr": ":9353"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载并验证配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// ToJSON 将配置序列化为带缩进的 JSON
func ToJSON(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// CloneConfig 克隆配置
//
// 创建配置的深拷贝，用于安全地修改配置而不影响原始配置。
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	cloned.Interfaces = slices.Clone(cfg.Interfaces)
	return &cloned
}
