package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量名
const (
	// EnvLevel 日志级别，格式: 子系统=级别,子系统=级别,默认级别
	// 示例: mdns.engine=debug,mdns.transport=warn,info
	EnvLevel = "MDNSD_LOG_LEVEL"

	// EnvFormat 日志格式 (text 或 json)
	EnvFormat = "MDNSD_LOG_FORMAT"

	// EnvAddSource 是否输出源码位置 (true/false)
	EnvAddSource = "MDNSD_LOG_ADD_SOURCE"
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// ParseFormat 解析格式名称，未知名称按 text 处理
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return FormatJSON
	}
	return FormatText
}

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format Format

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定子系统的日志级别
//
// 子系统名按 "." 分段，从最长前缀开始匹配：
// "mdns.agent" 的配置同样作用于 "mdns.agent.responder"。
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	name := subsystem
	for {
		if level, ok := c.SubsystemLevels[name]; ok {
			return level
		}
		idx := strings.LastIndex(name, ".")
		if idx < 0 {
			return c.DefaultLevel
		}
		name = name[:idx]
	}
}

var (
	configCache *Config
	configMu    sync.Mutex
)

// ConfigFromEnv 从环境变量解析配置（结果缓存）
func ConfigFromEnv() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	if configCache == nil {
		configCache = parseConfig(os.Getenv)
	}
	return configCache
}

// parseConfig 解析配置，getenv 便于测试注入
func parseConfig(getenv func(string) string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if levelStr := getenv(EnvLevel); levelStr != "" {
		ParseLevelSpec(cfg, levelStr)
	}
	if formatStr := getenv(EnvFormat); formatStr != "" {
		cfg.Format = ParseFormat(formatStr)
	}
	if addSource := getenv(EnvAddSource); addSource != "" {
		cfg.AddSource = addSource != "false" && addSource != "0"
	}
	return cfg
}

// ParseLevelSpec 解析级别配置字符串并写入 cfg
//
// 格式: subsystem=level,subsystem=level,defaultLevel
func ParseLevelSpec(cfg *Config, spec string) {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if subsystem, levelName, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(levelName); ok {
				cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
			}
			continue
		}
		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Configure 用显式配置替换环境变量配置
//
// 已创建的子系统 Logger 会同步调整级别；格式变化只影响之后创建的 Logger。
func Configure(cfg *Config) {
	configMu.Lock()
	configCache = cfg
	configMu.Unlock()

	handlers.Range(func(key, value any) bool {
		value.(*subsystemHandler).SetLevel(cfg.LevelForSubsystem(key.(string)))
		return true
	})
}
