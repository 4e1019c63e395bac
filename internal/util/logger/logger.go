// Package logger 提供 mdnsd 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（MDNSD_LOG_LEVEL, MDNSD_LOG_FORMAT）
//   - 运行时切换输出目标和级别
//
// 使用示例:
//
//	var log = logger.Logger("mdns.engine")
//
//	func foo() {
//	    log.Info("agent started", "agent", id)
//	    log.Debug("message flushed", "dest", dest, "answers", n)
//	}
//
// 环境变量配置:
//
//	# 所有模块 info，agent 相关模块 debug
//	MDNSD_LOG_LEVEL=mdns.agent=debug,info
//
//	# JSON 格式输出
//	MDNSD_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一个实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	handler := newHandler(subsystem, ConfigFromEnv())
	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(handler))
	if !loaded {
		handlers.Store(subsystem, handler)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样会切换到新的输出。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
