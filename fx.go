package mdnsd

import (
	"log/slog"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/internal/core/directory"
	"github.com/dep2p/go-mdnsd/internal/core/engine"
	"github.com/dep2p/go-mdnsd/internal/core/metrics"
	"github.com/dep2p/go-mdnsd/internal/core/netif"
	"github.com/dep2p/go-mdnsd/internal/core/transport"
	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置注入
//  2. 协作方：Metrics → Directory → Transport → Netif（可由选项替换）
//  3. Engine（生命周期钩子负责启动与停止）
func buildFxApp(o *options, cfg *config.Config, d *Daemon) *fx.App {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置注入
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 协作方
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		metrics.Module,
		directory.Module,
	)

	if o.transport != nil {
		tr := o.transport
		modules = append(modules, fx.Provide(func() interfaces.Transport { return tr }))
	} else {
		modules = append(modules, transport.Module)
	}

	if o.watcher != nil {
		w := o.watcher
		modules = append(modules, fx.Provide(func() interfaces.InterfaceWatcher { return w }))
	} else {
		modules = append(modules, netif.Module)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 引擎
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		engine.Module,
		fx.Populate(&d.engine, &d.directory, &d.registry),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: fxZapLogger(o.verbose)}
	}))

	return fx.New(modules...)
}

// fxZapLogger 默认丢弃 fx 日志，避免干扰用户日志
func fxZapLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fx")
}

// configureLogging 按配置设置日志级别与格式；设置了环境变量时以环境变量为准
func configureLogging(lc config.LogConfig) {
	if os.Getenv(logger.EnvLevel) != "" || os.Getenv(logger.EnvFormat) != "" {
		return
	}
	cfg := &logger.Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          logger.ParseFormat(lc.Format),
	}
	logger.ParseLevelSpec(cfg, lc.Level)
	logger.Configure(cfg)
}
