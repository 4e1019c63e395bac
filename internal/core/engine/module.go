package engine

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
)

// Module 返回 Fx 模块
var Module = fx.Module("engine",
	fx.Provide(ProvideEngine),
	fx.Invoke(registerLifecycle),
)

// Params 引擎依赖参数
type Params struct {
	fx.In

	Transport  interfaces.Transport
	Watcher    interfaces.InterfaceWatcher `optional:"true"`
	Directory  interfaces.ServiceDirectory `optional:"true"`
	Metrics    interfaces.Metrics          `optional:"true"`
	Clock      clock.Clock                 `optional:"true"`
	UnifiedCfg *config.Config              `optional:"true"`
}

// ProvideEngine 提供引擎
func ProvideEngine(p Params) (*Engine, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)

	opts := []Option{WithDirectory(p.Directory)}
	if p.Metrics != nil {
		opts = append(opts, WithMetrics(p.Metrics))
	}
	if p.Clock != nil {
		opts = append(opts, WithClock(p.Clock))
	}
	return New(cfg, p.Transport, p.Watcher, opts...)
}

// lifecycleInput 生命周期注册输入
type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	Engine *Engine
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Engine.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return input.Engine.Stop(ctx)
		},
	})
}
