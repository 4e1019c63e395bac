package netif

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
)

// Module 返回 Fx 模块
var Module = fx.Module("netif",
	fx.Provide(ProvideWatcher),
)

// Params 监视器依赖参数
type Params struct {
	fx.In

	Clock      clock.Clock    `optional:"true"`
	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideWatcher 提供接口监视器
func ProvideWatcher(p Params) (interfaces.InterfaceWatcher, error) {
	return NewWatcher(ConfigFromUnified(p.UnifiedCfg), WithClock(p.Clock))
}
