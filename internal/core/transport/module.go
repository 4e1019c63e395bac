package transport

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
)

// Module 返回 Fx 模块
//
// 只提供传输实例，启动与关闭由引擎负责。
var Module = fx.Module("transport",
	fx.Provide(ProvideTransport),
)

// Params 传输依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideTransport 提供多播 UDP 传输
func ProvideTransport(p Params) (interfaces.Transport, error) {
	return New(ConfigFromUnified(p.UnifiedCfg))
}
