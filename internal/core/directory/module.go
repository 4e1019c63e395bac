package directory

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-mdnsd/pkg/interfaces"
)

// Module 返回 Fx 模块
//
// 同时提供 *Directory（供查询）与 interfaces.ServiceDirectory（供引擎）。
var Module = fx.Module("directory",
	fx.Provide(
		New,
		func(d *Directory) interfaces.ServiceDirectory { return d },
	),
)
