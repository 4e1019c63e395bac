package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
)

// Module 是 metrics 的 Fx 模块
//
// 提供独立的 *prometheus.Registry 与 interfaces.Metrics。
var Module = fx.Module("metrics",
	fx.Provide(
		ProvideRegistry,
		ProvideMetrics,
	),
)

// ProvideRegistry 提供指标注册表
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Registry   *prometheus.Registry
	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideMetrics 提供引擎指标；关闭时返回 NoopMetrics
func ProvideMetrics(p Params) (interfaces.Metrics, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		return interfaces.NoopMetrics{}, nil
	}
	return New(cfg, p.Registry)
}
