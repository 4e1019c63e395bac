// Package metrics 提供引擎的 Prometheus 指标
//
// Collector 实现 interfaces.Metrics，引擎在事件循环中调用；
// 所有指标注册到调用方提供的 prometheus.Registerer。
//
// # 指标
//
//   - mdnsd_messages_received_total: 入站消息
//   - mdnsd_messages_sent_total{dest}: 出站消息，dest 为 multicast 或 unicast
//   - mdnsd_questions_delivered_total: 分发的问题
//   - mdnsd_resources_delivered_total{section}: 分发的资源记录
//   - mdnsd_probe_conflicts_total{kind}: 探测冲突，kind 为 host 或 instance
//   - mdnsd_renewals_requested_total: 续期请求
//   - mdnsd_expirations_total: 记录过期
//   - mdnsd_agents: 当前注册的 agent 数量
//
// # Fx 模块
//
//	app := fx.New(
//	    metrics.Module,
//	    engine.Module,
//	    fx.Invoke(func(reg *prometheus.Registry) {
//	        http.Handle("/metrics", metrics.Handler(reg))
//	    }),
//	)
//
// 指标关闭时模块提供 interfaces.NoopMetrics。
package metrics
