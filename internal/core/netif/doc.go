// Package netif 枚举并监视可用于 mDNS 的网络接口
//
// 只保留处于启用状态、支持多播的接口；回环接口默认排除。
// Watcher 按固定间隔轮询操作系统接口表，接口集合（接口或其地址）变化时
// 通过 Changes 发送完整的新集合。
//
// 按接口名与地址族的启用规则由引擎负责，这里不做筛选。
//
// # Fx 模块集成
//
//	app := fx.New(
//	    netif.Module,
//	    engine.Module,
//	)
//
// 引擎负责 Watcher 的 Start 与 Stop。
package netif
