// Package transport 实现 mDNS 多播 UDP 传输
//
// 每个地址族一个套接字，绑定 5353 端口并在启用的接口上加入多播组
// （224.0.0.251 / ff02::fb）。入站报文用 miekg/dns 解码后连同发送方地址
// （携带接收接口索引）交给引擎；出站消息按 ReplyAddress 选择接口与目的地。
//
// # 接收
//
// 每个套接字一个接收 goroutine，由 errgroup 管理，Close 时等待全部退出后
// 关闭 Inbound 通道。无法解码的报文直接丢弃。
//
// # 发送
//
//   - 单播目的地：发往对端地址，指定接口时从该接口发出
//   - 多播目的地：在匹配的接口与地址族上逐一发送到多播组
//
// # Fx 模块集成
//
//	app := fx.New(
//	    transport.Module,
//	    engine.Module,
//	)
//
// 生命周期由引擎管理：引擎 Start 时启动传输，Stop 时关闭。
package transport
