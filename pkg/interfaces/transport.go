// Package interfaces 定义 mdnsd 协作方接口
//
// 本文件定义 Transport 接口，抽象多播 UDP 收发。
package interfaces

import (
	"context"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// Transport 定义传输层接口
//
// 传输层负责套接字、多播组管理与报文编解码，
// 向引擎交付 (消息, 发送方地址)，并按 ReplyAddress 发送消息。
type Transport interface {
	// Start 绑定套接字并开始接收
	//
	// 无法绑定网络时返回错误，引擎不会进入等待接口状态。
	Start(ctx context.Context) error

	// Inbound 返回入站消息通道，Close 后关闭
	Inbound() <-chan types.InboundMessage

	// SetInterfaces 更新参与收发的接口集合（加入/离开多播组）
	SetInterfaces(ifaces []types.Interface) error

	// Send 发送消息
	//
	// 多播目的地且未指定接口时，在所有匹配地址族的接口上发送。
	Send(msg *dns.Msg, dest types.ReplyAddress) error

	// Close 关闭传输
	Close() error
}
