package types

import (
	"net/netip"
	"slices"

	"github.com/miekg/dns"
)

// Interface 一个可用于 mDNS 的网络接口
type Interface struct {
	// Index 操作系统接口索引
	Index int

	// Name 接口名
	Name string

	// Addrs 接口上的地址
	Addrs []netip.Addr
}

// AddrsFor 返回指定地址族的地址
func (i Interface) AddrsFor(family Family) []netip.Addr {
	var out []netip.Addr
	for _, addr := range i.Addrs {
		if family.Matches(FamilyOf(addr)) {
			out = append(out, addr)
		}
	}
	return out
}

// HasFamily 接口上是否有指定地址族的地址
func (i Interface) HasFamily(family Family) bool {
	return len(i.AddrsFor(family)) > 0
}

// Equal 比较两个接口
func (i Interface) Equal(other Interface) bool {
	return i.Index == other.Index && i.Name == other.Name && slices.Equal(i.Addrs, other.Addrs)
}

// InboundMessage 传输层解析后交给引擎的入站消息
type InboundMessage struct {
	// Msg 解析后的消息
	Msg *dns.Msg

	// From 发送方地址（单播形态，携带接收接口）
	From ReplyAddress
}
