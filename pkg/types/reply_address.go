package types

import (
	"fmt"
	"net/netip"
)

// Port mDNS 标准端口
const Port = 5353

var (
	// IPv4Group mDNS IPv4 多播组
	IPv4Group = netip.MustParseAddr("224.0.0.251")

	// IPv6Group mDNS IPv6 多播组
	IPv6Group = netip.MustParseAddr("ff02::fb")
)

// ReplyAddress 出站消息的目的地
//
// 两种形态：
//   - 多播：由 (接口, 地址族) 决定，表示该接口上该地址族的多播组
//   - 单播：具体的对端 socket 地址，地址族由地址本身决定
//
// 字段不导出，只能通过构造函数创建，保证多播形态下 addr 始终为零值。
// 因此 == 比较与作为 map key 的语义一致：
// 多播地址只按 (接口, 地址族) 区分，不同单播对端永远不会被合并。
type ReplyAddress struct {
	ifIndex int
	family  Family
	addr    netip.AddrPort
}

// MulticastAll 返回“所有接口、所有地址族”的多播目的地
func MulticastAll() ReplyAddress {
	return ReplyAddress{}
}

// Multicast 返回指定接口、指定地址族的多播目的地
//
// ifIndex 为 0 表示所有接口。
func Multicast(ifIndex int, family Family) ReplyAddress {
	return ReplyAddress{ifIndex: ifIndex, family: family}
}

// Unicast 返回指定对端的单播目的地
func Unicast(ifIndex int, addr netip.AddrPort) ReplyAddress {
	addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
	return ReplyAddress{
		ifIndex: ifIndex,
		family:  FamilyOf(addr.Addr()),
		addr:    addr,
	}
}

// IsMulticast 是否为多播目的地
func (r ReplyAddress) IsMulticast() bool {
	return !r.addr.IsValid()
}

// IsAllInterfaces 是否不限定接口
func (r ReplyAddress) IsAllInterfaces() bool {
	return r.ifIndex == 0
}

// IfIndex 返回接口索引（0 表示所有接口）
func (r ReplyAddress) IfIndex() int {
	return r.ifIndex
}

// Family 返回地址族
func (r ReplyAddress) Family() Family {
	return r.family
}

// AddrPort 返回单播地址；多播目的地返回零值
func (r ReplyAddress) AddrPort() netip.AddrPort {
	return r.addr
}

// Port 返回端口；多播目的地返回 mDNS 标准端口
func (r ReplyAddress) Port() uint16 {
	if r.IsMulticast() {
		return Port
	}
	return r.addr.Port()
}

// AsMulticast 返回与 r 同接口、同地址族的多播目的地
func (r ReplyAddress) AsMulticast() ReplyAddress {
	return Multicast(r.ifIndex, r.family)
}

// Group 返回多播组的 socket 地址；FamilyAny 时返回无效值
func (r ReplyAddress) Group() netip.AddrPort {
	switch r.family {
	case FamilyIPv4:
		return netip.AddrPortFrom(IPv4Group, Port)
	case FamilyIPv6:
		return netip.AddrPortFrom(IPv6Group, Port)
	default:
		return netip.AddrPort{}
	}
}

// String 返回可读表示
func (r ReplyAddress) String() string {
	if r.IsMulticast() {
		return fmt.Sprintf("multicast(if=%d,%s)", r.ifIndex, r.family)
	}
	return fmt.Sprintf("unicast(if=%d,%s)", r.ifIndex, r.addr)
}
