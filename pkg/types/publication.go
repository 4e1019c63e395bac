package types

import (
	"net/netip"
	"slices"
)

// Publication 一个服务实例当前的发布内容
//
// 由 Publisher 按需提供。TTL 单位为秒。
type Publication struct {
	// Port 服务端口（SRV）
	Port uint16

	// Text TXT 记录的字符串
	Text []string

	// SrvPriority SRV 优先级
	SrvPriority uint16

	// SrvWeight SRV 权重
	SrvWeight uint16

	// PtrTTL PTR 记录 TTL
	PtrTTL uint32

	// SrvTTL SRV 记录 TTL
	SrvTTL uint32

	// TxtTTL TXT 记录 TTL
	TxtTTL uint32
}

// NewPublication 使用默认 TTL 创建发布内容
func NewPublication(port uint16, text ...string) *Publication {
	return &Publication{
		Port:   port,
		Text:   text,
		PtrTTL: LongTTL,
		SrvTTL: ShortTTL,
		TxtTTL: LongTTL,
	}
}

// Clone 深拷贝
func (p *Publication) Clone() *Publication {
	c := *p
	c.Text = slices.Clone(p.Text)
	return &c
}

// Goodbye 返回所有 TTL 为 0 的副本
func (p *Publication) Goodbye() *Publication {
	c := p.Clone()
	c.PtrTTL = 0
	c.SrvTTL = 0
	c.TxtTTL = 0
	return c
}

// SameService 端口、优先级、权重、文本是否一致（不比较 TTL）
func (p *Publication) SameService(other *Publication) bool {
	if other == nil {
		return false
	}
	return p.Port == other.Port &&
		p.SrvPriority == other.SrvPriority &&
		p.SrvWeight == other.SrvWeight &&
		slices.Equal(p.Text, other.Text)
}

// ServiceInstance 一个已发现（或本地发布）的服务实例
type ServiceInstance struct {
	// ServiceName 服务名，如 "_foo._tcp"
	ServiceName string

	// InstanceName 实例名（未转义）
	InstanceName string

	// HostName SRV 目标主机全名
	HostName string

	// Port 服务端口
	Port uint16

	// Text TXT 字符串
	Text []string

	// SrvPriority SRV 优先级
	SrvPriority uint16

	// SrvWeight SRV 权重
	SrvWeight uint16

	// IPv4 IPv4 地址（可能无效）
	IPv4 netip.Addr

	// IPv6 IPv6 地址（可能无效）
	IPv6 netip.Addr
}

// Addrs 返回所有有效的 socket 地址
func (s ServiceInstance) Addrs() []netip.AddrPort {
	var out []netip.AddrPort
	if s.IPv4.IsValid() {
		out = append(out, netip.AddrPortFrom(s.IPv4, s.Port))
	}
	if s.IPv6.IsValid() {
		out = append(out, netip.AddrPortFrom(s.IPv6, s.Port))
	}
	return out
}

// Equal 比较两个实例的所有字段
func (s ServiceInstance) Equal(other ServiceInstance) bool {
	return s.ServiceName == other.ServiceName &&
		s.InstanceName == other.InstanceName &&
		NameEqual(s.HostName, other.HostName) &&
		s.Port == other.Port &&
		s.SrvPriority == other.SrvPriority &&
		s.SrvWeight == other.SrvWeight &&
		s.IPv4 == other.IPv4 &&
		s.IPv6 == other.IPv6 &&
		slices.Equal(s.Text, other.Text)
}

// HostAddresses 主机名解析结果
type HostAddresses struct {
	// Name 主机名（不含 .local.）
	Name string

	// IPv4 IPv4 地址，未解析到时无效
	IPv4 netip.Addr

	// IPv6 IPv6 地址，未解析到时无效
	IPv6 netip.Addr
}

// Resolved 是否至少解析到一个地址
func (h HostAddresses) Resolved() bool {
	return h.IPv4.IsValid() || h.IPv6.IsValid()
}
