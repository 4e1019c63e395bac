package agent

import (
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// ResolveCallback 主机名解析回调；超时时地址均无效
type ResolveCallback func(result types.HostAddresses)

// HostNameResolver 解析一个主机名
//
// 多播查询 A 与 AAAA，最多收集一个 IPv4 与一个 IPv6 地址。
// 在收到地址的消息结束时或超时时回调，且只回调一次，然后移除自己。
type HostNameResolver struct {
	Base

	hostName     string
	hostFullName string
	timeout      time.Duration
	callback     ResolveCallback

	v4 netip.Addr
	v6 netip.Addr
}

// NewHostNameResolver 创建主机名解析 agent
func NewHostNameResolver(host Host, hostName string, timeout time.Duration, callback ResolveCallback) *HostNameResolver {
	return &HostNameResolver{
		Base:         NewBase(host),
		hostName:     hostName,
		hostFullName: types.LocalHostFullName(hostName),
		timeout:      timeout,
		callback:     callback,
	}
}

// Start 发送查询并设置超时
func (r *HostNameResolver) Start(localHostFullName string) {
	r.Base.Start(localHostFullName)

	r.host.SendQuestion(types.NewQuestion(r.hostFullName, dns.TypeA, false), types.MulticastAll())
	r.host.SendQuestion(types.NewQuestion(r.hostFullName, dns.TypeAAAA, false), types.MulticastAll())

	r.PostTaskForTime(func() {
		if r.callback != nil {
			log.Debug("主机名解析超时", "host", r.hostName)
		}
		r.finish()
	}, r.Now().Add(r.timeout))
}

// ReceiveResource 收集地址
//
// 权威段里是其他主机探测时拟发布的记录，不作为解析结果。
func (r *HostNameResolver) ReceiveResource(rr dns.RR, section types.Section) {
	if r.callback == nil || section == types.SectionExpired || section == types.SectionAuthority || types.IsGoodbye(rr) {
		return
	}
	if !types.NameEqual(rr.Header().Name, r.hostFullName) {
		return
	}
	addr, ok := types.AddrOf(rr)
	if !ok {
		return
	}
	if addr.Is4() && !r.v4.IsValid() {
		r.v4 = addr
	} else if addr.Is6() && !r.v6.IsValid() {
		r.v6 = addr
	}
}

// EndOfMessage 已收到地址时完成解析
func (r *HostNameResolver) EndOfMessage() {
	if r.callback != nil && (r.v4.IsValid() || r.v6.IsValid()) {
		r.finish()
	}
}

// Quit 以当前结果（通常为空）完成解析
func (r *HostNameResolver) Quit() {
	r.finish()
}

func (r *HostNameResolver) finish() {
	if cb := r.callback; cb != nil {
		r.callback = nil
		cb(types.HostAddresses{Name: r.hostName, IPv4: r.v4, IPv6: r.v6})
	}
	r.RemoveSelf("")
}
