package agent

import (
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// addressReannounceDelay 两次地址通告的间隔（RFC 6762 §8.3）
const addressReannounceDelay = time.Second

// AddressResponder 应答本机主机名的地址查询，以及本机地址的反向查询
//
// 探测期间即参与工作。
type AddressResponder struct {
	Base
}

// NewAddressResponder 创建地址应答 agent
func NewAddressResponder(host Host) *AddressResponder {
	return &AddressResponder{Base: NewBase(host)}
}

// Announce 多播通告本机地址，1 秒后再通告一次
func (r *AddressResponder) Announce() {
	r.host.SendAddresses(types.SectionAnswer, types.MulticastAll())
	r.PostTaskForTime(func() {
		r.host.SendAddresses(types.SectionAnswer, types.MulticastAll())
	}, r.Now().Add(addressReannounceDelay))
}

// ReceiveQuestion 应答 A/AAAA/ANY 与反向 PTR 查询
func (r *AddressResponder) ReceiveQuestion(q dns.Question, reply, _ types.ReplyAddress) {
	if r.hostFullName == "" {
		return
	}

	switch q.Qtype {
	case dns.TypeA, dns.TypeAAAA, dns.TypeANY:
		if types.NameEqual(q.Name, r.hostFullName) {
			r.host.SendAddresses(types.SectionAnswer, reply)
		}
	}

	if q.Qtype == dns.TypePTR || q.Qtype == dns.TypeANY {
		for _, addr := range r.host.LocalAddresses() {
			reverse, err := dns.ReverseAddr(addr.String())
			if err != nil || !types.NameEqual(q.Name, reverse) {
				continue
			}
			ptr := types.NewPTR(reverse, r.hostFullName, types.ShortTTL)
			types.SetCacheFlush(ptr, true)
			r.host.SendResource(ptr, types.SectionAnswer, reply)
			return
		}
	}
}
