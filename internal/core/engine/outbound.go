package engine

import (
	"net/netip"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// outbound 出站消息累积器：按 ReplyAddress 合并，保持首次出现的顺序
type outbound struct {
	byDest map[types.ReplyAddress]*pendingMessage
	order  []types.ReplyAddress

	// legacy 正在处理的传统查询，按发送方记录
	legacy map[types.ReplyAddress]legacyQuery
}

// legacyQuery 传统查询的 ID 与问题，应答时原样带回
type legacyQuery struct {
	id        uint16
	questions []dns.Question
}

// pendingMessage 发往一个目的地的待发送消息
//
// 本机地址记录只记下所在段，发送时按目的地接口展开。
type pendingMessage struct {
	questions []dns.Question
	sections  [3][]dns.RR
	addresses [3]bool
}

func newOutbound() *outbound {
	return &outbound{
		byDest: make(map[types.ReplyAddress]*pendingMessage),
		legacy: make(map[types.ReplyAddress]legacyQuery),
	}
}

// message 返回发往 dest 的待发送消息，不存在时创建
func (o *outbound) message(dest types.ReplyAddress) *pendingMessage {
	if m, ok := o.byDest[dest]; ok {
		return m
	}
	m := &pendingMessage{}
	o.byDest[dest] = m
	o.order = append(o.order, dest)
	return m
}

// take 取出所有待发送消息并清空
func (o *outbound) take() ([]types.ReplyAddress, map[types.ReplyAddress]*pendingMessage) {
	order, byDest := o.order, o.byDest
	o.order = nil
	o.byDest = make(map[types.ReplyAddress]*pendingMessage)
	return order, byDest
}

// empty 是否没有待发送消息
func (o *outbound) empty() bool {
	return len(o.order) == 0
}

// addQuestion 添加问题，重复的问题只保留一个
func (m *pendingMessage) addQuestion(q dns.Question) {
	for _, existing := range m.questions {
		if existing == q {
			return
		}
	}
	m.questions = append(m.questions, q)
}

// addResource 添加资源记录，同段内数据与 TTL 都相同的记录只保留一个
func (m *pendingMessage) addResource(rr dns.RR, section types.Section) {
	if section < types.SectionAnswer || section > types.SectionAdditional {
		return
	}
	for _, existing := range m.sections[section] {
		if existing.Header().Ttl == rr.Header().Ttl && types.SameData(existing, rr) {
			return
		}
	}
	m.sections[section] = append(m.sections[section], rr)
}

// addAddresses 标记在指定段加入本机地址记录
func (m *pendingMessage) addAddresses(section types.Section) {
	if section < types.SectionAnswer || section > types.SectionAdditional {
		return
	}
	m.addresses[section] = true
}

// hasAddresses 是否需要加入本机地址记录
func (m *pendingMessage) hasAddresses() bool {
	return m.addresses[types.SectionAnswer] || m.addresses[types.SectionAuthority] || m.addresses[types.SectionAdditional]
}

// build 构造消息，addrs 为需要加入的本机地址；legacy 非空时按传统应答整理
func (m *pendingMessage) build(hostFullName string, addrs []netip.Addr, legacy *legacyQuery) *dns.Msg {
	msg := types.NewMessage()
	msg.Question = append(msg.Question, m.questions...)

	for s := types.SectionAnswer; s <= types.SectionAdditional; s++ {
		rrs := append([]dns.RR(nil), m.sections[s]...)
		if m.addresses[s] && hostFullName != "" {
			for _, addr := range addrs {
				rrs = append(rrs, types.NewAddress(hostFullName, addr, types.ShortTTL))
			}
		}
		switch s {
		case types.SectionAnswer:
			msg.Answer = rrs
		case types.SectionAuthority:
			msg.Ns = rrs
		case types.SectionAdditional:
			msg.Extra = rrs
		}
	}

	types.PrepareForSend(msg)
	if legacy != nil && types.RecordCount(msg) > 0 {
		types.PrepareLegacyReply(msg, legacy.id, legacy.questions)
	}
	return msg
}

// ============================================================================
//                              flush（事件循环）
// ============================================================================

// flush 发送所有累积的出站消息
//
// 发往所有接口的多播消息若包含本机地址，按接口与地址族拆分，
// 每条只携带该接口上的地址（RFC 6762 §15）。
func (e *Engine) flush() {
	if e.out.empty() {
		return
	}
	order, byDest := e.out.take()

	for _, dest := range order {
		m := byDest[dest]
		var legacy *legacyQuery
		if q, ok := e.out.legacy[dest]; ok {
			legacy = &q
		}
		if !m.hasAddresses() {
			e.send(m.build(e.hostFullName, nil, legacy), dest)
			continue
		}

		if dest.IsMulticast() && dest.IsAllInterfaces() {
			for _, iface := range e.interfaces {
				for _, family := range []types.Family{types.FamilyIPv4, types.FamilyIPv6} {
					if dest.Family().Matches(family) && iface.HasFamily(family) {
						e.send(m.build(e.hostFullName, iface.Addrs, nil), types.Multicast(iface.Index, family))
					}
				}
			}
			continue
		}

		addrs := e.localAddresses()
		if iface, ok := e.interfaceByIndex(dest.IfIndex()); ok {
			addrs = iface.Addrs
		}
		e.send(m.build(e.hostFullName, addrs, legacy), dest)
	}
}

// send 交给传输层发送
func (e *Engine) send(msg *dns.Msg, dest types.ReplyAddress) {
	if len(msg.Question) == 0 && types.RecordCount(msg) == 0 {
		return
	}
	if err := e.transport.Send(msg, dest); err != nil {
		log.Warn("发送消息失败", "dest", dest, "error", err)
		return
	}
	e.metrics.MessageSent(dest.IsMulticast())
}
