package engine

import (
	"slices"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/internal/core/agent"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// receiveMessage 处理一条入站消息
//
// 顺序固定：先分发全部问题（不含 Renewer），再分发资源记录（Renewer 优先），
// 然后通知所有 agent 消息结束，最后发送累积的出站消息。
func (e *Engine) receiveMessage(msg *dns.Msg, from types.ReplyAddress) {
	if msg == nil || e.State() == StateNotStarted {
		return
	}
	e.metrics.MessageReceived()

	// 传统查询的应答在本条消息处理结束时发出，之后不再带回查询 ID
	if from.Port() != types.Port && !msg.Response && len(msg.Question) > 0 {
		e.out.legacy[from] = legacyQuery{id: msg.Id, questions: slices.Clone(msg.Question)}
		defer delete(e.out.legacy, from)
	}

	for _, q := range msg.Question {
		reply := replyAddressFor(q, from)
		e.fanout(func(a agent.Agent) {
			a.ReceiveQuestion(q, reply, from)
		}, true)
		e.metrics.QuestionDelivered()
	}

	e.deliverResources(msg.Answer, types.SectionAnswer)
	e.deliverResources(msg.Ns, types.SectionAuthority)
	e.deliverResources(msg.Extra, types.SectionAdditional)

	e.fanout(func(a agent.Agent) {
		a.EndOfMessage()
	}, false)

	e.flush()
}

// replyAddressFor 计算问题的应答地址
//
// 问题要求单播应答，或发送方不是从 5353 端口发出（RFC 6762 §6.7 传统查询）时单播回发送方，
// 否则多播到发送方所在接口。
func replyAddressFor(q dns.Question, from types.ReplyAddress) types.ReplyAddress {
	if types.IsUnicastQuestion(q) || from.Port() != types.Port {
		return from
	}
	return from.AsMulticast()
}

// deliverResources 分发一个段的资源记录，每条记录先交给 Renewer
func (e *Engine) deliverResources(rrs []dns.RR, section types.Section) {
	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeOPT {
			continue
		}
		if e.renewer != nil {
			e.renewer.ReceiveResource(rr, section)
		}
		e.fanout(func(a agent.Agent) {
			a.ReceiveResource(rr, section)
		}, true)
		e.metrics.ResourceDelivered(section.String())
	}
}

// deliverExpired 同步投递过期通知，不进入任何出站消息
func (e *Engine) deliverExpired(rr dns.RR) {
	expired := types.WithTTL(rr, 0)
	e.metrics.Expiration()
	e.fanout(func(a agent.Agent) {
		a.ReceiveResource(expired, types.SectionExpired)
	}, false)
}

// fanout 对 agent 标识的快照逐一调用 fn
//
// 分发期间被移除的 agent 不再收到调用，新加入的 agent 不参与本次分发。
// skipRenewer 为 true 时跳过 Renewer。
func (e *Engine) fanout(fn func(a agent.Agent), skipRenewer bool) {
	var renewerID agent.ID
	if skipRenewer && e.renewer != nil {
		renewerID = e.renewer.ID()
	}

	for _, id := range slices.Clone(e.order) {
		if renewerID != 0 && id == renewerID {
			continue
		}
		a, ok := e.agents[id]
		if !ok {
			continue
		}
		fn(a)
	}
}
