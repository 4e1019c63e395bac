package agent

import (
	"net/netip"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// InstanceResponder 发布一个服务实例
//
// 启动、Reannounce 或 SetSubtypes 后按 1s、2s、4s 的间隔通告（t=0,1,3,7s）。
// 对同一子类型的多播应答节流：请求合并为一个窗口后的一次发送，
// 上一次多播发送或通告所在的窗口未结束时在该窗口结束发送。
// 退出时多播一次所有 TTL 为 0 的 goodbye。
type InstanceResponder struct {
	Base

	serviceName      string
	instanceName     string
	serviceFullName  string
	instanceFullName string
	publisher        interfaces.Publisher
	subtypes         []string
	cfg              Config

	// announceGen 每次重新通告递增，旧的通告任务失效
	announceGen      uint64
	announceInterval time.Duration

	throttle map[string]*throttleState
	senders  *lru.Cache[netip.AddrPort, struct{}]

	// published 最近一次发出的发布内容，用于同步本地服务目录
	published *types.Publication
	quitting  bool
}

// throttleState 单个子类型的多播应答节流状态
type throttleState struct {
	last    time.Time
	pending bool
	reply   types.ReplyAddress
}

// NewInstanceResponder 创建实例发布 agent
func NewInstanceResponder(host Host, serviceName, instanceName string, publisher interfaces.Publisher, subtypes []string, cfg Config) *InstanceResponder {
	// 容量为正时 lru.New 不会失败
	senders, _ := lru.New[netip.AddrPort, struct{}](max(cfg.MaxSenders, 1))
	return &InstanceResponder{
		Base:             NewBase(host),
		serviceName:      serviceName,
		instanceName:     instanceName,
		serviceFullName:  types.LocalServiceFullName(serviceName),
		instanceFullName: types.LocalInstanceFullName(instanceName, serviceName),
		publisher:        publisher,
		subtypes:         slices.Clone(subtypes),
		cfg:              cfg,
		throttle:         make(map[string]*throttleState),
		senders:          senders,
	}
}

// InstanceFullName 返回实例全名
func (r *InstanceResponder) InstanceFullName() string {
	return r.instanceFullName
}

// Subtypes 返回当前子类型
func (r *InstanceResponder) Subtypes() []string {
	return slices.Clone(r.subtypes)
}

// Start 开始通告
func (r *InstanceResponder) Start(hostFullName string) {
	r.Base.Start(hostFullName)
	r.Reannounce()
}

// Reannounce 从最小间隔重新开始通告
func (r *InstanceResponder) Reannounce() {
	if r.hostFullName == "" || r.quitting {
		return
	}
	r.announceGen++
	r.announceInterval = r.cfg.AnnounceInitial
	r.sendAnnouncement(r.announceGen)
}

// SetSubtypes 更新子类型：被移除的子类型发送 goodbye，然后重新通告
func (r *InstanceResponder) SetSubtypes(subtypes []string) {
	if r.quitting {
		return
	}
	if r.hostFullName != "" {
		for _, old := range r.subtypes {
			if !slices.Contains(subtypes, old) {
				r.sendSubtypePtr(old, 0, types.MulticastAll())
			}
		}
	}
	r.subtypes = slices.Clone(subtypes)
	r.Reannounce()
}

// ReceiveQuestion 应答与本实例相关的查询
func (r *InstanceResponder) ReceiveQuestion(q dns.Question, reply, sender types.ReplyAddress) {
	if r.quitting {
		return
	}

	switch q.Qtype {
	case dns.TypePTR:
		if subtype, ok := r.matchService(q.Name); ok {
			r.logSender(sender)
			r.maybeGetAndSendPublication(subtype, reply)
		} else if types.NameEqual(q.Name, types.AnyServiceFullName) {
			r.sendAnyServiceResponse(reply)
		}

	case dns.TypeSRV, dns.TypeTXT:
		if types.NameEqual(q.Name, r.instanceFullName) {
			r.logSender(sender)
			r.maybeGetAndSendPublication("", reply)
		}

	case dns.TypeANY:
		if types.NameEqual(q.Name, r.instanceFullName) {
			r.logSender(sender)
			r.maybeGetAndSendPublication("", reply)
		} else if subtype, ok := r.matchService(q.Name); ok {
			r.logSender(sender)
			r.maybeGetAndSendPublication(subtype, reply)
		}
	}
}

// Quit 发送 goodbye 并移除自己，释放实例名
func (r *InstanceResponder) Quit() {
	if r.quitting {
		return
	}
	r.quitting = true

	if r.published != nil {
		r.sendGoodbye()
		r.host.RemoveLocalServiceInstance(r.serviceName, r.instanceName)
	}
	r.RemoveSelf(r.instanceFullName)
}

// matchService 匹配服务全名或本实例拥有的子类型全名
func (r *InstanceResponder) matchService(name string) (string, bool) {
	subtype, ok := types.MatchServiceName(name, r.serviceName)
	if !ok {
		return "", false
	}
	if subtype != "" && !slices.Contains(r.subtypes, subtype) {
		return "", false
	}
	return subtype, true
}

func (r *InstanceResponder) sendAnnouncement(gen uint64) {
	if gen != r.announceGen || r.quitting {
		return
	}

	// 通告计入 "" 子类型的节流窗口
	if st, ok := r.throttle[""]; !ok {
		r.throttle[""] = &throttleState{last: r.Now()}
	} else if !st.pending {
		st.last = r.Now()
	}

	r.getAndSendPublication(types.CauseAnnouncement, "", types.MulticastAll())
	for _, subtype := range r.subtypes {
		r.sendSubtypePtr(subtype, types.LongTTL, types.MulticastAll())
	}

	if r.announceInterval > r.cfg.AnnounceMax {
		return
	}
	at := r.Now().Add(r.announceInterval)
	r.announceInterval *= 2
	r.PostTaskForTime(func() { r.sendAnnouncement(gen) }, at)
}

func (r *InstanceResponder) maybeGetAndSendPublication(subtype string, reply types.ReplyAddress) {
	// 单播应答不节流
	if !reply.IsMulticast() {
		r.getAndSendPublication(types.CauseUnicastQuery, subtype, reply)
		return
	}

	now := r.Now()
	st, ok := r.throttle[subtype]
	if !ok {
		st = &throttleState{}
		r.throttle[subtype] = st
	}
	if st.pending {
		if st.reply != reply {
			st.reply = types.MulticastAll()
		}
		return
	}

	// 窗口未结束时在窗口结束发送，否则从本次请求起等满一个窗口
	at := now.Add(r.cfg.ThrottleWindow)
	if end := st.last.Add(r.cfg.ThrottleWindow); end.After(now) {
		at = end
	}
	st.pending = true
	st.reply = reply
	r.PostTaskForTime(func() {
		st.pending = false
		st.last = r.Now()
		r.getAndSendPublication(types.CauseMulticastQuery, subtype, st.reply)
	}, at)
}

func (r *InstanceResponder) getAndSendPublication(cause types.PublicationCause, subtype string, reply types.ReplyAddress) {
	// 通告不是由请求触发的，不消耗发送方缓冲
	var senders []netip.AddrPort
	if cause != types.CauseAnnouncement {
		senders = r.senders.Keys()
		r.senders.Purge()
	}

	publication := r.publisher.GetPublication(cause, subtype, senders)
	if publication == nil {
		return
	}
	r.sendPublication(publication, subtype, reply, true)
	r.updateDirectory(publication)
}

// sendPublication 依次发送子类型 PTR、服务 PTR、SRV、TXT 与地址记录
func (r *InstanceResponder) sendPublication(p *types.Publication, subtype string, reply types.ReplyAddress, withAddresses bool) {
	if subtype != "" {
		r.sendSubtypePtr(subtype, p.PtrTTL, reply)
	}

	r.host.SendResource(types.NewPTR(r.serviceFullName, r.instanceFullName, p.PtrTTL), types.SectionAnswer, reply)
	r.host.SendResource(types.NewSRV(r.instanceFullName, r.hostFullName, p.Port, p.SrvPriority, p.SrvWeight, p.SrvTTL),
		types.SectionAdditional, reply)
	r.host.SendResource(types.NewTXT(r.instanceFullName, p.Text, p.TxtTTL), types.SectionAdditional, reply)

	if withAddresses {
		r.host.SendAddresses(types.SectionAdditional, reply)
	}
}

func (r *InstanceResponder) sendSubtypePtr(subtype string, ttl uint32, reply types.ReplyAddress) {
	name := types.LocalServiceSubtypeFullName(r.serviceName, subtype)
	r.host.SendResource(types.NewPTR(name, r.instanceFullName, ttl), types.SectionAnswer, reply)
}

func (r *InstanceResponder) sendAnyServiceResponse(reply types.ReplyAddress) {
	r.host.SendResource(types.NewPTR(types.AnyServiceFullName, r.serviceFullName, types.LongTTL), types.SectionAnswer, reply)
}

// sendGoodbye 以最近的发布内容（TTL 全部为 0）多播一次，不含地址记录
func (r *InstanceResponder) sendGoodbye() {
	r.sendPublication(r.published.Goodbye(), "", types.MulticastAll(), false)
	for _, subtype := range r.subtypes {
		r.sendSubtypePtr(subtype, 0, types.MulticastAll())
	}
}

func (r *InstanceResponder) updateDirectory(p *types.Publication) {
	inst := types.ServiceInstance{
		ServiceName:  r.serviceName,
		InstanceName: r.instanceName,
		HostName:     r.hostFullName,
		Port:         p.Port,
		Text:         slices.Clone(p.Text),
		SrvPriority:  p.SrvPriority,
		SrvWeight:    p.SrvWeight,
	}

	switch {
	case r.published == nil:
		r.host.AddLocalServiceInstance(inst)
	case !r.published.SameService(p):
		r.host.ChangeLocalServiceInstance(inst)
	}
	r.published = p.Clone()
}

func (r *InstanceResponder) logSender(sender types.ReplyAddress) {
	if !sender.IsMulticast() {
		r.senders.Add(sender.AddrPort(), struct{}{})
	}
}
