package agent

import (
	"net/netip"
	"slices"
	"sort"
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// InstanceRequestor 订阅一个服务的实例
//
// 周期性多播查询服务 PTR（间隔从 1s 起翻倍，上限 1h），跟踪实例及其目标主机地址，
// 在消息结束时向订阅方报告新增与变化。同一服务的多个订阅方共享一个 requestor，
// 最后一个订阅方离开时 requestor 退出。
type InstanceRequestor struct {
	Base

	serviceName     string
	serviceFullName string
	cfg             Config
	queryDelay      time.Duration

	subscribers     map[uint64]interfaces.Subscriber
	subscriberOrder []uint64

	instances map[string]*instanceInfo
	targets   map[string]*targetInfo
}

type instanceInfo struct {
	fullName string
	name     string
	target   string
	port     uint16
	priority uint16
	weight   uint16
	text     []string

	// reported 是否已向订阅方报告过
	reported bool
	dirty    bool
	queried  bool
}

type targetInfo struct {
	v4      netip.Addr
	v6      netip.Addr
	dirty   bool
	queried bool
}

// NewInstanceRequestor 创建订阅 agent
func NewInstanceRequestor(host Host, serviceName string, cfg Config) *InstanceRequestor {
	return &InstanceRequestor{
		Base:            NewBase(host),
		serviceName:     serviceName,
		serviceFullName: types.LocalServiceFullName(serviceName),
		cfg:             cfg,
		subscribers:     make(map[uint64]interfaces.Subscriber),
		instances:       make(map[string]*instanceInfo),
		targets:         make(map[string]*targetInfo),
	}
}

// ServiceName 返回订阅的服务名
func (r *InstanceRequestor) ServiceName() string {
	return r.serviceName
}

// AddSubscriber 添加订阅方，已发现的实例立即回放给它
func (r *InstanceRequestor) AddSubscriber(id uint64, s interfaces.Subscriber) {
	if _, ok := r.subscribers[id]; ok {
		return
	}
	r.subscribers[id] = s
	r.subscriberOrder = append(r.subscriberOrder, id)

	for _, info := range r.sortedInstances() {
		if info.reported {
			s.InstanceDiscovered(r.instanceOf(info))
		}
	}
}

// RemoveSubscriber 移除订阅方；没有订阅方时退出
func (r *InstanceRequestor) RemoveSubscriber(id uint64) {
	if _, ok := r.subscribers[id]; !ok {
		return
	}
	delete(r.subscribers, id)
	r.subscriberOrder = slices.DeleteFunc(r.subscriberOrder, func(v uint64) bool { return v == id })

	if len(r.subscribers) == 0 {
		r.Quit()
	}
}

// SubscriberCount 返回订阅方数量
func (r *InstanceRequestor) SubscriberCount() int {
	return len(r.subscribers)
}

// Start 开始查询
func (r *InstanceRequestor) Start(hostFullName string) {
	r.Base.Start(hostFullName)
	r.sendQuery()
}

// ReceiveResource 跟踪实例的 PTR/SRV/TXT 与目标主机的地址记录
func (r *InstanceRequestor) ReceiveResource(rr dns.RR, section types.Section) {
	if section == types.SectionAuthority {
		return
	}

	switch v := rr.(type) {
	case *dns.PTR:
		if !types.NameEqual(v.Hdr.Name, r.serviceFullName) {
			return
		}
		if section == types.SectionExpired {
			r.dropUnresolved()
			return
		}
		r.receivePtr(v)
	case *dns.SRV:
		r.receiveSrv(v)
	case *dns.TXT:
		r.receiveTxt(v)
	case *dns.A, *dns.AAAA:
		r.receiveAddress(rr)
	}
}

// EndOfMessage 向订阅方报告变化
func (r *InstanceRequestor) EndOfMessage() {
	for _, info := range r.sortedInstances() {
		if info.target == "" {
			if !info.queried {
				info.queried = true
				r.host.SendQuestion(types.NewQuestion(info.fullName, dns.TypeSRV, false), types.MulticastAll())
				r.host.SendQuestion(types.NewQuestion(info.fullName, dns.TypeTXT, false), types.MulticastAll())
			}
			continue
		}

		target, ok := r.targets[dns.CanonicalName(info.target)]
		if !ok {
			continue
		}
		if target.dirty {
			info.dirty = true
		}
		if !info.dirty {
			continue
		}
		if !target.v4.IsValid() && !target.v6.IsValid() {
			if !target.queried {
				target.queried = true
				r.host.SendQuestion(types.NewQuestion(info.target, dns.TypeA, false), types.MulticastAll())
				r.host.SendQuestion(types.NewQuestion(info.target, dns.TypeAAAA, false), types.MulticastAll())
			}
			continue
		}

		inst := r.instanceOf(info)
		info.dirty = false
		if !info.reported {
			info.reported = true
			r.each(func(s interfaces.Subscriber) { s.InstanceDiscovered(inst) })
		} else {
			r.each(func(s interfaces.Subscriber) { s.InstanceChanged(inst) })
		}
	}

	for name, target := range r.targets {
		target.dirty = false
		if !r.targetReferenced(name) {
			delete(r.targets, name)
		}
	}
}

func (r *InstanceRequestor) sendQuery() {
	r.host.SendQuestion(types.NewQuestion(r.serviceFullName, dns.TypePTR, false), types.MulticastAll())

	if r.queryDelay == 0 {
		r.queryDelay = r.cfg.QueryInitial
	} else {
		r.queryDelay = min(r.queryDelay*2, r.cfg.QueryMax)
	}
	r.PostTaskForTime(r.sendQuery, r.Now().Add(r.queryDelay))
}

func (r *InstanceRequestor) receivePtr(ptr *dns.PTR) {
	name, ok := types.InstanceNameFromFullName(ptr.Ptr, r.serviceName)
	if !ok {
		return
	}
	key := dns.CanonicalName(ptr.Ptr)

	if types.IsGoodbye(ptr) {
		r.removeInstance(key)
		return
	}
	r.host.Renew(ptr)

	if _, ok := r.instances[key]; !ok {
		r.instances[key] = &instanceInfo{fullName: ptr.Ptr, name: name}
	}
}

func (r *InstanceRequestor) receiveSrv(srv *dns.SRV) {
	key := dns.CanonicalName(srv.Hdr.Name)
	info, ok := r.instances[key]
	if !ok {
		return
	}

	if types.IsGoodbye(srv) {
		r.removeInstance(key)
		return
	}
	r.host.Renew(srv)

	if !types.NameEqual(info.target, srv.Target) || info.port != srv.Port ||
		info.priority != srv.Priority || info.weight != srv.Weight {
		info.target = srv.Target
		info.port = srv.Port
		info.priority = srv.Priority
		info.weight = srv.Weight
		info.dirty = true
	}

	targetKey := dns.CanonicalName(srv.Target)
	if _, ok := r.targets[targetKey]; !ok {
		r.targets[targetKey] = &targetInfo{}
	}
}

func (r *InstanceRequestor) receiveTxt(txt *dns.TXT) {
	info, ok := r.instances[dns.CanonicalName(txt.Hdr.Name)]
	if !ok {
		return
	}

	var text []string
	if !types.IsGoodbye(txt) {
		r.host.Renew(txt)
		text = types.TextOf(txt)
	}
	if !slices.Equal(info.text, text) {
		info.text = text
		info.dirty = true
	}
}

func (r *InstanceRequestor) receiveAddress(rr dns.RR) {
	target, ok := r.targets[dns.CanonicalName(rr.Header().Name)]
	if !ok {
		return
	}

	v6 := rr.Header().Rrtype == dns.TypeAAAA
	var addr netip.Addr
	if !types.IsGoodbye(rr) {
		r.host.Renew(rr)
		addr, _ = types.AddrOf(rr)
	}

	current := &target.v4
	if v6 {
		current = &target.v6
	}
	if *current != addr {
		*current = addr
		target.dirty = true
	}
}

func (r *InstanceRequestor) removeInstance(key string) {
	info, ok := r.instances[key]
	if !ok {
		return
	}
	delete(r.instances, key)
	if info.reported {
		r.each(func(s interfaces.Subscriber) { s.InstanceLost(r.serviceName, info.name) })
	}
}

// dropUnresolved 服务 PTR 过期时丢弃还没有 SRV 的实例
//
// 过期通知不带目标名，已解析的实例由各自的 SRV 过期负责移除。
func (r *InstanceRequestor) dropUnresolved() {
	for key, info := range r.instances {
		if info.target == "" {
			r.removeInstance(key)
		}
	}
}

func (r *InstanceRequestor) targetReferenced(name string) bool {
	for _, info := range r.instances {
		if dns.CanonicalName(info.target) == name {
			return true
		}
	}
	return false
}

func (r *InstanceRequestor) instanceOf(info *instanceInfo) types.ServiceInstance {
	inst := types.ServiceInstance{
		ServiceName:  r.serviceName,
		InstanceName: info.name,
		HostName:     info.target,
		Port:         info.port,
		Text:         slices.Clone(info.text),
		SrvPriority:  info.priority,
		SrvWeight:    info.weight,
	}
	if target, ok := r.targets[dns.CanonicalName(info.target)]; ok {
		inst.IPv4 = target.v4
		inst.IPv6 = target.v6
	}
	return inst
}

func (r *InstanceRequestor) sortedInstances() []*instanceInfo {
	out := make([]*instanceInfo, 0, len(r.instances))
	for _, info := range r.instances {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].fullName < out[j].fullName })
	return out
}

func (r *InstanceRequestor) each(fn func(s interfaces.Subscriber)) {
	for _, id := range slices.Clone(r.subscriberOrder) {
		if s, ok := r.subscribers[id]; ok {
			fn(s)
		}
	}
}
