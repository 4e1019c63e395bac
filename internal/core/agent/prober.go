package agent

import (
	"math/rand"
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

// ProbeCallback 探测完成回调，回调前 prober 已移除自己
type ProbeCallback func(success bool)

// probeTarget 被探测的具体记录
type probeTarget interface {
	// resourceName 被探测的名称
	resourceName() string

	// sendProposedResources 将拟发布的记录加入指定段
	sendProposedResources(section types.Section)

	// conflicts 收到的同名记录是否与拟发布记录冲突
	conflicts(rr dns.RR) bool
}

// prober 探测流程：可选随机延迟后发送 ProbeCount 轮探测，
// 每轮一个 QU 问题并在权威段携带拟发布的记录；期间在应答段或附加段
// 观察到同名且不一致的记录即判定冲突。
type prober struct {
	Base

	target    probeTarget
	cfg       Config
	callback  ProbeCallback
	remaining int
	done      bool
}

func newProber(host Host, cfg Config, callback ProbeCallback) prober {
	return prober{
		Base:      NewBase(host),
		cfg:       cfg,
		callback:  callback,
		remaining: cfg.ProbeCount,
	}
}

// Start 开始探测
func (p *prober) Start(hostFullName string) {
	p.Base.Start(hostFullName)

	delay := time.Duration(0)
	if p.cfg.ProbeJitter > 0 {
		delay = time.Duration(rand.Int63n(int64(p.cfg.ProbeJitter)))
	}
	p.PostTaskForTime(p.probe, p.Now().Add(delay))
}

// ReceiveResource 检查冲突
func (p *prober) ReceiveResource(rr dns.RR, section types.Section) {
	if p.done || (section != types.SectionAnswer && section != types.SectionAdditional) {
		return
	}
	if !types.NameEqual(rr.Header().Name, p.target.resourceName()) || !p.target.conflicts(rr) {
		return
	}
	log.Info("探测冲突", "name", p.target.resourceName(), "record", rr.String())
	p.complete(false)
}

// Quit 放弃探测
func (p *prober) Quit() {
	p.done = true
	p.RemoveSelf("")
}

func (p *prober) probe() {
	if p.done {
		return
	}
	if p.remaining == 0 {
		p.complete(true)
		return
	}
	p.remaining--

	p.host.SendQuestion(types.NewQuestion(p.target.resourceName(), dns.TypeANY, true), types.MulticastAll())
	p.target.sendProposedResources(types.SectionAuthority)
	p.PostTaskForTime(p.probe, p.Now().Add(p.cfg.ProbeInterval))
}

func (p *prober) complete(success bool) {
	p.done = true
	p.RemoveSelf("")
	p.callback(success)
}

// ============================================================================
//                              AddressProber
// ============================================================================

// AddressProber 探测本机主机名
//
// 同名的地址记录若不属于本机任何地址即为冲突。
type AddressProber struct {
	prober
}

// NewAddressProber 创建主机名探测 agent
func NewAddressProber(host Host, cfg Config, callback ProbeCallback) *AddressProber {
	p := &AddressProber{prober: newProber(host, cfg, callback)}
	p.target = p
	return p
}

func (p *AddressProber) resourceName() string {
	return p.hostFullName
}

func (p *AddressProber) sendProposedResources(section types.Section) {
	p.host.SendAddresses(section, types.MulticastAll())
}

func (p *AddressProber) conflicts(rr dns.RR) bool {
	addr, ok := types.AddrOf(rr)
	if !ok {
		return false
	}
	for _, local := range p.host.LocalAddresses() {
		if local.Unmap() == addr {
			return false
		}
	}
	return true
}

// ============================================================================
//                              InstanceProber
// ============================================================================

// InstanceProber 探测服务实例名
//
// 启动时向 Publisher 获取一次发布内容，据此构造拟发布的 SRV 记录。
// 同名的 SRV 记录与拟发布的不一致即为冲突。
type InstanceProber struct {
	prober

	serviceName      string
	instanceName     string
	instanceFullName string
	publisher        interfaces.Publisher
	proposed         dns.RR
}

// NewInstanceProber 创建实例名探测 agent
func NewInstanceProber(host Host, serviceName, instanceName string, publisher interfaces.Publisher, cfg Config, callback ProbeCallback) *InstanceProber {
	p := &InstanceProber{
		prober:           newProber(host, cfg, callback),
		serviceName:      serviceName,
		instanceName:     instanceName,
		instanceFullName: types.LocalInstanceFullName(instanceName, serviceName),
		publisher:        publisher,
	}
	p.target = p
	return p
}

// Start 获取发布内容后开始探测；Publisher 不提供内容时视为失败
func (p *InstanceProber) Start(hostFullName string) {
	publication := p.publisher.GetPublication(types.CauseAnnouncement, "", nil)
	if publication == nil {
		log.Warn("发布方未提供发布内容", "instance", p.instanceFullName)
		p.Base.Start(hostFullName)
		p.PostTaskForTime(func() {
			if !p.done {
				p.complete(false)
			}
		}, p.Now())
		return
	}

	p.proposed = types.NewSRV(p.instanceFullName, hostFullName, publication.Port,
		publication.SrvPriority, publication.SrvWeight, types.ShortTTL)
	p.prober.Start(hostFullName)
}

// InstanceFullName 返回被探测的实例全名
func (p *InstanceProber) InstanceFullName() string {
	return p.instanceFullName
}

func (p *InstanceProber) resourceName() string {
	return p.instanceFullName
}

func (p *InstanceProber) sendProposedResources(section types.Section) {
	p.host.SendResource(p.proposed, section, types.MulticastAll())
}

func (p *InstanceProber) conflicts(rr dns.RR) bool {
	return rr.Header().Rrtype == dns.TypeSRV && !types.SameData(rr, p.proposed)
}
