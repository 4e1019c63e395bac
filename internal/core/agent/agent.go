package agent

import (
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// ID agent 标识，进程内唯一
type ID = uint64

var lastID atomic.Uint64

// Agent 协议行为单元
type Agent interface {
	// ID 返回 agent 标识
	ID() ID

	// Start 启动 agent，hostFullName 为本机主机全名
	Start(hostFullName string)

	// ReceiveQuestion 收到问题
	//
	// reply 是引擎计算出的应答地址（单播给发送方或同接口多播），
	// sender 是发送方地址。
	ReceiveQuestion(q dns.Question, reply, sender types.ReplyAddress)

	// ReceiveResource 收到资源记录
	ReceiveResource(rr dns.RR, section types.Section)

	// EndOfMessage 当前入站消息的所有问题与记录已分发完毕
	EndOfMessage()

	// Quit 要求 agent 退出，agent 完成收尾后移除自己
	Quit()
}

// Host agent 面向引擎的接口
type Host interface {
	// Now 返回当前时间
	Now() time.Time

	// PostTaskForTime 提交一个属于 agent id 的定时任务
	PostTaskForTime(id ID, fn func(), at time.Time)

	// SendQuestion 将问题加入发往 dest 的消息
	SendQuestion(q dns.Question, dest types.ReplyAddress)

	// SendResource 将记录加入发往 dest 的消息的指定段
	//
	// SectionExpired 不进入任何消息，立即以 TTL 0 同步投递给所有 agent。
	SendResource(rr dns.RR, section types.Section, dest types.ReplyAddress)

	// SendAddresses 将本机地址记录加入发往 dest 的消息的指定段，发送时按接口展开
	SendAddresses(section types.Section, dest types.ReplyAddress)

	// Renew 请求对记录续期
	Renew(rr dns.RR)

	// RemoveAgent 移除 agent；publishedName 非空时释放该实例名的发布占用
	RemoveAgent(id ID, publishedName string)

	// LocalAddresses 返回本机所有启用接口上的地址
	LocalAddresses() []netip.Addr

	// AddLocalServiceInstance 通知本地服务目录新增实例
	AddLocalServiceInstance(inst types.ServiceInstance)

	// ChangeLocalServiceInstance 通知本地服务目录实例变化
	ChangeLocalServiceInstance(inst types.ServiceInstance)

	// RemoveLocalServiceInstance 通知本地服务目录移除实例
	RemoveLocalServiceInstance(serviceName, instanceName string)
}

// ============================================================================
//                              Base
// ============================================================================

// Base agent 的公共部分，提供默认的空实现
type Base struct {
	host         Host
	id           ID
	hostFullName string
}

// NewBase 创建 Base 并分配 ID
func NewBase(host Host) Base {
	return Base{host: host, id: lastID.Add(1)}
}

// ID 返回 agent 标识
func (b *Base) ID() ID { return b.id }

// Start 记录本机主机全名
func (b *Base) Start(hostFullName string) { b.hostFullName = hostFullName }

// ReceiveQuestion 默认忽略
func (b *Base) ReceiveQuestion(dns.Question, types.ReplyAddress, types.ReplyAddress) {}

// ReceiveResource 默认忽略
func (b *Base) ReceiveResource(dns.RR, types.Section) {}

// EndOfMessage 默认忽略
func (b *Base) EndOfMessage() {}

// Quit 默认直接移除自己
func (b *Base) Quit() { b.RemoveSelf("") }

// HostFullName 返回启动时的本机主机全名
func (b *Base) HostFullName() string { return b.hostFullName }

// Now 返回当前时间
func (b *Base) Now() time.Time { return b.host.Now() }

// PostTaskForTime 提交属于自己的定时任务
func (b *Base) PostTaskForTime(fn func(), at time.Time) {
	b.host.PostTaskForTime(b.id, fn, at)
}

// RemoveSelf 从引擎移除自己
func (b *Base) RemoveSelf(publishedName string) {
	b.host.RemoveAgent(b.id, publishedName)
}
