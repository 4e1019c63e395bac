package interfaces

import (
	"net/netip"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// Publisher 服务发布方
//
// 由发布服务实例的应用提供。引擎在通告或应答查询时向它获取当前发布内容。
// 所有方法都在引擎的事件循环上调用，不应阻塞。
type Publisher interface {
	// GetPublication 返回当前发布内容
	//
	// cause 说明获取原因，subtype 为查询的子类型（空表示服务本身），
	// senders 为触发本次发送的请求方地址（通告时为空）。
	// 返回 nil 表示本次不应答。
	GetPublication(cause types.PublicationCause, subtype string, senders []netip.AddrPort) *types.Publication

	// ReportSuccess 报告实例名探测结果
	ReportSuccess(success bool)
}

// PublisherFunc 以函数实现 Publisher，探测结果被忽略
type PublisherFunc func(cause types.PublicationCause, subtype string, senders []netip.AddrPort) *types.Publication

// GetPublication 实现 Publisher
func (f PublisherFunc) GetPublication(cause types.PublicationCause, subtype string, senders []netip.AddrPort) *types.Publication {
	return f(cause, subtype, senders)
}

// ReportSuccess 实现 Publisher
func (f PublisherFunc) ReportSuccess(bool) {}
