package engine

import (
	"slices"

	"github.com/google/uuid"
)

// PublicationHandle 本地发布的服务实例句柄
//
// 句柄只转发调用：对应的 agent 已不存在时所有方法都是空操作。
type PublicationHandle struct {
	e   *Engine
	pub *publication

	// ID 句柄标识，用于日志
	ID string
}

func newPublicationHandle(e *Engine, pub *publication) *PublicationHandle {
	return &PublicationHandle{e: e, pub: pub, ID: uuid.NewString()}
}

// ServiceName 返回服务名
func (h *PublicationHandle) ServiceName() string { return h.pub.serviceName }

// InstanceName 返回实例名
func (h *PublicationHandle) InstanceName() string { return h.pub.instanceName }

// Reannounce 从最小间隔重新通告，发布内容变化后调用
func (h *PublicationHandle) Reannounce() {
	h.forward(func(pub *publication) {
		if pub.responder != nil {
			pub.responder.Reannounce()
		}
	})
}

// SetSubtypes 替换子类型
//
// 探测期间调用时，新的子类型在发布开始时生效。
func (h *PublicationHandle) SetSubtypes(subtypes []string) {
	subtypes = slices.Clone(subtypes)
	h.forward(func(pub *publication) {
		pub.subtypes = subtypes
		if pub.responder != nil {
			pub.responder.SetSubtypes(subtypes)
		}
	})
}

// Unpublish 撤销发布，已在发布的实例多播 goodbye；可重复调用
func (h *PublicationHandle) Unpublish() {
	log.Debug("撤销发布", "handle", h.ID, "instance", h.pub.instanceName)
	h.forward(h.e.unpublish)
}

// forward 在事件循环上调用 fn，发布已被移除时跳过
func (h *PublicationHandle) forward(fn func(pub *publication)) {
	if h.e.Closed() {
		return
	}
	h.e.post(func() {
		if h.e.publications[h.pub.key] != h.pub {
			return
		}
		fn(h.pub)
	})
}

// SubscriptionHandle 服务订阅句柄
type SubscriptionHandle struct {
	e           *Engine
	serviceName string
	id          uint64

	// ID 句柄标识，用于日志
	ID string
}

func newSubscriptionHandle(e *Engine, serviceName string, id uint64) *SubscriptionHandle {
	return &SubscriptionHandle{e: e, serviceName: serviceName, id: id, ID: uuid.NewString()}
}

// ServiceName 返回订阅的服务名
func (h *SubscriptionHandle) ServiceName() string { return h.serviceName }

// Unsubscribe 取消订阅；可重复调用
func (h *SubscriptionHandle) Unsubscribe() {
	if h.e.Closed() {
		return
	}
	log.Debug("取消订阅", "handle", h.ID, "service", h.serviceName)
	h.e.post(func() {
		h.e.unsubscribe(h.serviceName, h.id)
	})
}
