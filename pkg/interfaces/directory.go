package interfaces

import "github.com/dep2p/go-mdnsd/pkg/types"

// ServiceDirectory 本地服务目录
//
// 记录本机发布的服务实例，使本地进程的查找与线上通告保持一致。
// 对引擎而言是纯观察者。
type ServiceDirectory interface {
	// AddInstance 新增本地实例
	AddInstance(inst types.ServiceInstance)

	// ChangeInstance 本地实例的端口、优先级、权重或文本发生变化
	ChangeInstance(inst types.ServiceInstance)

	// RemoveInstance 移除本地实例
	RemoveInstance(serviceName, instanceName string)
}
