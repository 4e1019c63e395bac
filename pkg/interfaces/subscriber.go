package interfaces

import "github.com/dep2p/go-mdnsd/pkg/types"

// Subscriber 服务订阅方
//
// 回调在引擎的事件循环上执行，不应阻塞。
type Subscriber interface {
	// InstanceDiscovered 发现新实例（已解析出目标主机地址）
	InstanceDiscovered(inst types.ServiceInstance)

	// InstanceChanged 实例的端口、文本或地址发生变化
	InstanceChanged(inst types.ServiceInstance)

	// InstanceLost 实例消失
	InstanceLost(serviceName, instanceName string)
}
