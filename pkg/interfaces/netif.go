package interfaces

import (
	"context"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// InterfaceWatcher 网络接口监视器
//
// 启动后立即枚举一次接口，之后在接口集合变化时通过 Changes 通知。
type InterfaceWatcher interface {
	// Start 开始监视
	Start(ctx context.Context) error

	// Stop 停止监视，关闭 Changes 通道
	Stop() error

	// Interfaces 返回当前可用的接口（已按启用规则过滤）
	Interfaces() []types.Interface

	// Changes 返回接口集合变化通道，每次发送完整的新集合
	Changes() <-chan []types.Interface
}
