// Package interfaces 定义 mdnsd 的协作方接口
//
// 引擎核心只通过这些接口与外部交互：
//
//   - transport.go  - Transport 传输层（解析后的消息进出）
//   - netif.go      - InterfaceWatcher 网络接口枚举与变化通知
//   - publisher.go  - Publisher 应用提供的服务发布内容
//   - subscriber.go - Subscriber 服务实例订阅回调
//   - directory.go  - ServiceDirectory 本地服务目录
//   - metrics.go    - Metrics 引擎指标
//
// 实现位置：
//
//   - Transport        → internal/core/transport
//   - InterfaceWatcher → internal/core/netif
//   - ServiceDirectory → internal/core/directory
//   - Metrics          → internal/core/metrics
//
// Publisher 与 Subscriber 由应用提供。
package interfaces
