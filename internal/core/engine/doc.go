// Package engine 实现 mDNS 引擎协调器
//
// Engine 持有所有 agent、定时任务队列与出站消息累积器，
// 在单个事件循环 goroutine 上完成全部协议处理：
//
//   - 入站消息：问题分发给除 Renewer 外的所有 agent；资源记录先交给 Renewer，
//     再交给其余 agent；最后通知 EndOfMessage 并发送累积的出站消息
//   - 定时任务：按时间顺序执行，一批执行完后发送累积的出站消息
//   - 出站消息：按 ReplyAddress 合并为一条消息
//
// # 状态
//
//	NotStarted ─Start─▶ WaitingForInterfaces ─有接口─▶ AddressProbeInProgress ─探测成功─▶ Active
//	                                                      ▲            │
//	                                                      └──冲突改名──┘
//
// Active 之前发起的发布、订阅与解析排队等待，进入 Active 后统一启动。
//
// # 并发
//
// 公共方法可在任意 goroutine 调用，它们把操作投递到事件循环。
// Publisher 与 Subscriber 的回调都在事件循环上执行，不应阻塞。
package engine
