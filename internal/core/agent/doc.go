// Package agent 实现 mDNS 协议行为单元
//
// 每个 agent 实现一种协议行为，通过 Host 接口与引擎交互：
//
//   - Renewer            资源记录续期与过期通知
//   - AddressResponder   应答本机主机名的地址查询
//   - AddressProber      主机名冲突探测
//   - HostNameResolver   主机名解析
//   - InstanceProber     服务实例名冲突探测
//   - InstanceResponder  服务实例发布（通告、应答、节流、goodbye）
//   - InstanceRequestor  服务实例订阅（查询、跟踪、回调）
//
// 所有 agent 的方法都在引擎的事件循环上调用，agent 之间不直接引用。
// agent 通过 Host.RemoveAgent 移除自己，移除时其所有未执行的定时任务被取消。
package agent
