// Package interfaces 定义 mdnsd 协作方接口
//
// 本文件定义 Metrics 接口，引擎通过它上报运行指标。
package interfaces

// Metrics 引擎指标接口
//
// 实现位于 internal/core/metrics（Prometheus）。
type Metrics interface {
	// MessageReceived 收到一条入站消息
	MessageReceived()

	// MessageSent 发出一条出站消息
	MessageSent(multicast bool)

	// QuestionDelivered 一个问题完成分发
	QuestionDelivered()

	// ResourceDelivered 一条资源记录完成分发（section 为段名）
	ResourceDelivered(section string)

	// ProbeConflict 探测发现冲突（kind 为 "host" 或 "instance"）
	ProbeConflict(kind string)

	// RenewRequested 一条记录被请求续期
	RenewRequested()

	// Expiration 记录过期
	Expiration()

	// AgentsRegistered 当前已注册 agent 数量
	AgentsRegistered(n int)
}

// NoopMetrics 不记录任何指标
type NoopMetrics struct{}

func (NoopMetrics) MessageReceived()         {}
func (NoopMetrics) MessageSent(bool)         {}
func (NoopMetrics) QuestionDelivered()       {}
func (NoopMetrics) ResourceDelivered(string) {}
func (NoopMetrics) ProbeConflict(string)     {}
func (NoopMetrics) RenewRequested()          {}
func (NoopMetrics) Expiration()              {}
func (NoopMetrics) AgentsRegistered(int)     {}

var _ Metrics = NoopMetrics{}
