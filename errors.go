package mdnsd

import (
	"errors"
	"fmt"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 守护进程未启动
	ErrNotStarted = errors.New("mdnsd: not started")

	// ErrAlreadyStarted 守护进程已启动
	ErrAlreadyStarted = errors.New("mdnsd: already started")

	// ErrDaemonClosed 守护进程已关闭
	ErrDaemonClosed = errors.New("mdnsd: closed")

	// ────────────────────────────────────────────────────────────────────────
	// 发布与解析错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrDuplicatePublication 同一实例已在本地发布
	ErrDuplicatePublication = errors.New("mdnsd: instance already published")

	// ErrInvalidName 主机名、服务名、实例名或子类型不合法
	ErrInvalidName = errors.New("mdnsd: invalid name")

	// ErrResolveTimeout 主机名解析超时
	ErrResolveTimeout = errors.New("mdnsd: resolve timed out")

	// ErrNameConflict 实例名探测发现冲突
	ErrNameConflict = errors.New("mdnsd: name conflict")

	// ErrNoInterfaces 没有可用接口，引擎无法就绪
	ErrNoInterfaces = errors.New("mdnsd: no usable interfaces")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("mdnsd: invalid config")
)

// DaemonError 守护进程操作错误
type DaemonError struct {
	Op      string // 操作名称
	Err     error  // 原始错误
	Message string // 错误信息
}

// Error 实现 error 接口
func (e *DaemonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mdnsd: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("mdnsd: %s: %s", e.Op, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *DaemonError) Unwrap() error {
	return e.Err
}

func newDaemonError(op string, err error, message string) *DaemonError {
	return &DaemonError{Op: op, Err: err, Message: message}
}
