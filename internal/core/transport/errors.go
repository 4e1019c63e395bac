package transport

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrNotStarted 传输未启动
	ErrNotStarted = errors.New("transport: not started")

	// ErrAlreadyStarted 传输已启动
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrClosed 传输已关闭
	ErrClosed = errors.New("transport: closed")

	// ErrNoSocket 没有任何可用的套接字
	ErrNoSocket = errors.New("transport: no usable socket")

	// ErrFamilyUnavailable 目的地址族没有可用套接字
	ErrFamilyUnavailable = errors.New("transport: address family unavailable")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("transport: invalid config")
)

// TransportError 传输错误
type TransportError struct {
	Op      string // 操作名称
	Err     error  // 原始错误
	Message string // 错误信息
}

// Error 实现 error 接口
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError 创建传输错误
func NewTransportError(op string, err error, message string) *TransportError {
	return &TransportError{Op: op, Err: err, Message: message}
}
