package engine

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrNotStarted 引擎未启动
	ErrNotStarted = errors.New("engine: not started")

	// ErrAlreadyStarted 引擎已启动
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrEngineClosed 引擎已关闭
	ErrEngineClosed = errors.New("engine: closed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("engine: invalid config")

	// ErrNilTransport Transport 为 nil
	ErrNilTransport = errors.New("engine: transport is nil")
)

// EngineError 自定义错误类型
type EngineError struct {
	Op      string // 操作名称
	Err     error  // 原始错误
	Message string // 错误信息
}

// Error 实现 error 接口
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("engine: %s: %s", e.Op, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError 创建自定义错误
func NewEngineError(op string, err error, message string) *EngineError {
	return &EngineError{
		Op:      op,
		Err:     err,
		Message: message,
	}
}
