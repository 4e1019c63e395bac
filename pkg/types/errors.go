package types

import "errors"

// ============================================================================
//                              名称相关错误
// ============================================================================

var (
	// ErrInvalidHostName 无效主机名
	ErrInvalidHostName = errors.New("invalid host name")

	// ErrInvalidServiceName 无效服务名
	ErrInvalidServiceName = errors.New("invalid service name")

	// ErrInvalidInstanceName 无效实例名
	ErrInvalidInstanceName = errors.New("invalid instance name")

	// ErrInvalidSubtype 无效子类型
	ErrInvalidSubtype = errors.New("invalid subtype")
)
