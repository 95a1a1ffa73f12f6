package errorutil

import (
	"errors"
	"fmt"
)

// Class 错误类别
type Class string

const (
	// ClassConfig 配置错误：启动前拒绝
	ClassConfig Class = "CONFIG"
	// ClassInvariant 不变量被破坏：程序缺陷，立即终止本次运行
	ClassInvariant Class = "INVARIANT"
	// ClassTransient 临时故障：网络抖动、下游不可用等，可重试
	ClassTransient Class = "TRANSIENT"
	// ClassInternal 其他错误
	ClassInternal Class = "INTERNAL"
)

// Error 错误结构（包含类别与可重试标记）
type Error struct {
	Code       int    `json:"code"`
	Class      Class  `json:"class"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	DevDetails string `json:"dev_details,omitempty"`
	cause      error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.cause
}

// Config 配置错误（不可重试）
func Config(format string, args ...interface{}) *Error {
	return &Error{
		Code:    400,
		Class:   ClassConfig,
		Message: fmt.Sprintf(format, args...),
	}
}

// Invariant 不变量错误（不可重试，致命）
func Invariant(cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    500,
		Class:   ClassInvariant,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// Transient 可重试错误
func Transient(cause error, message string) *Error {
	e := &Error{
		Code:      503,
		Class:     ClassTransient,
		Message:   message,
		Retryable: true,
		cause:     cause,
	}
	if cause != nil {
		e.DevDetails = fmt.Sprintf("%+v", cause)
	}
	return e
}

// Wrap 包装错误（已是 *Error 时原样返回，否则视为不可重试的内部错误）
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Code:       500,
		Class:      ClassInternal,
		Message:    err.Error(),
		DevDetails: fmt.Sprintf("%+v", err),
		cause:      err,
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// ClassOf 返回错误类别，nil 返回空串
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	return Wrap(err).Class
}
