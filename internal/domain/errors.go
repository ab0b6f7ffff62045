package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 业务错误类别，传输层根据类别映射 HTTP 状态码
type ErrorKind string

const (
	KindNotFound              ErrorKind = "not_found"
	KindConflict              ErrorKind = "conflict"
	KindForbidden             ErrorKind = "forbidden"
	KindInvalidState          ErrorKind = "invalid_state"
	KindValidationFailed      ErrorKind = "validation_failed"
	KindUpstreamInconsistency ErrorKind = "upstream_inconsistency"
	KindUpstreamFormat        ErrorKind = "upstream_format"
	KindUpstream              ErrorKind = "upstream_error" // 外部服务调用失败或超时
	KindUnauthenticated       ErrorKind = "unauthenticated"
)

// 各类别的哨兵错误，配合 errors.Is 按类别判断
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrInvalidState          = &Error{Kind: KindInvalidState}
	ErrValidationFailed      = &Error{Kind: KindValidationFailed}
	ErrUpstreamInconsistency = &Error{Kind: KindUpstreamInconsistency}
	ErrUpstreamFormat        = &Error{Kind: KindUpstreamFormat}
	ErrUpstream              = &Error{Kind: KindUpstream}
	ErrUnauthenticated       = &Error{Kind: KindUnauthenticated}
)

// Error 带类别的业务错误
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按类别匹配，使 errors.Is(err, ErrConflict) 对任意冲突错误成立
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// NewError 创建业务错误
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError 包装底层错误并标记类别
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string) *Error         { return NewError(KindNotFound, msg) }
func Conflict(msg string) *Error         { return NewError(KindConflict, msg) }
func Forbidden(msg string) *Error        { return NewError(KindForbidden, msg) }
func InvalidState(msg string) *Error     { return NewError(KindInvalidState, msg) }
func ValidationFailed(msg string) *Error { return NewError(KindValidationFailed, msg) }
func Unauthenticated(msg string) *Error  { return NewError(KindUnauthenticated, msg) }

// KindOf 返回错误的类别，非业务错误返回空字符串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf 返回业务错误携带的说明
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ""
}
