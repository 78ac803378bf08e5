package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// 业务错误代码
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeRestoreRejected ErrorCode = "RESTORE_REJECTED"

	// 基础设施错误代码
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
)

// IError 错误接口
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string

	// WithContext 返回附带一个详情键值的新错误
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

func newAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{code: code, message: message, cause: cause, stack: captureStack()}
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return newAppError(code, message, nil)
}

// Errorf 以格式化消息创建错误
func Errorf(code ErrorCode, format string, args ...any) IError {
	return newAppError(code, fmt.Sprintf(format, args...), nil)
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return newAppError(code, message, err)
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode {
	return e.code
}

func (e *AppError) Message() string {
	return e.message
}

func (e *AppError) Cause() error {
	return e.cause
}

// Details 只读视图，无详情时为空 map
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		return map[string]any{}
	}
	return e.details
}

func (e *AppError) Stack() string {
	return e.stack
}

// Is 同码的 AppError 视为相等，其余交给 cause 判断
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}

	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}

	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithContext 复制详情后追加，原错误不变
func (e *AppError) WithContext(key string, value any) IError {
	cp := *e
	cp.details = maps.Clone(e.details)
	if cp.details == nil {
		cp.details = make(map[string]any, 1)
	}
	cp.details[key] = value
	return &cp
}

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// IsErrorCode 检查错误链上是否存在指定错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stdErrors.As(err, &appErr) {
			return false
		}
		if appErr.code == code {
			return true
		}
		err = appErr.cause
	}
	return false
}

// GetErrorCode 获取最外层的错误代码，非 AppError 视为内部错误
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}

	return ErrCodeInternal
}

// HTTPStatus 把错误代码映射为 HTTP 状态码
func HTTPStatus(err error) int {
	switch GetErrorCode(err) {
	case "":
		return http.StatusOK
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeRestoreRejected:
		return http.StatusUnprocessableEntity
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// captureStack 跳过构造函数自身，记录调用方起最多 32 帧
func captureStack() string {
	var pcs [32]uintptr
	frames := runtime.CallersFrames(pcs[:runtime.Callers(4, pcs[:])])

	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", f.File, f.Line, f.Function)
		if !more {
			return b.String()
		}
	}
}
