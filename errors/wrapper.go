package errors

import (
	"context"
	"fmt"
	"runtime"

	"snaptrail/logging"
)

// WrapWithLog 包装错误并记录警告日志
// 建议：用于需要立即记录的错误场景
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)

	wrapped := WrapError(err, code, msg)

	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)

	logging.GetLogger().Warn(ctx, msg, allFields...)

	return wrapped
}

// WrapDatabaseError 包装数据库错误
// sql.ErrNoRows 归为 NOT_FOUND，其余归为 DATABASE_ERROR 并记录日志
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	normalized := Normalize(err)
	if IsNotFound(normalized) {
		return WrapError(err, ErrCodeNotFound, operation)
	}

	return WrapWithLog(ctx, err, ErrCodeDatabase,
		fmt.Sprintf("数据库操作失败: %s", operation),
		logging.String("operation", operation),
	)
}

// NewValidationError 创建新的验证错误
func NewValidationError(msg string) error {
	return NewError(ErrCodeValidation, msg)
}

// NewNotFoundError 创建新的未找到错误
func NewNotFoundError(msg string) error {
	return NewError(ErrCodeNotFound, msg)
}
