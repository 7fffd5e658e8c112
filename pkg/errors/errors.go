// Package errors 提供统一错误辅助与错误分类哨兵，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 错误分类哨兵：调用方用 errors.Is 决定处理策略
var (
	// ErrSessionInvalid 会话句柄已失效（传输层报 session 不存在/连接已释放等）
	ErrSessionInvalid = errors.New("session invalid")
	// ErrTimeout 有界等待超时；不自动重试，避免重复副作用请求
	ErrTimeout = errors.New("request timeout")
	// ErrRewriteService 叙事改写服务不可用或调用失败
	ErrRewriteService = errors.New("rewrite service unavailable")
	// ErrFileIO 记忆文件读写失败
	ErrFileIO = errors.New("file io failure")
)

// Is 透传 errors.Is，调用方无需同时导入标准库 errors
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
