package domain

import (
	"errors"
	"fmt"
	"time"
)

// 哨兵错误。
var (
	// ErrNotConnected 表示尚未与邮件存储建立会话。
	ErrNotConnected = errors.New("mail store not connected")

	// ErrSharedNotConfigured 表示共享邮箱地址未配置。
	// 属于配置空缺而非故障：共享范围被静默跳过，只反映在
	// AccessStatus 的 sharedConfigured/sharedAccessible 标志上。
	ErrSharedNotConfigured = errors.New("shared mailbox not configured")
)

// ConnectionError 重试耗尽后仍无法连接邮件存储。
//
// 发生在任何范围搜索开始之前时对整个调用致命，
// 否则仅对受影响的范围致命。
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mail store connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QuerySyntaxError 某一层级的过滤表达式被存储拒绝。
// 仅影响该层级，后续层级继续尝试。
type QuerySyntaxError struct {
	Filter string
	Err    error
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("filter rejected by store: %q: %v", e.Filter, e.Err)
}

func (e *QuerySyntaxError) Unwrap() error { return e.Err }

// TimeoutError 异步内容索引搜索超出轮询预算。
// 仅影响该层级，回退层级继续尝试。
type TimeoutError struct {
	Phase   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Phase, e.Timeout)
}

// ExtractionError 单个候选项的属性读取失败。
// 仅跳过该候选项，从不中断整批处理。
type ExtractionError struct {
	Property string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to read property %q: %v", e.Property, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ScopeError 标注发生错误的邮箱范围，用于向调用方报告上下文。
type ScopeError struct {
	Scope MailboxScope
	Err   error
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s mailbox error: %v", e.Scope, e.Err)
}

func (e *ScopeError) Unwrap() error { return e.Err }
