// Package mailstore 定义邮件存储协作方的能力接口。
//
// 搜索编排器只通过这组接口访问外部邮件存储：建立会话、解析共享
// 收件人、枚举文件夹、执行索引过滤（Restrict）与异步内容索引搜索
// （AdvancedSearch）、读取单项属性。五种查询方式全部落在接口调用
// 上，使各层级策略可以针对 memstore 假实现进行测试。
package mailstore

import (
	"context"
	"time"

	"mailsearch/backend/internal/domain"
)

// 候选项的标准属性名。Property 以这些名字读取。
const (
	PropEntryID         = "EntryID"
	PropSubject         = "Subject"
	PropSenderName      = "SenderName"
	PropSenderEmail     = "SenderEmailAddress"
	PropReceivedTime    = "ReceivedTime"
	PropBody            = "Body"
	PropSize            = "Size"
	PropImportance      = "Importance"
	PropUnread          = "Unread"
	PropRecipients      = "Recipients"
	PropAttachmentCount = "AttachmentCount"
)

// Store 一条到邮件存储的会话。
//
// 实现不保证可被多个执行单元并发调用：并行的范围搜索器各自持有
// 独立的 Store 会话（见 connection.Manager）。
type Store interface {
	// Connect 建立会话。失败可重复调用，每次尝试相互独立。
	Connect(ctx context.Context) error

	// Connected 报告会话当前是否可用。
	Connected() bool

	// Close 关闭会话。
	Close() error

	// ResolveRecipient 解析共享邮箱地址为收件人句柄。
	ResolveRecipient(ctx context.Context, email string) (Recipient, error)

	// DefaultFolder 返回收件箱。recipient 为 nil 时返回个人收件箱，
	// 否则返回该共享收件人的收件箱。
	DefaultFolder(ctx context.Context, recipient Recipient) (Folder, error)

	// FolderByName 按名字查找同一邮箱下的其他文件夹（如 Sent Items）。
	// 未找到时返回 nil Folder 而非错误。
	FolderByName(ctx context.Context, recipient Recipient, name string) (Folder, error)

	// AdvancedSearch 对文件夹路径发起非阻塞的全文内容索引查询，
	// 返回可轮询的句柄。
	AdvancedSearch(ctx context.Context, folderPath, searchText string) (SearchHandle, error)
}

// Recipient 已解析的共享邮箱收件人。
type Recipient interface {
	Address() string
	Resolved() bool
}

// Folder 邮箱中的一个文件夹。
type Folder interface {
	Name() string

	// Path 文件夹的完整路径，供 AdvancedSearch 定位。
	Path() string

	// StoreName 所属邮箱存储的显示名。
	StoreName() string

	// Items 返回文件夹内的候选项集合。
	Items() (ItemCollection, error)
}

// ItemCollection 按接收时间倒序排列的候选项集合。
type ItemCollection interface {
	// Restrict 应用 DASL 风格过滤表达式，返回匹配子集。
	// 表达式无法被存储解释时返回 *domain.QuerySyntaxError。
	Restrict(filterExpr string) (ItemCollection, error)

	Count() int

	// Each 按新到旧遍历候选项。fn 返回 false 时停止。
	Each(fn func(Item) bool) error
}

// Item 外部存储内一封邮件的不透明句柄，仅在产生它的调用内有效。
type Item interface {
	// Property 读取命名属性。属性不存在时返回 (nil, nil)，
	// 由调用方套用安全默认值；读取故障返回非 nil 错误。
	Property(name string) (any, error)
}

// SearchHandle 异步内容索引搜索的轮询句柄。
type SearchHandle interface {
	// Done 报告搜索是否已完成。
	Done() bool

	// Results 返回已完成搜索的结果集合。
	Results() (ItemCollection, error)

	// Stop 放弃搜索，超时后由调用方触发。
	Stop()
}

// StringProp 读取字符串属性，缺失时返回默认值。
func StringProp(it Item, name, def string) (string, error) {
	v, err := it.Property(name)
	if err != nil {
		return def, &domain.ExtractionError{Property: name, Err: err}
	}
	if v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, nil
	}
	return s, nil
}

// IntProp 读取整型属性，缺失时返回默认值。
func IntProp(it Item, name string, def int) (int, error) {
	v, err := it.Property(name)
	if err != nil {
		return def, &domain.ExtractionError{Property: name, Err: err}
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return def, nil
	}
}

// BoolProp 读取布尔属性，缺失时返回默认值。
func BoolProp(it Item, name string, def bool) (bool, error) {
	v, err := it.Property(name)
	if err != nil {
		return def, &domain.ExtractionError{Property: name, Err: err}
	}
	b, ok := v.(bool)
	if !ok {
		return def, nil
	}
	return b, nil
}

// TimeProp 读取时间属性，缺失时返回默认值。
func TimeProp(it Item, name string, def time.Time) (time.Time, error) {
	v, err := it.Property(name)
	if err != nil {
		return def, &domain.ExtractionError{Property: name, Err: err}
	}
	t, ok := v.(time.Time)
	if !ok {
		return def, nil
	}
	return t, nil
}

// StringsProp 读取字符串列表属性，缺失时返回 nil。
func StringsProp(it Item, name string) ([]string, error) {
	v, err := it.Property(name)
	if err != nil {
		return nil, &domain.ExtractionError{Property: name, Err: err}
	}
	ss, ok := v.([]string)
	if !ok {
		return nil, nil
	}
	return ss, nil
}
