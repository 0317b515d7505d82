// Package memstore 提供内存版邮件存储。
//
// 既是开发模式下的缺省后端，也是搜索层级策略的测试替身。
// 支持注入连接失败、过滤语法拒绝、慢速内容索引等故障来验证
// 错误恢复路径。
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore"
)

// Message 一封种子邮件。
type Message struct {
	EntryID         string
	Subject         string
	SenderName      string
	SenderEmail     string
	Recipients      []string
	ReceivedAt      time.Time
	Body            string
	Size            int
	Importance      int
	Unread          bool
	AttachmentCount int

	// AbsentProps 模拟属性缺失（读取返回 nil）。
	AbsentProps map[string]bool

	// PropErrs 模拟属性读取故障。
	PropErrs map[string]error
}

// Store 内存邮件存储。实现 mailstore.Store。
type Store struct {
	mu sync.Mutex

	// 个人邮箱与按地址索引的共享邮箱，folder 名 -> 邮件列表。
	personal map[string][]*Message
	shared   map[string]map[string][]*Message

	personalName string
	connected    bool

	// 故障注入。
	FailConnects        int           // 前 N 次 Connect 失败
	ResolveErr          error         // ResolveRecipient 故障
	RejectTextFilters   bool          // 拒绝 @SQL 文本过滤（层级 1-2 失效）
	RejectDateFilters   bool          // 拒绝日期过滤（层级 4 失效）
	AdvancedSearchErr   error         // AdvancedSearch 发起即失败
	AdvancedSearchDelay time.Duration // 内容索引完成延迟

	// 调用计数，供缓存幂等性等测试断言。
	ConnectCalls        int
	RestrictCalls       int
	AdvancedSearchCalls int
}

// NewStore 创建空的内存存储。
func NewStore() *Store {
	return &Store{
		personal:     map[string][]*Message{},
		shared:       map[string]map[string][]*Message{},
		personalName: "Personal Mailbox",
	}
}

// AddPersonal 向个人邮箱的文件夹追加邮件。
func (s *Store) AddPersonal(folder string, msgs ...*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personal[folder] = append(s.personal[folder], msgs...)
}

// AddShared 向共享邮箱的文件夹追加邮件。
func (s *Store) AddShared(address, folder string, msgs ...*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared[address] == nil {
		s.shared[address] = map[string][]*Message{}
	}
	s.shared[address][folder] = append(s.shared[address][folder], msgs...)
}

// Connect 实现 mailstore.Store。
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConnectCalls++
	if s.FailConnects > 0 {
		s.FailConnects--
		return fmt.Errorf("simulated connect failure")
	}
	s.connected = true
	return nil
}

// Connected 实现 mailstore.Store。
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close 实现 mailstore.Store。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// ResolveRecipient 实现 mailstore.Store。
// 地址在共享邮箱表中存在即视为解析成功。
func (s *Store) ResolveRecipient(ctx context.Context, email string) (mailstore.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, domain.ErrNotConnected
	}
	if s.ResolveErr != nil {
		return nil, s.ResolveErr
	}
	_, ok := s.shared[email]
	return &recipient{address: email, resolved: ok}, nil
}

// DefaultFolder 实现 mailstore.Store。
func (s *Store) DefaultFolder(ctx context.Context, r mailstore.Recipient) (mailstore.Folder, error) {
	return s.folder(r, "Inbox", true)
}

// FolderByName 实现 mailstore.Store。
func (s *Store) FolderByName(ctx context.Context, r mailstore.Recipient, name string) (mailstore.Folder, error) {
	return s.folder(r, name, false)
}

func (s *Store) folder(r mailstore.Recipient, name string, required bool) (mailstore.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, domain.ErrNotConnected
	}

	storeName := s.personalName
	folders := s.personal
	if r != nil {
		if !r.Resolved() {
			return nil, fmt.Errorf("recipient %q not resolved", r.Address())
		}
		storeName = r.Address()
		folders = s.shared[r.Address()]
	}

	msgs, ok := folders[name]
	if !ok {
		if required {
			// 收件箱总是存在，只是可能为空。
			msgs = nil
		} else {
			return nil, nil
		}
	}
	return &folder{store: s, name: name, storeName: storeName, msgs: msgs}, nil
}

// AdvancedSearch 实现 mailstore.Store。
// 以 folderPath（storeName/folder）定位文件夹，按延迟模拟异步完成。
func (s *Store) AdvancedSearch(ctx context.Context, folderPath, searchText string) (mailstore.SearchHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AdvancedSearchCalls++
	if !s.connected {
		return nil, domain.ErrNotConnected
	}
	if s.AdvancedSearchErr != nil {
		return nil, s.AdvancedSearchErr
	}

	var msgs []*Message
	needle := strings.ToLower(searchText)
	for _, m := range s.lookupPath(folderPath) {
		if strings.Contains(strings.ToLower(m.Subject), needle) ||
			strings.Contains(strings.ToLower(m.Body), needle) {
			msgs = append(msgs, m)
		}
	}
	return &searchHandle{readyAt: time.Now().Add(s.AdvancedSearchDelay), msgs: msgs}, nil
}

func (s *Store) lookupPath(folderPath string) []*Message {
	parts := strings.SplitN(folderPath, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	if parts[0] == s.personalName {
		return s.personal[parts[1]]
	}
	if shared, ok := s.shared[parts[0]]; ok {
		return shared[parts[1]]
	}
	return nil
}

type recipient struct {
	address  string
	resolved bool
}

func (r *recipient) Address() string { return r.address }
func (r *recipient) Resolved() bool  { return r.resolved }

type folder struct {
	store     *Store
	name      string
	storeName string
	msgs      []*Message
}

func (f *folder) Name() string      { return f.name }
func (f *folder) StoreName() string { return f.storeName }
func (f *folder) Path() string      { return f.storeName + "/" + f.name }

func (f *folder) Items() (mailstore.ItemCollection, error) {
	return newCollection(f.store, f.msgs), nil
}

type collection struct {
	store *Store
	msgs  []*Message
}

// newCollection 按接收时间倒序做快照。
func newCollection(store *Store, msgs []*Message) *collection {
	sorted := make([]*Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReceivedAt.After(sorted[j].ReceivedAt)
	})
	return &collection{store: store, msgs: sorted}
}

// Restrict 实现 mailstore.ItemCollection：解释过滤表达式并求子集。
func (c *collection) Restrict(filterExpr string) (mailstore.ItemCollection, error) {
	var rejectText, rejectDate bool
	if c.store != nil {
		c.store.mu.Lock()
		c.store.RestrictCalls++
		rejectText = c.store.RejectTextFilters
		rejectDate = c.store.RejectDateFilters
		c.store.mu.Unlock()
	}

	f, err := mailstore.ParseFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	if f.Text != "" && rejectText {
		return nil, &domain.QuerySyntaxError{Filter: filterExpr, Err: fmt.Errorf("text filters disabled")}
	}
	if f.Text == "" && rejectDate {
		return nil, &domain.QuerySyntaxError{Filter: filterExpr, Err: fmt.Errorf("date filters disabled")}
	}

	var matched []*Message
	needle := strings.ToLower(f.Text)
	for _, m := range c.msgs {
		if f.Text != "" {
			hit := f.Subject && strings.Contains(strings.ToLower(m.Subject), needle)
			if !hit && f.Body {
				hit = strings.Contains(strings.ToLower(m.Body), needle)
			}
			if !hit {
				continue
			}
		}
		if !f.Since.IsZero() && m.ReceivedAt.Before(f.Since) {
			continue
		}
		if !f.Before.IsZero() && !m.ReceivedAt.Before(f.Before) {
			continue
		}
		matched = append(matched, m)
	}
	return &collection{store: c.store, msgs: matched}, nil
}

func (c *collection) Count() int { return len(c.msgs) }

func (c *collection) Each(fn func(mailstore.Item) bool) error {
	for _, m := range c.msgs {
		if !fn(&item{msg: m}) {
			return nil
		}
	}
	return nil
}

type item struct {
	msg *Message
}

// Property 实现 mailstore.Item。
func (it *item) Property(name string) (any, error) {
	if err, ok := it.msg.PropErrs[name]; ok {
		return nil, err
	}
	if it.msg.AbsentProps[name] {
		return nil, nil
	}
	switch name {
	case mailstore.PropEntryID:
		return it.msg.EntryID, nil
	case mailstore.PropSubject:
		return it.msg.Subject, nil
	case mailstore.PropSenderName:
		return it.msg.SenderName, nil
	case mailstore.PropSenderEmail:
		return it.msg.SenderEmail, nil
	case mailstore.PropReceivedTime:
		return it.msg.ReceivedAt, nil
	case mailstore.PropBody:
		return it.msg.Body, nil
	case mailstore.PropSize:
		return it.msg.Size, nil
	case mailstore.PropImportance:
		return it.msg.Importance, nil
	case mailstore.PropUnread:
		return it.msg.Unread, nil
	case mailstore.PropRecipients:
		return it.msg.Recipients, nil
	case mailstore.PropAttachmentCount:
		return it.msg.AttachmentCount, nil
	default:
		return nil, nil
	}
}

type searchHandle struct {
	readyAt time.Time
	msgs    []*Message
	stopped bool
}

func (h *searchHandle) Done() bool { return !h.stopped && time.Now().After(h.readyAt) }

func (h *searchHandle) Results() (mailstore.ItemCollection, error) {
	if !h.Done() {
		return nil, fmt.Errorf("search not complete")
	}
	return newCollection(nil, h.msgs), nil
}

func (h *searchHandle) Stop() { h.stopped = true }
