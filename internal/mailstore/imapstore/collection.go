package imapstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/emersion/go-imap/v2"

	"mailsearch/backend/internal/mailstore"
)

// collection 某邮箱在给定 SEARCH 条件下的候选项集合。
// UID 列表在首次 Count/Each 时物化，之后复用。
type collection struct {
	store    *Store
	mailbox  string
	criteria *imap.SearchCriteria

	once sync.Once
	uids []imap.UID
	err  error
}

// Restrict 实现 mailstore.ItemCollection。
// 把 DASL 风格表达式翻译为 IMAP SEARCH 条件并叠加到当前集合。
func (c *collection) Restrict(filterExpr string) (mailstore.ItemCollection, error) {
	f, err := mailstore.ParseFilter(filterExpr)
	if err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{}
	if f.Text != "" {
		subject := imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: f.Text}},
		}
		if f.Body {
			// 主题 OR 正文：TEXT 已覆盖头部与正文。
			criteria.Or = append(criteria.Or, [2]imap.SearchCriteria{
				subject,
				{Text: []string{f.Text}},
			})
		} else {
			criteria.Header = subject.Header
		}
	}
	criteria.Since = f.Since
	criteria.Before = f.Before

	// 叠加已有条件（Restrict 链式调用时）。
	if prev := c.criteria; prev != nil {
		criteria.Header = append(criteria.Header, prev.Header...)
		criteria.Or = append(criteria.Or, prev.Or...)
		criteria.Text = append(criteria.Text, prev.Text...)
		if criteria.Since.IsZero() || (!prev.Since.IsZero() && prev.Since.After(criteria.Since)) {
			criteria.Since = prev.Since
		}
		if criteria.Before.IsZero() || (!prev.Before.IsZero() && prev.Before.Before(criteria.Before)) {
			criteria.Before = prev.Before
		}
	}
	return &collection{store: c.store, mailbox: c.mailbox, criteria: criteria}, nil
}

func (c *collection) materialize() ([]imap.UID, error) {
	c.once.Do(func() {
		criteria := c.criteria
		if criteria == nil {
			criteria = &imap.SearchCriteria{}
		}
		c.uids, c.err = c.store.searchMailbox(c.mailbox, criteria)
	})
	return c.uids, c.err
}

// Count 实现 mailstore.ItemCollection。
func (c *collection) Count() int {
	uids, err := c.materialize()
	if err != nil {
		return 0
	}
	return len(uids)
}

// Each 实现 mailstore.ItemCollection。按 UID 倒序分批 FETCH。
func (c *collection) Each(fn func(mailstore.Item) bool) error {
	uids, err := c.materialize()
	if err != nil {
		return err
	}

	batch := c.store.opts.BatchSize
	for start := 0; start < len(uids); start += batch {
		end := start + batch
		if end > len(uids) {
			end = len(uids)
		}
		items, err := c.store.fetchBatch(c.mailbox, uids[start:end])
		if err != nil {
			return err
		}
		for _, it := range items {
			if !fn(it) {
				return nil
			}
		}
	}
	return nil
}

// searchHandle 后台 UID SEARCH 的轮询句柄。
type searchHandle struct {
	store   *Store
	mailbox string

	done chan struct{}

	mu      sync.Mutex
	uids    []imap.UID
	err     error
	stopped bool
}

// run 在后台执行搜索并记录结果。
//
// 发出命令前检查上下文取消与 Stop。SELECT 与 UID SEARCH 一旦发出
// 便不可中断，会话在此窗口内保持占用，Stop 只能阻止尚未开始的命令。
func (h *searchHandle) run(ctx context.Context, search func() ([]imap.UID, error)) {
	defer close(h.done)

	if err := ctx.Err(); err != nil {
		h.setResult(nil, err)
		return
	}
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		h.setResult(nil, fmt.Errorf("search stopped before command was issued"))
		return
	}

	uids, err := search()
	h.setResult(uids, err)
}

func (h *searchHandle) setResult(uids []imap.UID, err error) {
	h.mu.Lock()
	h.uids, h.err = uids, err
	h.mu.Unlock()
}

// Done 实现 mailstore.SearchHandle。
func (h *searchHandle) Done() bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return false
	}
	h.mu.Unlock()

	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Results 实现 mailstore.SearchHandle。
func (h *searchHandle) Results() (mailstore.ItemCollection, error) {
	select {
	case <-h.done:
	default:
		return nil, fmt.Errorf("search not complete")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	col := &collection{store: h.store, mailbox: h.mailbox}
	col.once.Do(func() {})
	col.uids = h.uids
	return col, nil
}

// Stop 实现 mailstore.SearchHandle。
func (h *searchHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}
