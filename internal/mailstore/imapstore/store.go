// Package imapstore 通过 IMAP 实现 mailstore 能力接口。
//
// 主题/正文过滤映射为 SEARCH HEADER/TEXT 条件，日期窗口映射为
// SINCE/BEFORE，异步内容索引搜索在后台 goroutine 中执行 UID SEARCH
// 并通过句柄轮询。共享邮箱映射为配置的命名空间前缀下的文件夹树。
package imapstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"go.uber.org/zap"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore"
)

// Options IMAP 连接参数。
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool

	// ExtendedLogin 使用 SASL PLAIN 认证代替 LOGIN 命令。
	ExtendedLogin bool

	// SharedNamespace 共享邮箱所在的命名空间前缀（如 "Shared"）。
	SharedNamespace string

	// BatchSize 单次 FETCH 的候选项批大小。
	BatchSize int
}

// Store IMAP 会话。实现 mailstore.Store。
type Store struct {
	opts Options
	log  *zap.Logger

	mu          sync.Mutex
	client      *imapclient.Client
	connected   bool
	folderCache map[string]string // 小写文件夹名 -> 邮箱路径
}

// NewStore 创建未连接的 IMAP 存储。
func NewStore(opts Options, log *zap.Logger) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.SharedNamespace == "" {
		opts.SharedNamespace = "Shared"
	}
	return &Store{
		opts:        opts,
		log:         log,
		folderCache: map[string]string{},
	}
}

// Connect 实现 mailstore.Store。
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	var client *imapclient.Client
	var err error
	if s.opts.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("dialing IMAP %s: %w", addr, err)
	}

	if s.opts.ExtendedLogin {
		err = client.Authenticate(sasl.NewPlainClient("", s.opts.Username, s.opts.Password))
	} else {
		err = client.Login(s.opts.Username, s.opts.Password).Wait()
	}
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("authenticating %s: %w", s.opts.Username, err)
	}

	s.client = client
	s.connected = true
	s.folderCache = map[string]string{}
	s.log.Info("IMAP session established",
		zap.String("address", addr),
		zap.Bool("extended_login", s.opts.ExtendedLogin),
	)
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
	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	s.client = nil
	s.connected = false
	return err
}

func (s *Store) session() (*imapclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.client == nil {
		return nil, domain.ErrNotConnected
	}
	return s.client, nil
}

// ResolveRecipient 实现 mailstore.Store。
// IMAP 没有收件人解析协议，以命名空间下是否列得出文件夹为准。
func (s *Store) ResolveRecipient(ctx context.Context, email string) (mailstore.Recipient, error) {
	client, err := s.session()
	if err != nil {
		return nil, err
	}

	prefix := s.opts.SharedNamespace + "/" + email
	boxes, err := client.List("", prefix+"/*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing shared namespace %q: %w", prefix, err)
	}
	return &recipient{address: email, prefix: prefix, resolved: len(boxes) > 0}, nil
}

// DefaultFolder 实现 mailstore.Store。
func (s *Store) DefaultFolder(ctx context.Context, r mailstore.Recipient) (mailstore.Folder, error) {
	if _, err := s.session(); err != nil {
		return nil, err
	}
	mailbox := "INBOX"
	storeName := s.opts.Username
	if r != nil {
		rec, ok := r.(*recipient)
		if !ok || !rec.resolved {
			return nil, fmt.Errorf("recipient %q not resolved", r.Address())
		}
		mailbox = rec.prefix + "/INBOX"
		storeName = rec.address
	}
	return &folder{store: s, mailbox: mailbox, name: "Inbox", storeName: storeName}, nil
}

// FolderByName 实现 mailstore.Store。
// 名字匹配不区分大小写，结果进文件夹缓存，未命中返回 nil。
func (s *Store) FolderByName(ctx context.Context, r mailstore.Recipient, name string) (mailstore.Folder, error) {
	client, err := s.session()
	if err != nil {
		return nil, err
	}

	prefix := ""
	storeName := s.opts.Username
	if r != nil {
		rec, ok := r.(*recipient)
		if !ok || !rec.resolved {
			return nil, fmt.Errorf("recipient %q not resolved", r.Address())
		}
		prefix = rec.prefix + "/"
		storeName = rec.address
	}

	cacheKey := prefix + strings.ToLower(name)
	s.mu.Lock()
	mailbox, ok := s.folderCache[cacheKey]
	s.mu.Unlock()

	if !ok {
		boxes, err := client.List("", prefix+"*", nil).Collect()
		if err != nil {
			return nil, fmt.Errorf("listing folders: %w", err)
		}
		for _, box := range boxes {
			leaf := box.Mailbox
			if idx := strings.LastIndexAny(leaf, "/."); idx >= 0 {
				leaf = leaf[idx+1:]
			}
			if strings.EqualFold(leaf, name) {
				mailbox = box.Mailbox
				break
			}
		}
		if mailbox == "" {
			return nil, nil
		}
		s.mu.Lock()
		s.folderCache[cacheKey] = mailbox
		s.mu.Unlock()
	}

	return &folder{store: s, mailbox: mailbox, name: name, storeName: storeName}, nil
}

// AdvancedSearch 实现 mailstore.Store。
// 在后台执行全文 UID SEARCH，句柄在命令完成后就绪。
func (s *Store) AdvancedSearch(ctx context.Context, folderPath, searchText string) (mailstore.SearchHandle, error) {
	if _, err := s.session(); err != nil {
		return nil, err
	}

	h := &searchHandle{store: s, mailbox: folderPath, done: make(chan struct{})}
	criteria := &imap.SearchCriteria{Text: []string{searchText}}
	go h.run(ctx, func() ([]imap.UID, error) {
		return s.searchMailbox(folderPath, criteria)
	})
	return h, nil
}

// searchMailbox 选中邮箱并执行 UID SEARCH，返回倒序的 UID。
func (s *Store) searchMailbox(mailbox string, criteria *imap.SearchCriteria) ([]imap.UID, error) {
	client, err := s.session()
	if err != nil {
		return nil, err
	}

	// SELECT 与 SEARCH 必须串行，整个窗口持有会话。
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %q: %w", mailbox, err)
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", mailbox, err)
	}

	uids := data.AllUIDs()
	// UID 越大越新，倒序即新到旧。
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	return uids, nil
}

// fetchBatch 取一批 UID 的信封、标志、大小与正文。
func (s *Store) fetchBatch(mailbox string, uids []imap.UID) ([]*fetchedItem, error) {
	client, err := s.session()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %q: %w", mailbox, err)
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})

	items := make([]*fetchedItem, 0, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			// 单项读取失败不终止整批，保留错误供属性读取时上报。
			items = append(items, &fetchedItem{err: err})
			continue
		}
		items = append(items, newFetchedItem(buf, bodySection))
	}
	if err := fetchCmd.Close(); err != nil {
		return items, fmt.Errorf("fetching %d items: %w", len(uids), err)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].uid > items[j].uid })
	return items, nil
}

type recipient struct {
	address  string
	prefix   string
	resolved bool
}

func (r *recipient) Address() string { return r.address }
func (r *recipient) Resolved() bool  { return r.resolved }

type folder struct {
	store     *Store
	mailbox   string
	name      string
	storeName string
}

func (f *folder) Name() string      { return f.name }
func (f *folder) StoreName() string { return f.storeName }

// Path 用 IMAP 邮箱路径作为 AdvancedSearch 的定位键。
func (f *folder) Path() string { return f.mailbox }

func (f *folder) Items() (mailstore.ItemCollection, error) {
	return &collection{store: f.store, mailbox: f.mailbox}, nil
}
