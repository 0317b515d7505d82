// Package connection 管理到邮件存储的会话。
//
// 每个邮箱范围持有独立会话（存储会话不保证可跨执行单元并发调用，
// 并行的范围搜索器各用各的），建立失败按指数退避有界重试，
// 共享邮箱的已解析收件人进程级缓存、操作失败即丢弃。
package connection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore"
	"mailsearch/backend/internal/monitoring"
)

// State 会话状态机：Disconnected -> Connecting -> Connected。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Config 连接管理参数。
type Config struct {
	// SharedMailboxEmail 共享邮箱地址，为空表示未配置共享范围。
	SharedMailboxEmail string

	// MaxRetries 单次建连的最大尝试次数。
	MaxRetries int

	// BackoffBase 首次重试前的等待，之后逐次翻倍。
	BackoffBase time.Duration
}

// Manager 会话管理器。
type Manager struct {
	dial    func() mailstore.Store
	cfg     Config
	log     *zap.Logger
	metrics *monitoring.Metrics

	mu              sync.Mutex
	sessions        map[domain.MailboxScope]mailstore.Store
	states          map[domain.MailboxScope]State
	connecting      map[domain.MailboxScope]*sync.Mutex
	sharedRecipient mailstore.Recipient
}

// NewManager 创建会话管理器。dial 每次调用须返回一条独立会话。
func NewManager(dial func() mailstore.Store, cfg Config, log *zap.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Manager{
		dial:       dial,
		cfg:        cfg,
		log:        log,
		sessions:   map[domain.MailboxScope]mailstore.Store{},
		states:     map[domain.MailboxScope]State{},
		connecting: map[domain.MailboxScope]*sync.Mutex{},
	}
}

// SetMetrics 注入监控指标。未注入时指标记录为空操作。
func (m *Manager) SetMetrics(metrics *monitoring.Metrics) {
	m.metrics = metrics
}

// SharedConfigured 报告共享邮箱是否已配置。
func (m *Manager) SharedConfigured() bool {
	return m.cfg.SharedMailboxEmail != ""
}

// SharedEmail 返回配置的共享邮箱地址。
func (m *Manager) SharedEmail() string {
	return m.cfg.SharedMailboxEmail
}

// scopeLock 返回某范围的建连互斥锁。
func (m *Manager) scopeLock(scope domain.MailboxScope) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.connecting[scope]
	if !ok {
		lock = &sync.Mutex{}
		m.connecting[scope] = lock
	}
	return lock
}

func (m *Manager) setState(scope domain.MailboxScope, state State) {
	m.mu.Lock()
	m.states[scope] = state
	m.mu.Unlock()
}

// Session 返回指定范围的已连接会话，必要时建立。
//
// 重试耗尽后返回 *domain.ConnectionError，且该范围回到
// Disconnected 状态，下次调用重新尝试。
//
// 重试退避期间仅持有本范围的建连锁，另一范围的 Session 以及
// Connected、Invalidate 等查询不被阻塞。
func (m *Manager) Session(ctx context.Context, scope domain.MailboxScope) (mailstore.Store, error) {
	lock := m.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	store, ok := m.sessions[scope]
	if ok && store.Connected() {
		m.mu.Unlock()
		return store, nil
	}
	if !ok {
		store = m.dial()
		m.sessions[scope] = store
	}
	m.states[scope] = StateConnecting
	m.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		// 每次尝试相互独立，不保留中间状态。
		err := store.Connect(ctx)
		if err == nil {
			m.mu.Lock()
			m.sessions[scope] = store
			m.states[scope] = StateConnected
			m.mu.Unlock()
			m.metrics.RecordStoreConnect()
			m.log.Info("mail store session established",
				zap.String("scope", string(scope)),
				zap.Int("attempt", attempt),
			)
			return store, nil
		}
		lastErr = err
		m.log.Warn("mail store connect attempt failed",
			zap.String("scope", string(scope)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.MaxRetries),
			zap.Error(err),
		)

		if attempt < m.cfg.MaxRetries {
			m.metrics.RecordStoreConnectRetry()
			backoff := m.cfg.BackoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
		}
	}

	m.setState(scope, StateDisconnected)
	return nil, &domain.ConnectionError{Attempts: m.cfg.MaxRetries, Err: lastErr}
}

// Invalidate 丢弃某范围的会话，由报告会话损坏的操作触发。
// 共享范围同时丢弃缓存的已解析收件人，下次使用时重新解析。
func (m *Manager) Invalidate(scope domain.MailboxScope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.sessions[scope]; ok {
		_ = store.Close()
		delete(m.sessions, scope)
	}
	m.states[scope] = StateDisconnected
	if scope == domain.ScopeShared {
		m.sharedRecipient = nil
	}
	m.metrics.RecordSessionInvalidated(string(scope))
	m.log.Info("mail store session invalidated", zap.String("scope", string(scope)))
}

// Close 关闭并丢弃所有会话，进程退出时调用。
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for scope, store := range m.sessions {
		_ = store.Close()
		delete(m.sessions, scope)
		m.states[scope] = StateDisconnected
	}
	m.sharedRecipient = nil
}

// SharedRecipient 返回共享邮箱的已解析收件人（进程级缓存）。
func (m *Manager) SharedRecipient(ctx context.Context) (mailstore.Recipient, error) {
	if !m.SharedConfigured() {
		return nil, domain.ErrSharedNotConfigured
	}

	m.mu.Lock()
	cached := m.sharedRecipient
	m.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	store, err := m.Session(ctx, domain.ScopeShared)
	if err != nil {
		return nil, err
	}
	recipient, err := store.ResolveRecipient(ctx, m.cfg.SharedMailboxEmail)
	if err != nil {
		m.Invalidate(domain.ScopeShared)
		return nil, err
	}

	m.mu.Lock()
	m.sharedRecipient = recipient
	m.mu.Unlock()
	return recipient, nil
}

// Connected 报告是否存在任一已连接会话。
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, store := range m.sessions {
		if store.Connected() {
			return true
		}
	}
	return false
}

// State 返回某范围的会话状态。
func (m *Manager) State(scope domain.MailboxScope) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[scope]
}
