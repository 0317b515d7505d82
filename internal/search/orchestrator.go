// Package search 实现渐进式多层级邮件搜索编排。
//
// 编排器对外提供两个操作：搜索（缓存判定、并行范围搜索、归并排序
// 截断、回写缓存）与邮箱可达性检查。每个邮箱范围由 scopeSearcher
// 按固定层级序列独立搜索，范围失败只影响自身，调用方总是拿到
// 已成功范围的部分结果。
package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailsearch/backend/internal/cache"
	"mailsearch/backend/internal/connection"
	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore"
	"mailsearch/backend/internal/monitoring"
	"mailsearch/backend/internal/pool"
)

// Options 编排器行为开关。
type Options struct {
	// SearchAllFolders 启用次级文件夹扫描（层级 5）。
	SearchAllFolders bool

	// BatchSize 日期回退层级每个窗口最多检视的候选项数。
	BatchSize int

	// PollInterval 异步内容索引搜索的轮询间隔。零值用默认。
	PollInterval time.Duration

	// ContentIndexTimeout 主文件夹异步内容索引搜索的预算。零值用默认。
	ContentIndexTimeout time.Duration
}

// Orchestrator 搜索编排器。
type Orchestrator struct {
	manager    *connection.Manager
	cache      *cache.ResultCache
	normalizer Normalizer
	retention  Retention
	opts       Options
	log        *zap.Logger

	workers *pool.WorkerPool
	metrics *monitoring.Metrics
}

// NewOrchestrator 创建搜索编排器。
func NewOrchestrator(manager *connection.Manager, resultCache *cache.ResultCache,
	normalizer Normalizer, retention Retention, opts Options, log *zap.Logger) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Orchestrator{
		manager:    manager,
		cache:      resultCache,
		normalizer: normalizer,
		retention:  retention,
		opts:       opts,
		log:        log,
	}
}

// SetWorkerPool 注入协程池。未注入时并行任务直接起协程。
func (o *Orchestrator) SetWorkerPool(p *pool.WorkerPool) {
	o.workers = p
}

// SetMetrics 注入监控指标。未注入时指标记录为空操作。
func (o *Orchestrator) SetMetrics(m *monitoring.Metrics) {
	o.metrics = m
}

// scopeTask 一次调用内单个范围的搜索任务与结果。
type scopeTask struct {
	scope     domain.MailboxScope
	store     mailstore.Store
	recipient mailstore.Recipient
	records   []domain.EmailRecord
	err       error
}

// Search 执行一次搜索调用。
//
// 缓存命中时原样返回缓存数据，不触达存储。否则为每个请求的范围
// 建立独立会话并并行搜索，归并后按接收时间倒序截断到 MaxResults。
// 范围级失败记入结果的 Errors 并使该范围会话失效；仅当所有请求
// 范围在产生任何结果前都无法建连时整个调用才返回错误。
func (o *Orchestrator) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error) {
	if err := query.Validate(); err != nil {
		return domain.SearchResult{}, err
	}

	key := query.Key()
	if records, ok := o.cache.Get(key); ok {
		o.metrics.RecordCacheHit()
		o.log.Debug("search cache hit",
			zap.String("text", query.Text),
			zap.Int("records", len(records)),
		)
		return domain.SearchResult{Records: records}, nil
	}
	o.metrics.RecordCacheMiss()

	tasks, errs, connectErr := o.prepareScopes(ctx, query)
	if len(tasks) == 0 {
		if connectErr != nil {
			return domain.SearchResult{Errors: errs}, connectErr
		}
		return domain.SearchResult{Errors: errs}, nil
	}

	o.runScopes(ctx, query, tasks)

	var merged []domain.EmailRecord
	for _, t := range tasks {
		if t.err != nil {
			scopeErr := &domain.ScopeError{Scope: t.scope, Err: t.err}
			errs = append(errs, scopeErr.Error())
			o.metrics.RecordScopeError(string(t.scope))
			o.manager.Invalidate(t.scope)
			o.log.Warn("scope search failed",
				zap.String("scope", string(t.scope)),
				zap.Error(t.err),
			)
			continue
		}
		merged = append(merged, t.records...)
	}

	domain.SortRecordsByReceivedDesc(merged)
	merged = domain.TruncateRecords(merged, query.MaxResults)

	o.cache.Put(key, merged)
	o.metrics.UpdateCacheEntries(o.cache.Len())
	o.metrics.RecordSearch(len(merged))
	o.log.Info("search finished",
		zap.String("text", query.Text),
		zap.Int("records", len(merged)),
		zap.Int("scope_errors", len(errs)),
	)

	return domain.SearchResult{Records: merged, Errors: errs}, nil
}

// prepareScopes 为每个请求的范围建立会话。
//
// 个人范围在前，决定归并顺序。共享范围未配置属于配置空缺，
// 静默跳过。返回的 connectErr 非空表示至少一个范围建连失败，
// 当没有任何范围就绪时升级为调用级错误。
func (o *Orchestrator) prepareScopes(ctx context.Context, query domain.SearchQuery) ([]*scopeTask, []string, error) {
	var tasks []*scopeTask
	var errs []string
	var connectErr error

	record := func(scope domain.MailboxScope, err error) {
		errs = append(errs, (&domain.ScopeError{Scope: scope, Err: err}).Error())
		o.metrics.RecordScopeError(string(scope))
		if connectErr == nil {
			connectErr = err
		}
	}

	if query.IncludePersonal {
		store, err := o.manager.Session(ctx, domain.ScopePersonal)
		if err != nil {
			record(domain.ScopePersonal, err)
		} else {
			tasks = append(tasks, &scopeTask{scope: domain.ScopePersonal, store: store})
		}
	}

	if query.IncludeShared {
		switch {
		case !o.manager.SharedConfigured():
			o.log.Debug("shared mailbox not configured, shared scope skipped")
		default:
			recipient, err := o.manager.SharedRecipient(ctx)
			if err != nil {
				record(domain.ScopeShared, err)
				break
			}
			store, err := o.manager.Session(ctx, domain.ScopeShared)
			if err != nil {
				record(domain.ScopeShared, err)
				break
			}
			tasks = append(tasks, &scopeTask{scope: domain.ScopeShared, store: store, recipient: recipient})
		}
	}

	return tasks, errs, connectErr
}

// runScopes 执行范围搜索任务。双范围并行，单范围就地执行。
func (o *Orchestrator) runScopes(ctx context.Context, query domain.SearchQuery, tasks []*scopeTask) {
	runOne := func(t *scopeTask) {
		started := time.Now()
		searcher := &scopeSearcher{
			store:           t.store,
			scope:           t.scope,
			recipient:       t.recipient,
			normalizer:      o.normalizer,
			retention:       o.retention,
			log:             o.log,
			metrics:         o.metrics,
			text:            query.Text,
			target:          query.MaxResults,
			dedup:           NewDedup(),
			searchSecondary: o.opts.SearchAllFolders,
			batchSize:       o.opts.BatchSize,
			pollInterval:    o.opts.PollInterval,
			contentTimeout:  o.opts.ContentIndexTimeout,
		}
		t.records, t.err = searcher.run(ctx)
		o.metrics.RecordScopeSearch(string(t.scope), time.Since(started))
	}

	if len(tasks) == 1 {
		runOne(tasks[0])
		return
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		t := t
		wg.Add(1)
		job := func() {
			defer wg.Done()
			runOne(t)
		}
		if o.workers == nil || !o.workers.TrySubmit(job) {
			go job()
		}
	}
	wg.Wait()
}

// CheckAccess 探测个人与共享邮箱的可达性。
//
// 每个范围各自尝试建连并打开收件箱，探测失败记入 Errors 并使
// 该范围会话失效。共享邮箱未配置不算错误，仅反映在标志位上。
func (o *Orchestrator) CheckAccess(ctx context.Context) domain.AccessStatus {
	status := domain.AccessStatus{
		SharedConfigured:        o.manager.SharedConfigured(),
		RetentionPersonalMonths: o.retention.Months(domain.ScopePersonal),
		RetentionSharedMonths:   o.retention.Months(domain.ScopeShared),
		Errors:                  []string{},
	}

	if name, err := o.probeScope(ctx, domain.ScopePersonal); err != nil {
		status.Errors = append(status.Errors, (&domain.ScopeError{Scope: domain.ScopePersonal, Err: err}).Error())
	} else {
		status.PersonalAccessible = true
		status.PersonalName = name
	}

	if status.SharedConfigured {
		if name, err := o.probeScope(ctx, domain.ScopeShared); err != nil {
			status.Errors = append(status.Errors, (&domain.ScopeError{Scope: domain.ScopeShared, Err: err}).Error())
		} else {
			status.SharedAccessible = true
			status.SharedName = name
		}
	}

	status.OutlookConnected = o.manager.Connected()
	return status
}

// probeScope 建连并打开该范围的收件箱，返回所属存储的显示名。
func (o *Orchestrator) probeScope(ctx context.Context, scope domain.MailboxScope) (string, error) {
	var recipient mailstore.Recipient
	if scope == domain.ScopeShared {
		r, err := o.manager.SharedRecipient(ctx)
		if err != nil {
			return "", err
		}
		recipient = r
	}

	store, err := o.manager.Session(ctx, scope)
	if err != nil {
		return "", err
	}

	folder, err := store.DefaultFolder(ctx, recipient)
	if err != nil {
		o.manager.Invalidate(scope)
		return "", err
	}
	return folder.StoreName(), nil
}
