package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore"
	"mailsearch/backend/internal/monitoring"
)

// 层级推进阈值与异步搜索预算。
const (
	// ladderExitFraction 索引层级累计命中达到目标的此比例后，
	// 不再尝试更慢的层级。
	ladderExitFraction = 0.5

	// windowExitFraction 日期回退层级累计命中达到目标的此比例后，
	// 放弃剩余窗口。
	windowExitFraction = 0.7

	// contentIndexTimeout 主文件夹异步内容索引搜索的轮询预算。
	contentIndexTimeout = 30 * time.Second

	// secondaryContentTimeout 次级文件夹的异步搜索轮询预算。
	secondaryContentTimeout = 10 * time.Second

	defaultPollInterval = 500 * time.Millisecond

	// secondaryFolderCap 单个次级文件夹最多贡献的记录数，
	// 独立于全局预算，约束最坏情况的线性扫描。
	secondaryFolderCap = 10
)

// secondaryFolderNames 次级扫描的固定文件夹白名单。
var secondaryFolderNames = []string{"Sent Items", "Drafts"}

// scopeSearcher 驱动单个邮箱范围的有序层级搜索。
//
// 层级依次为：主题索引、主题或正文索引、异步内容索引、
// 日期窗口线性回退、次级文件夹扫描。层级内部错误（过滤语法被拒、
// 异步超时）只导致推进到下一层级，不构成范围失败。
type scopeSearcher struct {
	store      mailstore.Store
	scope      domain.MailboxScope
	recipient  mailstore.Recipient
	normalizer Normalizer
	retention  Retention
	log        *zap.Logger
	metrics    *monitoring.Metrics

	text   string
	target int
	dedup  *Dedup

	searchSecondary bool
	batchSize       int
	pollInterval    time.Duration
	contentTimeout  time.Duration
	now             time.Time

	records     []domain.EmailRecord
	folderAdded int
	folderCap   int
}

func (s *scopeSearcher) remaining() int {
	return s.target - len(s.records)
}

func (s *scopeSearcher) ladderSatisfied() bool {
	return float64(len(s.records)) >= ladderExitFraction*float64(s.target)
}

// run 执行整个层级序列，返回该范围的命中记录。
// 返回错误表示范围级失败（收件箱不可达），调用方记录后继续其他范围。
func (s *scopeSearcher) run(ctx context.Context) ([]domain.EmailRecord, error) {
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.contentTimeout <= 0 {
		s.contentTimeout = contentIndexTimeout
	}
	if s.now.IsZero() {
		s.now = time.Now()
	}

	inbox, err := s.store.DefaultFolder(ctx, s.recipient)
	if err != nil {
		return nil, err
	}

	s.folderCap = 0
	if err := s.searchFolder(ctx, inbox, s.contentTimeout); err != nil {
		return nil, err
	}

	if s.searchSecondary && s.remaining() > 0 {
		s.searchSecondaryFolders(ctx)
	}
	return s.records, nil
}

// searchFolder 对单个文件夹执行层级 1-4。
// 返回错误仅当文件夹本身不可用；层级错误就地吞掉并推进。
func (s *scopeSearcher) searchFolder(ctx context.Context, folder mailstore.Folder, contentTimeout time.Duration) error {
	items, err := folder.Items()
	if err != nil {
		return err
	}
	name := folder.Name()

	// 层级 1：主题索引。主题过滤本身即命中证明，无需二次校验。
	s.tryIndexed(items, name, mailstore.SubjectFilter(s.text), false, "subject")

	// 层级 2：主题或正文组合索引，命中需内容校验。
	if s.remaining() > 0 && !s.ladderSatisfied() {
		s.tryIndexed(items, name, mailstore.SubjectOrBodyFilter(s.text), true, "subject_or_body")
	}

	// 层级 3：异步内容索引，轮询至完成或超时。
	if s.remaining() > 0 && !s.ladderSatisfied() {
		if err := s.tryContentIndex(ctx, folder, contentTimeout); err != nil {
			s.log.Debug("content index tier skipped",
				zap.String("scope", string(s.scope)),
				zap.String("folder", name),
				zap.Error(err),
			)
		}
	}

	// 层级 4：日期窗口线性回退，仅当索引层级合计不足目标的一半。
	if s.remaining() > 0 && !s.ladderSatisfied() {
		s.runDateWindows(items, name)
	}
	return nil
}

// tryIndexed 执行一次索引过滤层级。失败只记录并推进。
func (s *scopeSearcher) tryIndexed(items mailstore.ItemCollection, folderName, filterExpr string, verify bool, tier string) {
	matched, err := items.Restrict(filterExpr)
	if err != nil {
		s.log.Debug("indexed tier rejected by store",
			zap.String("scope", string(s.scope)),
			zap.String("tier", tier),
			zap.Error(err),
		)
		return
	}
	if matched.Count() == 0 {
		return
	}
	added := s.collect(matched, folderName, verify, 0)
	s.log.Info("indexed tier finished",
		zap.String("scope", string(s.scope)),
		zap.String("tier", tier),
		zap.Int("added", added),
		zap.Int("total", len(s.records)),
	)
}

// tryContentIndex 发起异步内容索引搜索并轮询完成。
// 超时返回 *domain.TimeoutError，由调用方推进到回退层级。
func (s *scopeSearcher) tryContentIndex(ctx context.Context, folder mailstore.Folder, timeout time.Duration) error {
	handle, err := s.store.AdvancedSearch(ctx, folder.Path(), s.text)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for !handle.Done() {
		if !time.Now().Before(deadline) {
			handle.Stop()
			return &domain.TimeoutError{Phase: "content index search", Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			handle.Stop()
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}

	results, err := handle.Results()
	if err != nil {
		return err
	}
	added := s.collect(results, folder.Name(), true, 0)
	s.log.Info("content index tier finished",
		zap.String("scope", string(s.scope)),
		zap.String("folder", folder.Name()),
		zap.Int("added", added),
	)
	return nil
}

// runDateWindows 按扩张日期窗口做新到旧的线性回退扫描。
//
// 每个窗口最多检视 batchSize 个候选项；累计命中达到目标的 70%
// 即放弃剩余窗口，预算耗尽立即停止。
func (s *scopeSearcher) runDateWindows(items mailstore.ItemCollection, folderName string) {
	for _, w := range s.retention.windowsFor(s.scope, s.now) {
		if s.remaining() <= 0 {
			break
		}

		var expr string
		if w.End.IsZero() {
			expr = mailstore.ReceivedSinceFilter(w.Start)
		} else {
			expr = mailstore.ReceivedBetweenFilter(w.Start, w.End)
		}

		windowed, err := items.Restrict(expr)
		if err != nil {
			s.log.Warn("date window filter rejected",
				zap.String("scope", string(s.scope)),
				zap.String("filter", expr),
				zap.Error(err),
			)
			continue
		}
		if windowed.Count() == 0 {
			continue
		}

		added := s.collect(windowed, folderName, true, s.batchSize)
		s.log.Info("date window scanned",
			zap.String("scope", string(s.scope)),
			zap.Time("window_start", w.Start),
			zap.Int("added", added),
			zap.Int("total", len(s.records)),
		)

		if float64(len(s.records)) >= windowExitFraction*float64(s.target) {
			break
		}
	}
}

// searchSecondaryFolders 对固定白名单文件夹套用同一层级序列。
// 各文件夹独立受 secondaryFolderCap 约束，去重集合与主搜索共享。
func (s *scopeSearcher) searchSecondaryFolders(ctx context.Context) {
	for _, name := range secondaryFolderNames {
		if s.remaining() <= 0 {
			return
		}

		folder, err := s.store.FolderByName(ctx, s.recipient, name)
		if err != nil {
			s.log.Debug("secondary folder lookup failed",
				zap.String("scope", string(s.scope)),
				zap.String("folder", name),
				zap.Error(err),
			)
			continue
		}
		if folder == nil {
			continue
		}

		s.folderAdded = 0
		s.folderCap = secondaryFolderCap
		if err := s.searchFolder(ctx, folder, secondaryContentTimeout); err != nil {
			s.log.Debug("secondary folder unavailable",
				zap.String("scope", string(s.scope)),
				zap.String("folder", name),
				zap.Error(err),
			)
		}
	}
	s.folderCap = 0
}

// collect 遍历候选集合：去重、可选内容校验、规范化、计入结果。
//
// maxInspect > 0 时最多检视这么多候选项。单个候选项的属性读取失败
// 只跳过该项。返回本次新增的记录数。
func (s *scopeSearcher) collect(items mailstore.ItemCollection, folderName string, verify bool, maxInspect int) int {
	needle := strings.ToLower(s.text)
	added := 0
	inspected := 0

	err := items.Each(func(it mailstore.Item) bool {
		if s.remaining() <= 0 {
			return false
		}
		if s.folderCap > 0 && s.folderAdded >= s.folderCap {
			return false
		}
		if maxInspect > 0 && inspected >= maxInspect {
			return false
		}
		inspected++

		id, err := mailstore.StringProp(it, mailstore.PropEntryID, "")
		if err != nil {
			return true
		}
		if s.dedup.Seen(id) {
			return true
		}

		if verify {
			subject, err := mailstore.StringProp(it, mailstore.PropSubject, "")
			if err != nil {
				return true
			}
			body, err := mailstore.StringProp(it, mailstore.PropBody, "")
			if err != nil {
				return true
			}
			if !strings.Contains(strings.ToLower(subject), needle) &&
				!strings.Contains(strings.ToLower(body), needle) {
				return true
			}
		}

		rec, err := s.normalizer.Normalize(it, folderName, s.scope)
		if err != nil {
			s.metrics.RecordCandidateSkipped()
			s.log.Debug("candidate skipped",
				zap.String("scope", string(s.scope)),
				zap.Error(err),
			)
			return true
		}

		s.records = append(s.records, rec)
		s.dedup.Add(id)
		s.folderAdded++
		added++
		return true
	})
	if err != nil {
		s.log.Debug("candidate iteration aborted",
			zap.String("scope", string(s.scope)),
			zap.Error(err),
		)
	}
	return added
}
