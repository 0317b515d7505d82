package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore/memstore"
)

// seedMessage 构造一封测试邮件，age 为距今的接收时长。
func seedMessage(id, subject, body string, age time.Duration) *memstore.Message {
	return &memstore.Message{
		EntryID:     id,
		Subject:     subject,
		SenderName:  "Alice Chen",
		SenderEmail: "alice@example.com",
		Recipients:  []string{"team@example.com"},
		ReceivedAt:  time.Now().Add(-age),
		Body:        body,
	}
}

func newTestSearcher(t *testing.T, store *memstore.Store, text string, target int) *scopeSearcher {
	t.Helper()
	require.NoError(t, store.Connect(context.Background()))

	return &scopeSearcher{
		store:          store,
		scope:          domain.ScopePersonal,
		normalizer:     Normalizer{MaxRecipientsDisplay: 10, CleanHTML: true},
		retention:      NewRetention(6, 12),
		log:            zap.NewNop(),
		text:           text,
		target:         target,
		dedup:          NewDedup(),
		batchSize:      50,
		pollInterval:   2 * time.Millisecond,
		contentTimeout: 50 * time.Millisecond,
	}
}

func TestScopeSearcherLadder(t *testing.T) {
	t.Run("主题索引层级直接命中", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox",
			seedMessage("m1", "OUTAGE-4471 postmortem", "details inside", time.Hour),
			seedMessage("m2", "Lunch plans", "pizza on friday", 2*time.Hour),
		)

		s := newTestSearcher(t, store, "OUTAGE-4471", 10)
		records, err := s.run(context.Background())

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "m1", records[0].EntryID)
		assert.Equal(t, "Inbox", records[0].FolderName)
		assert.Equal(t, domain.ScopePersonal, records[0].MailboxScope)
	})

	t.Run("索引命中过半不再推进慢层级", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox",
			seedMessage("m1", "deploy window tonight", "", time.Hour),
		)

		s := newTestSearcher(t, store, "deploy window", 2)
		records, err := s.run(context.Background())

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 0, store.AdvancedSearchCalls)
	})

	t.Run("目标为一条时首个命中即返回", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox",
			seedMessage("m1", "invoice 2077", "", time.Hour),
			seedMessage("m2", "invoice 2077 resend", "", 2*time.Hour),
		)

		s := newTestSearcher(t, store, "invoice 2077", 1)
		records, err := s.run(context.Background())

		require.NoError(t, err)
		require.Len(t, records, 1)
		// 集合按接收时间倒序，取最新一条
		assert.Equal(t, "m1", records[0].EntryID)
		assert.Equal(t, 0, store.AdvancedSearchCalls)
	})

	t.Run("正文命中需内容校验", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox",
			seedMessage("m1", "weekly digest", "the VPN-ROTATE ticket is closed", time.Hour),
		)

		s := newTestSearcher(t, store, "VPN-ROTATE", 10)
		records, err := s.run(context.Background())

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "m1", records[0].EntryID)
	})

	t.Run("文本过滤被拒时回退到内容索引", func(t *testing.T) {
		store := memstore.NewStore()
		store.RejectTextFilters = true
		store.RejectDateFilters = true
		store.AddPersonal("Inbox",
			seedMessage("m1", "cert renewal due", "", time.Hour),
		)

		s := newTestSearcher(t, store, "cert renewal", 10)
		records, err := s.run(context.Background())

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "m1", records[0].EntryID)
		assert.Equal(t, 1, store.AdvancedSearchCalls)
	})

	t.Run("内容索引超时回退到日期窗口", func(t *testing.T) {
		store := memstore.NewStore()
		store.RejectTextFilters = true
		store.AdvancedSearchDelay = time.Hour
		store.AddPersonal("Inbox",
			seedMessage("m1", "dns cutover checklist", "", time.Hour),
		)

		s := newTestSearcher(t, store, "dns cutover", 10)
		s.contentTimeout = 20 * time.Millisecond
		records, err := s.run(context.Background())

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "m1", records[0].EntryID)
	})

	t.Run("日期窗口受批量上限约束", func(t *testing.T) {
		store := memstore.NewStore()
		store.RejectTextFilters = true
		store.AdvancedSearchErr = errors.New("content index unavailable")
		store.AddPersonal("Inbox",
			seedMessage("m1", "standup notes", "", 1*time.Hour),
			seedMessage("m2", "standup notes", "", 2*time.Hour),
			seedMessage("m3", "standup notes", "", 3*time.Hour),
			seedMessage("m4", "standup notes", "", 4*time.Hour),
			seedMessage("m5", "standup notes", "", 5*time.Hour),
		)

		s := newTestSearcher(t, store, "standup notes", 10)
		s.batchSize = 2
		records, err := s.run(context.Background())

		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("收件箱不可达时范围失败", func(t *testing.T) {
		store := memstore.NewStore()

		s := &scopeSearcher{
			store:      store,
			scope:      domain.ScopePersonal,
			normalizer: Normalizer{},
			retention:  NewRetention(6, 12),
			log:        zap.NewNop(),
			text:       "anything",
			target:     10,
			dedup:      NewDedup(),
		}
		_, err := s.run(context.Background())

		assert.ErrorIs(t, err, domain.ErrNotConnected)
	})
}

func TestScopeSearcherSecondaryFolders(t *testing.T) {
	t.Run("次级文件夹受单文件夹上限约束并共享去重", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox",
			seedMessage("m1", "audit trail export", "", time.Hour),
		)
		sent := []*memstore.Message{
			// 与收件箱重复的标识被去重集合排除
			seedMessage("m1", "audit trail export", "", time.Hour),
		}
		for i := 0; i < 11; i++ {
			sent = append(sent, seedMessage(
				string(rune('a'+i))+"-sent", "audit trail export", "", time.Duration(i+2)*time.Hour))
		}
		store.AddPersonal("Sent Items", sent...)

		s := newTestSearcher(t, store, "audit trail", 50)
		s.searchSecondary = true
		records, err := s.run(context.Background())

		require.NoError(t, err)
		// 收件箱 1 条，已发送最多贡献 10 条
		assert.Len(t, records, 11)

		seen := map[string]bool{}
		for _, rec := range records {
			assert.False(t, seen[rec.EntryID], "duplicate entry id %s", rec.EntryID)
			seen[rec.EntryID] = true
		}
	})

	t.Run("缺失的次级文件夹被跳过", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox",
			seedMessage("m1", "retro agenda", "", time.Hour),
		)

		s := newTestSearcher(t, store, "retro agenda", 50)
		s.searchSecondary = true
		records, err := s.run(context.Background())

		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}
