package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/mailstore"
	"mailsearch/backend/internal/mailstore/memstore"
)

func testItem(t *testing.T, msg *memstore.Message) mailstore.Item {
	t.Helper()

	ctx := context.Background()
	store := memstore.NewStore()
	store.AddPersonal("Inbox", msg)
	require.NoError(t, store.Connect(ctx))

	folder, err := store.DefaultFolder(ctx, nil)
	require.NoError(t, err)
	items, err := folder.Items()
	require.NoError(t, err)

	var it mailstore.Item
	require.NoError(t, items.Each(func(i mailstore.Item) bool {
		it = i
		return false
	}))
	require.NotNil(t, it)
	return it
}

func TestNormalize(t *testing.T) {
	received := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)

	t.Run("完整候选项规范化成功", func(t *testing.T) {
		it := testItem(t, &memstore.Message{
			EntryID:         "msg-001",
			Subject:         "Quarterly report",
			SenderName:      "Alice Chen",
			SenderEmail:     "alice@example.com",
			Recipients:      []string{"bob@example.com"},
			ReceivedAt:      received,
			Body:            "Please review the attached numbers.",
			Size:            2048,
			Importance:      2,
			Unread:          true,
			AttachmentCount: 1,
		})

		n := Normalizer{MaxRecipientsDisplay: 10, CleanHTML: true}
		rec, err := n.Normalize(it, "Inbox", domain.ScopePersonal)

		require.NoError(t, err)
		assert.Equal(t, "msg-001", rec.EntryID)
		assert.Equal(t, "Quarterly report", rec.Subject)
		assert.Equal(t, "Alice Chen", rec.SenderName)
		assert.Equal(t, "alice@example.com", rec.SenderEmail)
		assert.Equal(t, []string{"bob@example.com"}, rec.Recipients)
		assert.Equal(t, received, rec.ReceivedAt)
		assert.Equal(t, "Please review the attached numbers.", rec.Body)
		assert.Equal(t, 2048, rec.Size)
		assert.Equal(t, 2, rec.Importance)
		assert.True(t, rec.Unread)
		assert.Equal(t, 1, rec.AttachmentCount)
		assert.Equal(t, "Inbox", rec.FolderName)
		assert.Equal(t, domain.ScopePersonal, rec.MailboxScope)
	})

	t.Run("缺失属性使用安全默认值", func(t *testing.T) {
		it := testItem(t, &memstore.Message{
			EntryID:    "msg-002",
			ReceivedAt: received,
			AbsentProps: map[string]bool{
				mailstore.PropSubject:      true,
				mailstore.PropSenderName:   true,
				mailstore.PropImportance:   true,
				mailstore.PropReceivedTime: true,
			},
		})

		var n Normalizer
		rec, err := n.Normalize(it, "Inbox", domain.ScopePersonal)

		require.NoError(t, err)
		assert.Equal(t, "No Subject", rec.Subject)
		assert.Equal(t, "Unknown", rec.SenderName)
		assert.Equal(t, 1, rec.Importance)
		assert.WithinDuration(t, time.Now(), rec.ReceivedAt, time.Minute)
	})

	t.Run("正文先截断后清洗", func(t *testing.T) {
		it := testItem(t, &memstore.Message{
			EntryID:    "msg-003",
			ReceivedAt: received,
			Body:       "<b>Hello wonderful world</b>",
		})

		n := Normalizer{MaxBodyChars: 10, CleanHTML: true}
		rec, err := n.Normalize(it, "Inbox", domain.ScopePersonal)

		require.NoError(t, err)
		// 截断发生在 HTML 清洗之前，标签参与长度计算
		assert.Equal(t, "Hello w [truncated]", rec.Body)
	})

	t.Run("不清洗时保留原始正文", func(t *testing.T) {
		it := testItem(t, &memstore.Message{
			EntryID:    "msg-004",
			ReceivedAt: received,
			Body:       "<p>raw &amp; untouched</p>",
		})

		n := Normalizer{CleanHTML: false}
		rec, err := n.Normalize(it, "Inbox", domain.ScopePersonal)

		require.NoError(t, err)
		assert.Equal(t, "<p>raw &amp; untouched</p>", rec.Body)
	})

	t.Run("收件人超限折叠为尾项", func(t *testing.T) {
		it := testItem(t, &memstore.Message{
			EntryID:    "msg-005",
			ReceivedAt: received,
			Recipients: []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"},
		})

		n := Normalizer{MaxRecipientsDisplay: 2}
		rec, err := n.Normalize(it, "Inbox", domain.ScopePersonal)

		require.NoError(t, err)
		assert.Equal(t, []string{"a@x.com", "b@x.com", "+3 more"}, rec.Recipients)
	})

	t.Run("属性读取故障返回错误", func(t *testing.T) {
		it := testItem(t, &memstore.Message{
			EntryID:    "msg-006",
			ReceivedAt: received,
			PropErrs: map[string]error{
				mailstore.PropBody: errors.New("property store corrupted"),
			},
		})

		var n Normalizer
		_, err := n.Normalize(it, "Inbox", domain.ScopePersonal)

		require.Error(t, err)
		var extractErr *domain.ExtractionError
		assert.ErrorAs(t, err, &extractErr)
		assert.Equal(t, mailstore.PropBody, extractErr.Property)
	})
}

func TestCleanHTML(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "去除标签",
			input:    "<div><p>hello</p></div>",
			expected: "hello",
		},
		{
			name:     "解码常见实体",
			input:    "Tom &amp; Jerry &lt;3 &quot;forever&quot; it&#39;s&nbsp;true",
			expected: `Tom & Jerry <3 "forever" it's true`,
		},
		{
			name:     "折叠空白",
			input:    "line one\n\n\t  line two",
			expected: "line one line two",
		},
		{
			name:     "纯文本原样返回",
			input:    "plain text body",
			expected: "plain text body",
		},
		{
			name:     "混合内容",
			input:    "<p>Tom &amp; Jerry&nbsp;&lt;3</p>\n\n  done",
			expected: "Tom & Jerry <3 done",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cleanHTML(tc.input))
		})
	}
}
