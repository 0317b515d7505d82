package httptransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsearch/backend/internal/cache"
	"mailsearch/backend/internal/connection"
	"mailsearch/backend/internal/mailstore"
	"mailsearch/backend/internal/mailstore/memstore"
	"mailsearch/backend/internal/search"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(store *memstore.Store, sharedEmail string, defaultMaxResults int) *gin.Engine {
	manager := connection.NewManager(func() mailstore.Store { return store }, connection.Config{
		SharedMailboxEmail: sharedEmail,
		MaxRetries:         2,
		BackoffBase:        time.Millisecond,
	}, zap.NewNop())

	orchestrator := search.NewOrchestrator(
		manager,
		cache.NewResultCache(100, time.Hour),
		search.Normalizer{MaxRecipientsDisplay: 10, CleanHTML: true},
		search.NewRetention(6, 12),
		search.Options{
			PollInterval:        2 * time.Millisecond,
			ContentIndexTimeout: 50 * time.Millisecond,
		},
		zap.NewNop(),
	)

	engine := gin.New()
	searchHandler := NewSearchHandler(orchestrator, defaultMaxResults, zap.NewNop())
	accessHandler := NewAccessHandler(orchestrator, zap.NewNop())
	engine.POST("/api/v1/emails/search", searchHandler.Search)
	engine.GET("/api/v1/mailbox/access", accessHandler.Check)
	return engine
}

func postSearch(t *testing.T, engine *gin.Engine, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "/api/v1/emails/search", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSearchEndpoint(t *testing.T) {
	t.Run("搜索成功返回记录", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox", &memstore.Message{
			EntryID:    "m1",
			Subject:    "OUTAGE-4471 postmortem",
			SenderName: "Alice Chen",
			ReceivedAt: time.Now().Add(-time.Hour),
		})
		engine := newTestEngine(store, "", 500)

		w, resp := postSearch(t, engine,
			`{"searchText":"OUTAGE-4471","includeShared":false,"maxResults":10}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, CodeSuccess, resp.Code)

		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "OUTAGE-4471", data["searchText"])
		assert.Equal(t, float64(1), data["count"])
	})

	t.Run("缺少搜索文本返回400", func(t *testing.T) {
		engine := newTestEngine(memstore.NewStore(), "", 500)

		w, resp := postSearch(t, engine, `{"maxResults":10}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeBadRequest, resp.Code)
	})

	t.Run("非法请求体返回400", func(t *testing.T) {
		engine := newTestEngine(memstore.NewStore(), "", 500)

		w, _ := postSearch(t, engine, `{not json`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("缺省结果上限取配置值", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox", &memstore.Message{
			EntryID:    "m1",
			Subject:    "OUTAGE-4471 postmortem",
			ReceivedAt: time.Now().Add(-time.Hour),
		})
		engine := newTestEngine(store, "", 500)

		w, resp := postSearch(t, engine, `{"searchText":"OUTAGE-4471"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, CodeSuccess, resp.Code)

		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(1), data["count"])
	})

	t.Run("配置上限截断缺省请求的结果", func(t *testing.T) {
		store := memstore.NewStore()
		store.AddPersonal("Inbox",
			&memstore.Message{EntryID: "m1", Subject: "billing alert", ReceivedAt: time.Now().Add(-time.Hour)},
			&memstore.Message{EntryID: "m2", Subject: "billing alert", ReceivedAt: time.Now().Add(-2 * time.Hour)},
			&memstore.Message{EntryID: "m3", Subject: "billing alert", ReceivedAt: time.Now().Add(-3 * time.Hour)},
		)
		engine := newTestEngine(store, "", 2)

		w, resp := postSearch(t, engine, `{"searchText":"billing alert","includeShared":false}`)

		assert.Equal(t, http.StatusOK, w.Code)

		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(2), data["count"])
	})

	t.Run("存储不可达返回503与排查建议", func(t *testing.T) {
		store := memstore.NewStore()
		store.FailConnects = 10
		engine := newTestEngine(store, "", 500)

		w, resp := postSearch(t, engine,
			`{"searchText":"anything","includeShared":false,"maxResults":10}`)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, CodeServiceUnavailable, resp.Code)

		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "error", data["status"])
		assert.NotEmpty(t, data["troubleshooting"])
	})
}

func TestAccessEndpoint(t *testing.T) {
	t.Run("个人邮箱可达返回状态", func(t *testing.T) {
		engine := newTestEngine(memstore.NewStore(), "", 500)

		req, err := http.NewRequest(http.MethodGet, "/api/v1/mailbox/access", nil)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, true, data["personalAccessible"])
		assert.Equal(t, "Personal Mailbox", data["personalName"])
		assert.Equal(t, false, data["sharedConfigured"])
	})

	t.Run("所有邮箱不可达返回503", func(t *testing.T) {
		store := memstore.NewStore()
		store.FailConnects = 10
		engine := newTestEngine(store, "", 500)

		req, err := http.NewRequest(http.MethodGet, "/api/v1/mailbox/access", nil)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeServiceUnavailable, resp.Code)
	})
}
