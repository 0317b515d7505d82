package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"MAILSEARCH_SERVER_HOST",
		"MAILSEARCH_SERVER_PORT",
		"MAILSEARCH_CORS_ALLOWED_ORIGINS",
		"MAILSEARCH_LOG_LEVEL",
		"MAILSEARCH_LOG_DEVELOPMENT",
		"MAILSEARCH_MAILSTORE_BACKEND",
		"MAILSEARCH_MAILSTORE_HOST",
		"MAILSEARCH_MAILSTORE_PORT",
		"MAILSEARCH_MAILSTORE_SHARED_MAILBOX_EMAIL",
		"MAILSEARCH_MAILSTORE_MAX_CONNECTION_RETRIES",
		"MAILSEARCH_SEARCH_PERSONAL_RETENTION_MONTHS",
		"MAILSEARCH_SEARCH_SHARED_RETENTION_MONTHS",
		"MAILSEARCH_SEARCH_MAX_SEARCH_RESULTS",
		"MAILSEARCH_SEARCH_MAX_BODY_CHARS",
		"MAILSEARCH_SEARCH_SEARCH_ALL_FOLDERS",
		"MAILSEARCH_SEARCH_CLEAN_HTML_CONTENT",
		"MAILSEARCH_CACHE_MAX_ENTRIES",
		"MAILSEARCH_CACHE_TTL",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	clearEnv := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Equal(t, "memory", cfg.Mailstore.Backend)
		assert.Equal(t, 993, cfg.Mailstore.Port)
		assert.True(t, cfg.Mailstore.TLS)
		assert.True(t, cfg.Mailstore.UseExtendedLogin)
		assert.Empty(t, cfg.Mailstore.SharedMailboxEmail)
		assert.Equal(t, 3, cfg.Mailstore.MaxConnectionRetries)
		assert.Equal(t, time.Second, cfg.Mailstore.ConnectBackoffBase)
		assert.Equal(t, 6, cfg.Search.PersonalRetentionMonths)
		assert.Equal(t, 12, cfg.Search.SharedRetentionMonths)
		assert.Equal(t, 500, cfg.Search.MaxSearchResults)
		assert.Equal(t, 0, cfg.Search.MaxBodyChars)
		assert.Equal(t, 10, cfg.Search.MaxRecipientsDisplay)
		assert.True(t, cfg.Search.SearchAllFolders)
		assert.True(t, cfg.Search.CleanHTMLContent)
		assert.Equal(t, 50, cfg.Search.BatchProcessingSize)
		assert.Equal(t, 100, cfg.Cache.MaxEntries)
		assert.Equal(t, time.Hour, cfg.Cache.TTL)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		clearEnv()

		os.Setenv("MAILSEARCH_SERVER_HOST", "127.0.0.1")
		os.Setenv("MAILSEARCH_SERVER_PORT", "9090")
		os.Setenv("MAILSEARCH_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
		os.Setenv("MAILSEARCH_LOG_LEVEL", "debug")
		os.Setenv("MAILSEARCH_LOG_DEVELOPMENT", "true")
		os.Setenv("MAILSEARCH_MAILSTORE_BACKEND", "imap")
		os.Setenv("MAILSEARCH_MAILSTORE_HOST", "imap.example.com")
		os.Setenv("MAILSEARCH_MAILSTORE_PORT", "143")
		os.Setenv("MAILSEARCH_MAILSTORE_SHARED_MAILBOX_EMAIL", "ops@example.com")
		os.Setenv("MAILSEARCH_SEARCH_PERSONAL_RETENTION_MONTHS", "3")
		os.Setenv("MAILSEARCH_SEARCH_SHARED_RETENTION_MONTHS", "24")
		os.Setenv("MAILSEARCH_SEARCH_MAX_SEARCH_RESULTS", "200")
		os.Setenv("MAILSEARCH_SEARCH_MAX_BODY_CHARS", "2000")
		os.Setenv("MAILSEARCH_CACHE_MAX_ENTRIES", "50")
		os.Setenv("MAILSEARCH_CACHE_TTL", "30m")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证自定义值
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.Development)
		assert.Equal(t, "imap", cfg.Mailstore.Backend)
		assert.Equal(t, "imap.example.com", cfg.Mailstore.Host)
		assert.Equal(t, 143, cfg.Mailstore.Port)
		assert.Equal(t, "ops@example.com", cfg.Mailstore.SharedMailboxEmail)
		assert.Equal(t, 3, cfg.Search.PersonalRetentionMonths)
		assert.Equal(t, 24, cfg.Search.SharedRetentionMonths)
		assert.Equal(t, 200, cfg.Search.MaxSearchResults)
		assert.Equal(t, 2000, cfg.Search.MaxBodyChars)
		assert.Equal(t, 50, cfg.Cache.MaxEntries)
		assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	})

	t.Run("未知存储后端失败", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSEARCH_MAILSTORE_BACKEND", "exchange")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid mailstore.backend")
	})

	t.Run("IMAP后端缺少主机失败", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSEARCH_MAILSTORE_BACKEND", "imap")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "mailstore.host is required")
	})

	t.Run("无效的缓存TTL失败", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSEARCH_CACHE_TTL", "invalid-duration")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid cache.ttl")
	})

	t.Run("结果上限非正数失败", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSEARCH_SEARCH_MAX_SEARCH_RESULTS", "0")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "max_search_results must be positive")
	})

	t.Run("保留月数非正数失败", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSEARCH_SEARCH_PERSONAL_RETENTION_MONTHS", "-1")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "retention months must be positive")
	})
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "单个项目",
			input:    "item1",
			expected: []string{"item1"},
		},
		{
			name:     "多个项目",
			input:    "item1,item2,item3",
			expected: []string{"item1", "item2", "item3"},
		},
		{
			name:     "带空格的项目",
			input:    " item1 , item2 , item3 ",
			expected: []string{"item1", "item2", "item3"},
		},
		{
			name:     "空字符串",
			input:    "",
			expected: []string{},
		},
		{
			name:     "只有逗号",
			input:    ",,,",
			expected: []string{},
		},
		{
			name:     "混合空值",
			input:    "item1,,item2,",
			expected: []string{"item1", "item2"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := parseList(tc.input)
			assert.Equal(t, tc.expected, result)
		})
	}
}
