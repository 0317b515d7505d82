package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空表示仅输出到控制台
}

// MailstoreConfig 定义外部邮件存储的连接配置
type MailstoreConfig struct {
	Backend string // 存储后端: "imap" 或 "memory"（开发/测试用）
	Host    string // IMAP 服务器地址
	Port    int    // IMAP 服务器端口，默认 993
	TLS     bool   // 是否使用隐式 TLS（false 时走 STARTTLS）

	Username string // 登录用户名
	Password string // 登录密码

	UseExtendedLogin bool   // 使用扩展认证（SASL PLAIN）而非简单登录
	SharedNamespace  string // 共享邮箱的命名空间前缀

	SharedMailboxEmail   string        // 共享邮箱地址，留空禁用共享范围
	MaxConnectionRetries int           // 建连最大重试次数，默认 3
	ConnectBackoffBase   time.Duration // 首次重试前的退避，默认 1s
}

// SearchConfig 定义搜索编排的业务配置
type SearchConfig struct {
	PersonalRetentionMonths int  // 个人邮箱保留月数，默认 6
	SharedRetentionMonths   int  // 共享邮箱保留月数，默认 12
	MaxSearchResults        int  // 单次搜索结果上限，默认 500
	MaxBodyChars            int  // 正文字符上限，0 表示不截断
	MaxRecipientsDisplay    int  // 收件人显示条数上限，默认 10
	SearchAllFolders        bool // 启用次级文件夹扫描
	CleanHTMLContent        bool // 启用正文 HTML 清洗
	BatchProcessingSize     int  // 日期回退每窗口扫描上限，默认 50
}

// CacheConfig 定义搜索结果缓存配置
type CacheConfig struct {
	MaxEntries int           // 最大缓存条目数，默认 100
	TTL        time.Duration // 条目存活时间，默认 1h
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig    // HTTP 服务器配置
	CORS      CORSConfig      // 跨域配置
	Log       LogConfig       // 日志配置
	Mailstore MailstoreConfig // 邮件存储配置
	Search    SearchConfig    // 搜索配置
	Cache     CacheConfig     // 结果缓存配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILSEARCH_
// 例如: MAILSEARCH_SERVER_PORT, MAILSEARCH_MAILSTORE_SHARED_MAILBOX_EMAIL
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 配置验证失败时返回错误
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailsearch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("mailstore.backend", "memory")
	viper.SetDefault("mailstore.host", "")
	viper.SetDefault("mailstore.port", 993)
	viper.SetDefault("mailstore.tls", true)
	viper.SetDefault("mailstore.username", "")
	viper.SetDefault("mailstore.password", "")
	viper.SetDefault("mailstore.use_extended_mapi_login", true)
	viper.SetDefault("mailstore.shared_namespace", "Shared")
	viper.SetDefault("mailstore.shared_mailbox_email", "")
	viper.SetDefault("mailstore.max_connection_retries", 3)
	viper.SetDefault("mailstore.connect_backoff_base", "1s")
	viper.SetDefault("search.personal_retention_months", 6)
	viper.SetDefault("search.shared_retention_months", 12)
	viper.SetDefault("search.max_search_results", 500)
	viper.SetDefault("search.max_body_chars", 0)
	viper.SetDefault("search.max_recipients_display", 10)
	viper.SetDefault("search.search_all_folders", true)
	viper.SetDefault("search.clean_html_content", true)
	viper.SetDefault("search.batch_processing_size", 50)
	viper.SetDefault("cache.max_entries", 100)
	viper.SetDefault("cache.ttl", "1h")

	backend := strings.ToLower(viper.GetString("mailstore.backend"))
	if backend != "imap" && backend != "memory" {
		return nil, fmt.Errorf("invalid mailstore.backend %q: must be \"imap\" or \"memory\"", backend)
	}
	if backend == "imap" && viper.GetString("mailstore.host") == "" {
		return nil, fmt.Errorf("mailstore.host is required when mailstore.backend is \"imap\"")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	backoffBase, err := time.ParseDuration(viper.GetString("mailstore.connect_backoff_base"))
	if err != nil {
		backoffBase = time.Second
	}

	cacheTTL, err := time.ParseDuration(viper.GetString("cache.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid cache.ttl: %w", err)
	}

	maxResults := viper.GetInt("search.max_search_results")
	if maxResults <= 0 {
		return nil, fmt.Errorf("search.max_search_results must be positive, got %d", maxResults)
	}

	personalMonths := viper.GetInt("search.personal_retention_months")
	sharedMonths := viper.GetInt("search.shared_retention_months")
	if personalMonths <= 0 || sharedMonths <= 0 {
		return nil, fmt.Errorf("retention months must be positive (personal=%d shared=%d)", personalMonths, sharedMonths)
	}

	retries := viper.GetInt("mailstore.max_connection_retries")
	if retries <= 0 {
		retries = 3
	}

	batchSize := viper.GetInt("search.batch_processing_size")
	if batchSize <= 0 {
		batchSize = 50
	}

	maxEntries := viper.GetInt("cache.max_entries")
	if maxEntries <= 0 {
		maxEntries = 100
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Mailstore: MailstoreConfig{
			Backend:              backend,
			Host:                 viper.GetString("mailstore.host"),
			Port:                 viper.GetInt("mailstore.port"),
			TLS:                  viper.GetBool("mailstore.tls"),
			Username:             viper.GetString("mailstore.username"),
			Password:             viper.GetString("mailstore.password"),
			UseExtendedLogin:     viper.GetBool("mailstore.use_extended_mapi_login"),
			SharedNamespace:      viper.GetString("mailstore.shared_namespace"),
			SharedMailboxEmail:   strings.TrimSpace(viper.GetString("mailstore.shared_mailbox_email")),
			MaxConnectionRetries: retries,
			ConnectBackoffBase:   backoffBase,
		},
		Search: SearchConfig{
			PersonalRetentionMonths: personalMonths,
			SharedRetentionMonths:   sharedMonths,
			MaxSearchResults:        maxResults,
			MaxBodyChars:            viper.GetInt("search.max_body_chars"),
			MaxRecipientsDisplay:    viper.GetInt("search.max_recipients_display"),
			SearchAllFolders:        viper.GetBool("search.search_all_folders"),
			CleanHTMLContent:        viper.GetBool("search.clean_html_content"),
			BatchProcessingSize:     batchSize,
		},
		Cache: CacheConfig{
			MaxEntries: maxEntries,
			TTL:        cacheTTL,
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	// 尝试当前目录的 .env
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	// 尝试父目录的 .env（从 backend/ 目录运行时）
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
