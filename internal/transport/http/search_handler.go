package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsearch/backend/internal/domain"
	"mailsearch/backend/internal/search"
)

// SearchHandler 邮件搜索接口
type SearchHandler struct {
	orchestrator *search.Orchestrator
	maxResults   int
	logger       *zap.Logger
}

// NewSearchHandler 创建搜索处理器。
// defaultMaxResults 为请求未给出结果上限时套用的全局配置上限。
func NewSearchHandler(orchestrator *search.Orchestrator, defaultMaxResults int, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		orchestrator: orchestrator,
		maxResults:   defaultMaxResults,
		logger:       logger,
	}
}

// searchRequest 搜索请求体
type searchRequest struct {
	SearchText      string `json:"searchText" binding:"required"`
	IncludePersonal *bool  `json:"includePersonal"`
	IncludeShared   *bool  `json:"includeShared"`
	MaxResults      int    `json:"maxResults"`
}

// searchTroubleshooting 搜索失败时返回给调用方的排查建议。
var searchTroubleshooting = []string{
	"Verify Outlook connection",
	"Use specific search terms for best results",
	"Ensure mailboxes are accessible",
}

// Search 处理 POST /api/v1/emails/search
//
// 范围开关默认全开，结果上限缺省时用配置的全局上限。
// 范围级失败不影响成功范围的结果，以 errors 字段随数据一起返回；
// 仅当所有请求范围都无法建连时返回错误载荷。
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	query := domain.SearchQuery{
		Text:            req.SearchText,
		IncludePersonal: true,
		IncludeShared:   true,
		MaxResults:      req.MaxResults,
	}
	if query.MaxResults <= 0 {
		query.MaxResults = h.maxResults
	}
	if req.IncludePersonal != nil {
		query.IncludePersonal = *req.IncludePersonal
	}
	if req.IncludeShared != nil {
		query.IncludeShared = *req.IncludeShared
	}

	result, err := h.orchestrator.Search(c.Request.Context(), query)
	if err != nil {
		var connErr *domain.ConnectionError
		if errors.As(err, &connErr) {
			h.logger.Error("search failed before any scope produced results",
				zap.String("text", query.Text),
				zap.Error(err),
			)
			SearchError(c, query.Text, "Could not search emails: "+err.Error())
			return
		}
		BadRequest(c, err.Error())
		return
	}

	Success(c, gin.H{
		"searchText": query.Text,
		"count":      len(result.Records),
		"records":    result.Records,
		"errors":     result.Errors,
	})
}
