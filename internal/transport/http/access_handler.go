package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsearch/backend/internal/search"
)

// AccessHandler 邮箱可达性检查接口
type AccessHandler struct {
	orchestrator *search.Orchestrator
	logger       *zap.Logger
}

// NewAccessHandler 创建可达性检查处理器
func NewAccessHandler(orchestrator *search.Orchestrator, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// accessTroubleshooting 所有邮箱均不可达时返回的排查建议。
var accessTroubleshooting = []string{
	"Make sure Outlook is running",
	"Grant permission when security dialog appears",
	"Check network connectivity",
}

// Check 处理 GET /api/v1/mailbox/access
//
// 各范围的探测错误收进载荷的 errors 字段。仅当没有任何邮箱可达时
// 返回错误载荷并附带排查建议。
func (h *AccessHandler) Check(c *gin.Context) {
	status := h.orchestrator.CheckAccess(c.Request.Context())

	if len(status.Errors) > 0 {
		h.logger.Warn("mailbox access check reported errors",
			zap.Strings("errors", status.Errors),
		)
	}

	if !status.PersonalAccessible && !status.SharedAccessible {
		AccessError(c, status.Errors)
		return
	}

	Success(c, status)
}
