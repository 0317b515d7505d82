// Package health 暴露存活与就绪探针。
package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// HealthChecker 健康检查器
//
// 存活探针只确认进程在运行；就绪探针确认邮件存储会话可用，
// 由调用方注入探测函数（通常为 connection.Manager 的连通性判定）。
type HealthChecker struct {
	health     healthcheck.Handler
	storeProbe func() error
	logger     *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// 参数:
//   - storeProbe: 邮件存储可达性探测，nil 表示跳过该项检查
func NewHealthChecker(storeProbe func() error, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:     healthcheck.NewHandler(),
		storeProbe: storeProbe,
		logger:     logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 进程存活检查
	hc.health.AddLivenessCheck("process", func() error {
		return nil
	})

	// 邮件存储就绪检查
	if hc.storeProbe != nil {
		hc.health.AddReadinessCheck("mailstore", func() error {
			return hc.storeProbe()
		})
	}
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活探针端点
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针端点
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行健康检查
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if hc.storeProbe != nil {
		if err := hc.storeProbe(); err != nil {
			results["mailstore"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["mailstore"] = "OK"
		}
	} else {
		results["mailstore"] = "NOT_AVAILABLE"
	}

	results["system"] = "OK"
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
