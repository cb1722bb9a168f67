package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"jersey-hub/app/service"
)

// AnalyticsHandler 经营数据处理器。
// 聚合结果缓存 60 秒，仪表盘轮询不会反复打库。
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	cache     *gocache.Cache
}

// NewAnalyticsHandler 创建经营数据处理器
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		cache:     gocache.New(60*time.Second, 5*time.Minute),
	}
}

func (h *AnalyticsHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: message, Data: data})
}

func (h *AnalyticsHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{Code: errorCode, Message: message})
}

// Report 仪表盘汇总（默认最近 30 天）
func (h *AnalyticsHandler) Report(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}

	cacheKey := fmt.Sprintf("report:%d", days)
	if cached, ok := h.cache.Get(cacheKey); ok {
		h.success(c, cached, "success")
		return
	}

	report, err := h.analytics.Report(days)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "统计失败")
		return
	}

	h.cache.SetDefault(cacheKey, report)
	h.success(c, report, "success")
}
