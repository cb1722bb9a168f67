package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"jersey-hub/app/logger"
	"jersey-hub/app/service"
)

// SyncHandler 同步处理器
type SyncHandler struct {
	syncService *service.SyncService
	log         *logger.Logger
}

// NewSyncHandler 创建同步处理器
func NewSyncHandler(syncService *service.SyncService, log *logger.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		log:         log,
	}
}

func (h *SyncHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: message, Data: data})
}

func (h *SyncHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{Code: errorCode, Message: message})
}

// StartRequest 启动同步请求
type StartRequest struct {
	Sites []string `json:"sites"` // 为空时同步全部站点
}

// Start 启动全量同步（异步执行，进度走 SSE 和进度接口）
func (h *SyncHandler) Start(c *gin.Context) {
	if h.syncService.Running() {
		h.error(c, http.StatusConflict, 409, "已有同步在进行中")
		return
	}

	var req StartRequest
	_ = c.ShouldBindJSON(&req)

	go func() {
		if _, err := h.syncService.FullSync(context.Background(), req.Sites); err != nil {
			h.log.Errorf("后台同步结束: %v", err)
		}
	}()

	h.success(c, nil, "同步已启动")
}

// Cancel 取消当前同步
func (h *SyncHandler) Cancel(c *gin.Context) {
	if !h.syncService.RequestCancel() {
		h.error(c, http.StatusConflict, 409, "当前没有进行中的同步")
		return
	}

	h.success(c, nil, "取消请求已发出")
}

// Progress 当前同步进度
func (h *SyncHandler) Progress(c *gin.Context) {
	progress, err := h.syncService.Progress()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "读取进度失败")
		return
	}

	h.success(c, progress, "success")
}
