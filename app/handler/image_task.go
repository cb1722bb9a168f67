package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jersey-hub/app/service"
	"jersey-hub/pkg/notify"
)

// ImageTaskHandler 图片任务处理器。
// 提交立即返回幻影任务，权威状态通过 SSE 推送；这里的接口全部是
// 整表替换语义，前端不需要做增量修补。
type ImageTaskHandler struct {
	tasks    *service.ImageTaskService
	transfer *service.TransferService
	notifier *notify.Service
}

// NewImageTaskHandler 创建图片任务处理器
func NewImageTaskHandler(tasks *service.ImageTaskService, transfer *service.TransferService, notifier *notify.Service) *ImageTaskHandler {
	return &ImageTaskHandler{
		tasks:    tasks,
		transfer: transfer,
		notifier: notifier,
	}
}

func (h *ImageTaskHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: message, Data: data})
}

func (h *ImageTaskHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{Code: errorCode, Message: message})
}

func (h *ImageTaskHandler) productID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的商品ID")
		return 0, false
	}
	return uint(id), true
}

// SubmitRequest 批量提交请求
type SubmitRequest struct {
	SourceRefs  []string `json:"source_refs"`
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model"`
	AspectRatio string   `json:"aspect_ratio"`
}

// Submit 批量提交图片编辑任务。
// 来源或提示词为空时静默返回空列表，不算错误。
func (h *ImageTaskHandler) Submit(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	phantoms := h.tasks.SubmitBatch(productID, req.SourceRefs, req.Prompt, req.Model, req.AspectRatio)
	h.success(c, phantoms, "已提交")
}

// List 商品的合并任务视图
func (h *ImageTaskHandler) List(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	merged, err := h.tasks.MergedList(productID)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询任务失败")
		return
	}

	h.success(c, merged, "success")
}

// Delete 删除权威任务（乐观删除，失败自动回滚显示）
func (h *ImageTaskHandler) Delete(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	taskID, err := strconv.ParseUint(c.Param("taskId"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的任务ID")
		return
	}

	if err := h.tasks.DeleteTask(productID, uint(taskID)); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "删除任务失败")
		return
	}

	h.success(c, nil, "已删除")
}

// DeletePhantom 删除未落库的幻影任务
func (h *ImageTaskHandler) DeletePhantom(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	localID := c.Param("localId")
	if !h.tasks.DeletePhantom(productID, localID) {
		h.error(c, http.StatusNotFound, 404, "本地任务不存在")
		return
	}

	h.success(c, nil, "已删除")
}

// Retry 重试失败的权威任务
func (h *ImageTaskHandler) Retry(c *gin.Context) {
	if _, ok := h.productID(c); !ok {
		return
	}

	taskID, err := strconv.ParseUint(c.Param("taskId"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的任务ID")
		return
	}

	if err := h.tasks.RetryTask(uint(taskID)); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	h.success(c, nil, "已重新排队")
}

// RetryPhantom 重试落库失败的幻影任务
func (h *ImageTaskHandler) RetryPhantom(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	localID := c.Param("localId")
	if err := h.tasks.RetryPhantom(productID, localID); err != nil {
		h.error(c, http.StatusNotFound, 404, err.Error())
		return
	}

	h.success(c, nil, "已重新提交")
}

// Apply 把任务结果应用到商品图
func (h *ImageTaskHandler) Apply(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	taskID, err := strconv.ParseUint(c.Param("taskId"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的任务ID")
		return
	}

	if err := h.tasks.Apply(productID, uint(taskID)); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	h.success(c, nil, "已应用到商品图")
}

// Clear 清空商品的全部任务
func (h *ImageTaskHandler) Clear(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	if err := h.tasks.ClearByProduct(productID); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "清空任务失败")
		return
	}

	h.success(c, nil, "已清空")
}

// TransferTask 转存单个已完成任务的远端结果图
func (h *ImageTaskHandler) TransferTask(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	taskID, err := strconv.ParseUint(c.Param("taskId"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的任务ID")
		return
	}

	if err := h.transfer.TransferTask(c.Request.Context(), uint(taskID)); err != nil {
		h.error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}

	h.tasks.PublishTasks(productID)
	h.success(c, nil, "转存完成")
}

// Transfer 把商品下所有已完成任务的远端结果图转存到本地
func (h *ImageTaskHandler) Transfer(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}

	stats, err := h.transfer.TransferByProduct(c.Request.Context(), productID, nil)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}

	if stats.Failed > 0 {
		h.notifier.Push(notify.LevelWarning, "部分图片转存失败")
	}
	h.success(c, stats, "转存完成")
}

// Pending 全局未完成任务数
func (h *ImageTaskHandler) Pending(c *gin.Context) {
	count, err := h.tasks.PendingCount()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询失败")
		return
	}

	h.success(c, gin.H{"pending": count}, "success")
}

// Notices 活动通知列表
func (h *ImageTaskHandler) Notices(c *gin.Context) {
	h.success(c, h.notifier.Active(), "success")
}

// DismissNotice 关闭一条通知
func (h *ImageTaskHandler) DismissNotice(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的通知ID")
		return
	}

	if !h.notifier.Dismiss(id) {
		h.error(c, http.StatusNotFound, 404, "通知不存在")
		return
	}
	h.success(c, nil, "已关闭")
}
