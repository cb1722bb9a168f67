package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jersey-hub/app/database"
	"jersey-hub/app/model"
	"jersey-hub/app/service"
)

// OrderHandler 订单处理器
type OrderHandler struct {
	syncService *service.SyncService
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(syncService *service.SyncService) *OrderHandler {
	return &OrderHandler{syncService: syncService}
}

func (h *OrderHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: message, Data: data})
}

func (h *OrderHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{Code: errorCode, Message: message})
}

// OrderListResponse 订单列表响应
type OrderListResponse struct {
	Items    []model.Order `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// List 订单列表，支持按站点和状态过滤
func (h *OrderHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	db := database.GetDB().Model(&model.Order{})

	if site := c.Query("site"); site != "" {
		db = db.Where("site = ?", site)
	}
	if status := c.Query("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		db = db.Where("number LIKE ? OR customer_email LIKE ? OR customer_name LIKE ?", like, like, like)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询订单失败")
		return
	}

	var orders []model.Order
	err := db.Order("placed_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询订单失败")
		return
	}

	h.success(c, OrderListResponse{
		Items:    orders,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, "success")
}

// Get 订单详情
func (h *OrderHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的订单ID")
		return
	}

	var order model.Order
	if err := database.GetDB().First(&order, id).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "订单不存在")
		return
	}

	h.success(c, order, "success")
}

// UpdateStatusRequest 订单状态更新请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 更新订单状态：先推到站点，成功后更新本地快照
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的订单ID")
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	db := database.GetDB()
	var order model.Order
	if err := db.First(&order, id).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "订单不存在")
		return
	}

	if err := h.syncService.PushOrderStatus(c.Request.Context(), order.Site, order.WooID, req.Status); err != nil {
		h.error(c, http.StatusBadGateway, 502, err.Error())
		return
	}

	if err := db.Model(&order).Update("status", req.Status).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "本地状态更新失败")
		return
	}

	order.Status = req.Status
	h.success(c, order, "订单状态已更新")
}

// Pull 手动拉取各站点最近订单
func (h *OrderHandler) Pull(c *gin.Context) {
	count, err := h.syncService.SyncOrders(c.Request.Context())
	if err != nil {
		h.error(c, http.StatusBadGateway, 502, err.Error())
		return
	}

	h.success(c, gin.H{"count": count}, "订单拉取完成")
}
