package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jersey-hub/app/database"
	"jersey-hub/app/model"
	"jersey-hub/app/service"
)

// ProductHandler 商品处理器
type ProductHandler struct {
	syncService *service.SyncService
	copywriter  *service.CopywriterService
}

// NewProductHandler 创建商品处理器
func NewProductHandler(syncService *service.SyncService, copywriter *service.CopywriterService) *ProductHandler {
	return &ProductHandler{
		syncService: syncService,
		copywriter:  copywriter,
	}
}

func (h *ProductHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: message, Data: data})
}

func (h *ProductHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{Code: errorCode, Message: message})
}

// ProductListResponse 商品列表响应
type ProductListResponse struct {
	Items    []model.Product `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// List 商品列表，支持按 SKU/名称搜索和分页
func (h *ProductHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	db := database.GetDB().Model(&model.Product{})

	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		db = db.Where("sku LIKE ? OR name LIKE ?", like, like)
	}
	if category := c.Query("category"); category != "" {
		db = db.Where("categories LIKE ?", "%\""+category+"\"%")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询商品失败")
		return
	}

	var products []model.Product
	err := db.Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&products).Error
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询商品失败")
		return
	}

	h.success(c, ProductListResponse{
		Items:    products,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, "success")
}

// Get 单个商品详情
func (h *ProductHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的商品ID")
		return
	}

	var product model.Product
	if err := database.GetDB().First(&product, id).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "商品不存在")
		return
	}

	h.success(c, product, "success")
}

// UpdateSiteRequest 更新站点维度字段的请求
type UpdateSiteRequest struct {
	Site          string             `json:"site" binding:"required"`
	RegularPrice  *float64           `json:"regular_price"`
	StockQuantity *int               `json:"stock_quantity"`
	Status        *string            `json:"status"`
	Content       *model.SiteContent `json:"content"`
}

// UpdateSite 修改商品的站点维度字段，修改后该站点标记为 modified
func (h *ProductHandler) UpdateSite(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的商品ID")
		return
	}

	var req UpdateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	db := database.GetDB()
	var product model.Product
	if err := db.First(&product, id).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "商品不存在")
		return
	}

	if product.RegularPrices == nil {
		product.RegularPrices = model.PriceMap{}
	}
	if product.StockQuantities == nil {
		product.StockQuantities = model.IntMap{}
	}
	if product.Statuses == nil {
		product.Statuses = model.StringMap{}
	}
	if product.Content == nil {
		product.Content = model.ContentMap{}
	}
	if product.SyncStatus == nil {
		product.SyncStatus = model.StringMap{}
	}

	if req.RegularPrice != nil {
		product.RegularPrices[req.Site] = *req.RegularPrice
	}
	if req.StockQuantity != nil {
		product.StockQuantities[req.Site] = *req.StockQuantity
	}
	if req.Status != nil {
		product.Statuses[req.Site] = *req.Status
	}
	if req.Content != nil {
		product.Content[req.Site] = *req.Content
	}
	product.SyncStatus[req.Site] = model.SyncStatusModified

	err = db.Model(&product).Updates(map[string]any{
		"regular_prices":   product.RegularPrices,
		"stock_quantities": product.StockQuantities,
		"statuses":         product.Statuses,
		"content":          product.Content,
		"sync_status":      product.SyncStatus,
	}).Error
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "保存失败")
		return
	}

	h.success(c, product, "已保存，等待推送")
}

// UpdateImagesRequest 图片列表更新请求
type UpdateImagesRequest struct {
	Images []string `json:"images"`
}

// UpdateImages 整体替换商品图片列表
func (h *ProductHandler) UpdateImages(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的商品ID")
		return
	}

	var req UpdateImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	db := database.GetDB()
	var product model.Product
	if err := db.First(&product, id).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "商品不存在")
		return
	}

	images := model.StringSlice(req.Images)
	if err := db.Model(&product).Update("images", images).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "保存失败")
		return
	}

	product.Images = images
	h.success(c, product, "图片已更新")
}

// Delete 删除商品（软删除，站点数据不受影响）
func (h *ProductHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的商品ID")
		return
	}

	if err := database.GetDB().Delete(&model.Product{}, id).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "删除失败")
		return
	}

	h.success(c, nil, "已删除")
}

// PushRequest 推送请求
type PushRequest struct {
	Sites []string `json:"sites"`
}

// Push 把本地修改推回站点
func (h *ProductHandler) Push(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的商品ID")
		return
	}

	var req PushRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.syncService.PushProduct(c.Request.Context(), uint(id), req.Sites); err != nil {
		h.error(c, http.StatusBadGateway, 502, err.Error())
		return
	}

	h.success(c, nil, "推送成功")
}

// GenerateCopyRequest 文案生成请求
type GenerateCopyRequest struct {
	Site string `json:"site"` // 为空时生成全部非主站点
}

// GenerateCopy 为商品生成本地化文案
func (h *ProductHandler) GenerateCopy(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的商品ID")
		return
	}

	var req GenerateCopyRequest
	_ = c.ShouldBindJSON(&req)

	if req.Site != "" {
		content, err := h.copywriter.GenerateForSite(c.Request.Context(), uint(id), req.Site)
		if err != nil {
			h.error(c, http.StatusBadGateway, 502, err.Error())
			return
		}
		h.success(c, content, "文案生成完成")
		return
	}

	contents, err := h.copywriter.GenerateAll(c.Request.Context(), uint(id))
	if err != nil {
		h.error(c, http.StatusBadGateway, 502, err.Error())
		return
	}
	h.success(c, contents, "文案生成完成")
}
