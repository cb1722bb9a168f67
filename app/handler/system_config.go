package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jersey-hub/app/database"
	"jersey-hub/app/model"
)

// SystemConfigHandler 系统配置处理器
type SystemConfigHandler struct{}

// NewSystemConfigHandler 创建系统配置处理器
func NewSystemConfigHandler() *SystemConfigHandler {
	return &SystemConfigHandler{}
}

func (h *SystemConfigHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: message, Data: data})
}

func (h *SystemConfigHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{Code: errorCode, Message: message})
}

// ConfigCategoryResponse 配置分类响应结构
type ConfigCategoryResponse struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// GetConfigCategories 获取配置分类常量
func (h *SystemConfigHandler) GetConfigCategories(c *gin.Context) {
	categories := []ConfigCategoryResponse{
		{Key: model.CategorySystem, Description: "系统配置"},
		{Key: model.CategorySecurity, Description: "安全配置"},
		{Key: model.CategoryAds, Description: "广告账户配置"},
		{Key: model.CategoryAI, Description: "AI 生成配置"},
	}

	h.success(c, categories, "success")
}

// List 配置列表，支持按分类过滤
func (h *SystemConfigHandler) List(c *gin.Context) {
	db := database.GetDB().Model(&model.SystemConfig{}).Where("is_visible = ?", true)

	if category := c.Query("category"); category != "" {
		db = db.Where("category = ?", category)
	}

	var configs []model.SystemConfig
	if err := db.Order("sort_order ASC, config_key ASC").Find(&configs).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询配置失败")
		return
	}

	h.success(c, configs, "success")
}

// UpsertRequest 创建/更新配置请求
type UpsertRequest struct {
	ConfigKey   string `json:"config_key" binding:"required"`
	ConfigValue string `json:"config_value"`
	ConfigType  string `json:"config_type"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Upsert 按配置键创建或更新配置
func (h *SystemConfigHandler) Upsert(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	db := database.GetDB()

	var existing model.SystemConfig
	err := db.Where("config_key = ?", req.ConfigKey).First(&existing).Error
	if err == nil {
		if existing.IsSystem {
			h.error(c, http.StatusForbidden, 403, "系统配置不允许修改键以外的属性")
			return
		}
		updates := map[string]any{"config_value": req.ConfigValue}
		if req.Description != "" {
			updates["description"] = req.Description
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			h.error(c, http.StatusInternalServerError, 500, "更新配置失败")
			return
		}
		h.success(c, existing, "配置已更新")
		return
	}

	cfg := model.SystemConfig{
		ConfigKey:   req.ConfigKey,
		ConfigValue: req.ConfigValue,
		ConfigType:  req.ConfigType,
		Category:    req.Category,
		Description: req.Description,
		IsVisible:   true,
	}
	if cfg.ConfigType == "" {
		cfg.ConfigType = model.TypeString
	}
	if cfg.Category == "" {
		cfg.Category = model.CategorySystem
	}

	if err := db.Create(&cfg).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "创建配置失败")
		return
	}
	h.success(c, cfg, "配置已创建")
}

// Delete 删除配置
func (h *SystemConfigHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的配置ID")
		return
	}

	db := database.GetDB()

	var cfg model.SystemConfig
	if err := db.First(&cfg, id).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "配置不存在")
		return
	}
	if cfg.IsSystem {
		h.error(c, http.StatusForbidden, 403, "系统配置不允许删除")
		return
	}

	if err := db.Delete(&cfg).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "删除配置失败")
		return
	}
	h.success(c, nil, "配置已删除")
}
