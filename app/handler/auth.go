package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jersey-hub/app/auth"
	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/model"
	"jersey-hub/app/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config     *config.Config
	jwtService *auth.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		jwtService: auth.NewJWTService(cfg),
	}
}

// 创建成功响应
func (h *AuthHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// 创建错误响应
func (h *AuthHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	})
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Token    string      `json:"token"`
	User     *model.User `json:"user"`
	ExpireAt int64       `json:"expire_at"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	var user model.User
	db := database.GetDB()
	result := db.Where("username = ?", req.Username).First(&user)
	if result.Error != nil {
		h.error(c, http.StatusUnauthorized, 401, "用户名或密码错误")
		return
	}

	if !utils.VerifyPassword(req.Password, user.Password) {
		h.error(c, http.StatusUnauthorized, 401, "用户名或密码错误")
		return
	}

	if !user.IsActive {
		h.error(c, http.StatusForbidden, 403, "用户账号已被禁用")
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "生成令牌失败")
		return
	}

	// 更新最后登录时间
	now := time.Now()
	user.LastLogin = &now
	db.Save(&user)

	expireAt := time.Now().Add(time.Duration(h.config.JWT.ExpireTime) * time.Hour).Unix()

	h.success(c, LoginResponse{
		Token:    token,
		User:     &user,
		ExpireAt: expireAt,
	}, "登录成功")
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
		h.error(c, http.StatusUnauthorized, 401, "缺少认证令牌")
		return
	}

	newToken, err := h.jwtService.RefreshToken(authHeader[7:])
	if err != nil {
		h.error(c, http.StatusUnauthorized, 401, "令牌刷新失败: "+err.Error())
		return
	}

	expireAt := time.Now().Add(time.Duration(h.config.JWT.ExpireTime) * time.Hour).Unix()
	h.success(c, gin.H{
		"token":     newToken,
		"expire_at": expireAt,
	}, "令牌刷新成功")
}

// Profile 当前登录用户信息
func (h *AuthHandler) Profile(c *gin.Context) {
	userID := c.GetUint("user_id")

	var user model.User
	if err := database.GetDB().First(&user, userID).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "用户不存在")
		return
	}

	h.success(c, &user, "success")
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword 修改密码
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	userID := c.GetUint("user_id")
	db := database.GetDB()

	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "用户不存在")
		return
	}

	if !utils.VerifyPassword(req.OldPassword, user.Password) {
		h.error(c, http.StatusUnauthorized, 401, "原密码错误")
		return
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "密码加密失败")
		return
	}

	if err := db.Model(&user).Update("password", hashed).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "更新密码失败")
		return
	}

	h.success(c, nil, "密码修改成功")
}
