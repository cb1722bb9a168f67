package database

import (
	"fmt"

	"jersey-hub/app/config"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
	"jersey-hub/app/utils"
)

// InitAdminUser 按配置初始化管理员账户。
// 已有管理员时跟随配置更新用户名和密码，保证配置文件是唯一事实来源。
func InitAdminUser(cfg *config.Config, log *logger.Logger) error {
	if cfg.Server.Username == "" || cfg.Server.Password == "" {
		return fmt.Errorf("管理员账户配置不能为空，请在配置文件中设置 username 和 password")
	}

	var admin model.User
	if err := DB.Where("is_admin = ?", true).First(&admin).Error; err == nil {
		return syncAdmin(cfg, log, &admin)
	}

	hashed, err := utils.HashPassword(cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("哈希密码失败: %v", err)
	}

	admin = model.User{
		Username: cfg.Server.Username,
		Password: hashed,
		Email:    "admin@jerseysfever.com",
		IsActive: true,
		IsAdmin:  true,
	}
	if err := DB.Create(&admin).Error; err != nil {
		return fmt.Errorf("创建管理员账户失败: %v", err)
	}

	log.Infof("管理员账户 '%s' 创建成功", cfg.Server.Username)
	return nil
}

// syncAdmin 把已有管理员对齐到配置里的用户名和密码
func syncAdmin(cfg *config.Config, log *logger.Logger, admin *model.User) error {
	changed := false

	if admin.Username != cfg.Server.Username {
		var conflict model.User
		if err := DB.Where("username = ? AND id != ?", cfg.Server.Username, admin.ID).First(&conflict).Error; err == nil {
			return fmt.Errorf("用户名 '%s' 已被其他用户使用，无法更新管理员用户名", cfg.Server.Username)
		}
		log.Infof("管理员用户名从 '%s' 更新为 '%s'", admin.Username, cfg.Server.Username)
		admin.Username = cfg.Server.Username
		changed = true
	}

	if !utils.VerifyPassword(cfg.Server.Password, admin.Password) {
		hashed, err := utils.HashPassword(cfg.Server.Password)
		if err != nil {
			return fmt.Errorf("哈希密码失败: %v", err)
		}
		admin.Password = hashed
		changed = true
		log.Infof("管理员 '%s' 密码已更新", cfg.Server.Username)
	}

	if !changed {
		return nil
	}
	if err := DB.Save(admin).Error; err != nil {
		return fmt.Errorf("更新管理员账户失败: %v", err)
	}
	return nil
}
