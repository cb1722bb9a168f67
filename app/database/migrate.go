package database

import "jersey-hub/app/model"

func AutoMigrate() error {
	// 自动迁移表结构
	return DB.AutoMigrate(
		&model.SystemConfig{},
		&model.User{},
		&model.Product{},
		&model.Order{},
		&model.ImageTask{},
		&model.SyncProgress{},
	)
}
