package model

import (
	"time"
)

// 同步进度状态
const (
	SyncRunning   = "running"
	SyncCompleted = "completed"
	SyncCancelled = "cancelled"
	SyncError     = "error"
	SyncIdle      = "idle"
)

// SyncProgressID 进度表只有一行
const SyncProgressID = "current"

// SyncProgress 全量同步进度，前端轮询/订阅它，取消也写在这一行上
type SyncProgress struct {
	ID        string    `json:"id" gorm:"primaryKey;size:20"`
	Status    string    `json:"status" gorm:"size:20"`
	Site      string    `json:"site" gorm:"size:10"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SyncProgress) TableName() string {
	return "sync_progress"
}
