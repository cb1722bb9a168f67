package model

import (
	"time"
)

// TaskStatus 图片任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ImageTask AI 图片编辑任务。
// SourceRef 是输入图片的地址，同一商品下由它去重；BatchID 标记同一次批量提交。
type ImageTask struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	ProductID   uint       `json:"product_id" gorm:"not null;index"`
	BatchID     string     `json:"batch_id" gorm:"index;size:40"`
	SourceRef   string     `json:"source_ref" gorm:"not null;index"`
	ResultRef   string     `json:"result_ref"`
	Prompt      string     `json:"prompt" gorm:"type:text"`
	Model       string     `json:"model" gorm:"size:60"`
	AspectRatio string     `json:"aspect_ratio" gorm:"size:10"`
	Status      TaskStatus `json:"status" gorm:"default:'pending';index"`
	ErrorMsg    string     `json:"error_msg"`
	DurationMS  int64      `json:"duration_ms"`
	Retries     int        `json:"retries" gorm:"default:0"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (ImageTask) TableName() string {
	return "image_tasks"
}
