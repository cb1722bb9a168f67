// Package taskcache 实现乐观任务列表：本地幻影任务与服务端权威任务按
// 来源图片去重合并，提交后无需等待落库即可立即反馈。
//
// 约定：
//   - 幻影任务（IsLocal=true）在提交瞬间写入，权威记录出现后被移除，
//     同一来源图片在合并结果里永远只出现一次；
//   - 所有写操作都在 Cache 内部加锁，读出的切片均为副本；
//   - Merge 是纯函数，不依赖 Cache，可独立测试。
package taskcache

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Status 任务状态，与 image_tasks 表保持同一组取值
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task 合并视图里的任务快照。权威记录有 ID，幻影记录有 LocalID。
type Task struct {
	ID          uint      `json:"id,omitempty"`
	LocalID     string    `json:"local_id,omitempty"`
	BatchID     string    `json:"batch_id,omitempty"`
	ProductID   uint      `json:"product_id"`
	SourceRef   string    `json:"source_ref"`
	ResultRef   string    `json:"result_ref,omitempty"`
	Prompt      string    `json:"prompt"`
	Model       string    `json:"model"`
	AspectRatio string    `json:"aspect_ratio"`
	Status      Status    `json:"status"`
	ErrorMsg    string    `json:"error_msg,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	IsLocal     bool      `json:"is_local"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewLocalID 生成幻影任务的临时ID：时间戳加随机后缀
func NewLocalID() string {
	return fmt.Sprintf("local-%d-%04d", time.Now().UnixNano(), rand.Intn(10000))
}

// Merge 合并权威列表与本地幻影列表。
// 规则：已出现在 server 里的来源图片，其幻影被丢弃；保留的幻影排在权威
// 记录之前，再整体按创建时间倒序稳定排序。返回新切片，不修改入参。
func Merge(server, local []Task) []Task {
	seen := make(map[string]bool, len(server))
	for _, t := range server {
		seen[t.SourceRef] = true
	}

	merged := make([]Task, 0, len(server)+len(local))
	for _, t := range local {
		if !seen[t.SourceRef] {
			merged = append(merged, t)
		}
	}
	merged = append(merged, server...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}
