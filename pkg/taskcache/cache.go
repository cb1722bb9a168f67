package taskcache

import (
	"sync"
)

// Cache 单个会话（用户+商品）维度的乐观覆盖层。
// phantoms 保存尚未落库的幻影任务，hidden 保存被乐观删除的权威任务ID；
// 两者共同构成对权威列表的本地修正，出错时可整体回滚到之前的快照。
type Cache struct {
	mu       sync.Mutex
	phantoms []Task
	hidden   map[uint]bool
}

// Snapshot 缓存的不可变快照，用于乐观更新失败后的精确回滚
type Snapshot struct {
	phantoms []Task
	hidden   map[uint]bool
}

// NewCache 创建空缓存
func NewCache() *Cache {
	return &Cache{
		hidden: make(map[uint]bool),
	}
}

// AddPhantoms 把新幻影任务插到最前面
func (c *Cache) AddPhantoms(tasks ...Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.phantoms = append(append([]Task{}, tasks...), c.phantoms...)
}

// Phantoms 返回幻影列表副本
func (c *Cache) Phantoms() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Task, len(c.phantoms))
	copy(out, c.phantoms)
	return out
}

// MarkBatchFailed 把同一批次的幻影全部标记为失败，返回标记数量。
// 幻影不会被移除，留给用户重试或删除。
func (c *Cache) MarkBatchFailed(batchID, msg string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i := range c.phantoms {
		if c.phantoms[i].BatchID == batchID {
			c.phantoms[i].Status = StatusFailed
			c.phantoms[i].ErrorMsg = msg
			n++
		}
	}
	return n
}

// SetStatus 更新单个幻影的状态
func (c *Cache) SetStatus(localID string, status Status, msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.phantoms {
		if c.phantoms[i].LocalID == localID {
			c.phantoms[i].Status = status
			c.phantoms[i].ErrorMsg = msg
			return true
		}
	}
	return false
}

// FindLocal 按临时ID查找幻影
func (c *Cache) FindLocal(localID string) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.phantoms {
		if t.LocalID == localID {
			return t, true
		}
	}
	return Task{}, false
}

// RemoveLocal 删除单个幻影
func (c *Cache) RemoveLocal(localID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.phantoms {
		if t.LocalID == localID {
			c.phantoms = append(c.phantoms[:i], c.phantoms[i+1:]...)
			return true
		}
	}
	return false
}

// Hide 乐观隐藏一个权威任务（删除请求发出前调用）
func (c *Cache) Hide(serverID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hidden[serverID] = true
}

// Unhide 删除成功后清掉墓碑
func (c *Cache) Unhide(serverID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.hidden, serverID)
}

// Clear 清空所有本地状态（批量清除任务时使用）
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.phantoms = nil
	c.hidden = make(map[uint]bool)
}

// Snapshot 捕获当前状态，Restore 可精确还原
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		phantoms: make([]Task, len(c.phantoms)),
		hidden:   make(map[uint]bool, len(c.hidden)),
	}
	copy(snap.phantoms, c.phantoms)
	for id := range c.hidden {
		snap.hidden[id] = true
	}
	return snap
}

// Restore 回滚到快照状态
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.phantoms = make([]Task, len(snap.phantoms))
	copy(c.phantoms, snap.phantoms)
	c.hidden = make(map[uint]bool, len(snap.hidden))
	for id := range snap.hidden {
		c.hidden[id] = true
	}
}

// Prune 移除已被权威记录取代的幻影（对账）
func (c *Cache) Prune(server []Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(server))
	for _, t := range server {
		seen[t.SourceRef] = true
	}

	kept := c.phantoms[:0]
	for _, t := range c.phantoms {
		if !seen[t.SourceRef] {
			kept = append(kept, t)
		}
	}
	c.phantoms = kept
}

// Merged 对账后返回合并视图：先丢弃被取代的幻影，再滤掉被乐观删除的
// 权威记录，最后按 Merge 规则去重排序。push 与轮询两条通道都走这里，
// 调用顺序不影响结果。
func (c *Cache) Merged(server []Task) []Task {
	c.Prune(server)

	c.mu.Lock()
	visible := make([]Task, 0, len(server))
	for _, t := range server {
		if !c.hidden[t.ID] {
			visible = append(visible, t)
		}
	}
	local := make([]Task, len(c.phantoms))
	copy(local, c.phantoms)
	c.mu.Unlock()

	return Merge(visible, local)
}
