package taskcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func serverTask(id uint, source string, status Status, created time.Time) Task {
	return Task{ID: id, SourceRef: source, Status: status, CreatedAt: created}
}

func phantomTask(localID, batchID, source string, created time.Time) Task {
	return Task{
		LocalID:   localID,
		BatchID:   batchID,
		SourceRef: source,
		Status:    StatusPending,
		IsLocal:   true,
		CreatedAt: created,
	}
}

func sources(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.SourceRef)
	}
	return out
}

func TestMergeDeduplicatesBySource(t *testing.T) {
	server := []Task{
		serverTask(1, "img1", StatusCompleted, at(10)),
		serverTask(2, "img2", StatusProcessing, at(20)),
	}
	local := []Task{
		phantomTask("l1", "b1", "img1", at(30)), // 已被权威记录取代
		phantomTask("l2", "b1", "img3", at(40)),
	}

	merged := Merge(server, local)

	seen := make(map[string]int)
	for _, task := range merged {
		seen[task.SourceRef]++
	}
	for ref, n := range seen {
		assert.Equal(t, 1, n, "来源 %s 出现了 %d 次", ref, n)
	}

	// 权威记录全部保留，未被取代的幻影保留
	assert.ElementsMatch(t, []string{"img1", "img2", "img3"}, sources(merged))

	// img1 必须是权威记录，不是幻影
	for _, task := range merged {
		if task.SourceRef == "img1" {
			assert.False(t, task.IsLocal)
			assert.Equal(t, uint(1), task.ID)
		}
	}
}

func TestMergeOrdering(t *testing.T) {
	server := []Task{
		serverTask(1, "img1", StatusCompleted, at(5)),
		serverTask(2, "img2", StatusPending, at(25)),
	}
	local := []Task{
		phantomTask("l1", "b1", "img3", at(40)),
		phantomTask("l2", "b1", "img4", at(15)),
	}

	merged := Merge(server, local)

	require.Len(t, merged, 4)
	for i := 1; i < len(merged); i++ {
		assert.False(t, merged[i].CreatedAt.After(merged[i-1].CreatedAt),
			"位置 %d 的创建时间晚于前一项", i)
	}
	assert.Equal(t, []string{"img3", "img2", "img4", "img1"}, sources(merged))
}

func TestMergeIdempotent(t *testing.T) {
	server := []Task{
		serverTask(1, "img1", StatusCompleted, at(10)),
		serverTask(2, "img2", StatusFailed, at(20)),
	}
	local := []Task{phantomTask("l1", "b1", "img3", at(30))}

	once := Merge(server, local)
	twice := Merge(once, nil)

	assert.Equal(t, once, twice)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	server := []Task{
		serverTask(2, "img2", StatusPending, at(1)),
		serverTask(1, "img1", StatusPending, at(2)),
	}
	local := []Task{phantomTask("l1", "b1", "img3", at(0))}

	_ = Merge(server, local)

	assert.Equal(t, uint(2), server[0].ID, "入参被修改")
	assert.Equal(t, "img3", local[0].SourceRef)
}

func TestAddPhantomsImmediateFeedback(t *testing.T) {
	c := NewCache()

	batch := []Task{
		phantomTask("l1", "b1", "img1", at(1)),
		phantomTask("l2", "b1", "img2", at(1)),
		phantomTask("l3", "b1", "img3", at(1)),
	}
	c.AddPhantoms(batch...)

	// 落库请求尚未返回，幻影已经可见且全部 pending
	phantoms := c.Phantoms()
	require.Len(t, phantoms, 3)
	for _, p := range phantoms {
		assert.Equal(t, StatusPending, p.Status)
		assert.True(t, p.IsLocal)
	}
}

func TestMarkBatchFailedKeepsEntries(t *testing.T) {
	c := NewCache()
	c.AddPhantoms(
		phantomTask("l1", "b1", "img1", at(1)),
		phantomTask("l2", "b1", "img2", at(2)),
	)
	c.AddPhantoms(phantomTask("l3", "b2", "img3", at(3)))

	n := c.MarkBatchFailed("b1", "任务创建失败，请重试或删除")

	assert.Equal(t, 2, n)
	phantoms := c.Phantoms()
	require.Len(t, phantoms, 3, "失败的幻影不应被移除")

	for _, p := range phantoms {
		switch p.BatchID {
		case "b1":
			assert.Equal(t, StatusFailed, p.Status)
			assert.NotEmpty(t, p.ErrorMsg)
			assert.Contains(t, []string{"img1", "img2"}, p.SourceRef, "来源引用必须保留")
		case "b2":
			assert.Equal(t, StatusPending, p.Status)
		}
	}
}

func TestSnapshotRestoreExactRollback(t *testing.T) {
	c := NewCache()
	c.AddPhantoms(
		phantomTask("l1", "b1", "img1", at(1)),
		phantomTask("l2", "b1", "img2", at(2)),
	)
	c.Hide(7)

	server := []Task{serverTask(9, "img9", StatusCompleted, at(3))}
	before := c.Merged(server)

	// 乐观删除权威任务 9，然后模拟远端失败回滚
	snap := c.Snapshot()
	c.Hide(9)
	c.RemoveLocal("l1")
	assert.NotEqual(t, before, c.Merged(server))

	c.Restore(snap)
	after := c.Merged(server)

	assert.Equal(t, before, after, "回滚后必须与删除前完全一致（条目与顺序）")
}

func TestReconciliationRemovesSupersededPhantom(t *testing.T) {
	c := NewCache()
	c.AddPhantoms(phantomTask("l1", "b1", "imgX", at(10)))

	// 权威记录出现前，幻影可见
	merged := c.Merged(nil)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].IsLocal)

	// 通知送达：imgX 已有权威记录
	server := []Task{serverTask(5, "imgX", StatusProcessing, at(11))}
	merged = c.Merged(server)

	require.Len(t, merged, 1)
	assert.False(t, merged[0].IsLocal)
	assert.Equal(t, uint(5), merged[0].ID)

	// 幻影已被对账移除，后续空通知也不会让它复活
	merged = c.Merged(nil)
	assert.Empty(t, merged)
}

func TestMergedCommutesAcrossChannels(t *testing.T) {
	// push 与轮询可能乱序到达，结果必须一致
	server := []Task{
		serverTask(1, "img1", StatusCompleted, at(10)),
		serverTask(2, "img2", StatusPending, at(20)),
	}

	a := NewCache()
	a.AddPhantoms(phantomTask("l1", "b1", "img2", at(30)))
	_ = a.Merged(server) // push 先到
	_ = a.Merged(server) // 轮询后到
	viewA := a.Merged(server)

	b := NewCache()
	b.AddPhantoms(phantomTask("l1", "b1", "img2", at(30)))
	viewB := b.Merged(server) // 只有一次轮询

	assert.Equal(t, viewA, viewB)
}

// 规格场景：提交 img1、img2，img1 的权威记录先完成
func TestScenarioPartialReconciliation(t *testing.T) {
	c := NewCache()
	c.AddPhantoms(
		phantomTask("l1", "b1", "img1", at(1)),
		phantomTask("l2", "b1", "img2", at(1)),
	)

	// 提交后立即可见两个 pending 幻影
	merged := c.Merged(nil)
	require.Len(t, merged, 2)

	// 通知：img1 已完成
	server := []Task{serverTask(100, "img1", StatusCompleted, at(2))}
	merged = c.Merged(server)

	require.Len(t, merged, 2)
	byRef := make(map[string]Task)
	for _, task := range merged {
		byRef[task.SourceRef] = task
	}
	assert.False(t, byRef["img1"].IsLocal)
	assert.Equal(t, StatusCompleted, byRef["img1"].Status)
	assert.True(t, byRef["img2"].IsLocal)
	assert.Equal(t, StatusPending, byRef["img2"].Status)
}

func TestNewLocalIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewLocalID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
