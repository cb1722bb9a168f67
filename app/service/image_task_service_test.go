package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
	"jersey-hub/pkg/notify"
	"jersey-hub/pkg/sse"
	"jersey-hub/pkg/taskcache"
)

func setupTaskService(t *testing.T) (*ImageTaskService, *sse.Hub) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.ImageTask{}))
	database.DB = db

	cfg := &config.Config{}
	log := logger.New(config.LogConfig{Level: "error", Output: "stdout"})

	hub := sse.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	notifier := notify.New(time.Minute)

	s := NewImageTaskService(cfg, log, hub, notifier)
	return s, hub
}

func TestSubmitBatchSilentNoOp(t *testing.T) {
	s, _ := setupTaskService(t)

	assert.Nil(t, s.SubmitBatch(1, nil, "prompt", "m", "1:1"))
	assert.Nil(t, s.SubmitBatch(1, []string{"  "}, "prompt", "m", "1:1"))
	assert.Nil(t, s.SubmitBatch(1, []string{"https://cdn/a.jpg"}, "   ", "m", "1:1"))
}

func TestSubmitBatchImmediatePhantoms(t *testing.T) {
	s, _ := setupTaskService(t)

	phantoms := s.SubmitBatch(7, []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}, "remove bg", "edit-1", "1:1")
	require.Len(t, phantoms, 2)

	// 落库前合并视图就能看到幻影
	merged, err := s.MergedList(7)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.True(t, merged[0].IsLocal)
	assert.Equal(t, taskcache.StatusPending, merged[0].Status)

	// 异步落库完成后幻影被权威记录取代
	require.Eventually(t, func() bool {
		merged, err := s.MergedList(7)
		if err != nil || len(merged) != 2 {
			return false
		}
		return !merged[0].IsLocal && !merged[1].IsLocal
	}, 3*time.Second, 20*time.Millisecond)

	var count int64
	require.NoError(t, database.DB.Model(&model.ImageTask{}).Where("product_id = ?", 7).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSubmitBatchDeduplicatesAgainstServer(t *testing.T) {
	s, _ := setupTaskService(t)

	require.NoError(t, database.DB.Create(&model.ImageTask{
		ProductID: 3,
		SourceRef: "https://cdn/a.jpg",
		Status:    model.TaskStatusProcessing,
	}).Error)

	// 直接塞一个同来源的幻影，不走异步落库
	s.session(3).AddPhantoms(taskcache.Task{
		LocalID:   taskcache.NewLocalID(),
		ProductID: 3,
		SourceRef: "https://cdn/a.jpg",
		Status:    taskcache.StatusPending,
		IsLocal:   true,
		CreatedAt: time.Now(),
	})

	// 同一来源已有权威记录，合并后只有一条
	merged, err := s.MergedList(3)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.False(t, merged[0].IsLocal)
}

func TestDeleteTaskOptimistic(t *testing.T) {
	s, _ := setupTaskService(t)

	task := model.ImageTask{ProductID: 5, SourceRef: "https://cdn/x.jpg", Status: model.TaskStatusCompleted}
	require.NoError(t, database.DB.Create(&task).Error)

	require.NoError(t, s.DeleteTask(5, task.ID))

	merged, err := s.MergedList(5)
	require.NoError(t, err)
	assert.Empty(t, merged)

	var count int64
	database.DB.Model(&model.ImageTask{}).Where("id = ?", task.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestDeleteTaskRejectsForeignProduct(t *testing.T) {
	s, _ := setupTaskService(t)

	task := model.ImageTask{ProductID: 5, SourceRef: "https://cdn/x.jpg", Status: model.TaskStatusCompleted}
	require.NoError(t, database.DB.Create(&task).Error)

	// 商品不匹配时不删除，记录保留
	require.Error(t, s.DeleteTask(6, task.ID))

	var count int64
	database.DB.Model(&model.ImageTask{}).Where("id = ?", task.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	merged, err := s.MergedList(5)
	require.NoError(t, err)
	assert.Len(t, merged, 1)
}

func TestReconcileRepublishesPendingRows(t *testing.T) {
	s, hub := setupTaskService(t)

	// 只有库里的待处理记录，覆盖层没有幻影
	require.NoError(t, database.DB.Create(&model.ImageTask{
		ProductID: 12,
		SourceRef: "https://cdn/p.jpg",
		Status:    model.TaskStatusPending,
	}).Error)

	ch := make(chan []byte, 16)
	hub.Subscribe(ch, sse.TaskTopic(12))

	s.reconcile()

	select {
	case msg := <-ch:
		assert.Contains(t, string(msg), "https://cdn/p.jpg")
	case <-time.After(time.Second):
		t.Fatal("未收到对账广播")
	}
}

func TestDeletePhantom(t *testing.T) {
	s, _ := setupTaskService(t)

	phantoms := s.SubmitBatch(9, []string{"https://cdn/z.jpg"}, "prompt", "m", "1:1")
	require.Len(t, phantoms, 1)

	assert.True(t, s.DeletePhantom(9, phantoms[0].LocalID))
	assert.False(t, s.DeletePhantom(9, phantoms[0].LocalID))
}

func TestRetryTaskResetsFailed(t *testing.T) {
	s, _ := setupTaskService(t)

	task := model.ImageTask{
		ProductID: 2,
		SourceRef: "https://cdn/f.jpg",
		Status:    model.TaskStatusFailed,
		ErrorMsg:  "timeout",
		Retries:   3,
	}
	require.NoError(t, database.DB.Create(&task).Error)

	require.NoError(t, s.RetryTask(task.ID))

	var reloaded model.ImageTask
	require.NoError(t, database.DB.First(&reloaded, task.ID).Error)
	assert.Equal(t, model.TaskStatusPending, reloaded.Status)
	assert.Empty(t, reloaded.ErrorMsg)
	assert.Zero(t, reloaded.Retries)

	// 非失败状态不允许重试
	assert.Error(t, s.RetryTask(task.ID))
}

func TestApplyReplacesSourceImage(t *testing.T) {
	s, _ := setupTaskService(t)

	product := model.Product{SKU: "JF-010", Images: model.StringSlice{"https://cdn/old.jpg", "https://cdn/keep.jpg"}}
	require.NoError(t, database.DB.Create(&product).Error)

	task := model.ImageTask{
		ProductID: product.ID,
		SourceRef: "https://cdn/old.jpg",
		ResultRef: "https://local/results/new.jpg",
		Status:    model.TaskStatusCompleted,
	}
	require.NoError(t, database.DB.Create(&task).Error)

	require.NoError(t, s.Apply(product.ID, task.ID))

	var reloaded model.Product
	require.NoError(t, database.DB.First(&reloaded, product.ID).Error)
	// 来源图被原位替换
	require.Equal(t, model.StringSlice{"https://local/results/new.jpg", "https://cdn/keep.jpg"}, reloaded.Images)

	// 应用后任务被清理
	var count int64
	database.DB.Model(&model.ImageTask{}).Where("id = ?", task.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestApplyAppendsWhenSourceGone(t *testing.T) {
	s, _ := setupTaskService(t)

	product := model.Product{SKU: "JF-011", Images: model.StringSlice{"https://cdn/other.jpg"}}
	require.NoError(t, database.DB.Create(&product).Error)

	task := model.ImageTask{
		ProductID: product.ID,
		SourceRef: "https://cdn/removed.jpg",
		ResultRef: "https://local/results/new.jpg",
		Status:    model.TaskStatusCompleted,
	}
	require.NoError(t, database.DB.Create(&task).Error)

	require.NoError(t, s.Apply(product.ID, task.ID))

	var reloaded model.Product
	require.NoError(t, database.DB.First(&reloaded, product.ID).Error)
	require.Equal(t, model.StringSlice{"https://cdn/other.jpg", "https://local/results/new.jpg"}, reloaded.Images)
}

func TestClearByProduct(t *testing.T) {
	s, _ := setupTaskService(t)

	require.NoError(t, database.DB.Create(&model.ImageTask{ProductID: 4, SourceRef: "a"}).Error)
	s.session(4).AddPhantoms(taskcache.Task{
		LocalID:   taskcache.NewLocalID(),
		ProductID: 4,
		SourceRef: "https://cdn/b.jpg",
		IsLocal:   true,
		CreatedAt: time.Now(),
	})

	require.NoError(t, s.ClearByProduct(4))

	merged, err := s.MergedList(4)
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestPublishTasksBroadcastsMergedView(t *testing.T) {
	s, hub := setupTaskService(t)

	ch := make(chan []byte, 16)
	hub.Subscribe(ch, sse.TaskTopic(11))

	s.SubmitBatch(11, []string{"https://cdn/a.jpg"}, "prompt", "m", "1:1")

	select {
	case msg := <-ch:
		assert.Contains(t, string(msg), "https://cdn/a.jpg")
	case <-time.After(time.Second):
		t.Fatal("未收到任务列表广播")
	}
}
