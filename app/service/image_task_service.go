package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
	"jersey-hub/pkg/notify"
	"jersey-hub/pkg/sse"
	"jersey-hub/pkg/taskcache"
)

// submitFailedMsg 批量落库失败时标在幻影任务上的提示
const submitFailedMsg = "任务创建失败，请重试或删除"

// ImageTaskService 图片任务服务。
// 持久层是 image_tasks 表；每个商品一个乐观覆盖层（taskcache.Cache），
// 提交的任务先以幻影形式进入覆盖层并立即广播，落库成功后由权威记录取代。
type ImageTaskService struct {
	db       *gorm.DB
	cfg      *config.Config
	log      *logger.Logger
	hub      *sse.Hub
	notifier *notify.Service

	// productID -> *taskcache.Cache，闲置会话自动过期
	sessions *gocache.Cache

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewImageTaskService 创建图片任务服务
func NewImageTaskService(cfg *config.Config, log *logger.Logger, hub *sse.Hub, notifier *notify.Service) *ImageTaskService {
	return &ImageTaskService{
		db:       database.GetDB(),
		cfg:      cfg,
		log:      log,
		hub:      hub,
		notifier: notifier,
		sessions: gocache.New(30*time.Minute, 10*time.Minute),
		stopCh:   make(chan struct{}),
	}
}

// Start 启动兜底对账轮询
func (s *ImageTaskService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	s.wg.Add(1)
	go s.pollLoop()

	s.log.Info("图片任务服务已启动")
}

// Stop 停止服务
func (s *ImageTaskService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// pollLoop 每 3 秒做一次对账广播。
// 实时推送丢失时由它兜底，两条通道的合并结果一致。
func (s *ImageTaskService) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reconcile()
		}
	}
}

// reconcile 重新广播所有还有未完结任务的商品：
// 覆盖层里有幻影残留的，以及库里还有待处理/处理中记录的。
func (s *ImageTaskService) reconcile() {
	published := make(map[uint]bool)

	for key, item := range s.sessions.Items() {
		cache, ok := item.Object.(*taskcache.Cache)
		if !ok || len(cache.Phantoms()) == 0 {
			continue
		}
		var productID uint
		if _, err := fmt.Sscanf(key, "p%d", &productID); err == nil {
			published[productID] = true
			s.PublishTasks(productID)
		}
	}

	var ids []uint
	err := s.db.Model(&model.ImageTask{}).
		Where("status IN ?", []model.TaskStatus{model.TaskStatusPending, model.TaskStatusProcessing}).
		Distinct().Pluck("product_id", &ids).Error
	if err != nil {
		s.log.Errorf("对账查询失败: %v", err)
	}
	for _, id := range ids {
		if !published[id] {
			s.PublishTasks(id)
		}
	}

	s.publishPending()
}

// session 取出或创建某商品的乐观覆盖层
func (s *ImageTaskService) session(productID uint) *taskcache.Cache {
	key := fmt.Sprintf("p%d", productID)
	if item, ok := s.sessions.Get(key); ok {
		return item.(*taskcache.Cache)
	}

	cache := taskcache.NewCache()
	s.sessions.SetDefault(key, cache)
	return cache
}

// SubmitBatch 批量提交图片编辑任务。
// 来源列表或提示词为空时静默跳过。幻影任务同步进覆盖层并立即广播，
// 落库异步进行；失败时整批幻影标记为失败，不移除，留给用户处置。
func (s *ImageTaskService) SubmitBatch(productID uint, sourceRefs []string, prompt, modelName, aspectRatio string) []taskcache.Task {
	refs := make([]string, 0, len(sourceRefs))
	for _, r := range sourceRefs {
		if strings.TrimSpace(r) != "" {
			refs = append(refs, r)
		}
	}
	if len(refs) == 0 || strings.TrimSpace(prompt) == "" {
		return nil
	}

	batchID := uuid.NewString()
	now := time.Now()
	phantoms := make([]taskcache.Task, len(refs))
	for i, ref := range refs {
		phantoms[i] = taskcache.Task{
			LocalID:     taskcache.NewLocalID(),
			BatchID:     batchID,
			ProductID:   productID,
			SourceRef:   ref,
			Prompt:      prompt,
			Model:       modelName,
			AspectRatio: aspectRatio,
			Status:      taskcache.StatusPending,
			IsLocal:     true,
			CreatedAt:   now,
		}
	}

	cache := s.session(productID)
	cache.AddPhantoms(phantoms...)
	s.PublishTasks(productID)

	go s.insertBatch(productID, batchID, phantoms)

	return phantoms
}

// insertBatch 异步落库。成功后权威记录会在下一次合并时取代幻影。
func (s *ImageTaskService) insertBatch(productID uint, batchID string, phantoms []taskcache.Task) {
	rows := make([]model.ImageTask, len(phantoms))
	for i, p := range phantoms {
		rows[i] = model.ImageTask{
			ProductID:   p.ProductID,
			BatchID:     batchID,
			SourceRef:   p.SourceRef,
			Prompt:      p.Prompt,
			Model:       p.Model,
			AspectRatio: p.AspectRatio,
			Status:      model.TaskStatusPending,
		}
	}

	if err := s.db.Create(&rows).Error; err != nil {
		s.log.Errorf("❌ 批量创建任务失败: ProductID=%d, 批次=%s, 错误: %v", productID, batchID, err)

		cache := s.session(productID)
		n := cache.MarkBatchFailed(batchID, submitFailedMsg)
		s.log.Warnf("已将 %d 个幻影任务标记为失败", n)
		if s.notifier != nil {
			s.notifier.Push(notify.LevelError, submitFailedMsg)
		}
		s.PublishTasks(productID)
		return
	}

	s.log.Infof("📥 批次落库成功: ProductID=%d, 批次=%s, 数量=%d", productID, batchID, len(rows))
	s.PublishTasks(productID)
	s.publishPending()
}

// RetryPhantom 重试一个落库失败的幻影：移除旧幻影，按原参数重新提交
func (s *ImageTaskService) RetryPhantom(productID uint, localID string) error {
	cache := s.session(productID)
	task, ok := cache.FindLocal(localID)
	if !ok {
		return fmt.Errorf("本地任务不存在: %s", localID)
	}

	cache.RemoveLocal(localID)
	s.SubmitBatch(productID, []string{task.SourceRef}, task.Prompt, task.Model, task.AspectRatio)
	return nil
}

// RetryTask 把失败的权威任务重置为待处理
func (s *ImageTaskService) RetryTask(taskID uint) error {
	var task model.ImageTask
	if err := s.db.First(&task, taskID).Error; err != nil {
		return fmt.Errorf("任务不存在: %w", err)
	}
	if task.Status != model.TaskStatusFailed {
		return fmt.Errorf("任务 %d 不是失败状态", taskID)
	}

	err := s.db.Model(&task).Updates(map[string]any{
		"status":    model.TaskStatusPending,
		"error_msg": "",
		"retries":   0,
	}).Error
	if err != nil {
		return err
	}

	s.PublishTasks(task.ProductID)
	s.publishPending()
	return nil
}

// DeletePhantom 删除未落库的幻影任务
func (s *ImageTaskService) DeletePhantom(productID uint, localID string) bool {
	cache := s.session(productID)
	removed := cache.RemoveLocal(localID)
	if removed {
		s.PublishTasks(productID)
	}
	return removed
}

// DeleteTask 乐观删除权威任务：先隐藏并广播，再删库；
// 删库失败时回滚到删除前的快照并恢复显示。
func (s *ImageTaskService) DeleteTask(productID, taskID uint) error {
	cache := s.session(productID)

	snap := cache.Snapshot()
	cache.Hide(taskID)
	s.PublishTasks(productID)

	res := s.db.Where("product_id = ?", productID).Delete(&model.ImageTask{}, taskID)
	if res.Error != nil || res.RowsAffected == 0 {
		cache.Restore(snap)
		s.PublishTasks(productID)
		if s.notifier != nil {
			s.notifier.Push(notify.LevelError, "删除任务失败")
		}
		if res.Error != nil {
			return res.Error
		}
		return fmt.Errorf("任务 %d 不属于商品 %d", taskID, productID)
	}

	// 行已不存在，墓碑不再需要
	cache.Unhide(taskID)
	s.PublishTasks(productID)
	s.publishPending()
	return nil
}

// Apply 把已完成任务的结果图应用到商品图列表，
// 然后尽力删除该任务，删除失败只记日志。
func (s *ImageTaskService) Apply(productID, taskID uint) error {
	var task model.ImageTask
	if err := s.db.Where("product_id = ?", productID).First(&task, taskID).Error; err != nil {
		return fmt.Errorf("任务不存在: %w", err)
	}
	if task.Status != model.TaskStatusCompleted || task.ResultRef == "" {
		return fmt.Errorf("任务 %d 没有可应用的结果", taskID)
	}

	var product model.Product
	if err := s.db.First(&product, productID).Error; err != nil {
		return fmt.Errorf("商品不存在: %w", err)
	}

	// 来源图还在列表里就原位替换，否则追加到末尾
	images := make(model.StringSlice, 0, len(product.Images)+1)
	replaced := false
	for _, img := range product.Images {
		if img == task.SourceRef && !replaced {
			images = append(images, task.ResultRef)
			replaced = true
			continue
		}
		images = append(images, img)
	}
	if !replaced {
		images = append(images, task.ResultRef)
	}

	err := s.db.Model(&product).Updates(map[string]any{
		"images": images,
	}).Error
	if err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.Push(notify.LevelSuccess, "已应用到商品图")
	}

	if err := s.db.Delete(&model.ImageTask{}, taskID).Error; err != nil {
		s.log.Warnf("⚠️ 应用后删除任务失败: TaskID=%d, 错误: %v", taskID, err)
	}
	s.PublishTasks(productID)
	return nil
}

// ClearByProduct 清空一个商品的全部任务和本地覆盖层
func (s *ImageTaskService) ClearByProduct(productID uint) error {
	if err := s.db.Where("product_id = ?", productID).Delete(&model.ImageTask{}).Error; err != nil {
		return err
	}

	s.session(productID).Clear()
	s.PublishTasks(productID)
	s.publishPending()
	return nil
}

// MergedList 返回商品的合并任务视图：权威记录叠加本地覆盖层
func (s *ImageTaskService) MergedList(productID uint) ([]taskcache.Task, error) {
	server, err := s.serverTasks(productID)
	if err != nil {
		return nil, err
	}
	return s.session(productID).Merged(server), nil
}

// PendingCount 全局未完成任务数（待处理 + 处理中），含幻影
func (s *ImageTaskService) PendingCount() (int64, error) {
	var count int64
	err := s.db.Model(&model.ImageTask{}).
		Where("status IN ?", []model.TaskStatus{model.TaskStatusPending, model.TaskStatusProcessing}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	for _, item := range s.sessions.Items() {
		if cache, ok := item.Object.(*taskcache.Cache); ok {
			for _, p := range cache.Phantoms() {
				if p.Status == taskcache.StatusPending || p.Status == taskcache.StatusProcessing {
					count++
				}
			}
		}
	}
	return count, nil
}

// PublishTasks 向商品的任务 topic 广播当前合并视图（整表替换，不是补丁）
func (s *ImageTaskService) PublishTasks(productID uint) {
	merged, err := s.MergedList(productID)
	if err != nil {
		s.log.Errorf("广播任务列表失败: ProductID=%d, 错误: %v", productID, err)
		return
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return
	}
	s.hub.PublishTopic(sse.TaskTopic(productID), payload)
}

func (s *ImageTaskService) publishPending() {
	count, err := s.PendingCount()
	if err != nil {
		return
	}
	payload, _ := json.Marshal(map[string]int64{"pending": count})
	s.hub.PublishTopic(sse.TopicPending, payload)
}

// serverTasks 读取权威记录并转换为合并视图的任务形态
func (s *ImageTaskService) serverTasks(productID uint) ([]taskcache.Task, error) {
	var rows []model.ImageTask
	err := s.db.Where("product_id = ?", productID).
		Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	tasks := make([]taskcache.Task, len(rows))
	for i, r := range rows {
		tasks[i] = taskcache.Task{
			ID:          r.ID,
			BatchID:     r.BatchID,
			ProductID:   r.ProductID,
			SourceRef:   r.SourceRef,
			ResultRef:   r.ResultRef,
			Prompt:      r.Prompt,
			Model:       r.Model,
			AspectRatio: r.AspectRatio,
			Status:      taskcache.Status(r.Status),
			ErrorMsg:    r.ErrorMsg,
			DurationMS:  r.DurationMS,
			CreatedAt:   r.CreatedAt,
		}
	}
	return tasks, nil
}
