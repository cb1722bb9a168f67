package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
	"jersey-hub/app/utils/aihelper"
	"jersey-hub/pkg/sse"
)

const maxTaskRetries = 3

// GenerationService 图片生成工作器。
// 从 image_tasks 表领取待处理任务，调用编辑端点，结果转存后落库。
// 单线程执行，靠 executing 标记防止并发领取。
type GenerationService struct {
	db       *gorm.DB
	cfg      *config.Config
	log      *logger.Logger
	image    *aihelper.ImageClient
	transfer *TransferService
	hub      *sse.Hub

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
	executing bool

	// 任务状态变化后的广播回调，由图片任务服务注入
	onChange func(productID uint)
}

// NewGenerationService 创建生成工作器
func NewGenerationService(cfg *config.Config, log *logger.Logger, transfer *TransferService, hub *sse.Hub) *GenerationService {
	db := database.GetDB()

	// 启动时重置处理中的任务为待处理状态
	db.Model(&model.ImageTask{}).
		Where("status = ?", model.TaskStatusProcessing).
		Update("status", model.TaskStatusPending)

	return &GenerationService{
		db:       db,
		cfg:      cfg,
		log:      log,
		image:    aihelper.NewImageClient(cfg.AI),
		transfer: transfer,
		hub:      hub,
		stopCh:   make(chan struct{}),
	}
}

// SetChangeCallback 注册任务状态变化回调
func (s *GenerationService) SetChangeCallback(fn func(productID uint)) {
	s.onChange = fn
}

// Start 启动工作器
func (s *GenerationService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	s.wg.Add(1)
	go s.worker()

	s.log.Info("图片生成工作器已启动")
}

// Stop 停止工作器
func (s *GenerationService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()

	s.log.Info("图片生成工作器已停止")
}

func (s *GenerationService) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.executing {
				s.processNextTask()
			}
		}
	}
}

// processNextTask 领取最早的待处理任务，返回是否领取成功
func (s *GenerationService) processNextTask() bool {
	var task model.ImageTask

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ?", model.TaskStatusPending).
			Order("created_at ASC").First(&task).Error; err != nil {
			return err
		}

		now := time.Now()
		return tx.Model(&task).Updates(model.ImageTask{
			Status:    model.TaskStatusProcessing,
			StartedAt: &now,
		}).Error
	})
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			s.log.Errorf("获取任务失败: %v", err)
		}
		return false
	}

	s.executing = true
	s.notifyChange(task.ProductID)
	go s.executeTask(&task)
	return true
}

func (s *GenerationService) executeTask(task *model.ImageTask) {
	defer func() {
		s.executing = false
	}()

	s.log.Infof("🔄 开始处理图片任务: TaskID=%d, ProductID=%d", task.ID, task.ProductID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	startTime := time.Now()
	resultRef, err := s.generate(ctx, task)
	executionTime := time.Since(startTime)

	now := time.Now()
	if err != nil {
		task.Retries++
		s.log.Warnf("❌ 任务执行失败: TaskID=%d, 重试次数: %d, 错误: %v", task.ID, task.Retries, err)

		if task.Retries >= maxTaskRetries {
			s.db.Model(task).Updates(model.ImageTask{
				Status:      model.TaskStatusFailed,
				CompletedAt: &now,
				ErrorMsg:    err.Error(),
				Retries:     task.Retries,
			})
			s.log.Errorf("💀 任务失败(超过重试次数): TaskID=%d, 最终错误: %v", task.ID, err)
		} else {
			s.db.Model(task).Updates(model.ImageTask{
				Status:   model.TaskStatusPending,
				ErrorMsg: err.Error(),
				Retries:  task.Retries,
			})
			s.log.Infof("🔄 任务将重试: TaskID=%d, 当前重试次数: %d/%d", task.ID, task.Retries, maxTaskRetries)
		}
	} else {
		s.db.Model(task).Updates(model.ImageTask{
			Status:      model.TaskStatusCompleted,
			ResultRef:   resultRef,
			CompletedAt: &now,
			DurationMS:  executionTime.Milliseconds(),
		})
		s.log.Infof("✅ 任务完成: TaskID=%d, 耗时: %v", task.ID, executionTime)
	}

	s.notifyChange(task.ProductID)
}

// generate 调用编辑端点并把结果图转存到本地，返回本地地址
func (s *GenerationService) generate(ctx context.Context, task *model.ImageTask) (string, error) {
	result, err := s.image.Edit(ctx, aihelper.ImageEditRequest{
		ImageURL:    task.SourceRef,
		Prompt:      task.Prompt,
		Model:       task.Model,
		AspectRatio: task.AspectRatio,
	})
	if err != nil {
		return "", err
	}

	if result.URL != "" {
		return s.transfer.TransferFromURL(ctx, task.ProductID, result.URL)
	}
	return s.transfer.SaveResult(task.ProductID, result.Data)
}

func (s *GenerationService) notifyChange(productID uint) {
	if s.onChange != nil {
		s.onChange(productID)
	}
}

// QueueStatus 按状态统计任务数量
func (s *GenerationService) QueueStatus() (map[string]int64, error) {
	status := make(map[string]int64)
	for _, st := range []model.TaskStatus{model.TaskStatusPending, model.TaskStatusProcessing, model.TaskStatusCompleted, model.TaskStatusFailed} {
		var count int64
		if err := s.db.Model(&model.ImageTask{}).Where("status = ?", st).Count(&count).Error; err != nil {
			return nil, err
		}
		status[string(st)] = count
	}
	return status, nil
}
