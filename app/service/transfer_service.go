package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
	"jersey-hub/app/utils/downloader"
)

// TransferService 把生成结果从远端转存到本地存储，并生成缩略图
type TransferService struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger
}

// TransferStats 批量转存统计
type TransferStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// NewTransferService 创建转存服务
func NewTransferService(cfg *config.Config, log *logger.Logger) *TransferService {
	return &TransferService{
		db:  database.GetDB(),
		cfg: cfg,
		log: log,
	}
}

// SaveResult 把图片字节落盘并生成缩略图，返回对外访问地址
func (s *TransferService) SaveResult(productID uint, data []byte) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("解码图片失败: %w", err)
	}

	ext := "jpg"
	if format == "png" {
		ext = "png"
	}

	name := fmt.Sprintf("p%d-%s.%s", productID, uuid.NewString()[:8], ext)
	dir := filepath.Join(s.cfg.Storage.UploadDir, "results")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建存储目录失败: %w", err)
	}

	fullPath := filepath.Join(dir, name)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("写入图片失败: %w", err)
	}

	if err := s.writeThumbnail(img, dir, name); err != nil {
		// 缩略图失败不影响主图
		s.log.Warnf("⚠️ 生成缩略图失败: %s, 错误: %v", name, err)
	}

	return s.publicURL("results/" + name), nil
}

// TransferFromURL 下载远端图片并按 SaveResult 的规则落盘
func (s *TransferService) TransferFromURL(ctx context.Context, productID uint, url string) (string, error) {
	tempPath := filepath.Join(s.cfg.Storage.UploadDir, "tmp", fmt.Sprintf("dl-%s", uuid.NewString()[:8]))
	defer os.Remove(tempPath)

	if _, err := downloader.DownloadFromURL(ctx, url, tempPath, nil); err != nil {
		return "", err
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		return "", fmt.Errorf("读取下载文件失败: %w", err)
	}
	return s.SaveResult(productID, data)
}

// TransferTask 把单个已完成任务的结果图转存到本地。
// 结果已经在本地时跳过。
func (s *TransferService) TransferTask(ctx context.Context, taskID uint) error {
	var task model.ImageTask
	if err := s.db.First(&task, taskID).Error; err != nil {
		return fmt.Errorf("任务不存在: %w", err)
	}
	if task.Status != model.TaskStatusCompleted || task.ResultRef == "" {
		return fmt.Errorf("任务 %d 没有可转存的结果", taskID)
	}
	if s.isLocal(task.ResultRef) {
		return nil
	}

	localURL, err := s.TransferFromURL(ctx, task.ProductID, task.ResultRef)
	if err != nil {
		return err
	}

	return s.db.Model(&task).Update("result_ref", localURL).Error
}

// TransferByProduct 转存一个商品下所有已完成任务的远端结果图。
// progress 每处理一个任务回调一次，可为 nil。
func (s *TransferService) TransferByProduct(ctx context.Context, productID uint, progress func(done, total int)) (*TransferStats, error) {
	var tasks []model.ImageTask
	err := s.db.Where("product_id = ? AND status = ?", productID, model.TaskStatusCompleted).
		Order("created_at ASC").Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	stats := &TransferStats{Total: len(tasks)}
	for i, task := range tasks {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if task.ResultRef == "" || s.isLocal(task.ResultRef) {
			stats.Skipped++
		} else if err := s.TransferTask(ctx, task.ID); err != nil {
			s.log.Errorf("❌ 转存失败: TaskID=%d, 错误: %v", task.ID, err)
			stats.Failed++
		} else {
			stats.Success++
		}

		if progress != nil {
			progress(i+1, len(tasks))
		}
	}

	s.log.Infof("✅ 商品 %d 转存完成: 成功 %d, 失败 %d, 跳过 %d",
		productID, stats.Success, stats.Failed, stats.Skipped)
	return stats, nil
}

func (s *TransferService) writeThumbnail(img image.Image, dir, name string) error {
	width := s.cfg.Storage.ThumbnailWidth
	if width <= 0 {
		width = 400
	}

	thumb := imaging.Resize(img, width, 0, imaging.Lanczos)
	thumbDir := filepath.Join(dir, "thumbs")
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(thumbDir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	return jpeg.Encode(f, thumb, &jpeg.Options{Quality: 85})
}

func (s *TransferService) publicURL(rel string) string {
	base := strings.TrimRight(s.cfg.Storage.PublicBaseURL, "/")
	return base + "/" + rel
}

func (s *TransferService) isLocal(ref string) bool {
	base := strings.TrimRight(s.cfg.Storage.PublicBaseURL, "/")
	return base != "" && strings.HasPrefix(ref, base)
}
