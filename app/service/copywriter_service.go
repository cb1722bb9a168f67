package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
	"jersey-hub/app/utils/aihelper"
)

// CopywriterService 按站点语言生成商品文案
type CopywriterService struct {
	db   *gorm.DB
	cfg  *config.Config
	log  *logger.Logger
	copy *aihelper.CopyClient
}

// NewCopywriterService 创建文案服务。未配置 Gemini 时 copy 为 nil，
// 调用时返回明确错误而不是在启动时失败。
func NewCopywriterService(ctx context.Context, cfg *config.Config, log *logger.Logger) *CopywriterService {
	s := &CopywriterService{
		db:  database.GetDB(),
		cfg: cfg,
		log: log,
	}

	if cfg.AI.GeminiAPIKey != "" {
		client, err := aihelper.NewCopyClient(ctx, cfg.AI)
		if err != nil {
			log.Errorf("初始化文案客户端失败: %v", err)
		} else {
			s.copy = client
		}
	}
	return s
}

// GenerateForSite 为商品生成指定站点语言的文案并写入 content 列。
// 写入后该站点标记为 modified，等待推送。
func (s *CopywriterService) GenerateForSite(ctx context.Context, productID uint, site string) (*model.SiteContent, error) {
	if s.copy == nil {
		return nil, fmt.Errorf("未配置 Gemini API Key")
	}

	siteCfg, ok := s.cfg.Sites[site]
	if !ok {
		return nil, fmt.Errorf("未配置的站点: %s", site)
	}

	var product model.Product
	if err := s.db.First(&product, productID).Error; err != nil {
		return nil, fmt.Errorf("商品不存在: %w", err)
	}

	name := product.Name
	if name == "" {
		name = product.SKU
	}

	result, err := s.copy.GenerateCopy(ctx, name, siteCfg.Locale)
	if err != nil {
		return nil, err
	}

	content := model.SiteContent{
		Name:             result.Name,
		Description:      result.Description,
		ShortDescription: result.ShortDescription,
	}

	if product.Content == nil {
		product.Content = model.ContentMap{}
	}
	if product.SyncStatus == nil {
		product.SyncStatus = model.StringMap{}
	}
	product.Content[site] = content
	product.SyncStatus[site] = model.SyncStatusModified

	err = s.db.Model(&product).Updates(map[string]any{
		"content":     product.Content,
		"sync_status": product.SyncStatus,
	}).Error
	if err != nil {
		return nil, err
	}

	s.log.Infof("✅ 文案生成完成: SKU=%s, 站点=%s", product.SKU, site)
	return &content, nil
}

// GenerateAll 为商品生成除主站点外所有站点的文案
func (s *CopywriterService) GenerateAll(ctx context.Context, productID uint) (map[string]model.SiteContent, error) {
	out := make(map[string]model.SiteContent)
	for _, site := range s.cfg.SiteKeys() {
		if site == config.MasterSite {
			continue
		}

		content, err := s.GenerateForSite(ctx, productID, site)
		if err != nil {
			return out, fmt.Errorf("站点 %s 文案生成失败: %w", site, err)
		}
		out[site] = *content
	}
	return out, nil
}
