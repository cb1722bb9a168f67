package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
	"jersey-hub/app/utils/woohelper"
	"jersey-hub/pkg/sse"
)

// ErrSyncCancelled 同步被用户取消
var ErrSyncCancelled = errors.New("同步已取消")

// SyncResult 一次全量同步的汇总
type SyncResult struct {
	Sites    []string      `json:"sites"`
	Success  int           `json:"success"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// SyncService 多站点同步服务。
// 从各 WooCommerce 站点拉取商品合并进本地主数据，主站点（com）拥有
// 共享字段；进度写在 sync_progress 单行记录里并通过 SSE 广播。
type SyncService struct {
	db      *gorm.DB
	cfg     *config.Config
	log     *logger.Logger
	hub     *sse.Hub
	clients map[string]*woohelper.Client

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewSyncService 创建同步服务
func NewSyncService(cfg *config.Config, log *logger.Logger, hub *sse.Hub) *SyncService {
	clients := make(map[string]*woohelper.Client, len(cfg.Sites))
	for site, sc := range cfg.Sites {
		clients[site] = woohelper.New(site, sc)
	}

	return &SyncService{
		db:      database.GetDB(),
		cfg:     cfg,
		log:     log,
		hub:     hub,
		clients: clients,
	}
}

// Running 是否有同步在进行
func (s *SyncService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RequestCancel 请求取消当前同步
func (s *SyncService) RequestCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Progress 读取当前进度行
func (s *SyncService) Progress() (*model.SyncProgress, error) {
	var progress model.SyncProgress
	err := s.db.First(&progress, "id = ?", model.SyncProgressID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.SyncProgress{ID: model.SyncProgressID, Status: model.SyncIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// FullSync 依次同步指定站点（为空则按配置顺序同步全部站点）。
// 同一时间只允许一次同步。
func (s *SyncService) FullSync(ctx context.Context, sites []string) (*SyncResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, errors.New("已有同步在进行中")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	if len(sites) == 0 {
		sites = s.cfg.SiteKeys()
	}

	start := time.Now()
	result := &SyncResult{Sites: sites}

	s.log.Infof("🔄 开始全量同步: 站点=%v", sites)
	for _, site := range sites {
		if err := s.syncSite(ctx, site); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrSyncCancelled) {
				s.setProgress(model.SyncCancelled, site, 0, 0, result.Success, result.Failed, "同步已取消")
				result.Duration = time.Since(start)
				return result, ErrSyncCancelled
			}
			s.log.Errorf("❌ 站点同步失败: %s, 错误: %v", site, err)
			result.Failed++
			s.setProgress(model.SyncError, site, 0, 0, result.Success, result.Failed, err.Error())
			continue
		}
		result.Success++
	}

	result.Duration = time.Since(start)
	s.setProgress(model.SyncCompleted, "", 0, 0, result.Success, result.Failed,
		fmt.Sprintf("同步完成，耗时 %s", result.Duration.Round(time.Second)))
	s.log.Infof("✅ 全量同步完成: 成功 %d 站, 失败 %d 站, 耗时 %v", result.Success, result.Failed, result.Duration)
	return result, nil
}

// syncSite 同步单个站点：分页拉取商品，变体并发拉取，按批合并落库
func (s *SyncService) syncSite(ctx context.Context, site string) error {
	client, ok := s.clients[site]
	if !ok {
		return fmt.Errorf("未配置的站点: %s", site)
	}

	s.setProgress(model.SyncRunning, site, 0, 0, 0, 0, fmt.Sprintf("正在拉取 %s 商品列表", site))

	products, err := client.GetAllProducts(ctx, s.cfg.Sync.PageSize)
	if err != nil {
		return err
	}
	s.log.Infof("站点 %s 拉取到 %d 个商品", site, len(products))

	variations, err := s.fetchVariations(ctx, client, products)
	if err != nil {
		return err
	}

	isMaster := site == config.MasterSite
	batchSize := s.cfg.Sync.BatchSize
	if batchSize <= 0 {
		batchSize = 300
	}

	total := len(products)
	processed := 0
	batch := make([]*model.Product, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.upsertBatch(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for _, wp := range products {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if wp.SKU == "" {
			processed++
			continue
		}

		product, err := s.loadOrInit(wp.SKU)
		if err != nil {
			return err
		}

		mergeProductUpdate(product, site, isMaster, wp, variations[wp.ID])
		batch = append(batch, product)

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		processed++
		// 每 50 个商品更新一次进度
		if processed%50 == 0 {
			s.setProgress(model.SyncRunning, site, processed, total, 0, 0,
				fmt.Sprintf("%s: %d/%d", site, processed, total))
		}
	}

	if err := flush(); err != nil {
		return err
	}

	s.setProgress(model.SyncRunning, site, total, total, 0, 0, fmt.Sprintf("%s: 完成", site))
	return nil
}

// fetchVariations 并发拉取可变商品的变体，按配置的并发数限流
func (s *SyncService) fetchVariations(ctx context.Context, client *woohelper.Client, products []woohelper.Product) (map[int][]woohelper.Variation, error) {
	workers := s.cfg.Sync.Workers
	if workers <= 0 {
		workers = 10
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		result   = make(map[int][]woohelper.Variation)
		sem      = make(chan struct{}, workers)
	)

	for _, wp := range products {
		if wp.Type != "variable" {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(wooID int) {
			defer wg.Done()
			defer func() { <-sem }()

			variations, err := client.GetVariations(ctx, wooID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			result[wooID] = variations
		}(wp.ID)
	}

	wg.Wait()
	return result, firstErr
}

// loadOrInit 按 SKU 取出已有商品或初始化新行
func (s *SyncService) loadOrInit(sku string) (*model.Product, error) {
	var product model.Product
	err := s.db.Where("sku = ?", sku).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.Product{SKU: sku}, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// upsertBatch 按 SKU 冲突合并写入
func (s *SyncService) upsertBatch(batch []*model.Product) error {
	now := time.Now()
	for _, p := range batch {
		p.LastSyncedAt = &now
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		UpdateAll: true,
	}).Create(&batch).Error
}

// mergeProductUpdate 把站点拉回的数据合并进主数据行。
// 纯函数：只修改传入的 product，主站点额外覆盖共享字段。
func mergeProductUpdate(product *model.Product, site string, isMaster bool, wp woohelper.Product, variations []woohelper.Variation) {
	ensureMaps(product)

	product.WooIDs[site] = wp.ID
	product.Prices[site] = parsePrice(wp.Price)
	product.RegularPrices[site] = parsePrice(wp.RegularPrice)
	product.StockStatuses[site] = wp.StockStatus
	product.Statuses[site] = wp.Status
	product.SyncStatus[site] = model.SyncStatusSynced

	if wp.StockQuantity != nil {
		product.StockQuantities[site] = *wp.StockQuantity
	} else {
		product.StockQuantities[site] = sumVariationStock(variations)
	}

	product.Content[site] = model.SiteContent{
		Name:             wp.Name,
		Description:      wp.Description,
		ShortDescription: wp.ShortDescription,
	}

	converted := make([]model.Variation, len(variations))
	for i, v := range variations {
		converted[i] = model.Variation{
			ID:            v.ID,
			SKU:           v.SKU,
			Attributes:    v.Attributes,
			RegularPrice:  v.RegularPrice,
			SalePrice:     v.SalePrice,
			StockQuantity: v.StockQuantity,
			StockStatus:   v.StockStatus,
		}
	}
	product.Variations[site] = converted
	product.VariationCounts[site] = len(converted)

	if isMaster {
		product.Name = wp.Name

		images := make(model.StringSlice, 0, len(wp.Images))
		for _, img := range wp.Images {
			images = append(images, img.Src)
		}
		product.Images = images

		categories := make(model.StringSlice, 0, len(wp.Categories))
		for _, c := range wp.Categories {
			categories = append(categories, c.Name)
		}
		product.Categories = categories

		product.Attributes = extractAttributes(wp.Attributes)
	}
}

func ensureMaps(p *model.Product) {
	if p.Prices == nil {
		p.Prices = model.PriceMap{}
	}
	if p.RegularPrices == nil {
		p.RegularPrices = model.PriceMap{}
	}
	if p.StockQuantities == nil {
		p.StockQuantities = model.IntMap{}
	}
	if p.StockStatuses == nil {
		p.StockStatuses = model.StringMap{}
	}
	if p.Statuses == nil {
		p.Statuses = model.StringMap{}
	}
	if p.Content == nil {
		p.Content = model.ContentMap{}
	}
	if p.Variations == nil {
		p.Variations = model.VariationMap{}
	}
	if p.VariationCounts == nil {
		p.VariationCounts = model.IntMap{}
	}
	if p.WooIDs == nil {
		p.WooIDs = model.IntMap{}
	}
	if p.SyncStatus == nil {
		p.SyncStatus = model.StringMap{}
	}
}

// attributeKeys 站点属性名到主数据属性键的映射
var attributeKeys = map[string]string{
	"genderage":    "gender",
	"gender":       "gender",
	"season":       "season",
	"jerseytype":   "type",
	"type":         "type",
	"style":        "version",
	"version":      "version",
	"sleevelength": "sleeve",
	"sleeve":       "sleeve",
	"team":         "team",
	"event":        "events",
	"events":       "events",
}

// extractAttributes 把主站点的商品属性归一化为固定键。
// events 允许多值，其余属性取第一个选项。
func extractAttributes(attrs []woohelper.Attribute) model.AttrMap {
	out := model.AttrMap{}
	for _, attr := range attrs {
		name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(attr.Name), " ", ""))
		name = strings.TrimPrefix(name, "pa_")

		key, ok := attributeKeys[name]
		if !ok || len(attr.Options) == 0 {
			continue
		}

		if key == "events" {
			out[key] = attr.Options
		} else {
			out[key] = attr.Options[0]
		}
	}
	return out
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func sumVariationStock(variations []woohelper.Variation) int {
	total := 0
	for _, v := range variations {
		if v.StockQuantity != nil {
			total += *v.StockQuantity
		}
	}
	return total
}

// PushProduct 把本地修改推回站点（价格、库存、状态、文案）。
// sites 为空时推送到商品已关联的全部站点。
func (s *SyncService) PushProduct(ctx context.Context, productID uint, sites []string) error {
	var product model.Product
	if err := s.db.First(&product, productID).Error; err != nil {
		return fmt.Errorf("商品不存在: %w", err)
	}

	if len(sites) == 0 {
		for site := range product.WooIDs {
			sites = append(sites, site)
		}
	}

	var errs []string
	for _, site := range sites {
		client, ok := s.clients[site]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: 未配置", site))
			continue
		}
		wooID, ok := product.WooIDs[site]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: 商品未关联", site))
			continue
		}

		payload := buildPushPayload(&product, site)
		if err := client.UpdateProduct(ctx, wooID, payload); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", site, err))
			s.updateSiteSyncStatus(&product, site, model.SyncStatusError)
			continue
		}
		s.updateSiteSyncStatus(&product, site, model.SyncStatusSynced)
	}

	if len(errs) > 0 {
		return fmt.Errorf("推送失败: %s", strings.Join(errs, "; "))
	}
	return nil
}

// buildPushPayload 组装站点更新请求体
func buildPushPayload(product *model.Product, site string) map[string]any {
	payload := map[string]any{}

	if price, ok := product.RegularPrices[site]; ok && price > 0 {
		payload["regular_price"] = strconv.FormatFloat(price, 'f', 2, 64)
	}
	if qty, ok := product.StockQuantities[site]; ok {
		payload["stock_quantity"] = qty
		payload["manage_stock"] = true
	}
	if status, ok := product.Statuses[site]; ok && status != "" {
		payload["status"] = status
	}
	if content, ok := product.Content[site]; ok {
		if content.Name != "" {
			payload["name"] = content.Name
		}
		if content.Description != "" {
			payload["description"] = content.Description
		}
		if content.ShortDescription != "" {
			payload["short_description"] = content.ShortDescription
		}
	}
	return payload
}

func (s *SyncService) updateSiteSyncStatus(product *model.Product, site, status string) {
	if product.SyncStatus == nil {
		product.SyncStatus = model.StringMap{}
	}
	product.SyncStatus[site] = status
	if err := s.db.Model(product).Update("sync_status", product.SyncStatus).Error; err != nil {
		s.log.Errorf("更新同步状态失败: SKU=%s, 错误: %v", product.SKU, err)
	}
}

// PushOrderStatus 把订单状态推回来源站点
func (s *SyncService) PushOrderStatus(ctx context.Context, site string, wooID int, status string) error {
	client, ok := s.clients[site]
	if !ok {
		return fmt.Errorf("未配置的站点: %s", site)
	}
	return client.UpdateOrderStatus(ctx, wooID, status)
}

// SyncOrders 拉取各站点最近订单并按 (site, woo_id) 幂等落库
func (s *SyncService) SyncOrders(ctx context.Context) (int, error) {
	days := s.cfg.Sync.OrderDays
	if days <= 0 {
		days = 30
	}
	after := time.Now().AddDate(0, 0, -days)

	total := 0
	for _, site := range s.cfg.SiteKeys() {
		client := s.clients[site]
		if client == nil {
			continue
		}

		n, err := s.syncSiteOrders(ctx, site, client, after)
		if err != nil {
			return total, fmt.Errorf("站点 %s 订单同步失败: %w", site, err)
		}
		total += n
	}

	s.log.Infof("✅ 订单同步完成: 共 %d 单", total)
	return total, nil
}

func (s *SyncService) syncSiteOrders(ctx context.Context, site string, client *woohelper.Client, after time.Time) (int, error) {
	pageSize := s.cfg.Sync.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	count := 0
	for page := 1; ; page++ {
		orders, err := client.GetOrdersPage(ctx, page, pageSize, after)
		if err != nil {
			return count, err
		}
		if len(orders) == 0 {
			break
		}

		rows := make([]model.Order, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, convertOrder(site, o))
		}

		err = s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "site"}, {Name: "woo_id"}},
			UpdateAll: true,
		}).Create(&rows).Error
		if err != nil {
			return count, err
		}

		count += len(rows)
		if len(orders) < pageSize {
			break
		}
	}
	return count, nil
}

func convertOrder(site string, o woohelper.Order) model.Order {
	items := make(model.OrderItems, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		items = append(items, model.OrderItem{
			ProductSKU: li.SKU,
			Name:       li.Name,
			Quantity:   li.Quantity,
			Total:      parsePrice(li.Total),
		})
	}

	placedAt, _ := time.Parse("2006-01-02T15:04:05", o.DateCreated)

	return model.Order{
		Site:          site,
		WooID:         o.ID,
		Number:        o.Number,
		Status:        o.Status,
		Currency:      o.Currency,
		Total:         parsePrice(o.Total),
		CustomerName:  strings.TrimSpace(o.Billing.FirstName + " " + o.Billing.LastName),
		CustomerEmail: o.Billing.Email,
		Country:       o.Billing.Country,
		LineItems:     items,
		PlacedAt:      placedAt,
	}
}

// setProgress 更新 sync_progress 单行记录并广播
func (s *SyncService) setProgress(status, site string, current, total, success, failed int, message string) {
	progress := model.SyncProgress{
		ID:        model.SyncProgressID,
		Status:    status,
		Site:      site,
		Current:   current,
		Total:     total,
		Success:   success,
		Failed:    failed,
		Message:   message,
		UpdatedAt: time.Now(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&progress).Error
	if err != nil {
		s.log.Errorf("写入同步进度失败: %v", err)
	}

	if payload, err := json.Marshal(progress); err == nil {
		s.hub.PublishTopic(sse.TopicSync, payload)
	}
}
