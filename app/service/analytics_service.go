package service

import (
	"strconv"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
)

// SiteMetrics 单站点经营指标
type SiteMetrics struct {
	Site             string  `json:"site"`
	Currency         string  `json:"currency"`
	Orders           int64   `json:"orders"`
	Revenue          float64 `json:"revenue"`
	RevenueFormatted string  `json:"revenue_formatted"`
	AvgOrderValue    float64 `json:"avg_order_value"`
}

// TopProduct 销量排行条目
type TopProduct struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// AdsMetrics 广告投入产出
type AdsMetrics struct {
	Spend   float64 `json:"spend"`
	Revenue float64 `json:"revenue"`
	ROAS    float64 `json:"roas"`
}

// AnalyticsReport 仪表盘汇总
type AnalyticsReport struct {
	Days        int           `json:"days"`
	Sites       []SiteMetrics `json:"sites"`
	TopProducts []TopProduct  `json:"top_products"`
	Ads         AdsMetrics    `json:"ads"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// AnalyticsService 经营数据聚合。订单快照在本地库，纯读。
type AnalyticsService struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger
}

// NewAnalyticsService 创建聚合服务
func NewAnalyticsService(cfg *config.Config, log *logger.Logger) *AnalyticsService {
	return &AnalyticsService{
		db:  database.GetDB(),
		cfg: cfg,
		log: log,
	}
}

// Report 汇总最近 days 天的订单数据
func (s *AnalyticsService) Report(days int) (*AnalyticsReport, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	report := &AnalyticsReport{Days: days, GeneratedAt: time.Now()}

	var orders []model.Order
	err := s.db.Where("placed_at >= ? AND status NOT IN ?", since, []string{"cancelled", "refunded", "failed"}).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	report.Sites = s.siteMetrics(orders)
	report.TopProducts = topProducts(orders, 10)
	report.Ads = s.adsMetrics(orders)
	return report, nil
}

func (s *AnalyticsService) siteMetrics(orders []model.Order) []SiteMetrics {
	bySite := make(map[string]*SiteMetrics)
	for _, o := range orders {
		m := bySite[o.Site]
		if m == nil {
			m = &SiteMetrics{Site: o.Site, Currency: s.siteCurrency(o.Site)}
			bySite[o.Site] = m
		}
		m.Orders++
		m.Revenue += o.Total
	}

	out := make([]SiteMetrics, 0, len(bySite))
	for _, site := range s.cfg.SiteKeys() {
		m := bySite[site]
		if m == nil {
			m = &SiteMetrics{Site: site, Currency: s.siteCurrency(site)}
		}
		if m.Orders > 0 {
			m.AvgOrderValue = m.Revenue / float64(m.Orders)
		}
		m.RevenueFormatted = formatAmount(m.Currency, m.Revenue)
		out = append(out, *m)
	}
	return out
}

// topProducts 按订单行聚合销量，返回前 n 个
func topProducts(orders []model.Order, n int) []TopProduct {
	type agg struct {
		name     string
		quantity int
		revenue  float64
	}
	bySKU := make(map[string]*agg)

	for _, o := range orders {
		for _, item := range o.LineItems {
			if item.ProductSKU == "" {
				continue
			}
			a := bySKU[item.ProductSKU]
			if a == nil {
				a = &agg{name: item.Name}
				bySKU[item.ProductSKU] = a
			}
			a.quantity += item.Quantity
			a.revenue += item.Total
		}
	}

	out := make([]TopProduct, 0, len(bySKU))
	for sku, a := range bySKU {
		out = append(out, TopProduct{SKU: sku, Name: a.name, Quantity: a.quantity, Revenue: a.revenue})
	}

	// 按销量降序，销量相同按收入降序
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Quantity > out[i].Quantity ||
				(out[j].Quantity == out[i].Quantity && out[j].Revenue > out[i].Revenue) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	if len(out) > n {
		out = out[:n]
	}
	return out
}

// adsMetrics 广告花费来自 system_configs 的 ads 分类，
// 键任意（按渠道），值为月度花费数字。
func (s *AnalyticsService) adsMetrics(orders []model.Order) AdsMetrics {
	var configs []model.SystemConfig
	if err := s.db.Where("category = ?", model.CategoryAds).Find(&configs).Error; err != nil {
		s.log.Errorf("读取广告配置失败: %v", err)
		return AdsMetrics{}
	}

	metrics := AdsMetrics{}
	for _, c := range configs {
		if v, err := strconv.ParseFloat(c.ConfigValue, 64); err == nil {
			metrics.Spend += v
		}
	}
	for _, o := range orders {
		metrics.Revenue += o.Total
	}
	if metrics.Spend > 0 {
		metrics.ROAS = metrics.Revenue / metrics.Spend
	}
	return metrics
}

func (s *AnalyticsService) siteCurrency(site string) string {
	if sc, ok := s.cfg.Sites[site]; ok && sc.Currency != "" {
		return sc.Currency
	}
	return "USD"
}

// formatAmount 按币种和对应区域习惯格式化金额
func formatAmount(code string, amount float64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}

	tag := language.English
	if code == "EUR" {
		tag = language.German
	}

	p := message.NewPrinter(tag)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(amount)))
}
