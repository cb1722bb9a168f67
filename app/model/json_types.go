package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// 每个站点一份数据的 JSON 列类型。
// Supabase 时代 products 表用 jsonb 存这些 map，这里沿用同一结构落在 sqlite 的 text 列上。

func jsonValue(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(dst any, value any) error {
	if value == nil {
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, dst)
	case string:
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("不支持的列类型: %T", value)
	}
}

// PriceMap 站点 -> 价格
type PriceMap map[string]float64

func (m PriceMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *PriceMap) Scan(value any) error        { return jsonScan(m, value) }

// IntMap 站点 -> 整数（库存、变体数、Woo 商品ID）
type IntMap map[string]int

func (m IntMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *IntMap) Scan(value any) error        { return jsonScan(m, value) }

// StringMap 站点 -> 字符串（库存状态、发布状态、同步状态）
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *StringMap) Scan(value any) error        { return jsonScan(m, value) }

// SiteContent 单站点的商品文案
type SiteContent struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
}

// ContentMap 站点 -> 文案
type ContentMap map[string]SiteContent

func (m ContentMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *ContentMap) Scan(value any) error        { return jsonScan(m, value) }

// Variation 商品变体（尺码、定制等）
type Variation struct {
	ID            int             `json:"id"`
	SKU           string          `json:"sku"`
	Attributes    json.RawMessage `json:"attributes"`
	RegularPrice  string          `json:"regular_price"`
	SalePrice     string          `json:"sale_price"`
	StockQuantity *int            `json:"stock_quantity"`
	StockStatus   string          `json:"stock_status"`
}

// VariationMap 站点 -> 变体列表
type VariationMap map[string][]Variation

func (m VariationMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *VariationMap) Scan(value any) error        { return jsonScan(m, value) }

// StringSlice 字符串数组列（图片、分类）
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) { return jsonValue(s) }
func (s *StringSlice) Scan(value any) error        { return jsonScan(s, value) }

// AttrMap 商品属性（gender/season/type/version/sleeve/team/events）
type AttrMap map[string]any

func (m AttrMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *AttrMap) Scan(value any) error        { return jsonScan(m, value) }
