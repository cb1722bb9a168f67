package model

import (
	"time"

	"gorm.io/gorm"
)

// 站点维度的同步状态
const (
	SyncStatusSynced   = "synced"
	SyncStatusPending  = "pending"
	SyncStatusModified = "modified"
	SyncStatusError    = "error"
)

// Product 商品主数据（PIM），共享字段以主站点为准，站点差异字段放在各 map 列里
type Product struct {
	ID         uint        `json:"id" gorm:"primarykey"`
	SKU        string      `json:"sku" gorm:"uniqueIndex;not null;size:100"`
	Name       string      `json:"name" gorm:"index"`
	Images     StringSlice `json:"images" gorm:"type:text"`
	Categories StringSlice `json:"categories" gorm:"type:text"`
	Attributes AttrMap     `json:"attributes" gorm:"type:text"`

	// 站点 -> 值
	Prices          PriceMap     `json:"prices" gorm:"type:text"`
	RegularPrices   PriceMap     `json:"regular_prices" gorm:"type:text"`
	StockQuantities IntMap       `json:"stock_quantities" gorm:"type:text"`
	StockStatuses   StringMap    `json:"stock_statuses" gorm:"type:text"`
	Statuses        StringMap    `json:"statuses" gorm:"type:text"`
	Content         ContentMap   `json:"content" gorm:"type:text"`
	Variations      VariationMap `json:"variations" gorm:"type:text"`
	VariationCounts IntMap       `json:"variation_counts" gorm:"type:text"`
	WooIDs          IntMap       `json:"woo_ids" gorm:"type:text"`
	SyncStatus      StringMap    `json:"sync_status" gorm:"type:text"`

	LastSyncedAt *time.Time     `json:"last_synced_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
