package model

import (
	"database/sql/driver"
	"time"
)

// OrderItem 订单行
type OrderItem struct {
	ProductSKU string  `json:"product_sku"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Total      float64 `json:"total"`
}

// OrderItems 订单行 JSON 列
type OrderItems []OrderItem

func (s OrderItems) Value() (driver.Value, error) { return jsonValue(s) }
func (s *OrderItems) Scan(value any) error        { return jsonScan(s, value) }

// Order 从各站点拉回的订单快照，(site, woo_id) 唯一
type Order struct {
	ID            uint       `json:"id" gorm:"primarykey"`
	Site          string     `json:"site" gorm:"uniqueIndex:idx_site_woo_id;not null;size:10"`
	WooID         int        `json:"woo_id" gorm:"uniqueIndex:idx_site_woo_id;not null"`
	Number        string     `json:"number"`
	Status        string     `json:"status" gorm:"index;size:30"`
	Currency      string     `json:"currency" gorm:"size:10"`
	Total         float64    `json:"total"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email" gorm:"index"`
	Country       string     `json:"country" gorm:"size:10"`
	LineItems     OrderItems `json:"line_items" gorm:"type:text"`
	PlacedAt      time.Time  `json:"placed_at" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
