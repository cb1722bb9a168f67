package woohelper

import "encoding/json"

// Product WooCommerce 商品（wc/v3）。价格字段在 API 里是字符串。
type Product struct {
	ID               int         `json:"id"`
	SKU              string      `json:"sku"`
	Name             string      `json:"name"`
	Type             string      `json:"type"`
	Status           string      `json:"status"`
	Price            string      `json:"price"`
	RegularPrice     string      `json:"regular_price"`
	SalePrice        string      `json:"sale_price"`
	StockQuantity    *int        `json:"stock_quantity"`
	StockStatus      string      `json:"stock_status"`
	Description      string      `json:"description"`
	ShortDescription string      `json:"short_description"`
	Categories       []Category  `json:"categories"`
	Images           []Image     `json:"images"`
	Attributes       []Attribute `json:"attributes"`
	DateModified     string      `json:"date_modified"`
}

// Category 商品分类
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Image 商品图片
type Image struct {
	ID  int    `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Attribute 商品属性（如 Size、Team）
type Attribute struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Slug    string   `json:"slug"`
	Options []string `json:"options"`
}

// Variation 商品变体
type Variation struct {
	ID            int             `json:"id"`
	SKU           string          `json:"sku"`
	RegularPrice  string          `json:"regular_price"`
	SalePrice     string          `json:"sale_price"`
	StockQuantity *int            `json:"stock_quantity"`
	StockStatus   string          `json:"stock_status"`
	Attributes    json.RawMessage `json:"attributes"`
}

// Order WooCommerce 订单
type Order struct {
	ID          int        `json:"id"`
	Number      string     `json:"number"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency"`
	Total       string     `json:"total"`
	DateCreated string     `json:"date_created"`
	Billing     Billing    `json:"billing"`
	LineItems   []LineItem `json:"line_items"`
}

// Billing 订单账单信息
type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Country   string `json:"country"`
}

// LineItem 订单行项目
type LineItem struct {
	ProductID int    `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     any    `json:"price"`
	Total     string `json:"total"`
}
