package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jersey-hub/app/model"
	"jersey-hub/app/utils/woohelper"
)

func intPtr(v int) *int { return &v }

func TestMergeProductUpdateMasterSite(t *testing.T) {
	product := &model.Product{SKU: "JF-001"}

	wp := woohelper.Product{
		ID:               101,
		SKU:              "JF-001",
		Name:             "Home Jersey 24/25",
		Type:             "variable",
		Status:           "publish",
		Price:            "59.99",
		RegularPrice:     "69.99",
		StockStatus:      "instock",
		Description:      "<p>desc</p>",
		ShortDescription: "short",
		Images:           []woohelper.Image{{Src: "https://cdn/img1.jpg"}, {Src: "https://cdn/img2.jpg"}},
		Categories:       []woohelper.Category{{Name: "Premier League"}},
		Attributes: []woohelper.Attribute{
			{Name: "Gender Age", Options: []string{"Men"}},
			{Name: "Season", Options: []string{"24/25"}},
			{Name: "Jersey Type", Options: []string{"Home"}},
			{Name: "Events", Options: []string{"UCL", "League"}},
		},
	}
	variations := []woohelper.Variation{
		{ID: 1, SKU: "JF-001-S", StockQuantity: intPtr(5), RegularPrice: "69.99"},
		{ID: 2, SKU: "JF-001-M", StockQuantity: intPtr(7), RegularPrice: "69.99"},
	}

	mergeProductUpdate(product, "com", true, wp, variations)

	assert.Equal(t, "Home Jersey 24/25", product.Name)
	assert.Equal(t, model.StringSlice{"https://cdn/img1.jpg", "https://cdn/img2.jpg"}, product.Images)
	assert.Equal(t, model.StringSlice{"Premier League"}, product.Categories)

	assert.Equal(t, 101, product.WooIDs["com"])
	assert.Equal(t, 59.99, product.Prices["com"])
	assert.Equal(t, 69.99, product.RegularPrices["com"])
	assert.Equal(t, "instock", product.StockStatuses["com"])
	assert.Equal(t, "publish", product.Statuses["com"])
	assert.Equal(t, model.SyncStatusSynced, product.SyncStatus["com"])

	// 商品本身没报库存，从变体合计
	assert.Equal(t, 12, product.StockQuantities["com"])
	assert.Equal(t, 2, product.VariationCounts["com"])

	assert.Equal(t, "Men", product.Attributes["gender"])
	assert.Equal(t, "24/25", product.Attributes["season"])
	assert.Equal(t, "Home", product.Attributes["type"])
	assert.Equal(t, []string{"UCL", "League"}, product.Attributes["events"])
}

func TestMergeProductUpdateNonMasterKeepsSharedFields(t *testing.T) {
	product := &model.Product{
		SKU:    "JF-001",
		Name:   "Home Jersey 24/25",
		Images: model.StringSlice{"https://cdn/img1.jpg"},
	}

	wp := woohelper.Product{
		ID:            202,
		SKU:           "JF-001",
		Name:          "Heimtrikot 24/25",
		Price:         "54.99",
		StockQuantity: intPtr(20),
		StockStatus:   "instock",
		Status:        "publish",
		Images:        []woohelper.Image{{Src: "https://de-cdn/other.jpg"}},
	}

	mergeProductUpdate(product, "de", false, wp, nil)

	// 共享字段仍以主站点为准
	assert.Equal(t, "Home Jersey 24/25", product.Name)
	assert.Equal(t, model.StringSlice{"https://cdn/img1.jpg"}, product.Images)

	assert.Equal(t, 202, product.WooIDs["de"])
	assert.Equal(t, 54.99, product.Prices["de"])
	assert.Equal(t, 20, product.StockQuantities["de"])
	assert.Equal(t, "Heimtrikot 24/25", product.Content["de"].Name)
}

func TestExtractAttributes(t *testing.T) {
	attrs := []woohelper.Attribute{
		{Name: "pa_team", Options: []string{"Arsenal"}},
		{Name: "Sleeve Length", Options: []string{"Short"}},
		{Name: "Style", Options: []string{"Player Version"}},
		{Name: "Color", Options: []string{"Red"}}, // 未映射的属性被忽略
		{Name: "Season", Options: nil},            // 没有选项的属性被忽略
	}

	out := extractAttributes(attrs)

	assert.Equal(t, "Arsenal", out["team"])
	assert.Equal(t, "Short", out["sleeve"])
	assert.Equal(t, "Player Version", out["version"])
	assert.NotContains(t, out, "season")
	assert.Len(t, out, 3)
}

func TestParsePrice(t *testing.T) {
	assert.Equal(t, 59.99, parsePrice("59.99"))
	assert.Equal(t, 0.0, parsePrice(""))
	assert.Equal(t, 0.0, parsePrice("n/a"))
}

func TestBuildPushPayload(t *testing.T) {
	product := &model.Product{
		SKU:             "JF-001",
		RegularPrices:   model.PriceMap{"uk": 49.99},
		StockQuantities: model.IntMap{"uk": 15},
		Statuses:        model.StringMap{"uk": "publish"},
		Content: model.ContentMap{
			"uk": {Name: "Home Shirt 24/25", ShortDescription: "Official shirt."},
		},
	}

	payload := buildPushPayload(product, "uk")

	assert.Equal(t, "49.99", payload["regular_price"])
	assert.Equal(t, 15, payload["stock_quantity"])
	assert.Equal(t, true, payload["manage_stock"])
	assert.Equal(t, "publish", payload["status"])
	assert.Equal(t, "Home Shirt 24/25", payload["name"])
	assert.NotContains(t, payload, "description")
}

func TestConvertOrder(t *testing.T) {
	o := woohelper.Order{
		ID:          1001,
		Number:      "1001",
		Status:      "processing",
		Currency:    "GBP",
		Total:       "99.98",
		DateCreated: "2026-08-01T10:30:00",
		Billing:     woohelper.Billing{FirstName: "Alex", LastName: "Smith", Email: "a@example.com", Country: "GB"},
		LineItems: []woohelper.LineItem{
			{SKU: "JF-001", Name: "Home Shirt", Quantity: 2, Total: "99.98"},
		},
	}

	order := convertOrder("uk", o)

	require.Equal(t, "uk", order.Site)
	assert.Equal(t, 1001, order.WooID)
	assert.Equal(t, 99.98, order.Total)
	assert.Equal(t, "Alex Smith", order.CustomerName)
	assert.Equal(t, 2026, order.PlacedAt.Year())
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "JF-001", order.LineItems[0].ProductSKU)
	assert.Equal(t, 99.98, order.LineItems[0].Total)
}
