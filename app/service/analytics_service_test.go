package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jersey-hub/app/model"
)

func TestTopProducts(t *testing.T) {
	orders := []model.Order{
		{Site: "com", LineItems: model.OrderItems{
			{ProductSKU: "JF-001", Name: "Home Shirt", Quantity: 2, Total: 120},
			{ProductSKU: "JF-002", Name: "Away Shirt", Quantity: 1, Total: 60},
		}},
		{Site: "uk", LineItems: model.OrderItems{
			{ProductSKU: "JF-001", Name: "Home Shirt", Quantity: 3, Total: 150},
			{ProductSKU: "", Name: "custom fee", Quantity: 1, Total: 5}, // 无 SKU 的行被忽略
		}},
		{Site: "de", LineItems: model.OrderItems{
			{ProductSKU: "JF-003", Name: "Third Shirt", Quantity: 1, Total: 55},
		}},
	}

	top := topProducts(orders, 2)

	require.Len(t, top, 2)
	assert.Equal(t, "JF-001", top[0].SKU)
	assert.Equal(t, 5, top[0].Quantity)
	assert.Equal(t, 270.0, top[0].Revenue)
	assert.Equal(t, "JF-002", top[1].SKU)
}

func TestTopProductsTieBrokenByRevenue(t *testing.T) {
	orders := []model.Order{
		{LineItems: model.OrderItems{{ProductSKU: "A", Quantity: 1, Total: 10}}},
		{LineItems: model.OrderItems{{ProductSKU: "B", Quantity: 1, Total: 90}}},
	}

	top := topProducts(orders, 10)

	require.Len(t, top, 2)
	assert.Equal(t, "B", top[0].SKU)
}

func TestFormatAmountFallsBackToUSD(t *testing.T) {
	out := formatAmount("XXX", 10)
	assert.NotEmpty(t, out)
}
