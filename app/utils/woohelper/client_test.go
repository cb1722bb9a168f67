package woohelper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jersey-hub/app/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New("com", config.SiteConfig{
		URL:    server.URL,
		Key:    "ck_test",
		Secret: "cs_test",
	})
	c.SetRetryDelay(time.Millisecond)
	return c, server
}

func TestGetAllProductsStopsOnShortPage(t *testing.T) {
	var pages []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			// 满页，继续翻页
			products := make([]Product, 2)
			products[0] = Product{ID: 1, SKU: "JF-001"}
			products[1] = Product{ID: 2, SKU: "JF-002"}
			json.NewEncoder(w).Encode(products)
		case "2":
			// 不满页，停止
			json.NewEncoder(w).Encode([]Product{{ID: 3, SKU: "JF-003"}})
		default:
			t.Fatalf("不应请求第 %s 页", page)
		}
	})

	c, _ := newTestClient(t, handler)

	products, err := c.GetAllProducts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Equal(t, "JF-003", products[2].SKU)
}

func TestRetryOn503(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Product{ID: 7, SKU: "JF-007", Name: "Home Jersey 24/25"})
	})

	c, _ := newTestClient(t, handler)

	product, err := c.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "503 后应重试一次")
	assert.Equal(t, "JF-007", product.SKU)
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c, _ := newTestClient(t, handler)

	_, err := c.GetProductsPage(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "重试次数耗尽")
}

func TestNon503ErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"woocommerce_rest_cannot_view"}`)
	})

	c, _ := newTestClient(t, handler)

	_, err := c.GetProduct(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "401 不应重试")
	assert.Contains(t, err.Error(), "401")
}

func TestBasicAuthSent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "ck_test", user)
		assert.Equal(t, "cs_test", pass)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]Product{})
	})

	c, _ := newTestClient(t, handler)
	require.NoError(t, c.TestConnection(context.Background()))
}

func TestGetOrdersPageSendsAfter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp-json/wc/v3/orders", r.URL.Path)
		assert.Equal(t, "2026-01-01T00:00:00", r.URL.Query().Get("after"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]Order{{ID: 100, Number: "100", Status: "processing", Total: "59.99"}})
	})

	c, _ := newTestClient(t, handler)

	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orders, err := c.GetOrdersPage(context.Background(), 1, 100, after)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "processing", orders[0].Status)
}
