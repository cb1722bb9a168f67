// Package woohelper 封装 WooCommerce REST API（wc/v3）客户端。
// 每个站点一个实例，凭证来自配置；503 和网络错误按 2s/4s 线性退避重试。
package woohelper

import (
	"context"
	"fmt"
	"jersey-hub/app/config"
	"strings"
	"time"

	"resty.dev/v3"
)

const (
	defaultPerPage = 100
	maxRetries     = 3
)

// Client 单站点 WooCommerce 客户端
type Client struct {
	Site       string
	client     *resty.Client
	retryDelay time.Duration // 测试时可调小
}

// New 创建站点客户端
func New(site string, cfg config.SiteConfig) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.URL, "/") + "/wp-json/wc/v3")
	client.SetBasicAuth(cfg.Key, cfg.Secret)
	client.SetTimeout(30 * time.Second)

	return &Client{
		Site:       site,
		client:     client,
		retryDelay: 2 * time.Second,
	}
}

// doWithRetry 带重试执行请求。503 或网络错误时等待 2s、4s 后重试。
func (c *Client) doWithRetry(ctx context.Context, do func() (*resty.Response, error)) (*resty.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := do()
		if err == nil && resp.StatusCode() != 503 {
			if resp.StatusCode() >= 400 {
				return nil, fmt.Errorf("[%s] 请求失败，状态码: %d, 响应: %s", c.Site, resp.StatusCode(), resp.String())
			}
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("[%s] 服务端返回 503", c.Site)
		}

		if attempt < maxRetries-1 {
			wait := time.Duration(attempt+1) * c.retryDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, fmt.Errorf("[%s] 重试次数耗尽: %w", c.Site, lastErr)
}

// GetProduct 获取单个商品
func (c *Client) GetProduct(ctx context.Context, wooID int) (*Product, error) {
	var product Product
	_, err := c.doWithRetry(ctx, func() (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetResult(&product).
			Get(fmt.Sprintf("/products/%d", wooID))
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsPage 分页获取商品
func (c *Client) GetProductsPage(ctx context.Context, page, perPage int) ([]Product, error) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	var products []Product
	_, err := c.doWithRetry(ctx, func() (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetQueryParam("page", fmt.Sprintf("%d", page)).
			SetQueryParam("per_page", fmt.Sprintf("%d", perPage)).
			SetResult(&products).
			Get("/products")
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// GetAllProducts 翻页拉取全部商品，页不满即停止
func (c *Client) GetAllProducts(ctx context.Context, perPage int) ([]Product, error) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	var all []Product
	for page := 1; ; page++ {
		products, err := c.GetProductsPage(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			break
		}
		all = append(all, products...)
		if len(products) < perPage {
			break
		}
	}
	return all, nil
}

// GetVariations 获取商品变体
func (c *Client) GetVariations(ctx context.Context, wooID int) ([]Variation, error) {
	var variations []Variation
	_, err := c.doWithRetry(ctx, func() (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetQueryParam("per_page", "100").
			SetResult(&variations).
			Get(fmt.Sprintf("/products/%d/variations", wooID))
	})
	if err != nil {
		return nil, err
	}
	return variations, nil
}

// UpdateProduct 向站点推送价格/库存/状态/文案等字段
func (c *Client) UpdateProduct(ctx context.Context, wooID int, payload map[string]any) error {
	_, err := c.doWithRetry(ctx, func() (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetBody(payload).
			Put(fmt.Sprintf("/products/%d", wooID))
	})
	return err
}

// GetOrdersPage 分页获取 after 之后创建的订单
func (c *Client) GetOrdersPage(ctx context.Context, page, perPage int, after time.Time) ([]Order, error) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	var orders []Order
	_, err := c.doWithRetry(ctx, func() (*resty.Response, error) {
		req := c.client.R().
			SetContext(ctx).
			SetQueryParam("page", fmt.Sprintf("%d", page)).
			SetQueryParam("per_page", fmt.Sprintf("%d", perPage)).
			SetResult(&orders)
		if !after.IsZero() {
			req.SetQueryParam("after", after.UTC().Format("2006-01-02T15:04:05"))
		}
		return req.Get("/orders")
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus 更新站点订单状态
func (c *Client) UpdateOrderStatus(ctx context.Context, wooID int, status string) error {
	_, err := c.doWithRetry(ctx, func() (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetBody(map[string]any{"status": status}).
			Put(fmt.Sprintf("/orders/%d", wooID))
	})
	return err
}

// TestConnection 测试 API 连通性
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.GetProductsPage(ctx, 1, 1)
	return err
}

// SetRetryDelay 设置重试基础间隔（测试用）
func (c *Client) SetRetryDelay(d time.Duration) {
	c.retryDelay = d
}
