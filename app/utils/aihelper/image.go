package aihelper

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"resty.dev/v3"

	"jersey-hub/app/config"
)

// ImageClient 图片编辑客户端，按配置的端点发起编辑请求
type ImageClient struct {
	client   *resty.Client
	endpoint string
}

// ImageEditRequest 图片编辑请求体
type ImageEditRequest struct {
	ImageURL    string `json:"image_url"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type imageEditResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewImageClient 创建图片编辑客户端
func NewImageClient(cfg config.AIConfig) *ImageClient {
	client := resty.New()
	client.SetTimeout(120 * time.Second)
	if cfg.ImageAPIKey != "" {
		client.SetAuthToken(cfg.ImageAPIKey)
	}

	return &ImageClient{
		client:   client,
		endpoint: cfg.ImageEndpoint,
	}
}

// EditResult 编辑结果。二选一：内联图片字节，或远端 URL。
type EditResult struct {
	Data []byte
	URL  string
}

// Edit 提交一次图片编辑，同步等待结果
func (c *ImageClient) Edit(ctx context.Context, req ImageEditRequest) (*EditResult, error) {
	if c.endpoint == "" {
		return nil, errors.New("未配置图片编辑端点")
	}

	var result imageEditResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("图片编辑请求失败: %w", err)
	}
	if resp.StatusCode() >= 400 {
		if result.Error.Message != "" {
			return nil, fmt.Errorf("图片编辑失败: %s", result.Error.Message)
		}
		return nil, fmt.Errorf("图片编辑失败，状态码: %d", resp.StatusCode())
	}
	if len(result.Data) == 0 {
		return nil, errors.New("图片编辑响应不含结果")
	}

	first := result.Data[0]
	if first.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("解码图片数据失败: %w", err)
		}
		return &EditResult{Data: data}, nil
	}
	if first.URL != "" {
		return &EditResult{URL: first.URL}, nil
	}
	return nil, errors.New("图片编辑响应字段为空")
}
