// Package aihelper 封装两个外部 AI 能力：Gemini 文案生成和图片编辑。
// 文案走 google genai SDK，图片编辑走可配置的 HTTP 端点。
package aihelper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"

	"jersey-hub/app/config"
)

var (
	// ErrContentBlocked 内容被安全过滤拦截，不可重试
	ErrContentBlocked = errors.New("内容被安全过滤拦截")
	// ErrInvalidResponse 响应格式无效，不可重试
	ErrInvalidResponse = errors.New("模型响应无效")
	// ErrTransientFailure 瞬时错误，重试耗尽
	ErrTransientFailure = errors.New("调用模型失败")
)

// CopySchema 商品文案结构，要求模型输出 JSON
type CopySchema struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
}

// CopyClient Gemini 文案客户端
type CopyClient struct {
	client     *genai.Client
	model      string
	maxRetries int
	baseDelay  time.Duration
}

// NewCopyClient 创建文案客户端
func NewCopyClient(ctx context.Context, cfg config.AIConfig) (*CopyClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("未配置 Gemini API Key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	if delay <= 0 {
		delay = 2 * time.Second
	}

	return &CopyClient{
		client:     client,
		model:      cfg.CopyModel,
		maxRetries: maxRetries,
		baseDelay:  delay,
	}, nil
}

// GenerateCopy 为指定语言生成商品文案。
// 瞬时错误按指数退避（带抖动）重试，安全拦截和格式错误立即返回。
func (c *CopyClient) GenerateCopy(ctx context.Context, productName, locale string) (*CopySchema, error) {
	prompt := buildCopyPrompt(productName, locale)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		result, err := c.callOnce(ctx, prompt)
		if err == nil {
			return result, nil
		}

		if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidResponse) {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxRetries {
			// 指数退避 + 抖动
			backoff := c.baseDelay * time.Duration(1<<attempt)
			jitter := time.Duration(rng.Int63n(int64(backoff) / 2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrTransientFailure, lastErr)
}

func (c *CopyClient) callOnce(ctx context.Context, prompt string) (*CopySchema, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, err
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, err
	}
	return ParseCopyResponse(text)
}

// extractText 拼接首个候选的文本分片。安全拦截和空响应转成不可重试错误。
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: 响应为空", ErrInvalidResponse)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: 响应为空", ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// ParseCopyResponse 解析模型输出。模型有时会包一层 ```json 代码块，先剥掉。
func ParseCopyResponse(text string) (*CopySchema, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed CopySchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: 解析 JSON 失败: %v", ErrInvalidResponse, err)
	}
	if parsed.Name == "" && parsed.Description == "" {
		return nil, fmt.Errorf("%w: 文案字段为空", ErrInvalidResponse)
	}
	return &parsed, nil
}

var localeNames = map[string]string{
	"en": "English",
	"de": "German",
	"fr": "French",
}

func buildCopyPrompt(productName, locale string) string {
	lang := localeNames[locale]
	if lang == "" {
		lang = "English"
	}
	return fmt.Sprintf(`You are a copywriter for a sports jersey e-commerce store.
Write product copy in %s for the jersey named %q.
Respond with a single JSON object only, no markdown, with keys:
"name" (localized product title),
"description" (2-3 paragraphs of HTML),
"short_description" (one sentence).`, lang, productName)
}
