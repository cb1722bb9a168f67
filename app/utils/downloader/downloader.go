// Package downloader 从远端 URL 下载图片到本地存储。
// 先写临时文件，校验大小后再重命名，避免留下半截文件。
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DownloadConfig 下载配置
type DownloadConfig struct {
	UserAgent     string        // User-Agent
	Timeout       time.Duration // 超时时间
	OverwriteFile bool          // 是否覆盖已存在的文件
	MaxSize       int64         // 单文件大小上限（字节），0 不限制
}

// DefaultDownloadConfig 默认下载配置
func DefaultDownloadConfig() *DownloadConfig {
	return &DownloadConfig{
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Timeout:       2 * time.Minute,
		OverwriteFile: true,
		MaxSize:       50 * 1024 * 1024,
	}
}

// DownloadResult 下载结果
type DownloadResult struct {
	Size     int64         // 下载的文件大小
	Duration time.Duration // 下载耗时
	Path     string        // 保存的文件路径
}

// DownloadFromURL 下载 URL 到 savePath。
// 通过临时文件落盘，下载完整且大小校验通过后才重命名到位。
func DownloadFromURL(ctx context.Context, url, savePath string, config *DownloadConfig) (*DownloadResult, error) {
	if config == nil {
		config = DefaultDownloadConfig()
	}

	if !config.OverwriteFile {
		if _, err := os.Stat(savePath); err == nil {
			return nil, fmt.Errorf("文件已存在: %s", savePath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("Accept", "*/*")
	// 禁用压缩，避免 Content-Length 不匹配
	req.Header.Set("Accept-Encoding", "identity")

	client := &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("重定向次数过多")
			}
			req.Header.Set("User-Agent", config.UserAgent)
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HTTP请求失败，状态码: %d, 响应: %s", resp.StatusCode, string(bodyBytes))
	}

	contentLength := resp.ContentLength
	if config.MaxSize > 0 && contentLength > config.MaxSize {
		return nil, fmt.Errorf("文件过大: %d bytes", contentLength)
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return nil, fmt.Errorf("创建保存目录失败: %w", err)
	}

	tempPath := savePath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("创建文件失败: %w", err)
	}

	startTime := time.Now()

	body := io.Reader(resp.Body)
	if config.MaxSize > 0 {
		body = io.LimitReader(resp.Body, config.MaxSize+1)
	}

	written, err := io.Copy(file, body)
	if err != nil {
		file.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("写入文件内容失败: %w", err)
	}
	if config.MaxSize > 0 && written > config.MaxSize {
		file.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("文件过大: 超过 %d bytes", config.MaxSize)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("刷新文件到磁盘失败: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("关闭文件失败: %w", err)
	}

	// 验证文件大小（如果服务器提供了Content-Length）
	if contentLength > 0 && written != contentLength {
		os.Remove(tempPath)
		return nil, fmt.Errorf("下载不完整: 期望 %d bytes, 实际 %d bytes", contentLength, written)
	}

	if err := os.Rename(tempPath, savePath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("重命名文件失败: %w", err)
	}

	return &DownloadResult{
		Size:     written,
		Duration: time.Since(startTime),
		Path:     savePath,
	}, nil
}
