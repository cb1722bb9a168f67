package sse

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServeSSE 返回处理 SSE 连接的 gin handler。
// 客户端通过 ?topic= 指定订阅的主题，例如 /api/events?topic=tasks:42。
// 商品详情页切换商品时断开重连，订阅随请求上下文结束自动清理，
// 不会跨商品泄漏。
func ServeSSE(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic := c.Query("topic")
		if topic == "" {
			c.String(http.StatusBadRequest, "missing topic")
			return
		}

		// 设置 SSE 必要的响应头，确保浏览器或代理以流式方式处理
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.String(http.StatusInternalServerError, "streaming unsupported")
			return
		}

		// 每个连接专用的消息通道（缓冲 16）
		msgCh := make(chan []byte, 16)
		hub.Subscribe(msgCh, topic)
		defer hub.Unsubscribe(msgCh, topic)

		notify := c.Request.Context().Done()
		// 发送一个注释作为初次握手 / 保活 ping，部分代理需要保持连接活跃
		fmt.Fprintf(c.Writer, ": connected\n\n")
		flusher.Flush()

		for {
			select {
			case <-notify:
				return
			case msg := <-msgCh:
				// 以 SSE 格式发送（data: <payload>\n\n）
				fmt.Fprintf(c.Writer, "data: %s\n\n", string(msg))
				flusher.Flush()
			}
		}
	}
}
