// Package sse 提供按 topic 分发的 Server-Sent Events 推送通道。
// 管理后台用它向打开的页面推送当前商品的完整任务列表（topic
// "tasks:<商品ID>"）、同步进度（"sync"）、全局待处理指示（"pending"）
// 和瞬时通知（"notices"）。每条消息都是该 topic 的完整当前状态，
// 订阅端整体替换而不是打补丁。
package sse

import (
	"fmt"
	"sync"
)

// Hub 管理基于 topic 的 SSE 订阅者。
// subscribe/unsubscribe/publish 三个控制通道在 Run 循环中串行处理，
// 对 topics 的修改都发生在同一个 goroutine 里。
type Hub struct {
	// topics 保存 topic -> 客户端 channel 集合。
	// channel 由订阅方（SSE handler）创建并负责关闭，Hub 只向其发送。
	topics map[string]map[chan []byte]bool

	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan topicMessage
	stopCh      chan struct{}
	stopOnce    sync.Once

	mu sync.Mutex
}

type subscription struct {
	ch    chan []byte
	topic string
}

type topicMessage struct {
	topic string
	msg   []byte
}

// TaskTopic 商品任务列表的 topic 名
func TaskTopic(productID uint) string {
	return fmt.Sprintf("tasks:%d", productID)
}

// 固定 topic
const (
	TopicSync    = "sync"    // 同步进度
	TopicPending = "pending" // 全局待处理任务数
	TopicNotices = "notices" // 瞬时通知
)

// NewHub 创建新的 Hub。publish 通道带缓冲（100），
// 避免短时突发的发布操作阻塞发布者。
func NewHub() *Hub {
	return &Hub{
		topics:      make(map[string]map[chan []byte]bool),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan topicMessage, 100),
		stopCh:      make(chan struct{}),
	}
}

// Run 启动事件循环，应在单独的 goroutine 中运行：
//
//	hub := sse.NewHub()
//	go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.stopCh:
			return
		case s := <-h.subscribe:
			h.mu.Lock()
			subs, ok := h.topics[s.topic]
			if !ok {
				subs = make(map[chan []byte]bool)
				h.topics[s.topic] = subs
			}
			subs[s.ch] = true
			h.mu.Unlock()
		case s := <-h.unsubscribe:
			h.mu.Lock()
			if subs, ok := h.topics[s.topic]; ok {
				delete(subs, s.ch)
				if len(subs) == 0 {
					delete(h.topics, s.topic)
				}
			}
			h.mu.Unlock()
		case tm := <-h.publish:
			h.mu.Lock()
			if subs, ok := h.topics[tm.topic]; ok {
				for ch := range subs {
					select {
					case ch <- tm.msg:
					default:
						// 客户端不读就丢弃
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop 终止事件循环
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// PublishTopic 把消息发布到指定 topic 的所有订阅者
func (h *Hub) PublishTopic(topic string, msg []byte) {
	select {
	case h.publish <- topicMessage{topic: topic, msg: msg}:
	case <-h.stopCh:
	}
}

// Subscribe 注册订阅通道。调用方应提供带缓冲的 channel（例如 16），
// 不再需要时负责取消订阅并关闭；Hub 不会关闭订阅者的通道。
func (h *Hub) Subscribe(ch chan []byte, topic string) {
	select {
	case h.subscribe <- subscription{ch: ch, topic: topic}:
	case <-h.stopCh:
	}
}

// Unsubscribe 取消订阅
func (h *Hub) Unsubscribe(ch chan []byte, topic string) {
	select {
	case h.unsubscribe <- subscription{ch: ch, topic: topic}:
	case <-h.stopCh:
	}
}
