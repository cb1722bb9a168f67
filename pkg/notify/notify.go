// Package notify 实现可注入的瞬时通知服务，取代散落在模块级的
// toast 数组和回调：订阅/退订有明确生命周期，通知到期自动过期。
package notify

import (
	"sync"
	"time"
)

// Level 通知级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice 一条瞬时通知
type Notice struct {
	ID        int64     `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service 通知中心。Push 进来的通知广播给所有订阅者，
// 到期或被 Dismiss 后从活动列表消失。
type Service struct {
	mu      sync.Mutex
	seq     int64
	notices []Notice
	subs    map[chan Notice]bool
	ttl     time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New 创建通知服务，ttl 为通知的存活时间
func New(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Service{
		subs:   make(map[chan Notice]bool),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
}

// Start 启动过期清理协程
func (s *Service) Start() {
	s.wg.Add(1)
	go s.janitor()
}

// Stop 停止清理协程
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Service) janitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.expire(time.Now())
		}
	}
}

func (s *Service) expire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.notices[:0]
	for _, n := range s.notices {
		if n.ExpiresAt.After(now) {
			kept = append(kept, n)
		}
	}
	s.notices = kept
}

// Push 发布一条通知并广播给所有订阅者
func (s *Service) Push(level Level, message string) Notice {
	s.mu.Lock()
	s.seq++
	now := time.Now()
	n := Notice{
		ID:        s.seq,
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.notices = append(s.notices, n)
	for ch := range s.subs {
		select {
		case ch <- n:
		default:
			// 订阅者不读就丢弃
		}
	}
	s.mu.Unlock()
	return n
}

// Dismiss 手动移除一条通知
func (s *Service) Dismiss(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i], s.notices[i+1:]...)
			return true
		}
	}
	return false
}

// Active 返回未过期的通知列表
func (s *Service) Active() []Notice {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notice, 0, len(s.notices))
	for _, n := range s.notices {
		if n.ExpiresAt.After(now) {
			out = append(out, n)
		}
	}
	return out
}

// Subscribe 注册一个订阅通道（缓冲 16），用完必须 Unsubscribe
func (s *Service) Subscribe() chan Notice {
	ch := make(chan Notice, 16)

	s.mu.Lock()
	s.subs[ch] = true
	s.mu.Unlock()

	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (s *Service) Unsubscribe(ch chan Notice) {
	s.mu.Lock()
	if s.subs[ch] {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}
