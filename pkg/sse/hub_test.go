package sse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	ch := make(chan []byte, 16)
	hub.Subscribe(ch, TaskTopic(42))

	hub.PublishTopic(TaskTopic(42), []byte(`[{"id":1}]`))

	select {
	case msg := <-ch:
		assert.Equal(t, `[{"id":1}]`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("订阅者未收到消息")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	taskCh := make(chan []byte, 16)
	syncCh := make(chan []byte, 16)
	hub.Subscribe(taskCh, TaskTopic(1))
	hub.Subscribe(syncCh, TopicSync)

	hub.PublishTopic(TopicSync, []byte(`{"status":"running"}`))

	select {
	case msg := <-syncCh:
		assert.Contains(t, string(msg), "running")
	case <-time.After(time.Second):
		t.Fatal("sync 订阅者未收到消息")
	}

	select {
	case msg := <-taskCh:
		t.Fatalf("任务 topic 不应收到同步消息: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	ch := make(chan []byte, 16)
	hub.Subscribe(ch, TopicPending)

	hub.PublishTopic(TopicPending, []byte(`3`))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("退订前应能收到消息")
	}

	// Unsubscribe 在 Run 循环接收后才返回，后续 publish 一定排在它之后
	hub.Unsubscribe(ch, TopicPending)
	hub.PublishTopic(TopicPending, []byte(`4`))

	select {
	case msg := <-ch:
		t.Fatalf("退订后不应再收到消息: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTaskTopicFormat(t *testing.T) {
	require.Equal(t, "tasks:7", TaskTopic(7))
}
