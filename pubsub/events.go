package pubsub

import "context"

const (
	// StartedEvent 任务开始
	StartedEvent EventType = "started"
	// ProgressEvent 任务进入下一个阶段
	ProgressEvent EventType = "progress"
	// FinishedEvent 任务成功结束
	FinishedEvent EventType = "finished"
	// FailedEvent 任务失败
	FailedEvent EventType = "failed"
)

// Terminal 判断事件是否表示任务已结束
func (t EventType) Terminal() bool {
	return t == FinishedEvent || t == FailedEvent
}

// Subscriber 订阅者接口
type Subscriber[T any] interface {
	// Subscribe 返回只读事件通道，context 结束时自动关闭
	Subscribe(context.Context) <-chan Event[T]
}

type (
	// EventType 标识事件类型
	EventType string

	// Event 是一次任务状态变化
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher 发布者接口
	Publisher[T any] interface {
		Publish(EventType, T)
	}
)

var (
	_ Publisher[struct{}]  = (*Broker[struct{}])(nil)
	_ Subscriber[struct{}] = (*Broker[struct{}])(nil)
)
