package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 64

// Broker 是基于内存的发布/订阅实现，任务进度事件通过它分发给界面和日志。
// 泛型 T 保证事件载荷的类型安全。
type Broker[T any] struct {
	subs       map[chan Event[T]]struct{} // 活跃订阅者集合
	mu         sync.RWMutex               // 保护 subs 的读写锁
	done       chan struct{}              // 关闭信号
	bufferSize int                        // 每个订阅通道的缓冲区大小
	dropped    atomic.Int64               // 因订阅者缓冲区已满而丢弃的事件数
}

// NewBroker 使用默认缓冲区大小创建 Broker
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer 创建订阅通道缓冲区为 size 的 Broker。
// 批量入库时事件较多，调用方应按文档数量放大缓冲区。
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Broker[T]{
		subs:       make(map[chan Event[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
	}
}

// Shutdown 关闭 Broker 并关闭所有订阅通道，可重复调用
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Subscribe 注册订阅者并返回事件通道。
// ctx 结束或 Broker 关闭时通道会被注销并关闭。
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Broker 已关闭时返回一个已关闭的通道
	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], b.bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

// SubscriberCount 返回当前活跃订阅者数量
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped 返回累计丢弃的事件数
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Publish 将事件分发给所有订阅者。
// 发送是非阻塞的：订阅者缓冲区已满时跳过该订阅者并计入 Dropped。
func (b *Broker[T]) Publish(t EventType, payload T) {
	// 持有读锁发送，避免与 Shutdown 或退订关闭通道产生竞争
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{Type: t, Payload: payload}
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}
