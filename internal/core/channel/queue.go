package channel

import (
	"io"
	"sync"
)

// writeItem 写队列中的一项：一帧数据、EOS 或切换为转发
type writeItem struct {
	data   []byte
	eos    bool
	splice io.ReadWriteCloser
}

// writeQueue 无界写队列
//
// 调度 goroutine 只入队不阻塞，写 goroutine 批量取出。
type writeQueue struct {
	mu     sync.Mutex
	items  []writeItem
	closed bool
	signal chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{signal: make(chan struct{}, 1)}
}

func (q *writeQueue) push(it writeItem) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, it)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *writeQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// take 阻塞到有数据；队列关闭且取空后返回 false
func (q *writeQueue) take() ([]writeItem, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			batch := q.items
			q.items = nil
			q.mu.Unlock()
			return batch, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.signal
	}
}
