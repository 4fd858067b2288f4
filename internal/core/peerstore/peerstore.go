// Package peerstore 持久化用户创建的节点
//
// 写入在单独的 goroutine 上按提交顺序执行，调用方（调度 goroutine）
// 只入队不等待。读取只发生在启动时（Load）。
package peerstore

import (
	"errors"
	"sync"

	"github.com/dep2p/go-tcf/internal/core/storage"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/peerstore")

// KeyPrefix 节点属性的键前缀
const KeyPrefix = "tcf/peer/"

// ErrClosed 存储已关闭
var ErrClosed = errors.New("peerstore closed")

type op struct {
	id    string
	attrs types.Attributes // nil 表示删除
	flush chan struct{}
}

// Store 异步节点存储
type Store struct {
	kv *storage.Store

	mu      sync.Mutex
	pending []op
	signal  chan struct{}
	closed  bool
	done    chan struct{}
}

// New 创建存储并启动写入 goroutine
func New(eng *storage.Engine) *Store {
	s := &Store{
		kv:     storage.NewStore(eng, KeyPrefix),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

// Load 读取全部持久化节点，属性中的临时键被去掉
func (s *Store) Load() ([]types.Attributes, error) {
	var out []types.Attributes
	err := s.kv.ForEachJSON(
		func() interface{} { return &types.Attributes{} },
		func(id string, v interface{}) {
			attrs := *(v.(*types.Attributes))
			if attrs.ID() != id {
				logger.Warn("节点记录 ID 不一致，跳过", "key", id, "id", attrs.ID())
				return
			}
			out = append(out, attrs.WithoutTransient())
		},
	)
	return out, err
}

// Save 异步写入节点属性（临时键不落盘）
func (s *Store) Save(attrs types.Attributes) {
	s.push(op{id: attrs.ID(), attrs: attrs.WithoutTransient()})
}

// Delete 异步删除
func (s *Store) Delete(id string) {
	s.push(op{id: id})
}

// Flush 阻塞到此前提交的写入全部完成
func (s *Store) Flush() error {
	ch := make(chan struct{})
	if !s.push(op{flush: ch}) {
		return ErrClosed
	}
	<-ch
	return nil
}

// Close 写完已入队的操作后停止
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.wake()
	<-s.done
	return nil
}

func (s *Store) push(o op) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Warn("节点存储已关闭，丢弃写入", "id", o.id)
		return false
	}
	s.pending = append(s.pending, o)
	s.mu.Unlock()
	s.wake()
	return true
}

func (s *Store) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		for _, o := range batch {
			s.apply(o)
		}
		if len(batch) == 0 {
			if closed {
				return
			}
			<-s.signal
		}
	}
}

func (s *Store) apply(o op) {
	switch {
	case o.flush != nil:
		close(o.flush)
	case o.attrs == nil:
		if err := s.kv.Delete(o.id); err != nil {
			logger.Warn("删除节点记录失败", "id", o.id, "error", err)
		}
	default:
		if err := s.kv.PutJSON(o.id, o.attrs); err != nil {
			logger.Warn("写入节点记录失败", "id", o.id, "error", err)
		}
	}
}
