package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-tcf/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// Options 引擎选项
type Options struct {
	// Path 数据库目录，空表示内存模式
	Path string

	// GCInterval 值日志垃圾回收间隔，0 关闭（内存模式总是关闭）
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64
}

// Engine BadgerDB 存储引擎
type Engine struct {
	db     *badger.DB
	opts   Options
	closed atomic.Bool

	stats struct {
		reads   atomic.Int64
		writes  atomic.Int64
		deletes atomic.Int64
	}

	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open 打开存储引擎
func Open(opts Options) (*Engine, error) {
	var bopts badger.Options
	if opts.Path == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(&badgerLogger{}).WithNumVersionsToKeep(1)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	if opts.GCDiscardRatio <= 0 || opts.GCDiscardRatio > 1 {
		opts.GCDiscardRatio = 0.5
	}

	e := &Engine{db: db, opts: opts}
	if opts.GCInterval > 0 && opts.Path != "" {
		e.startGC()
	}
	logger.Debug("存储引擎已打开", "path", opts.Path, "inMemory", opts.Path == "")
	return e, nil
}

// Get 获取键值，不存在返回 ErrNotFound
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	e.stats.reads.Add(1)
	if err != nil {
		return nil, convertError(err)
	}
	return value, nil
}

// Put 写入键值
func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	err := e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err == nil {
		e.stats.writes.Add(1)
	}
	return convertError(err)
}

// Delete 删除键，键不存在不报错
func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	err := e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err == nil {
		e.stats.deletes.Add(1)
	}
	return convertError(err)
}

// Scan 按前缀遍历，fn 返回错误时停止
func (e *Engine) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats 读写计数
func (e *Engine) Stats() (reads, writes, deletes int64) {
	return e.stats.reads.Load(), e.stats.writes.Load(), e.stats.deletes.Load()
}

// Close 关闭引擎，可重复调用
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.gcCancel != nil {
		e.gcCancel()
		e.gcWg.Wait()
	}
	return e.db.Close()
}

// ============================================================================
//                              内部实现
// ============================================================================

func (e *Engine) startGC() {
	ctx, cancel := context.WithCancel(context.Background())
	e.gcCancel = cancel
	e.gcWg.Add(1)
	go func() {
		defer e.gcWg.Done()
		ticker := time.NewTicker(e.opts.GCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// 反复回收直到没有可回收的空间
				for e.db.RunValueLogGC(e.opts.GCDiscardRatio) == nil {
				}
			}
		}
	}()
}

func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrEmptyKey):
		return ErrEmptyKey
	default:
		return err
	}
}

// badgerLogger 把 badger 日志转到 slog，Info 及以下降为 Debug
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error("badger", "msg", fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn("badger", "msg", fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug("badger", "msg", fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug("badger", "msg", fmt.Sprintf(format, args...))
}
