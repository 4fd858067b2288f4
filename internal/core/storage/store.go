package storage

import (
	"encoding/json"
)

// Store 带前缀隔离的 KV 存储
//
//	peers := storage.NewStore(eng, "tcf/peer/")
//	peers.PutJSON("agent-1", attrs) // 实际键: tcf/peer/agent-1
type Store struct {
	engine *Engine
	prefix []byte
}

// NewStore 创建带前缀的 Store
func NewStore(eng *Engine, prefix string) *Store {
	return &Store{engine: eng, prefix: []byte(prefix)}
}

func (s *Store) key(k string) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k...)
}

// PutJSON 序列化并写入
func (s *Store) PutJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.engine.Put(s.key(key), data)
}

// GetJSON 读取并反序列化，不存在返回 ErrNotFound
func (s *Store) GetJSON(key string, v interface{}) error {
	data, err := s.engine.Get(s.key(key))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrCorrupted
	}
	return nil
}

// Delete 删除
func (s *Store) Delete(key string) error {
	return s.engine.Delete(s.key(key))
}

// ForEachJSON 遍历前缀下的所有值；无法解析的条目跳过并记录日志
func (s *Store) ForEachJSON(newValue func() interface{}, fn func(key string, v interface{})) error {
	return s.engine.Scan(s.prefix, func(k, data []byte) error {
		v := newValue()
		if err := json.Unmarshal(data, v); err != nil {
			logger.Warn("跳过损坏的存储条目", "key", string(k), "error", err)
			return nil
		}
		fn(string(k[len(s.prefix):]), v)
		return nil
	})
}
