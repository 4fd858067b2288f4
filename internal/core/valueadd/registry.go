package valueadd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/valueadd")

var (
	// ErrDuplicate 同 ID 的 value-add 已注册
	ErrDuplicate = errors.New("value-add already registered")

	// ErrLaunch 外部进程启动失败
	ErrLaunch = errors.New("value-add launch failed")

	// ErrBadProperties 外部进程报告的属性不完整
	ErrBadProperties = errors.New("value-add reported invalid peer attributes")
)

// Dialer 用于检查 value-add 是否仍在服务
type Dialer interface {
	Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error)
}

// ============================================================================
//                              Registry
// ============================================================================

// Registry 有序的 value-add 列表，可在任意 goroutine 使用
type Registry struct {
	mu  sync.RWMutex
	all []pkgif.ValueAdd
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 追加 value-add
func (r *Registry) Register(va pkgif.ValueAdd) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.all {
		if x.ID() == va.ID() {
			return fmt.Errorf("%w: %s", ErrDuplicate, va.ID())
		}
	}
	r.all = append(r.all, va)
	logger.Debug("注册 value-add", "id", va.ID(), "optional", va.IsOptional())
	return nil
}

// All 返回注册顺序的副本
func (r *Registry) All() []pkgif.ValueAdd {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.all)
}

// Applicable 返回作用于 peer 的 value-add，保持注册顺序
func (r *Registry) Applicable(peer pkgif.Peer) []pkgif.ValueAdd {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []pkgif.ValueAdd
	for _, va := range r.all {
		if va.Applies(peer) {
			out = append(out, va)
		}
	}
	return out
}

// ShutdownAll 关闭所有 value-add 为各目标启动的实例
func (r *Registry) ShutdownAll() {
	for _, va := range r.All() {
		s, ok := va.(interface{ ShutdownAll() })
		if !ok {
			continue
		}
		s.ShutdownAll()
	}
}

// ============================================================================
//                              Static
// ============================================================================

// Static 已在运行的 value-add，地址固定
type Static struct {
	id       string
	label    string
	optional bool
	attrs    types.Attributes
	applies  func(pkgif.Peer) bool
}

var _ pkgif.ValueAdd = (*Static)(nil)

// NewStatic 创建固定地址的 value-add；applies 为 nil 时作用于所有节点
func NewStatic(id string, attrs types.Attributes, optional bool, applies func(pkgif.Peer) bool) *Static {
	a := attrs.Clone()
	if a.ID() == "" {
		a[types.AttrID] = id
	}
	return &Static{id: id, label: id, optional: optional, attrs: a, applies: applies}
}

// ID 实现 ValueAdd
func (s *Static) ID() string { return s.id }

// Label 实现 ValueAdd
func (s *Static) Label() string { return s.label }

// IsOptional 实现 ValueAdd
func (s *Static) IsOptional() bool { return s.optional }

// Applies 实现 ValueAdd
func (s *Static) Applies(peer pkgif.Peer) bool {
	return s.applies == nil || s.applies(peer)
}

// IsAlive 固定地址总是视为存活
func (s *Static) IsAlive(context.Context, string) (bool, error) { return true, nil }

// Launch 无需启动
func (s *Static) Launch(context.Context, string) error { return nil }

// Peer 返回固定地址
func (s *Static) Peer(string) (types.Attributes, bool) { return s.attrs.Clone(), true }

// Shutdown 无操作
func (s *Static) Shutdown(string) error { return nil }
