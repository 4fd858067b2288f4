// Package service 管理服务提供者
//
// 提供者按注册顺序为每个新通道贡献本地服务和远程服务代理。
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
)

var logger = log.Logger("core/service")

var (
	// ErrDuplicateProvider 同名提供者已注册
	ErrDuplicateProvider = errors.New("service provider already registered")

	// ErrEmptyName 提供者名称为空
	ErrEmptyName = errors.New("service provider name is empty")
)

// ============================================================================
//                              Registry
// ============================================================================

// Registry 有序的提供者列表，可在任意 goroutine 使用
type Registry struct {
	mu        sync.RWMutex
	providers []pkgif.ServiceProvider
}

// NewRegistry 创建注册表
func NewRegistry(providers ...pkgif.ServiceProvider) (*Registry, error) {
	r := &Registry{}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 追加提供者
func (r *Registry) Register(p pkgif.ServiceProvider) error {
	name := p.Name()
	if name == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.providers {
		if x.Name() == name {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
		}
	}
	r.providers = append(r.providers, p)
	logger.Debug("注册服务提供者", "name", name)
	return nil
}

// Unregister 按名称移除，之后打开的通道不再使用它
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, x := range r.providers {
		if x.Name() == name {
			r.providers = slices.Delete(r.providers, i, i+1)
			return true
		}
	}
	return false
}

// Providers 返回注册顺序的副本
func (r *Registry) Providers() []pkgif.ServiceProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.providers)
}

// ============================================================================
//                              HandlerService
// ============================================================================

// Handler 处理一个命令
type Handler func(ch pkgif.Channel, args []json.RawMessage, r pkgif.Replier)

// HandlerService 按命令名分派的本地服务，未知命令应答 N
type HandlerService struct {
	name     string
	handlers map[string]Handler
}

var _ pkgif.LocalService = (*HandlerService)(nil)

// NewHandlerService 创建本地服务
func NewHandlerService(name string) *HandlerService {
	return &HandlerService{name: name, handlers: make(map[string]Handler)}
}

// Handle 注册命令处理函数，返回自身便于链式调用
func (s *HandlerService) Handle(command string, h Handler) *HandlerService {
	s.handlers[command] = h
	return s
}

// Name 服务名
func (s *HandlerService) Name() string { return s.name }

// HandleCommand 实现 LocalService
func (s *HandlerService) HandleCommand(ch pkgif.Channel, name string, args []json.RawMessage, r pkgif.Replier) {
	h, ok := s.handlers[name]
	if !ok {
		logger.Debug("未知命令", "service", s.name, "command", name)
		r.Unknown()
		return
	}
	h(ch, args, r)
}

// ============================================================================
//                              ProviderFuncs
// ============================================================================

// ProviderFuncs 函数适配器
type ProviderFuncs struct {
	ProviderName string
	Local        func(ch pkgif.Channel) []pkgif.LocalService
	Proxy        func(ch pkgif.Channel, service string) any
}

var _ pkgif.ServiceProvider = (*ProviderFuncs)(nil)

// Name 实现 ServiceProvider
func (p *ProviderFuncs) Name() string { return p.ProviderName }

// LocalServices 实现 ServiceProvider
func (p *ProviderFuncs) LocalServices(ch pkgif.Channel) []pkgif.LocalService {
	if p.Local == nil {
		return nil
	}
	return p.Local(ch)
}

// ServiceProxy 实现 ServiceProvider
func (p *ProviderFuncs) ServiceProxy(ch pkgif.Channel, service string) any {
	if p.Proxy == nil {
		return nil
	}
	return p.Proxy(ch, service)
}
