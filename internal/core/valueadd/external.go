package valueadd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/dep2p/go-tcf/config"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// propertiesPrefix 外部进程输出行的前缀，可省略
const propertiesPrefix = "Server-Properties:"

// External 按目标节点启动外部进程的 value-add
//
// 进程启动后在标准输出打印一行 JSON 属性表，之后作为重定向中继运行。
// 每个目标节点一个进程。
type External struct {
	cfg    config.ExternalValueAdd
	dialer Dialer

	mu      sync.Mutex
	entries map[string]*process
}

type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	attrs  types.Attributes
}

var _ pkgif.ValueAdd = (*External)(nil)

// NewExternal 创建外部 value-add
func NewExternal(cfg config.ExternalValueAdd, dialer Dialer) *External {
	return &External{cfg: cfg, dialer: dialer, entries: make(map[string]*process)}
}

// ID 实现 ValueAdd
func (e *External) ID() string { return e.cfg.ID }

// Label 实现 ValueAdd
func (e *External) Label() string {
	if e.cfg.Label != "" {
		return e.cfg.Label
	}
	return e.cfg.ID
}

// IsOptional 实现 ValueAdd
func (e *External) IsOptional() bool { return e.cfg.Optional }

// Applies 配置了 Peers 时只作用于其中的节点
func (e *External) Applies(peer pkgif.Peer) bool {
	return len(e.cfg.Peers) == 0 || slices.Contains(e.cfg.Peers, peer.ID())
}

// IsAlive 进程仍在运行且能建立连接
//
// 已退出或无法连接的实例会被清理。
func (e *External) IsAlive(ctx context.Context, peerID string) (bool, error) {
	e.mu.Lock()
	p := e.entries[peerID]
	e.mu.Unlock()
	if p == nil {
		return false, nil
	}

	select {
	case <-p.exited:
		e.remove(peerID, p)
		return false, nil
	default:
	}

	conn, err := e.dialer.Dial(ctx, p.attrs)
	if err != nil {
		logger.Debug("value-add 无法连接，清理实例", "id", e.cfg.ID, "peer", peerID, "error", err)
		e.remove(peerID, p)
		p.kill()
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

// Launch 启动进程并读取其属性
func (e *External) Launch(ctx context.Context, peerID string) error {
	cmd := exec.Command(e.cfg.Command, e.cfg.Args...) //nolint:gosec // 命令来自本地配置
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	// 自建管道：cmd.Wait 不会关闭读端，读取与等待可以并发
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	cmd.Stdout = pw
	err = cmd.Start()
	_ = pw.Close()
	if err != nil {
		_ = pr.Close()
		return fmt.Errorf("%w: %s: %w", ErrLaunch, e.cfg.Command, err)
	}

	p := &process{cmd: cmd, exited: make(chan struct{})}
	lines := make(chan string, 1)
	go func() {
		defer pr.Close()
		r := bufio.NewReader(pr)
		line, _ := r.ReadString('\n')
		lines <- line
		_, _ = io.Copy(io.Discard, r)
	}()
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()

	var line string
	select {
	case line = <-lines:
	case <-p.exited:
		// 退出前可能已经打印了属性
		select {
		case line = <-lines:
		default:
		}
	case <-ctx.Done():
		p.kill()
		return fmt.Errorf("%w: %s: %w", ErrLaunch, e.cfg.ID, ctx.Err())
	}
	if strings.TrimSpace(line) == "" {
		p.kill()
		return fmt.Errorf("%w: %s printed no properties", ErrLaunch, e.cfg.ID)
	}

	attrs, err := ParseProperties(line)
	if err != nil {
		p.kill()
		return err
	}
	p.attrs = attrs

	e.mu.Lock()
	old := e.entries[peerID]
	e.entries[peerID] = p
	e.mu.Unlock()
	if old != nil {
		old.kill()
	}
	logger.Info("value-add 已启动", "id", e.cfg.ID, "peer", peerID, "addr", attrs.ID())
	return nil
}

// Peer 返回为 peerID 启动的实例地址
func (e *External) Peer(peerID string) (types.Attributes, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.entries[peerID]
	if p == nil {
		return nil, false
	}
	return p.attrs.Clone(), true
}

// Shutdown 停止为 peerID 启动的实例
func (e *External) Shutdown(peerID string) error {
	e.mu.Lock()
	p := e.entries[peerID]
	delete(e.entries, peerID)
	e.mu.Unlock()
	if p != nil {
		p.kill()
	}
	return nil
}

// ShutdownAll 停止全部实例
func (e *External) ShutdownAll() {
	e.mu.Lock()
	entries := e.entries
	e.entries = make(map[string]*process)
	e.mu.Unlock()
	for _, p := range entries {
		p.kill()
	}
}

func (e *External) remove(peerID string, p *process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.entries[peerID] == p {
		delete(e.entries, peerID)
	}
}

func (p *process) kill() {
	select {
	case <-p.exited:
		return
	default:
	}
	_ = p.cmd.Process.Kill()
	<-p.exited
}

// ParseProperties 解析外部进程输出的属性行
//
// 缺少 ID 时按 "<transport>:<host>:<port>" 生成，Host 缺省为 127.0.0.1。
func ParseProperties(line string) (types.Attributes, error) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), propertiesPrefix))
	var m map[string]string
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadProperties, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: empty object", ErrBadProperties)
	}
	attrs := types.Attributes(m)
	transport := attrs.Transport()
	attrs[types.AttrTransportName] = transport

	switch transport {
	case types.TransportPipe, types.TransportUnix:
		if attrs[types.AttrPipeName] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrBadProperties, types.AttrPipeName)
		}
		if attrs.ID() == "" {
			attrs[types.AttrID] = transport + ":" + attrs[types.AttrPipeName]
		}
	default:
		if attrs[types.AttrPort] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrBadProperties, types.AttrPort)
		}
		if attrs[types.AttrHost] == "" {
			attrs[types.AttrHost] = "127.0.0.1"
		}
		if attrs.ID() == "" {
			attrs[types.AttrID] = transport + ":" + attrs[types.AttrHost] + ":" + attrs[types.AttrPort]
		}
	}
	return attrs, nil
}
