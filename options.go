package tcf

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/transport/pipe"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Option 配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 基础配置，后续选项在其上覆盖
	config *config.Config

	dataDir     *string
	noDiscovery bool
	listen      []string

	providers  []pkgif.ServiceProvider
	valueAdds  []pkgif.ValueAdd
	probers    []pkgif.Prober
	transports []pkgif.Transport
	pipeHub    *pipe.Hub

	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// toConfig 合成最终配置
func (o *options) toConfig() (*config.Config, error) {
	cfg := o.config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if o.dataDir != nil {
		cfg.Storage.DataDir = *o.dataDir
	}
	if o.noDiscovery {
		cfg.Discovery.Enable = false
		cfg.Discovery.EnableMDNS = false
	}
	if len(o.listen) > 0 {
		cfg.Agent.Listen = append([]string(nil), o.listen...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用给定配置作为基础
//
// 配置被浅复制，调用方随后修改顶层字段不影响 Core。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("nil config")
		}
		c := *cfg
		o.config = &c
		return nil
	}
}

// WithConfigFile 从 JSON 或 YAML 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithDataDir 设置数据目录，用户节点持久化在其中
//
// 空字符串表示内存模式。
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.dataDir = &dir
		return nil
	}
}

// WithoutDiscovery 关闭周期扫描与 mDNS 宣告
//
// 注册表仍可手动维护，通道照常打开。
func WithoutDiscovery() Option {
	return func(o *options) error {
		o.noDiscovery = true
		return nil
	}
}

// WithListen 作为代理在给定地址上提供服务
//
// 格式为 "TRANSPORT:地址"，如 "TCP::1534"、"PIPE:agent"。
func WithListen(entries ...string) Option {
	return func(o *options) error {
		o.listen = append(o.listen, entries...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              扩展点
// ════════════════════════════════════════════════════════════════════════════

// WithServiceProvider 注册服务提供者，按调用顺序排在内置 Locator 之后
func WithServiceProvider(p pkgif.ServiceProvider) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("nil service provider")
		}
		o.providers = append(o.providers, p)
		return nil
	}
}

// WithValueAdd 注册 value-add，排在配置文件中的外部 value-add 之后
func WithValueAdd(va pkgif.ValueAdd) Option {
	return func(o *options) error {
		if va == nil {
			return fmt.Errorf("nil value-add")
		}
		o.valueAdds = append(o.valueAdds, va)
		return nil
	}
}

// WithProber 追加发现探测方式
func WithProber(p pkgif.Prober) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("nil prober")
		}
		o.probers = append(o.probers, p)
		return nil
	}
}

// WithTransport 注册传输，覆盖同名的默认传输
func WithTransport(t pkgif.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return fmt.Errorf("nil transport")
		}
		o.transports = append(o.transports, t)
		return nil
	}
}

// WithPipeHub 使用给定的 PIPE 命名空间
//
// 共享同一个 Hub 的多个 Core 可以经由 PIPE 传输互相连接，常用于测试。
func WithPipeHub(hub *pipe.Hub) Option {
	return func(o *options) error {
		o.pipeHub = hub
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
