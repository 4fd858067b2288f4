package channelmgr

import (
	"context"
	"fmt"
	"slices"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

// resolve 在调度 goroutine 之外确保 value-add 就绪，返回重定向路径
//
// first 为首先拨号的节点，hops 为随后逐跳重定向的节点，最后一项是目标。
// 没有 value-add 时直连目标。
func (m *Manager) resolve(id string, target types.Attributes, vas []pkgif.ValueAdd) (types.RedirectPath, types.Attributes, []types.Attributes, error) {
	var path types.RedirectPath
	var via []types.Attributes
	for _, va := range vas {
		attrs, err := m.ensure(va, id)
		if err != nil {
			if va.IsOptional() {
				logger.Info("跳过可选 value-add", "valueadd", va.ID(), "peer", log.TruncateID(id, 12), "error", err)
				continue
			}
			return nil, nil, nil, err
		}
		path = append(path, attrs.ID())
		via = append(via, attrs)
	}
	if len(via) == 0 {
		return nil, target, nil, nil
	}
	hops := append(slices.Clone(via[1:]), target)
	return path, via[0], hops, nil
}

// ensure 检查 value-add 存活，必要时启动，返回其节点属性
//
// 同一 value-add 对同一目标的并发启动合并为一次。
func (m *Manager) ensure(va pkgif.ValueAdd, id string) (types.Attributes, error) {
	key := va.ID() + "/" + id
	_, err, shared := m.launches.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ValueAddTimeout)
		defer cancel()
		alive, err := va.IsAlive(ctx, id)
		if err != nil {
			logger.Debug("value-add 存活检查失败", "valueadd", va.ID(), "error", err)
		}
		if alive {
			return nil, nil
		}
		logger.Debug("启动 value-add", "valueadd", va.ID(), "peer", log.TruncateID(id, 12))
		return nil, va.Launch(ctx, id)
	})
	if shared {
		logger.Debug("合并 value-add 启动", "valueadd", va.ID())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValueAdd, va.ID(), err)
	}
	attrs, ok := va.Peer(id)
	if !ok || attrs.ID() == "" {
		return nil, fmt.Errorf("%w: %s reported no peer", ErrValueAdd, va.ID())
	}
	return attrs, nil
}
