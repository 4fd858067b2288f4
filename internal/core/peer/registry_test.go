package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dep2p/go-tcf/internal/core/dispatch"
	"github.com/dep2p/go-tcf/internal/core/eventbus"
	"github.com/dep2p/go-tcf/internal/core/peerstore"
	"github.com/dep2p/go-tcf/internal/core/storage"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

type fixture struct {
	exec *dispatch.Executor
	bus  *eventbus.Bus
	reg  *Registry
}

func newFixture(t *testing.T, store *peerstore.Store) *fixture {
	t.Helper()
	exec := dispatch.New(dispatch.Config{})
	exec.Start()
	t.Cleanup(exec.Stop)

	bus := eventbus.NewBus()
	reg, err := NewRegistry(exec, bus, store)
	require.NoError(t, err)
	return &fixture{exec: exec, bus: bus, reg: reg}
}

// on 在调度 goroutine 上执行
func (f *fixture) on(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, f.exec.InvokeAndWait(fn))
}

func (f *fixture) subscribe(t *testing.T, evt interface{}) pkgif.Subscription {
	t.Helper()
	sub, err := f.bus.Subscribe(evt, pkgif.BufSize(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func attrs(id, name string) types.Attributes {
	return types.Attributes{types.AttrID: id, types.AttrName: name}
}

func drain(sub pkgif.Subscription) []interface{} {
	var out []interface{}
	for {
		select {
		case evt := <-sub.Out():
			out = append(out, evt)
		default:
			return out
		}
	}
}

// ============================================================================
//                              基本操作
// ============================================================================

func TestRegistry_AddGet(t *testing.T) {
	f := newFixture(t, nil)
	added := f.subscribe(t, new(types.EvtPeerAdded))

	f.on(t, func() {
		p, err := f.reg.Add(attrs("a", "alpha"), false)
		assert.NoError(t, err)
		assert.Equal(t, "a", p.ID())
		assert.Equal(t, "alpha", p.Name())
		assert.False(t, p.IsTransient())

		got, ok := f.reg.Get("a")
		assert.True(t, ok)
		assert.Same(t, p, got)

		_, err = f.reg.Add(types.Attributes{types.AttrName: "no id"}, false)
		assert.ErrorIs(t, err, ErrMissingID)
	})

	evts := drain(added)
	require.Len(t, evts, 1)
	assert.Equal(t, "a", evts[0].(types.EvtPeerAdded).PeerID)
}

func TestRegistry_OneLiveObjectPerID(t *testing.T) {
	f := newFixture(t, nil)
	added := f.subscribe(t, new(types.EvtPeerAdded))

	f.on(t, func() {
		p1, err := f.reg.Add(attrs("a", "one"), false)
		assert.NoError(t, err)
		p2, err := f.reg.Add(attrs("a", "two"), false)
		assert.NoError(t, err)

		assert.Same(t, p1, p2)
		assert.Equal(t, "two", p1.Name())
		assert.Len(t, f.reg.All(), 1)
	})
	assert.Len(t, drain(added), 1)
}

func TestRegistry_UpdateIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	changed := f.subscribe(t, new(types.EvtPeerChanged))

	f.on(t, func() {
		_, err := f.reg.Add(attrs("a", "alpha"), false)
		assert.NoError(t, err)

		ok, err := f.reg.Update("a", attrs("a", "alpha"))
		assert.NoError(t, err)
		assert.False(t, ok)

		ok, err = f.reg.Update("a", attrs("a", "beta"))
		assert.NoError(t, err)
		assert.True(t, ok)

		ok, err = f.reg.Update("a", attrs("a", "beta"))
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	evts := drain(changed)
	require.Len(t, evts, 1)
	evt := evts[0].(types.EvtPeerChanged)
	assert.Equal(t, "alpha", evt.Old[types.AttrName])
	assert.Equal(t, "beta", evt.New[types.AttrName])
}

func TestRegistry_UpdateErrors(t *testing.T) {
	f := newFixture(t, nil)

	f.on(t, func() {
		_, err := f.reg.Update("ghost", attrs("ghost", "x"))
		assert.ErrorIs(t, err, ErrUnknownPeer)

		_, err = f.reg.Add(attrs("a", "alpha"), false)
		assert.NoError(t, err)
		_, err = f.reg.Update("a", attrs("b", "alpha"))
		assert.ErrorIs(t, err, ErrIDMismatch)

		// 缺少 ID 时补上
		ok, err := f.reg.Update("a", types.Attributes{types.AttrName: "renamed"})
		assert.NoError(t, err)
		assert.True(t, ok)
		p, _ := f.reg.Get("a")
		assert.Equal(t, "a", p.Attr(types.AttrID))
	})
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	f := newFixture(t, nil)

	f.on(t, func() {
		in := attrs("a", "alpha")
		p, err := f.reg.Add(in, false)
		assert.NoError(t, err)

		in[types.AttrName] = "mutated"
		snap := p.Attributes()
		snap[types.AttrName] = "mutated too"
		assert.Equal(t, "alpha", p.Name())
	})
}

func TestRegistry_OffDispatchPanics(t *testing.T) {
	f := newFixture(t, nil)
	assert.Panics(t, func() { f.reg.Get("a") })
	assert.Panics(t, func() { _, _ = f.reg.Add(attrs("a", "x"), false) })
}

// ============================================================================
//                              重定向子节点
// ============================================================================

func TestRegistry_SetChildren(t *testing.T) {
	f := newFixture(t, nil)
	childrenEvt := f.subscribe(t, new(types.EvtPeerChildrenChanged))
	removed := f.subscribe(t, new(types.EvtPeerRemoved))

	f.on(t, func() {
		_, err := f.reg.Add(attrs("parent", "p"), false)
		assert.NoError(t, err)

		f.reg.SetChildren("parent", []types.Attributes{attrs("c1", "one"), attrs("c2", "two")})
		assert.Len(t, f.reg.Children("parent"), 2)
		assert.True(t, f.reg.IsRedirected("c1"))
		parent, ok := f.reg.Parent("c2")
		assert.True(t, ok)
		assert.Equal(t, "parent", parent)

		roots := f.reg.Roots()
		assert.Len(t, roots, 1)
		assert.Equal(t, "parent", roots[0].ID())

		// 同样的报告不产生事件
		f.reg.SetChildren("parent", []types.Attributes{attrs("c2", "two"), attrs("c1", "one")})

		// c2 消失
		f.reg.SetChildren("parent", []types.Attributes{attrs("c1", "one")})
		_, ok = f.reg.Get("c2")
		assert.False(t, ok)
	})

	assert.Len(t, drain(childrenEvt), 2)
	evts := drain(removed)
	require.Len(t, evts, 1)
	assert.Equal(t, "c2", evts[0].(types.EvtPeerRemoved).PeerID)
}

func TestRegistry_StaticTransientChildSurvives(t *testing.T) {
	f := newFixture(t, nil)

	f.on(t, func() {
		_, err := f.reg.Add(attrs("parent", "p"), false)
		assert.NoError(t, err)

		static := attrs("s", "static")
		static[types.AttrStaticTransient] = "true"
		f.reg.SetChildren("parent", []types.Attributes{static, attrs("d", "dynamic")})

		f.reg.SetChildren("parent", nil)
		_, ok := f.reg.Get("s")
		assert.True(t, ok)
		_, ok = f.reg.Get("d")
		assert.False(t, ok)
		assert.Len(t, f.reg.Children("parent"), 1)
	})
}

func TestRegistry_ChildKeepsLocalTransientAttrs(t *testing.T) {
	f := newFixture(t, nil)

	f.on(t, func() {
		_, err := f.reg.Add(attrs("parent", "p"), false)
		assert.NoError(t, err)
		f.reg.SetChildren("parent", []types.Attributes{attrs("c", "child")})

		p, _ := f.reg.Get("c")
		local := p.Attributes()
		local[types.AttrDNSName] = "c.example"
		_, err = f.reg.Update("c", local)
		assert.NoError(t, err)

		f.reg.SetChildren("parent", []types.Attributes{attrs("c", "child")})
		assert.Equal(t, "c.example", p.Attr(types.AttrDNSName))
	})
}

func TestRegistry_RemoveCascades(t *testing.T) {
	f := newFixture(t, nil)

	f.on(t, func() {
		_, err := f.reg.Add(attrs("root", "r"), false)
		assert.NoError(t, err)
		f.reg.SetChildren("root", []types.Attributes{attrs("mid", "m")})
		f.reg.SetChildren("mid", []types.Attributes{attrs("leaf", "l")})

		assert.True(t, f.reg.Remove("root"))
		assert.Empty(t, f.reg.All())
		assert.False(t, f.reg.Remove("root"))
	})
}

// ============================================================================
//                              持久化
// ============================================================================

func TestRegistry_Persistence(t *testing.T) {
	eng, err := storage.Open(storage.Options{})
	require.NoError(t, err)
	defer eng.Close()
	store := peerstore.New(eng)
	defer store.Close()

	f := newFixture(t, store)
	f.on(t, func() {
		_, err := f.reg.Add(attrs("user", "mine"), true)
		assert.NoError(t, err)
		_, err = f.reg.Add(attrs("found", "discovered"), false)
		assert.NoError(t, err)
		assert.True(t, f.reg.IsPersistent("user"))
		assert.False(t, f.reg.IsPersistent("found"))

		_, err = f.reg.Update("user", attrs("user", "renamed"))
		assert.NoError(t, err)
	})
	require.NoError(t, store.Flush())

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "renamed", loaded[0][types.AttrName])

	t.Run("重启后恢复", func(t *testing.T) {
		g := newFixture(t, store)
		g.on(t, func() {
			g.reg.Restore(loaded)
			p, ok := g.reg.Get("user")
			assert.True(t, ok)
			assert.Equal(t, "renamed", p.Name())
			assert.True(t, g.reg.IsPersistent("user"))
		})
	})

	f.on(t, func() { f.reg.Remove("user") })
	require.NoError(t, store.Flush())
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

// ============================================================================
//                              属性测试
// ============================================================================

func TestRegistry_UpdateProperty(t *testing.T) {
	f := newFixture(t, nil)
	changed := f.subscribe(t, new(types.EvtPeerChanged))

	rapid.Check(t, func(rt *rapid.T) {
		names := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c"}), 1, 20).Draw(rt, "names")

		var (
			expected int
			last     string
		)
		err := f.exec.InvokeAndWait(func() {
			f.reg.Remove("prop")
			_, _ = f.reg.Add(attrs("prop", names[0]), false)
			last = names[0]
			for _, n := range names[1:] {
				ok, _ := f.reg.Update("prop", attrs("prop", n))
				if n != last {
					expected++
				}
				if ok != (n != last) {
					rt.Fatalf("update %q after %q returned %v", n, last, ok)
				}
				last = n
			}
		})
		if err != nil {
			rt.Fatal(err)
		}
		if got := len(drain(changed)); got != expected {
			rt.Fatalf("got %d change events, want %d", got, expected)
		}
	})
}

func TestTransientPeer(t *testing.T) {
	p := NewTransient(types.Attributes{types.AttrHost: "127.0.0.1"})
	assert.True(t, p.IsTransient())
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, "127.0.0.1", p.Attr(types.AttrHost))

	q := NewTransient(attrs("fixed", "f"))
	assert.Equal(t, "fixed", q.ID())
}
