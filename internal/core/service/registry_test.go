package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

type fakeReplier struct {
	results []any
	unknown bool
}

func (r *fakeReplier) Reply(results ...any) { r.results = results }
func (r *fakeReplier) Progress(...any)      {}
func (r *fakeReplier) Unknown()             { r.unknown = true }

func TestRegistry_Order(t *testing.T) {
	r, err := NewRegistry(&ProviderFuncs{ProviderName: "a"}, &ProviderFuncs{ProviderName: "b"})
	require.NoError(t, err)
	require.NoError(t, r.Register(&ProviderFuncs{ProviderName: "c"}))

	names := func() []string {
		var out []string
		for _, p := range r.Providers() {
			out = append(out, p.Name())
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, names())

	assert.ErrorIs(t, r.Register(&ProviderFuncs{ProviderName: "b"}), ErrDuplicateProvider)
	assert.ErrorIs(t, r.Register(&ProviderFuncs{}), ErrEmptyName)

	assert.True(t, r.Unregister("b"))
	assert.False(t, r.Unregister("b"))
	assert.Equal(t, []string{"a", "c"}, names())
}

func TestHandlerService(t *testing.T) {
	s := NewHandlerService("Echo").
		Handle("echo", func(_ pkgif.Channel, args []json.RawMessage, r pkgif.Replier) {
			r.Reply(nil, args[0])
		})
	assert.Equal(t, "Echo", s.Name())

	r := &fakeReplier{}
	s.HandleCommand(nil, "echo", []json.RawMessage{json.RawMessage(`1`)}, r)
	require.Len(t, r.results, 2)
	assert.Equal(t, json.RawMessage(`1`), r.results[1])

	r = &fakeReplier{}
	s.HandleCommand(nil, "missing", nil, r)
	assert.True(t, r.unknown)
}

func TestProviderFuncs_Nil(t *testing.T) {
	p := &ProviderFuncs{ProviderName: "x"}
	assert.Nil(t, p.LocalServices(nil))
	assert.Nil(t, p.ServiceProxy(nil, "S"))
}
