package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// TestModule_Lifecycle 停止应用后总线关闭
func TestModule_Lifecycle(t *testing.T) {
	var bus pkgif.EventBus
	app := fxtest.New(t,
		Module(),
		fx.Populate(&bus),
	)
	app.RequireStart()
	require.NotNil(t, bus)

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	app.RequireStop()

	_, ok := <-sub.Out()
	assert.False(t, ok, "订阅通道应已关闭")

	_, err = bus.Subscribe(new(testEvent))
	assert.ErrorIs(t, err, ErrClosed)
}
