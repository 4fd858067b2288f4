package pipe

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/pkg/types"
)

func TestPipe_DialAccept(t *testing.T) {
	tr := New(NewHub())

	l, err := tr.Listen(types.Attributes{})
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()

	conn, err := tr.Dial(context.Background(), l.Attrs())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestPipe_Errors(t *testing.T) {
	hub := NewHub()
	tr := New(hub)

	_, err := tr.Dial(context.Background(), types.Attributes{types.AttrPipeName: "nobody"})
	assert.ErrorIs(t, err, ErrNoListener)

	l, err := tr.Listen(types.Attributes{types.AttrPipeName: "p"})
	require.NoError(t, err)
	_, err = tr.Listen(types.Attributes{types.AttrPipeName: "p"})
	assert.ErrorIs(t, err, ErrNameInUse)

	t.Run("未被接受的拨号受 ctx 约束", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := tr.Dial(ctx, l.Attrs())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	require.NoError(t, l.Close())
	_, err = l.Accept()
	assert.ErrorIs(t, err, ErrListenerClosed)

	// 名称可以重新使用
	l2, err := tr.Listen(types.Attributes{types.AttrPipeName: "p"})
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}
