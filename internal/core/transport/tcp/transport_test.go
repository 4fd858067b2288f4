package tcp

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// echo 接受一个连接并原样回写
func echo(t *testing.T, l pkgif.Listener) {
	t.Helper()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()
}

func roundTrip(t *testing.T, tr pkgif.Transport, listenAttrs types.Attributes) {
	t.Helper()

	l, err := tr.Listen(listenAttrs)
	require.NoError(t, err)
	defer l.Close()
	echo(t, l)

	attrs := l.Attrs()
	assert.Equal(t, tr.Name(), attrs[types.AttrTransportName])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := tr.Dial(ctx, attrs)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestTCP_RoundTrip(t *testing.T) {
	roundTrip(t, New(), types.Attributes{types.AttrHost: "127.0.0.1"})
}

func TestSSL_RoundTrip(t *testing.T) {
	tr, err := NewSSL(SSLConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	roundTrip(t, tr, types.Attributes{types.AttrHost: "127.0.0.1"})
}

func TestUnix_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcf.sock")
	roundTrip(t, NewUnix(), types.Attributes{types.AttrPipeName: path})
}

func TestTCP_DialErrors(t *testing.T) {
	tr := New()
	ctx := context.Background()

	_, err := tr.Dial(ctx, types.Attributes{types.AttrHost: "127.0.0.1"})
	assert.ErrorIs(t, err, ErrMissingAddress)

	_, err = tr.Dial(ctx, types.Attributes{types.AttrPort: "99999"})
	assert.ErrorIs(t, err, ErrMissingAddress)

	_, err = NewUnix().Dial(ctx, types.Attributes{})
	assert.ErrorIs(t, err, ErrMissingAddress)

	t.Run("连接被拒绝", func(t *testing.T) {
		l, err := tr.Listen(types.Attributes{types.AttrHost: "127.0.0.1"})
		require.NoError(t, err)
		attrs := l.Attrs()
		require.NoError(t, l.Close())

		_, err = tr.Dial(ctx, attrs)
		assert.Error(t, err)
	})
}
