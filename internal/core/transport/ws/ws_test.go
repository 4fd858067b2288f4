package ws

import (
	"context"
	"crypto/tls"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/internal/core/transport/tcp"
	"github.com/dep2p/go-tcf/pkg/types"
)

func roundTrip(t *testing.T, tr *Transport) {
	t.Helper()

	l, err := tr.Listen(types.Attributes{types.AttrHost: "127.0.0.1"})
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := tr.Dial(ctx, l.Attrs())
	require.NoError(t, err)
	defer conn.Close()

	// 两次写入在读取端连成一个字节流
	_, err = conn.Write([]byte("hel"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("lo"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestWS_RoundTrip(t *testing.T) {
	tr := New(Config{})
	assert.Equal(t, types.TransportWS, tr.Name())
	roundTrip(t, tr)
}

func TestWSS_RoundTrip(t *testing.T) {
	cert, err := tcp.SelfSignedCert()
	require.NoError(t, err)

	tr := New(Config{
		ServerTLS: &tls.Config{Certificates: []tls.Certificate{cert}},
		ClientTLS: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // 测试用自签名证书
	})
	assert.Equal(t, types.TransportWSS, tr.Name())
	roundTrip(t, tr)
}

func TestWS_DialMissingPort(t *testing.T) {
	_, err := New(Config{}).Dial(context.Background(), types.Attributes{})
	assert.ErrorIs(t, err, ErrMissingAddress)
}
