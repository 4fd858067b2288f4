package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 指标 HTTP 服务
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewHandler 返回暴露 registry 的 HTTP 处理器
//
// path 上为 Prometheus 文本格式，/healthz 返回 ok。
func NewHandler(registry *prometheus.Registry, path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve 在 addr 上启动指标服务
func Serve(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "addr", ln.Addr().String(), "error", err)
		}
	}()
	logger.Info("指标服务已启动", "addr", ln.Addr().String())
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close 关闭服务
func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
