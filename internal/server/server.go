package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer は http.Server を包み、起動と graceful shutdown を提供します。
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer は設定済みの HTTPServer を生成します。
// 書き込みタイムアウトは生成の待ち時間より長くなるよう呼び出し側で指定します。
func NewHTTPServer(port string, handler http.Handler, writeTimeout time.Duration) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return &HTTPServer{server: srv}
}

// Addr は待ち受けアドレスを返します。
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start は現在のゴルーチンでサーバーを起動します。Shutdown による停止はエラーとして扱いません。
func (s *HTTPServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown は処理中のリクエストを待ってからサーバーを停止します。
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
