package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gowvp/kite/internal/conf"
	"github.com/gowvp/kite/internal/rpc"
)

// Run 组装依赖并启动 http 与可选的 gRPC 服务，阻塞到 ctx 结束
func Run(ctx context.Context, bc *conf.Bootstrap) error {
	handler, cleanup, err := wireApp(bc)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http serve", "err", err)
		}
	}()
	slog.Info("HTTP 服务已启动", "port", bc.Server.HTTP.Port)

	var rpcSrv *rpc.Server
	if bc.Server.RPC.Enabled {
		rpcSrv = rpc.NewServer()
		if err := rpcSrv.Start(bc.Server.RPC.Port); err != nil {
			return err
		}
	}

	<-ctx.Done()

	// 先停外部流量，再由 cleanup 收尾引擎与采集进程
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	if rpcSrv != nil {
		rpcSrv.Stop()
	}
	return nil
}
