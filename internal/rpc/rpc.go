// Package rpc 对外提供 gRPC 健康检查，供编排系统探活
package rpc

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type Server struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

func NewServer() *Server {
	s := grpc.NewServer()
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	return &Server{srv: s, health: h}
}

// Start 监听指定端口并后台启动服务，port 为 0 时随机挑选
func (s *Server) Start(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen rpc port: %w", err)
	}
	s.lis = lis
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		if err := s.srv.Serve(lis); err != nil {
			slog.Error("grpc serve", "err", err)
		}
	}()
	slog.Info("gRPC 服务已启动", "addr", lis.Addr().String())
	return nil
}

// Addr 实际监听地址，Start 之后有效
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Stop 先置为 NOT_SERVING 再优雅退出
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
