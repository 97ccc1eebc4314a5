package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gowvp/kite/internal/app"
	"github.com/gowvp/kite/internal/conf"
)

// buildVersion 编译时通过 -ldflags 注入
var buildVersion = "dev"

var confPath = flag.String("conf", "configs/config.toml", "配置文件路径")

func main() {
	flag.Parse()

	bc, err := conf.Load(*confPath)
	if err != nil {
		slog.Error("加载配置失败", "path", *confPath, "err", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion

	slog.SetDefault(setupLogger(bc.Debug))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, bc); err != nil {
		slog.Error("服务退出", "err", err)
		os.Exit(1)
	}
	slog.Info("bye")
}

func setupLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	var h slog.Handler
	if debug {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}
