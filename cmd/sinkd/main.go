package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lisuiheng/xiaozhi-sink/logger"
)

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "", "Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/xiaozhi-sink/config.yaml)")
	flag.Parse()

	// .env 中的 SINK_* 变量参与配置覆盖
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to load .env file", "error", err)
	}

	// 加载配置
	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(cfg.Logging); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	srv := NewServer(cfg, logger.Logger())
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 设置信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting xiaozhi sink", "addr", cfg.Server.Addr,
			"encoding", cfg.Device.Encoding, "sample_rate", cfg.Device.SampleRate)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待终止信号
	select {
	case <-ctx.Done():
		logger.Info("Received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server runtime error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down http server", "error", err)
	}
	srv.Shutdown()
	logger.Info("Service shutdown completed")
}
