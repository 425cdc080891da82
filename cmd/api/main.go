package main

import (
	"context"
	"flag"
	"os"

	"firstbuyers/internal/api"
	"firstbuyers/internal/app"
	"firstbuyers/internal/config"
	"firstbuyers/internal/logging"
	"firstbuyers/internal/shutdown"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "API 服务端口，0 使用配置")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	bootstrap := logrus.New()
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		bootstrap.Warnf("加载 .env 失败: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath, bootstrap)
	if err != nil {
		bootstrap.Fatalf("加载配置失败: %v", err)
	}
	if *port > 0 {
		cfg.API.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		bootstrap.Fatalf("创建日志器失败: %v", err)
	}
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("初始化失败: %v", err)
	}

	opts := api.Options{
		Analyzer:  a.Analyzer,
		Config:    cfg,
		Nodes:     a.Nodes,
		Publisher: a.Publisher,
		Metrics:   a.Metrics,
		Gatherer:  a.Registry,
		Logger:    logger,
	}
	if a.Exclusions != nil {
		opts.Exclusions = a.Exclusions
	}
	server := api.NewServer(opts)

	gs := shutdown.NewGracefulShutdown(cfg.API.ShutdownTimeout, logger)
	gs.Register("api_server", shutdown.OrderStopAcceptingRequests, server.Shutdown)
	a.RegisterShutdown(gs)
	gs.Start()

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API服务器异常退出: %v", err)
			gs.Shutdown()
		}
	}()

	if err := gs.Wait(); err != nil {
		logger.Errorf("停机过程中出现错误: %v", err)
		os.Exit(1)
	}
	logger.Info("服务器已关闭")
}
