package app

import (
	"context"
	"os"

	"firstbuyers/internal/analyzer"
	"firstbuyers/internal/cache"
	"firstbuyers/internal/config"
	"firstbuyers/internal/connection"
	"firstbuyers/internal/metrics"
	"firstbuyers/internal/output"
	"firstbuyers/internal/shutdown"
	"firstbuyers/internal/source"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// App 组装好的分析依赖
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Analyzer  *analyzer.Analyzer
	Nodes     *connection.NodePool
	Publisher output.Publisher
	Metrics   *metrics.Recorder
	Registry  *prometheus.Registry

	// 配置了数据库时非nil
	Exclusions *config.DatabaseConfig

	store *cache.BoltStore
}

// New 按配置连接节点、打开缓存并创建分析器
//
// 节点、缓存和数据库失败都不阻止启动：没有可用节点时信号和元数据降级为默认值，
// 缓存打不开时直接查询数据源。
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	nodes, err := connection.NewNodePool(ctx, cfg.Blockchain.Nodes, logger)
	if err != nil {
		logger.Warnf("没有可用的区块链节点，交易信号和链上元数据将使用默认值: %v", err)
		nodes = connection.NewNodePoolFromNodes(nil, logger)
	}
	nodes.SetAttemptTimeout(cfg.Blockchain.AttemptTimeout)

	explorer := source.NewEtherscanClient(cfg.Etherscan, logger)
	timeout := cfg.Analysis.CallTimeout

	var (
		signals  analyzer.TxSignalPort      = source.NewSignalFetcher(nodes, explorer, timeout, logger)
		metadata analyzer.TokenMetadataPort = source.NewMetadataResolver(nodes, explorer, timeout, logger)
		store    *cache.BoltStore
	)
	if cfg.Cache != nil && cfg.Cache.Enabled {
		store, err = cache.NewBoltStore(cfg.Cache.Path, cfg.Cache.TTL, logger)
		if err != nil {
			logger.Warnf("打开缓存失败，将直接查询数据源: %v", err)
		} else {
			if n, err := store.Prune(); err != nil {
				logger.Warnf("清理过期缓存失败: %v", err)
			} else if n > 0 {
				logger.Infof("已清理 %d 条过期缓存", n)
			}
			signals = cache.NewCachedSignals(signals, store, recorder, logger)
			metadata = cache.NewCachedMetadata(metadata, store, recorder, logger)
		}
	}

	publisher, err := output.NewPublisher(cfg.Output, recorder, logger)
	if err != nil {
		nodes.Close()
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	var exclusions *config.DatabaseConfig
	if dsn := os.Getenv(config.EnvDBDSN); dsn != "" {
		exclusions, err = config.NewDatabaseConfig(dsn, logger)
		if err != nil {
			logger.Warnf("连接配置数据库失败，排除地址接口只读: %v", err)
			exclusions = nil
		}
	}

	a := analyzer.NewAnalyzer(explorer, metadata, signals, cfg.Analysis, logger)
	a.SetMetrics(recorder)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Analyzer:   a,
		Nodes:      nodes,
		Publisher:  publisher,
		Metrics:    recorder,
		Registry:   registry,
		Exclusions: exclusions,
		store:      store,
	}, nil
}

// RegisterShutdown 注册资源关闭顺序：先刷新输出，再关闭连接，最后关闭缓存文件
func (a *App) RegisterShutdown(gs *shutdown.GracefulShutdown) {
	if a.Publisher != nil {
		gs.Register("publisher", shutdown.OrderFlushProducers, func(context.Context) error {
			return a.Publisher.Close()
		})
	}
	gs.Register("node_pool", shutdown.OrderCloseConnections, func(context.Context) error {
		a.Nodes.Close()
		return nil
	})
	if a.Exclusions != nil {
		gs.Register("config_db", shutdown.OrderCloseConnections, func(context.Context) error {
			return a.Exclusions.Close()
		})
	}
	if a.store != nil {
		gs.Register("cache", shutdown.OrderSaveState, func(context.Context) error {
			return a.store.Close()
		})
	}
}

// Close 按停机顺序关闭全部资源
func (a *App) Close() error {
	gs := shutdown.NewGracefulShutdown(0, a.Logger)
	a.RegisterShutdown(gs)
	return gs.Shutdown()
}
