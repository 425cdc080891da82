package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"firstbuyers/internal/api"
	"firstbuyers/internal/app"
	"firstbuyers/internal/cache"
	"firstbuyers/internal/config"
	"firstbuyers/internal/logging"
	"firstbuyers/internal/report"
	"firstbuyers/internal/validation"
	"firstbuyers/pkg/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool

	// analyze 参数
	limit   int
	start   int
	end     int
	asJSON  bool
	publish bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "firstbuyers",
		Short: "代币首批买家分析工具",
		Long:  `分析ERC-20代币的首批买家，区分捆绑买入和之后的狙击买入`,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <合约地址>",
		Short: "分析代币首批买家",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().IntVar(&limit, "limit", 0, "分析的买家数量，0 使用配置默认值")
	analyzeCmd.Flags().IntVar(&start, "start", 0, "展示的起始排名")
	analyzeCmd.Flags().IntVar(&end, "end", 0, "展示的结束排名")
	analyzeCmd.Flags().BoolVar(&asJSON, "json", false, "以JSON格式输出")
	analyzeCmd.Flags().BoolVar(&publish, "publish", true, "按配置输出到文件/Kafka")

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "缓存管理",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "清理过期缓存",
		RunE:  runPrune,
	})

	rootCmd.AddCommand(analyzeCmd, cacheCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// setup 加载 .env 和配置并创建日志器
func setup() (*config.Config, *logrus.Logger, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	bootstrap := logrus.New()
	cfg, err := config.LoadConfig(configFile, bootstrap)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if cfg.Logging == nil {
		cfg.Logging = logging.DefaultLogConfig()
	}
	// stdout 留给分析结果
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("创建日志器失败: %w", err)
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return cfg, logger, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	v := validation.NewValidator(logger, cfg.Analysis.DefaultLimit, cfg.Analysis.MaxLimit)
	if err := v.Window(start, end); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Analyzer.AnalyzeFirstBuyers(ctx, args[0], limit)
	if err != nil {
		return err
	}

	if publish && a.Publisher != nil {
		if err := a.Publisher.Publish(ctx, result); err != nil {
			logger.Warnf("输出分析结果失败: %v", err)
		}
	}

	return writeResult(cmd.OutOrStdout(), result, start, end, asJSON)
}

// writeResult 按区间输出结果，JSON 与 HTTP 接口响应格式一致
func writeResult(w io.Writer, result *models.ClassificationResult, start, end int, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewFirstBuyersResponse(result, start, end))
	}

	report.NewRenderer(w).Render(result, start, end)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	store, err := cache.NewBoltStore(cfg.Cache.Path, cfg.Cache.TTL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "已清理 %d 条过期缓存\n", n)
	return nil
}
