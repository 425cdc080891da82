package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"firstbuyers/internal/logging"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 环境变量
const (
	EnvPrefix = "FIRSTBUYERS"
	EnvDBDSN  = "FIRSTBUYERS_DB_DSN"
)

// Config 主配置
type Config struct {
	Blockchain *BlockchainConfig  `mapstructure:"blockchain"`
	Etherscan  *EtherscanConfig   `mapstructure:"etherscan"`
	Analysis   *AnalysisConfig    `mapstructure:"analysis"`
	Cache      *CacheConfig       `mapstructure:"cache"`
	Output     *OutputConfig      `mapstructure:"output"`
	API        *APIConfig         `mapstructure:"api"`
	Logging    *logging.LogConfig `mapstructure:"logging"`
}

// BlockchainConfig 区块链配置
type BlockchainConfig struct {
	Nodes          []*NodeConfig `mapstructure:"nodes"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"` // 单个节点单次尝试的超时，0表示不单独限制
}

// NodeConfig 节点配置
type NodeConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	Type      string `mapstructure:"type"`
	RateLimit int    `mapstructure:"rate_limit"`
	Priority  int    `mapstructure:"priority"`
}

// EtherscanConfig 区块浏览器API配置
type EtherscanConfig struct {
	APIURL   string        `mapstructure:"api_url"`
	APIKey   string        `mapstructure:"api_key"`
	ChainID  int           `mapstructure:"chain_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

// AnalysisConfig 首批买家分析配置
type AnalysisConfig struct {
	DefaultLimit       int               `mapstructure:"default_limit"`
	MaxLimit           int               `mapstructure:"max_limit"`
	SignalBudget       int               `mapstructure:"signal_budget"`      // 每次请求最多查询的交易信号数
	SignalConcurrency  int               `mapstructure:"signal_concurrency"` // 预算内信号查询的并发数
	CallTimeout        time.Duration     `mapstructure:"call_timeout"`       // 单次外部调用超时
	LPThresholdPercent float64           `mapstructure:"lp_threshold_percent"`
	ExcludedAddresses  []string          `mapstructure:"excluded_addresses"`
	Classifier         *ClassifierConfig `mapstructure:"classifier"`
}

// ClassifierConfig 捆绑/狙击分界启发式参数
type ClassifierConfig struct {
	MaxPositionGap     int     `mapstructure:"max_position_gap"`
	GasJumpFactor      float64 `mapstructure:"gas_jump_factor"`
	MinGasJumpGwei     float64 `mapstructure:"min_gas_jump_gwei"`
	PriorityJumpFactor float64 `mapstructure:"priority_jump_factor"`
	MinPriorityFeeGwei float64 `mapstructure:"min_priority_fee_gwei"`
	FallbackWindow     int     `mapstructure:"fallback_window"`
	CheapGasGwei       float64 `mapstructure:"cheap_gas_gwei"`
	FallbackFactor     float64 `mapstructure:"fallback_factor"`
	GasFloorGwei       float64 `mapstructure:"gas_floor_gwei"`
}

// CacheConfig 本地缓存配置
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Directory string       `mapstructure:"directory"`
	Kafka     *KafkaConfig `mapstructure:"kafka"`
}

// APIConfig HTTP接口配置
type APIConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultExcludedAddresses 默认排除的路由/聚合器合约
var DefaultExcludedAddresses = []string{
	"0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", // Uniswap V2 Router
	"0xE592427A0AEce92De3Edee1F18E0157C05861564", // Uniswap V3 SwapRouter
	"0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45", // Uniswap SwapRouter02
	"0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD", // Uniswap Universal Router
	"0xEf1c6E67703c7BD7107eed8303Fbe6EC2554BF6B", // Uniswap Universal Router (旧版)
	"0x1111111254EEB25477B68fb85Ed929f73A960582", // 1inch v5
	"0xDef1C0ded9bec7F1a1670819833240f027b25EfF", // 0x Exchange Proxy
}

// LoadConfig 加载配置（YAML文件 + 环境变量，可选数据库覆盖）
func LoadConfig(configPath string, logger *logrus.Logger) (*Config, error) {
	cfg, err := LoadConfigFromFile(configPath)
	if err != nil {
		return nil, err
	}

	// 数据库中的节点和排除地址覆盖文件配置
	if dsn := os.Getenv(EnvDBDSN); dsn != "" {
		dbConfig, err := NewDatabaseConfig(dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("连接配置数据库失败: %w", err)
		}
		defer dbConfig.Close()

		if err := dbConfig.Apply(cfg); err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}
		logger.Info("已从数据库加载节点和排除地址配置")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile 从文件加载配置，文件不存在时使用默认配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 仅对显式绑定的键生效的环境变量
	_ = v.BindEnv("etherscan.api_key")
	_ = v.BindEnv("etherscan.api_url")

	cfg := GetDefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("检查配置文件失败: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return cfg, nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	excluded := make([]string, len(DefaultExcludedAddresses))
	copy(excluded, DefaultExcludedAddresses)

	return &Config{
		Blockchain: &BlockchainConfig{
			Nodes:          []*NodeConfig{},
			AttemptTimeout: 3 * time.Second,
		},
		Etherscan: &EtherscanConfig{
			APIURL:   "https://api.etherscan.io/v2/api",
			APIKey:   "",
			ChainID:  1,
			Timeout:  10 * time.Second,
			PageSize: 1000,
		},
		Analysis: &AnalysisConfig{
			DefaultLimit:       50,
			MaxLimit:           100,
			SignalBudget:       20,
			SignalConcurrency:  4,
			CallTimeout:        8 * time.Second,
			LPThresholdPercent: 50,
			ExcludedAddresses:  excluded,
			Classifier:         DefaultClassifierConfig(),
		},
		Cache: &CacheConfig{
			Enabled: true,
			Path:    "./data/cache.db",
			TTL:     24 * time.Hour,
		},
		Output: &OutputConfig{
			Directory: "./outputs",
			Kafka: &KafkaConfig{
				Enabled: false,
				Brokers: []string{"localhost:9092"},
				Topic:   "first_buyers_results",
			},
		},
		API: &APIConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// DefaultClassifierConfig 默认分界参数
func DefaultClassifierConfig() *ClassifierConfig {
	return &ClassifierConfig{
		MaxPositionGap:     1,
		GasJumpFactor:      2,
		MinGasJumpGwei:     10,
		PriorityJumpFactor: 3,
		MinPriorityFeeGwei: 2,
		FallbackWindow:     20,
		CheapGasGwei:       10,
		FallbackFactor:     3,
		GasFloorGwei:       5,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Etherscan == nil || c.Etherscan.APIURL == "" {
		return fmt.Errorf("etherscan.api_url 不能为空")
	}
	if c.Analysis == nil {
		return fmt.Errorf("analysis 配置不能为空")
	}

	a := c.Analysis
	if a.MaxLimit <= 0 || a.MaxLimit > 100 {
		return fmt.Errorf("analysis.max_limit 必须在1-100之间，当前值: %d", a.MaxLimit)
	}
	if a.DefaultLimit <= 0 || a.DefaultLimit > a.MaxLimit {
		return fmt.Errorf("analysis.default_limit 必须在1-%d之间，当前值: %d", a.MaxLimit, a.DefaultLimit)
	}
	if a.SignalBudget < 0 {
		return fmt.Errorf("analysis.signal_budget 不能为负数")
	}
	if a.SignalConcurrency <= 0 {
		return fmt.Errorf("analysis.signal_concurrency 必须大于0")
	}
	if a.CallTimeout <= 0 {
		return fmt.Errorf("analysis.call_timeout 必须大于0")
	}
	if a.LPThresholdPercent <= 0 || a.LPThresholdPercent > 100 {
		return fmt.Errorf("analysis.lp_threshold_percent 必须在(0,100]之间")
	}
	for _, addr := range a.ExcludedAddresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("analysis.excluded_addresses 包含无效地址: %s", addr)
		}
	}
	if a.Classifier == nil {
		a.Classifier = DefaultClassifierConfig()
	}

	if c.Blockchain == nil {
		c.Blockchain = &BlockchainConfig{}
	}
	if c.Blockchain.AttemptTimeout < 0 {
		return fmt.Errorf("blockchain.attempt_timeout 不能为负数")
	}
	for i, node := range c.Blockchain.Nodes {
		if node.Name == "" {
			return fmt.Errorf("节点 %d 的名称不能为空", i)
		}
		if node.URL == "" {
			return fmt.Errorf("节点 %s 的URL不能为空", node.Name)
		}
	}

	return nil
}
