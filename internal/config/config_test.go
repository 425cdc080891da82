package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	assert.NotNil(t, config)
	assert.NotNil(t, config.Blockchain)
	assert.NotNil(t, config.Etherscan)
	assert.NotNil(t, config.Analysis)
	assert.NotNil(t, config.Cache)
	assert.NotNil(t, config.Output)
	assert.NotNil(t, config.API)
	assert.NotNil(t, config.Logging)

	// 分析配置
	assert.Equal(t, 50, config.Analysis.DefaultLimit)
	assert.Equal(t, 100, config.Analysis.MaxLimit)
	assert.Equal(t, 20, config.Analysis.SignalBudget)
	assert.Equal(t, 8*time.Second, config.Analysis.CallTimeout)
	assert.Equal(t, 3*time.Second, config.Blockchain.AttemptTimeout)
	assert.Equal(t, 50.0, config.Analysis.LPThresholdPercent)
	assert.Len(t, config.Analysis.ExcludedAddresses, len(DefaultExcludedAddresses))

	// 分界参数
	c := config.Analysis.Classifier
	assert.Equal(t, 1, c.MaxPositionGap)
	assert.Equal(t, 2.0, c.GasJumpFactor)
	assert.Equal(t, 10.0, c.MinGasJumpGwei)
	assert.Equal(t, 3.0, c.PriorityJumpFactor)
	assert.Equal(t, 2.0, c.MinPriorityFeeGwei)
	assert.Equal(t, 20, c.FallbackWindow)
	assert.Equal(t, 10.0, c.CheapGasGwei)
	assert.Equal(t, 5.0, c.GasFloorGwei)

	// 输出配置
	assert.False(t, config.Output.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, config.Output.Kafka.Brokers)

	assert.NoError(t, config.Validate())
}

func TestGetDefaultConfig_ExcludedAddressesAreCopied(t *testing.T) {
	config := GetDefaultConfig()
	config.Analysis.ExcludedAddresses[0] = "0x0000000000000000000000000000000000000001"

	// 修改实例不影响包级默认值
	assert.Equal(t, "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", DefaultExcludedAddresses[0])
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
blockchain:
  nodes:
    - name: primary
      url: https://rpc.example.org
      type: remote
      rate_limit: 10
      priority: 1
etherscan:
  api_key: file-key
  timeout: 3s
analysis:
  default_limit: 20
  signal_budget: 5
  call_timeout: 2s
  classifier:
    max_position_gap: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	require.Len(t, config.Blockchain.Nodes, 1)
	assert.Equal(t, "primary", config.Blockchain.Nodes[0].Name)
	assert.Equal(t, "file-key", config.Etherscan.APIKey)
	assert.Equal(t, 3*time.Second, config.Etherscan.Timeout)
	assert.Equal(t, 20, config.Analysis.DefaultLimit)
	assert.Equal(t, 5, config.Analysis.SignalBudget)
	assert.Equal(t, 2*time.Second, config.Analysis.CallTimeout)
	assert.Equal(t, 2, config.Analysis.Classifier.MaxPositionGap)

	// 未出现在文件中的字段保持默认
	assert.Equal(t, 100, config.Analysis.MaxLimit)
	assert.Equal(t, "https://api.etherscan.io/v2/api", config.Etherscan.APIURL)
}

func TestLoadConfigFromFile_MissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig().Analysis.DefaultLimit, config.Analysis.DefaultLimit)
}

func TestLoadConfigFromFile_EnvOverride(t *testing.T) {
	t.Setenv("FIRSTBUYERS_ETHERSCAN_API_KEY", "env-key")

	config, err := LoadConfigFromFile("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", config.Etherscan.APIKey)
}

func TestLoadConfigFromFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis: [unclosed"), 0644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"默认配置有效", func(c *Config) {}, false},
		{"max_limit超过100", func(c *Config) { c.Analysis.MaxLimit = 101 }, true},
		{"default_limit超过max_limit", func(c *Config) { c.Analysis.DefaultLimit = 200 }, true},
		{"负的信号预算", func(c *Config) { c.Analysis.SignalBudget = -1 }, true},
		{"预算为0有效", func(c *Config) { c.Analysis.SignalBudget = 0 }, false},
		{"并发为0", func(c *Config) { c.Analysis.SignalConcurrency = 0 }, true},
		{"超时为0", func(c *Config) { c.Analysis.CallTimeout = 0 }, true},
		{"LP阈值越界", func(c *Config) { c.Analysis.LPThresholdPercent = 150 }, true},
		{"无效排除地址", func(c *Config) { c.Analysis.ExcludedAddresses = []string{"0xnothex"} }, true},
		{"空etherscan地址", func(c *Config) { c.Etherscan.APIURL = "" }, true},
		{"节点缺少URL", func(c *Config) {
			c.Blockchain.Nodes = []*NodeConfig{{Name: "n1"}}
		}, true},
		{"负的节点尝试超时", func(c *Config) { c.Blockchain.AttemptTimeout = -time.Second }, true},
		{"节点尝试超时为0有效", func(c *Config) { c.Blockchain.AttemptTimeout = 0 }, false},
		{"缺少分界参数时补默认", func(c *Config) { c.Analysis.Classifier = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, config.Analysis.Classifier)
			}
		})
	}
}

func TestMergeAddresses(t *testing.T) {
	base := []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}
	extra := []string{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
	}

	merged := mergeAddresses(base, extra)
	assert.Equal(t, []string{
		"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
	}, merged)
}
