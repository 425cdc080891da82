package config

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return newDatabaseConfigFromDB(db, logger), nil
}

func newDatabaseConfigFromDB(db *sql.DB, logger *logrus.Logger) *DatabaseConfig {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}
}

// Apply 用数据库中的节点和排除地址覆盖配置
// 表为空时保留文件中的值
func (dc *DatabaseConfig) Apply(cfg *Config) error {
	nodes, err := dc.loadNodes()
	if err != nil {
		return fmt.Errorf("加载节点配置失败: %w", err)
	}
	if len(nodes) > 0 {
		cfg.Blockchain = &BlockchainConfig{Nodes: nodes}
	}

	excluded, err := dc.loadExcludedAddresses()
	if err != nil {
		return fmt.Errorf("加载排除地址失败: %w", err)
	}
	if len(excluded) > 0 {
		cfg.Analysis.ExcludedAddresses = mergeAddresses(cfg.Analysis.ExcludedAddresses, excluded)
	}

	dc.logger.WithFields(logrus.Fields{
		"nodes":    len(nodes),
		"excluded": len(excluded),
	}).Debug("数据库配置已应用")

	return nil
}

// loadNodes 加载RPC节点
func (dc *DatabaseConfig) loadNodes() ([]*NodeConfig, error) {
	query := `SELECT name, url, node_type, rate_limit, priority FROM rpc_nodes WHERE is_active = true ORDER BY priority`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*NodeConfig
	for rows.Next() {
		var node NodeConfig
		if err := rows.Scan(&node.Name, &node.URL, &node.Type, &node.RateLimit, &node.Priority); err != nil {
			return nil, err
		}
		nodes = append(nodes, &node)
	}

	return nodes, rows.Err()
}

// loadExcludedAddresses 加载额外排除的地址
func (dc *DatabaseConfig) loadExcludedAddresses() ([]string, error) {
	query := `SELECT address, label FROM excluded_addresses WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address, label string
		if err := rows.Scan(&address, &label); err != nil {
			return nil, err
		}
		if !common.IsHexAddress(address) {
			dc.logger.WithFields(logrus.Fields{
				"address": address,
				"label":   label,
			}).Warn("忽略无效的排除地址")
			continue
		}
		addresses = append(addresses, address)
	}

	return addresses, rows.Err()
}

// AddExcludedAddress 新增排除地址
func (dc *DatabaseConfig) AddExcludedAddress(address, label string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("无效地址: %s", address)
	}

	query := `
		INSERT INTO excluded_addresses (address, label, is_active, updated_at)
		VALUES ($1, $2, true, CURRENT_TIMESTAMP)
		ON CONFLICT (address)
		DO UPDATE SET label = $2, is_active = true, updated_at = CURRENT_TIMESTAMP
	`
	_, err := dc.DB.Exec(query, common.HexToAddress(address).Hex(), label)
	return err
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}

// mergeAddresses 合并地址列表并按小写去重
func mergeAddresses(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, addr := range list {
			key := strings.ToLower(addr)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, addr)
		}
	}
	return merged
}
