package connection

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"firstbuyers/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

const (
	rateLimitCooldown = 5 * time.Minute
	maxNodeErrors     = 3
)

// ErrNoAvailableNode 所有节点都不可用
var ErrNoAvailableNode = errors.New("没有可用的RPC节点")

// ChainClient 分析所需的节点RPC子集，*ethclient.Client 满足该接口
type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

// Node 节点状态
type Node struct {
	Name         string
	Type         string
	Priority     int
	Client       ChainClient
	available    bool
	rateLimited  bool
	rateLimitEnd time.Time
	errorCount   int
	mu           sync.Mutex
}

// NodeStatus 节点状态快照
type NodeStatus struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Priority    int    `json:"priority"`
	Available   bool   `json:"available"`
	RateLimited bool   `json:"rate_limited"`
	ErrorCount  int    `json:"error_count"`
}

// NodePool 按优先级选择节点的RPC池
type NodePool struct {
	nodes          []*Node
	attemptTimeout time.Duration
	logger         *logrus.Logger
}

// NewNodePool 连接配置中的全部节点，连接失败的节点被跳过
func NewNodePool(ctx context.Context, nodeConfigs []*config.NodeConfig, logger *logrus.Logger) (*NodePool, error) {
	var nodes []*Node
	for _, nc := range nodeConfigs {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(dialCtx, nc.URL)
		if err == nil {
			// 测试连接
			_, err = client.ChainID(dialCtx)
			if err != nil {
				client.Close()
			}
		}
		cancel()

		if err != nil {
			logger.Warnf("连接节点 %s 失败: %v", nc.Name, err)
			continue
		}

		nodes = append(nodes, &Node{
			Name:     nc.Name,
			Type:     nc.Type,
			Priority: nc.Priority,
			Client:   client,
		})
		logger.Infof("成功连接到节点: %s", nc.Name)
	}

	if len(nodes) == 0 {
		return nil, ErrNoAvailableNode
	}
	return NewNodePoolFromNodes(nodes, logger), nil
}

// NewNodePoolFromNodes 用已建立的客户端构造节点池
func NewNodePoolFromNodes(nodes []*Node, logger *logrus.Logger) *NodePool {
	for _, n := range nodes {
		n.available = true
	}
	// 优先级数字越小越优先
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Priority < nodes[j].Priority
	})
	return &NodePool{nodes: nodes, logger: logger}
}

// SetAttemptTimeout 设置单个节点单次尝试的超时
// 节点卡住时只消耗这段时间，剩余的调用超时留给下一个节点
func (p *NodePool) SetAttemptTimeout(d time.Duration) {
	p.attemptTimeout = d
}

// Do 按优先级在可用节点上执行调用，节点故障或单次尝试超时时切换到下一个节点
// 调用本身的语义错误（如交易不存在）直接返回，不切换节点
func (p *NodePool) Do(ctx context.Context, operation string, fn func(context.Context, ChainClient) error) error {
	var lastErr error
	tried := 0

	for _, node := range p.candidates() {
		if err := ctx.Err(); err != nil {
			return err
		}

		tried++
		err := p.attempt(ctx, node, fn)
		if err == nil {
			node.recordSuccess()
			return nil
		}
		// 外层超时或取消时不再切换
		if ctx.Err() != nil || !isNodeFailure(err) {
			return err
		}

		lastErr = err
		p.handleNodeError(node, err)
		p.logger.Debugf("节点 %s 执行 %s 失败，尝试下一个节点: %v", node.Name, operation, err)
	}

	if tried == 0 {
		return ErrNoAvailableNode
	}
	return fmt.Errorf("%s: 所有节点均失败: %w", operation, lastErr)
}

func (p *NodePool) attempt(ctx context.Context, node *Node, fn func(context.Context, ChainClient) error) error {
	if p.attemptTimeout <= 0 {
		return fn(ctx, node.Client)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()
	return fn(attemptCtx, node.Client)
}

// candidates 返回当前可用的节点，全部不可用时重置非限流节点
func (p *NodePool) candidates() []*Node {
	now := time.Now()
	var out []*Node

	for _, node := range p.nodes {
		node.mu.Lock()
		if node.rateLimited && now.After(node.rateLimitEnd) {
			node.rateLimited = false
			node.errorCount = 0
			p.logger.Infof("节点 %s 速率限制已解除", node.Name)
		}
		if node.available && !node.rateLimited {
			out = append(out, node)
		}
		node.mu.Unlock()
	}

	if len(out) > 0 {
		return out
	}

	for _, node := range p.nodes {
		node.mu.Lock()
		if !node.rateLimited {
			node.available = true
			node.errorCount = 0
			out = append(out, node)
		}
		node.mu.Unlock()
	}
	if len(out) > 0 {
		p.logger.Warn("所有节点都不可用，重新启用全部未限流节点")
	}
	return out
}

// handleNodeError 处理节点错误
func (p *NodePool) handleNodeError(node *Node, err error) {
	node.mu.Lock()
	defer node.mu.Unlock()

	node.errorCount++
	if isRateLimitError(err) {
		node.rateLimited = true
		node.rateLimitEnd = time.Now().Add(rateLimitCooldown)
		p.logger.Warnf("节点 %s 达到速率限制，将在%v后重试", node.Name, rateLimitCooldown)
		return
	}
	if node.errorCount >= maxNodeErrors {
		node.available = false
		p.logger.Warnf("节点 %s 错误次数过多，暂时禁用", node.Name)
	}
}

func (n *Node) recordSuccess() {
	n.mu.Lock()
	n.errorCount = 0
	n.mu.Unlock()
}

// Status 获取所有节点的状态
func (p *NodePool) Status() []NodeStatus {
	statuses := make([]NodeStatus, 0, len(p.nodes))
	now := time.Now()
	for _, node := range p.nodes {
		node.mu.Lock()
		statuses = append(statuses, NodeStatus{
			Name:        node.Name,
			Type:        node.Type,
			Priority:    node.Priority,
			Available:   node.available,
			RateLimited: node.rateLimited && now.Before(node.rateLimitEnd),
			ErrorCount:  node.errorCount,
		})
		node.mu.Unlock()
	}
	return statuses
}

// Close 关闭所有节点连接
func (p *NodePool) Close() {
	for _, node := range p.nodes {
		if node.Client != nil {
			node.Client.Close()
		}
	}
	p.logger.Info("节点池已关闭")
}

// isNodeFailure 判断错误是否来自节点本身而非调用语义
func isNodeFailure(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return !containsAny(msg, []string{"execution reverted", "invalid opcode", "abi:"})
}

// isRateLimitError 检测是否为429错误
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), []string{
		"429", "too many requests", "rate limit",
		"quota exceeded", "request limit", "requests per second",
		"exceed rate limit",
	})
}

// containsAny 检查字符串是否包含任意一个子字符串
func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
