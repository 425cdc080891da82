package source

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"firstbuyers/internal/connection"
	apperrors "firstbuyers/internal/errors"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const erc20MetadataABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20MetadataABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("解析ERC-20 ABI失败: %v", err))
	}
	return parsed
}

// ChainCaller 执行节点调用，由 connection.NodePool 实现
type ChainCaller interface {
	Do(ctx context.Context, operation string, fn func(context.Context, connection.ChainClient) error) error
}

// TokenExplorer 元数据的浏览器回退数据源
type TokenExplorer interface {
	TokenSupply(ctx context.Context, contract common.Address) (*big.Int, error)
	FirstTransfer(ctx context.Context, contract common.Address) (*models.TransferEvent, error)
}

// MetadataResolver 代币元数据解析器
//
// 每个字段独立解析：先合约调用，再浏览器，最后默认值。
type MetadataResolver struct {
	chain       ChainCaller
	explorer    TokenExplorer
	callTimeout time.Duration
	logger      *logrus.Logger
}

// NewMetadataResolver 创建元数据解析器，chain 或 explorer 为nil时跳过对应数据源
func NewMetadataResolver(chain ChainCaller, explorer TokenExplorer, callTimeout time.Duration, logger *logrus.Logger) *MetadataResolver {
	return &MetadataResolver{
		chain:       chain,
		explorer:    explorer,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// ResolveTokenMetadata 解析代币元数据，不返回错误
func (r *MetadataResolver) ResolveTokenMetadata(ctx context.Context, contract common.Address) models.TokenInfo {
	log := r.logger.WithFields(logrus.Fields{
		"component": "token_metadata",
		"contract":  contract.Hex(),
	})

	// 浏览器首条转账同时提供名称、符号和精度，只请求一次
	firstTransfer := sync.OnceValues(func() (*models.TransferEvent, error) {
		if r.explorer == nil {
			return nil, fmt.Errorf("未配置浏览器数据源")
		}
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
		return r.explorer.FirstTransfer(callCtx, contract)
	})

	var (
		name, symbol     string
		decimals         uint8
		rawSupply        *big.Int
		nameOK, symbolOK bool
		decimalsOK       bool
	)

	var g errgroup.Group
	g.Go(func() error {
		name, nameOK = r.resolveString(ctx, contract, "name", func(t *models.TransferEvent) string { return t.TokenName }, firstTransfer, log)
		return nil
	})
	g.Go(func() error {
		symbol, symbolOK = r.resolveString(ctx, contract, "symbol", func(t *models.TransferEvent) string { return t.TokenSymbol }, firstTransfer, log)
		return nil
	})
	g.Go(func() error {
		decimals, decimalsOK = r.resolveDecimals(ctx, contract, firstTransfer, log)
		return nil
	})
	g.Go(func() error {
		rawSupply = r.resolveSupply(ctx, contract, log)
		return nil
	})
	_ = g.Wait()

	info := models.TokenInfo{
		Address:     contract,
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		TotalSupply: decimal.Zero,
	}
	if !nameOK {
		info.Name = models.DefaultTokenName
		info.DefaultedFields = append(info.DefaultedFields, models.FieldName)
	}
	if !symbolOK {
		info.Symbol = models.DefaultTokenSymbol
		info.DefaultedFields = append(info.DefaultedFields, models.FieldSymbol)
	}
	if !decimalsOK {
		info.Decimals = models.DefaultTokenDecimals
		info.DefaultedFields = append(info.DefaultedFields, models.FieldDecimals)
	}
	if rawSupply != nil {
		info.TotalSupply = decimal.NewFromBigInt(rawSupply, -int32(info.Decimals))
	} else {
		info.DefaultedFields = append(info.DefaultedFields, models.FieldTotalSupply)
	}

	if len(info.DefaultedFields) > 0 {
		log.WithFields(logrus.Fields{
			"error_code": apperrors.CodeMetadataDefault,
			"fields":     info.DefaultedFields,
		}).Warn("部分元数据字段使用默认值")
	}
	return info
}

func (r *MetadataResolver) resolveString(
	ctx context.Context,
	contract common.Address,
	method string,
	fromTransfer func(*models.TransferEvent) string,
	firstTransfer func() (*models.TransferEvent, error),
	log *logrus.Entry,
) (string, bool) {
	out, err := r.call(ctx, contract, method)
	if err == nil {
		if s := decodeStringOutput(method, out); s != "" {
			return s, true
		}
		err = fmt.Errorf("返回值为空")
	}
	r.logFallback(log, method, err)

	if t, err := firstTransfer(); err == nil {
		if s := strings.TrimSpace(fromTransfer(t)); s != "" {
			return s, true
		}
	}
	return "", false
}

func (r *MetadataResolver) resolveDecimals(
	ctx context.Context,
	contract common.Address,
	firstTransfer func() (*models.TransferEvent, error),
	log *logrus.Entry,
) (uint8, bool) {
	out, err := r.call(ctx, contract, "decimals")
	if err == nil {
		var vals []interface{}
		if vals, err = erc20ABI.Unpack("decimals", out); err == nil && len(vals) == 1 {
			if d, ok := vals[0].(uint8); ok {
				return d, true
			}
		}
		if err == nil {
			err = fmt.Errorf("decimals 返回值类型异常")
		}
	}
	r.logFallback(log, "decimals", err)

	if t, err := firstTransfer(); err == nil {
		if d, err := strconv.ParseUint(t.TokenDecimals, 10, 8); err == nil {
			return uint8(d), true
		}
	}
	return 0, false
}

func (r *MetadataResolver) resolveSupply(ctx context.Context, contract common.Address, log *logrus.Entry) *big.Int {
	out, err := r.call(ctx, contract, "totalSupply")
	if err == nil {
		var vals []interface{}
		if vals, err = erc20ABI.Unpack("totalSupply", out); err == nil && len(vals) == 1 {
			if s, ok := vals[0].(*big.Int); ok {
				return s
			}
		}
		if err == nil {
			err = fmt.Errorf("totalSupply 返回值类型异常")
		}
	}
	r.logFallback(log, "totalSupply", err)

	if r.explorer == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	supply, err := r.explorer.TokenSupply(callCtx, contract)
	if err != nil {
		log.WithError(err).Debug("浏览器总供应量查询失败")
		return nil
	}
	return supply
}

// call 通过节点池执行只读合约调用
func (r *MetadataResolver) call(ctx context.Context, contract common.Address, method string) ([]byte, error) {
	if r.chain == nil {
		return nil, fmt.Errorf("未配置RPC节点")
	}
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	var out []byte
	err = r.chain.Do(callCtx, "eth_call "+method, func(ctx context.Context, c connection.ChainClient) error {
		var callErr error
		out, callErr = c.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s 调用无返回数据", method)
	}
	return out, nil
}

func (r *MetadataResolver) logFallback(log *logrus.Entry, field string, err error) {
	log.WithFields(logrus.Fields{
		"error_code": apperrors.CodeMetadataFallback,
		"field":      field,
	}).WithError(err).Debug("合约调用失败，尝试浏览器数据")
}

// decodeStringOutput 解码 string 返回值，兼容早期代币的 bytes32 返回值
func decodeStringOutput(method string, out []byte) string {
	if vals, err := erc20ABI.Unpack(method, out); err == nil && len(vals) == 1 {
		if s, ok := vals[0].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	if len(out) == 32 {
		return strings.TrimSpace(string(bytes.TrimRight(out, "\x00")))
	}
	return ""
}
