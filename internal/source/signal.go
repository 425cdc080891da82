package source

import (
	"context"
	"errors"
	"math/big"
	"time"

	"firstbuyers/internal/connection"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BribeExplorer 查询交易内部转账的数据源
type BribeExplorer interface {
	InternalTransfersTo(ctx context.Context, txHash common.Hash, recipient common.Address) (*big.Int, error)
}

// SignalFetcher 交易gas/贿赂信号查询
type SignalFetcher struct {
	chain       ChainCaller
	explorer    BribeExplorer
	callTimeout time.Duration
	logger      *logrus.Logger
}

// NewSignalFetcher 创建信号查询器，explorer 为nil时不估算贿赂
func NewSignalFetcher(chain ChainCaller, explorer BribeExplorer, callTimeout time.Duration, logger *logrus.Logger) *SignalFetcher {
	return &SignalFetcher{
		chain:       chain,
		explorer:    explorer,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// FetchTxSignal 查询单笔交易的信号，不返回错误；失败的字段保持缺失
func (f *SignalFetcher) FetchTxSignal(ctx context.Context, txHash common.Hash) models.TxSignal {
	log := f.logger.WithFields(logrus.Fields{
		"component": "tx_signal",
		"tx_hash":   txHash.Hex(),
	})

	var signal models.TxSignal
	if f.chain == nil {
		signal.Status = models.SignalUnavailable
		return signal
	}

	var (
		tx      *types.Transaction
		receipt *types.Receipt
	)

	var g errgroup.Group
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
		defer cancel()
		err := f.chain.Do(callCtx, "eth_getTransactionByHash", func(ctx context.Context, c connection.ChainClient) error {
			var err error
			tx, _, err = c.TransactionByHash(ctx, txHash)
			return err
		})
		if err != nil {
			log.WithError(err).Debug("获取交易失败")
			tx = nil
		}
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
		defer cancel()
		err := f.chain.Do(callCtx, "eth_getTransactionReceipt", func(ctx context.Context, c connection.ChainClient) error {
			var err error
			receipt, err = c.TransactionReceipt(ctx, txHash)
			return err
		})
		if err != nil {
			log.WithError(err).Debug("获取交易回执失败")
			receipt = nil
		}
		return nil
	})
	_ = g.Wait()

	if receipt != nil {
		signal.BlockPosition = models.IntPtr(int(receipt.TransactionIndex))
	}

	var header *types.Header
	if receipt != nil && receipt.BlockNumber != nil {
		header = f.fetchHeader(ctx, receipt.BlockNumber, log)
	}

	var baseFee *big.Int
	if header != nil {
		baseFee = header.BaseFee
	}

	if gasPrice := effectiveGasPrice(tx, receipt, baseFee); gasPrice != nil {
		signal.GasPriceGwei = decimal.NewNullDecimal(weiToGwei(gasPrice))
	}
	if tx != nil && (baseFee != nil || tx.Type() == types.LegacyTxType) {
		tip := effectiveTip(tx, baseFee)
		signal.PriorityFeeGwei = decimal.NewNullDecimal(weiToGwei(tip))
	}

	if header != nil {
		if bribe, ok := f.bribe(ctx, txHash, tx, header.Coinbase, log); ok {
			signal.BribeEth = decimal.NewNullDecimal(decimal.NewFromBigInt(bribe, -18))
		}
	}

	signal.Status = signal.ResolveStatus()
	return signal
}

func (f *SignalFetcher) fetchHeader(ctx context.Context, number *big.Int, log *logrus.Entry) *types.Header {
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	var header *types.Header
	err := f.chain.Do(callCtx, "eth_getBlockByNumber", func(ctx context.Context, c connection.ChainClient) error {
		var err error
		header, err = c.HeaderByNumber(ctx, number)
		return err
	})
	if err != nil {
		log.WithError(err).Debug("获取区块头失败")
		return nil
	}
	return header
}

// bribe 估算交易支付给出块者的ETH：直接转账加内部转账
func (f *SignalFetcher) bribe(ctx context.Context, txHash common.Hash, tx *types.Transaction, coinbase common.Address, log *logrus.Entry) (*big.Int, bool) {
	if f.explorer == nil {
		return nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	total, err := f.explorer.InternalTransfersTo(callCtx, txHash, coinbase)
	if err != nil {
		log.WithError(err).Debug("查询内部转账失败")
		return nil, false
	}
	total = new(big.Int).Set(total)
	if tx != nil && tx.To() != nil && *tx.To() == coinbase && tx.Value() != nil {
		total.Add(total, tx.Value())
	}
	return total, true
}

// effectiveGasPrice 优先使用回执中的实际gas价格
func effectiveGasPrice(tx *types.Transaction, receipt *types.Receipt, baseFee *big.Int) *big.Int {
	if receipt != nil && receipt.EffectiveGasPrice != nil && receipt.EffectiveGasPrice.Sign() > 0 {
		return receipt.EffectiveGasPrice
	}
	if tx == nil {
		return nil
	}
	if baseFee != nil && tx.Type() != types.LegacyTxType {
		return new(big.Int).Add(baseFee, effectiveTip(tx, baseFee))
	}
	return tx.GasPrice()
}

// effectiveTip 实际支付的小费，费用上限低于基础费时记为0
func effectiveTip(tx *types.Transaction, baseFee *big.Int) *big.Int {
	tip, err := tx.EffectiveGasTip(baseFee)
	if errors.Is(err, types.ErrGasFeeCapTooLow) || tip == nil || tip.Sign() < 0 {
		return new(big.Int)
	}
	return tip
}

func weiToGwei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -9)
}
