package analyzer

import (
	"context"
	"fmt"
	"sync"

	"firstbuyers/internal/errors"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var hundred = decimal.NewFromInt(100)

// ToAmount 将原始整数金额按精度换算
func ToAmount(raw string, decimals uint8) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("无法解析金额 %q: %w", raw, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("金额为负数: %s", raw)
	}
	return value.Shift(-int32(decimals)), nil
}

// SupplyPercent 计算占总供应量的百分比，总供应量未知时为0
func SupplyPercent(amount, totalSupply decimal.Decimal) decimal.Decimal {
	if !totalSupply.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(totalSupply).Mul(hundred)
}

// Enricher 买家信息补全
type Enricher struct {
	signals     TxSignalPort
	budget      int
	concurrency int
	recorder    *errors.DegradationRecorder
}

// NewEnricher 创建补全器，recorder 为本次请求独有
func NewEnricher(signals TxSignalPort, budget, concurrency int, recorder *errors.DegradationRecorder) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Enricher{
		signals:     signals,
		budget:      budget,
		concurrency: concurrency,
		recorder:    recorder,
	}
}

// Enrich 为去重后的转账生成排名从1开始的买家记录
// 只有前 budget 个买家查询交易信号，其余标记为未查询
func (e *Enricher) Enrich(ctx context.Context, token models.TokenInfo, events []models.TransferEvent) []models.BuyerRecord {
	signals := e.fetchSignals(ctx, events)

	buyers := make([]models.BuyerRecord, 0, len(events))
	for i, event := range events {
		amount, err := ToAmount(event.RawValue, token.Decimals)
		if err != nil {
			e.recorder.Record(errors.WrapError(err, errors.ErrorTypeData, errors.SeverityMedium,
				errors.CodeAmountConversion, "金额换算失败，按0处理").
				WithComponent("enricher").
				WithContract(token.Address.Hex()).
				WithTxHash(event.TxHash.Hex()))
		}

		signal := models.NotAttemptedSignal()
		if i < e.budget {
			signal = signals[event.TxHash]
		}

		buyers = append(buyers, models.BuyerRecord{
			Rank:          i + 1,
			Wallet:        event.To,
			Amount:        amount,
			SupplyPercent: SupplyPercent(amount, token.TotalSupply),
			TxHash:        event.TxHash,
			BlockNumber:   event.BlockNumber,
			Timestamp:     event.Timestamp,
			Signal:        signal,
		})
	}

	return buyers
}

// fetchSignals 并发查询预算内的交易信号，同一交易只查询一次
func (e *Enricher) fetchSignals(ctx context.Context, events []models.TransferEvent) map[common.Hash]models.TxSignal {
	results := make(map[common.Hash]models.TxSignal)
	if e.signals == nil || e.budget <= 0 {
		return results
	}

	n := e.budget
	if n > len(events) {
		n = len(events)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)

	for _, event := range events[:n] {
		hash := event.TxHash
		mu.Lock()
		_, dup := results[hash]
		if !dup {
			results[hash] = models.TxSignal{Status: models.SignalUnavailable}
		}
		mu.Unlock()
		if dup {
			continue
		}

		g.Go(func() error {
			// 超时由信号源按单次调用控制
			signal := e.signals.FetchTxSignal(ctx, hash)
			if signal.Status == "" {
				signal.Status = signal.ResolveStatus()
			}

			mu.Lock()
			results[hash] = signal
			mu.Unlock()

			e.recordSignal(hash, signal)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Enricher) recordSignal(hash common.Hash, signal models.TxSignal) {
	var severity errors.ErrorSeverity
	switch signal.Status {
	case models.SignalUnavailable:
		severity = errors.SeverityMedium
	case models.SignalPartial:
		severity = errors.SeverityLow
	default:
		return
	}

	e.recorder.Record(errors.NewAnalyzerError(errors.ErrorTypeExternalAPI, severity,
		errors.CodeSignalFailed, "交易信号获取不完整").
		WithComponent("tx_signal").
		WithTxHash(hash.Hex()).
		WithContext("status", string(signal.Status)))
}
