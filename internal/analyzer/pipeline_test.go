package analyzer

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"firstbuyers/internal/errors"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0x6982508145454Ce325dDbE47a25d4ec3d2311933")
	routerAddr   = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
)

func wallet(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + n)))
}

func txHash(n int) common.Hash {
	return common.BigToHash(big.NewInt(int64(n)))
}

func transfer(from, to common.Address, raw string, tx int, block uint64) models.TransferEvent {
	return models.TransferEvent{
		From:        from,
		To:          to,
		RawValue:    raw,
		TxHash:      txHash(tx),
		BlockNumber: block,
		Timestamp:   time.Unix(int64(1700000000+block), 0).UTC(),
	}
}

// fakeSignals 按交易哈希返回预设信号并统计调用次数
type fakeSignals struct {
	mu      sync.Mutex
	calls   map[common.Hash]int
	signals map[common.Hash]models.TxSignal
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{
		calls:   make(map[common.Hash]int),
		signals: make(map[common.Hash]models.TxSignal),
	}
}

func (f *fakeSignals) FetchTxSignal(ctx context.Context, hash common.Hash) models.TxSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[hash]++
	if s, ok := f.signals[hash]; ok {
		return s
	}
	return models.TxSignal{Status: models.SignalUnavailable}
}

func (f *fakeSignals) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func newRecorder() *errors.DegradationRecorder {
	logger, _ := test.NewNullLogger()
	return errors.NewDegradationRecorder(logger)
}

func TestDeduplicate(t *testing.T) {
	a, b, c := wallet(1), wallet(2), wallet(3)
	events := []models.TransferEvent{
		// 铸造
		transfer(models.ZeroAddress, a, "100", 1, 1),
		transfer(routerAddr, a, "10", 2, 2),
		// 路由地址
		transfer(routerAddr, routerAddr, "10", 3, 2),
		transfer(routerAddr, b, "20", 4, 3),
		// 重复接收方
		transfer(routerAddr, a, "30", 5, 4),
		// 合约自身和销毁地址
		transfer(routerAddr, contractAddr, "1", 6, 4),
		transfer(routerAddr, models.DeadAddress, "1", 7, 5),
		transfer(routerAddr, c, "40", 8, 6),
	}
	exclude := BuildExclusions(contractAddr, []string{strings.ToLower(routerAddr.Hex())})

	t.Run("去重并保持首次出现顺序", func(t *testing.T) {
		out := Deduplicate(events, exclude, 0)
		require.Len(t, out, 3)
		assert.Equal(t, []common.Address{a, b, c}, []common.Address{out[0].To, out[1].To, out[2].To})
		assert.Equal(t, txHash(2), out[0].TxHash)
	})

	t.Run("达到上限后停止", func(t *testing.T) {
		out := Deduplicate(events, exclude, 2)
		require.Len(t, out, 2)
		assert.Equal(t, b, out[1].To)
	})

	t.Run("空输入", func(t *testing.T) {
		assert.Empty(t, Deduplicate(nil, exclude, 10))
	})
}

func TestBuildExclusions_IgnoresInvalid(t *testing.T) {
	set := BuildExclusions(contractAddr, []string{"not-an-address", routerAddr.Hex()})
	assert.True(t, set.Contains(contractAddr))
	assert.True(t, set.Contains(models.ZeroAddress))
	assert.True(t, set.Contains(models.DeadAddress))
	assert.True(t, set.Contains(routerAddr))
	assert.Len(t, set, 4)
}

func TestToAmount(t *testing.T) {
	amount, err := ToAmount("1234500000000000000", 18)
	require.NoError(t, err)
	assert.Equal(t, "1.2345", amount.String())

	amount, err = ToAmount("42", 0)
	require.NoError(t, err)
	assert.Equal(t, "42", amount.String())

	_, err = ToAmount("12abc", 18)
	assert.Error(t, err)

	_, err = ToAmount("-5", 18)
	assert.Error(t, err)
}

func TestSupplyPercent(t *testing.T) {
	assert.True(t, SupplyPercent(decimal.NewFromInt(25), decimal.NewFromInt(1000)).Equal(decimal.NewFromFloat(2.5)))
	assert.True(t, SupplyPercent(decimal.NewFromInt(25), decimal.Zero).IsZero())

	amount := decimal.NewFromInt(1)
	total := decimal.NewFromInt(3)
	assert.True(t, SupplyPercent(amount, total).Equal(amount.Div(total).Mul(decimal.NewFromInt(100))))
}

func TestEnrich(t *testing.T) {
	token := models.TokenInfo{Address: contractAddr, Decimals: 2, TotalSupply: decimal.NewFromInt(1000)}
	events := []models.TransferEvent{
		transfer(routerAddr, wallet(1), "10000", 1, 1), // 100.00
		transfer(routerAddr, wallet(2), "5000", 1, 1),  // 同一交易
		transfer(routerAddr, wallet(3), "oops", 2, 2),
		transfer(routerAddr, wallet(4), "100", 3, 3),
	}

	signals := newFakeSignals()
	full := sig(7, 5, 1)
	full.BribeEth = decimal.NewNullDecimal(decimal.Zero)
	full.Status = full.ResolveStatus()
	signals.signals[txHash(1)] = full
	partial := models.TxSignal{BlockPosition: models.IntPtr(9)}
	partial.Status = partial.ResolveStatus()
	signals.signals[txHash(2)] = partial

	recorder := newRecorder()
	buyers := NewEnricher(signals, 3, 2, recorder).Enrich(context.Background(), token, events)

	require.Len(t, buyers, 4)
	for i, b := range buyers {
		assert.Equal(t, i+1, b.Rank)
	}

	assert.Equal(t, "100", buyers[0].Amount.String())
	assert.True(t, buyers[0].SupplyPercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, buyers[1].SupplyPercent.Equal(decimal.NewFromInt(5)))

	// 金额解析失败按0处理
	assert.True(t, buyers[2].Amount.IsZero())
	assert.True(t, buyers[2].SupplyPercent.IsZero())

	// 同一交易只查询一次，超出预算的不查询
	assert.Equal(t, 1, signals.calls[txHash(1)])
	assert.Equal(t, 0, signals.calls[txHash(3)])
	assert.Equal(t, 2, signals.totalCalls())
	assert.Equal(t, models.SignalFetched, buyers[0].Signal.Status)
	assert.Equal(t, buyers[0].Signal, buyers[1].Signal)
	assert.Equal(t, models.SignalPartial, buyers[2].Signal.Status)
	assert.Equal(t, models.SignalNotAttempted, buyers[3].Signal.Status)

	counts := recorder.Counts()
	assert.Equal(t, 1, counts[errors.CodeAmountConversion])
	assert.Equal(t, 1, counts[errors.CodeSignalFailed])
}

func TestEnrich_ZeroBudget(t *testing.T) {
	signals := newFakeSignals()
	token := models.TokenInfo{Decimals: 0}
	events := []models.TransferEvent{transfer(routerAddr, wallet(1), "1", 1, 1)}

	buyers := NewEnricher(signals, 0, 4, newRecorder()).Enrich(context.Background(), token, events)

	assert.Equal(t, models.SignalNotAttempted, buyers[0].Signal.Status)
	assert.Zero(t, signals.totalCalls())
	// 总供应量未知时占比为0
	assert.True(t, buyers[0].SupplyPercent.IsZero())
}

func TestFilterLPOutlier(t *testing.T) {
	mk := func(percents ...int64) []models.BuyerRecord {
		out := make([]models.BuyerRecord, len(percents))
		for i, p := range percents {
			out[i] = models.BuyerRecord{Rank: i + 1, Wallet: wallet(i), SupplyPercent: decimal.NewFromInt(p)}
		}
		return out
	}
	threshold := decimal.NewFromInt(50)

	t.Run("第一名超过阈值被移除", func(t *testing.T) {
		input := mk(80, 5, 60)
		out, dropped := FilterLPOutlier(input, threshold)

		assert.True(t, dropped)
		require.Len(t, out, 2)
		assert.Equal(t, wallet(1), out[0].Wallet)
		assert.Equal(t, 1, out[0].Rank)
		assert.Equal(t, 2, out[1].Rank)
		// 只检查第一名
		assert.True(t, out[1].SupplyPercent.Equal(decimal.NewFromInt(60)))
		// 输入不被修改
		assert.Equal(t, 2, input[1].Rank)
	})

	t.Run("恰好等于阈值保留", func(t *testing.T) {
		input := mk(50, 5)
		out, dropped := FilterLPOutlier(input, threshold)
		assert.False(t, dropped)
		assert.Equal(t, input, out)
	})

	t.Run("空列表", func(t *testing.T) {
		out, dropped := FilterLPOutlier(nil, threshold)
		assert.False(t, dropped)
		assert.Empty(t, out)
	})
}
