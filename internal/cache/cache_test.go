package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) *BoltStore {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "nested", "cache.db"), ttl, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type countingSignals struct {
	mu     sync.Mutex
	calls  int
	signal models.TxSignal
}

func (c *countingSignals) FetchTxSignal(ctx context.Context, txHash common.Hash) models.TxSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.signal
}

type countingMetadata struct {
	calls int
	info  models.TokenInfo
}

func (c *countingMetadata) ResolveTokenMetadata(ctx context.Context, contract common.Address) models.TokenInfo {
	c.calls++
	return c.info
}

type lookupCounter struct {
	counts map[string]int
}

func (l *lookupCounter) RecordCacheLookup(kind, result string) {
	l.counts[kind+"/"+result]++
}

func fullSignal() models.TxSignal {
	s := models.TxSignal{
		GasPriceGwei:    decimal.NewNullDecimal(decimal.NewFromInt(12)),
		PriorityFeeGwei: decimal.NewNullDecimal(decimal.NewFromInt(2)),
		BlockPosition:   models.IntPtr(4),
		BribeEth:        decimal.NewNullDecimal(decimal.Zero),
	}
	s.Status = s.ResolveStatus()
	return s
}

func TestBoltStore_PutGet(t *testing.T) {
	store := newTestStore(t, time.Hour)

	require.NoError(t, store.Put(SignalBucket, "k", map[string]int{"a": 1}))

	var out map[string]int
	hit, err := store.Get(SignalBucket, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, out["a"])

	hit, err = store.Get(SignalBucket, "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestBoltStore_Expiry(t *testing.T) {
	store := newTestStore(t, time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(MetadataBucket, "old", "v"))
	require.NoError(t, store.Put(MetadataBucket, "fresh", "v"))

	// 只让 fresh 在新时间点写入
	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	require.NoError(t, store.Put(MetadataBucket, "fresh", "v"))

	var out string
	hit, err := store.Get(MetadataBucket, "old", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	removed, err := store.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	hit, err = store.Get(MetadataBucket, "fresh", &out)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestBoltStore_UnknownBucket(t *testing.T) {
	store := newTestStore(t, 0)
	assert.Error(t, store.Put("nope", "k", 1))
}

func TestCachedSignals(t *testing.T) {
	store := newTestStore(t, time.Hour)
	logger, _ := test.NewNullLogger()
	source := &countingSignals{signal: fullSignal()}
	lookups := &lookupCounter{counts: map[string]int{}}
	cached := NewCachedSignals(source, store, lookups, logger)

	hash := common.HexToHash("0x01")
	first := cached.FetchTxSignal(context.Background(), hash)
	second := cached.FetchTxSignal(context.Background(), hash)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, models.SignalFetched, second.Status)
	assert.True(t, first.GasPriceGwei.Decimal.Equal(second.GasPriceGwei.Decimal))
	assert.Equal(t, 4, *second.BlockPosition)
	// 零值贿赂在缓存往返后仍然是"已确认为0"
	assert.True(t, second.BribeEth.Valid)
	assert.Equal(t, 1, lookups.counts["signal/hit"])
	assert.Equal(t, 1, lookups.counts["signal/miss"])
}

func TestCachedSignals_PartialNotCached(t *testing.T) {
	store := newTestStore(t, time.Hour)
	logger, _ := test.NewNullLogger()
	partial := models.TxSignal{BlockPosition: models.IntPtr(1)}
	partial.Status = partial.ResolveStatus()
	source := &countingSignals{signal: partial}
	cached := NewCachedSignals(source, store, nil, logger)

	hash := common.HexToHash("0x02")
	cached.FetchTxSignal(context.Background(), hash)
	cached.FetchTxSignal(context.Background(), hash)

	assert.Equal(t, 2, source.calls)
}

func TestCachedMetadata(t *testing.T) {
	store := newTestStore(t, time.Hour)
	logger, _ := test.NewNullLogger()
	contract := common.HexToAddress("0x1000000000000000000000000000000000000001")

	t.Run("完整元数据被缓存", func(t *testing.T) {
		source := &countingMetadata{info: models.TokenInfo{
			Address:     contract,
			Name:        "Pepe",
			Symbol:      "PEPE",
			Decimals:    9,
			TotalSupply: decimal.NewFromInt(1000),
		}}
		cached := NewCachedMetadata(source, store, nil, logger)

		cached.ResolveTokenMetadata(context.Background(), contract)
		info := cached.ResolveTokenMetadata(context.Background(), contract)

		assert.Equal(t, 1, source.calls)
		assert.Equal(t, "PEPE", info.Symbol)
		assert.True(t, info.TotalSupply.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("含默认字段的元数据不缓存", func(t *testing.T) {
		other := common.HexToAddress("0x2000000000000000000000000000000000000002")
		source := &countingMetadata{info: models.DefaultTokenInfo(other)}
		cached := NewCachedMetadata(source, store, nil, logger)

		cached.ResolveTokenMetadata(context.Background(), other)
		cached.ResolveTokenMetadata(context.Background(), other)

		assert.Equal(t, 2, source.calls)
	})
}
