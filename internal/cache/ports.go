package cache

import (
	"context"

	apperrors "firstbuyers/internal/errors"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// SignalSource 交易信号数据源
type SignalSource interface {
	FetchTxSignal(ctx context.Context, txHash common.Hash) models.TxSignal
}

// MetadataSource 代币元数据数据源
type MetadataSource interface {
	ResolveTokenMetadata(ctx context.Context, contract common.Address) models.TokenInfo
}

// LookupRecorder 记录缓存命中情况
type LookupRecorder interface {
	RecordCacheLookup(kind, result string)
}

// CachedSignals 为信号数据源加缓存，只缓存完整获取的信号
type CachedSignals struct {
	next    SignalSource
	store   *BoltStore
	metrics LookupRecorder
	logger  *logrus.Logger
}

// NewCachedSignals 创建带缓存的信号数据源，metrics 可为nil
func NewCachedSignals(next SignalSource, store *BoltStore, metrics LookupRecorder, logger *logrus.Logger) *CachedSignals {
	return &CachedSignals{next: next, store: store, metrics: metrics, logger: logger}
}

// FetchTxSignal 先查缓存，未命中时查询数据源
func (c *CachedSignals) FetchTxSignal(ctx context.Context, txHash common.Hash) models.TxSignal {
	key := txHash.Hex()

	var cached models.TxSignal
	hit, err := c.store.Get(SignalBucket, key, &cached)
	if err != nil {
		logCacheError(c.logger, err, "signal", key)
	}
	if hit {
		c.record("signal", "hit")
		return cached
	}
	c.record("signal", "miss")

	signal := c.next.FetchTxSignal(ctx, txHash)
	// 部分失败的信号不缓存，下次请求重新查询
	if signal.Status == models.SignalFetched {
		if err := c.store.Put(SignalBucket, key, signal); err != nil {
			logCacheError(c.logger, err, "signal", key)
		}
	}
	return signal
}

func (c *CachedSignals) record(kind, result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(kind, result)
	}
}

// CachedMetadata 为元数据数据源加缓存，只缓存没有默认字段的结果
type CachedMetadata struct {
	next    MetadataSource
	store   *BoltStore
	metrics LookupRecorder
	logger  *logrus.Logger
}

// NewCachedMetadata 创建带缓存的元数据数据源，metrics 可为nil
func NewCachedMetadata(next MetadataSource, store *BoltStore, metrics LookupRecorder, logger *logrus.Logger) *CachedMetadata {
	return &CachedMetadata{next: next, store: store, metrics: metrics, logger: logger}
}

// ResolveTokenMetadata 先查缓存，未命中时查询数据源
func (c *CachedMetadata) ResolveTokenMetadata(ctx context.Context, contract common.Address) models.TokenInfo {
	key := contract.Hex()

	var cached models.TokenInfo
	hit, err := c.store.Get(MetadataBucket, key, &cached)
	if err != nil {
		logCacheError(c.logger, err, "metadata", key)
	}
	if hit {
		c.record("metadata", "hit")
		return cached
	}
	c.record("metadata", "miss")

	info := c.next.ResolveTokenMetadata(ctx, contract)
	if len(info.DefaultedFields) == 0 {
		if err := c.store.Put(MetadataBucket, key, info); err != nil {
			logCacheError(c.logger, err, "metadata", key)
		}
	}
	return info
}

func (c *CachedMetadata) record(kind, result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(kind, result)
	}
}

func logCacheError(logger *logrus.Logger, err error, kind, key string) {
	logger.WithFields(logrus.Fields{
		"component":  "cache",
		"error_code": apperrors.CodeCacheFailed,
		"kind":       kind,
		"key":        key,
	}).WithError(err).Warn("缓存读写失败")
}
