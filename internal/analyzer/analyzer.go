package analyzer

import (
	"context"
	"sort"
	"time"

	"firstbuyers/internal/config"
	"firstbuyers/internal/errors"
	"firstbuyers/internal/logging"
	"firstbuyers/internal/validation"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TransferLogPort 转账日志数据源
type TransferLogPort interface {
	// FetchTransferEvents 返回按时间升序的转账事件，没有数据时返回 ErrNoTransactions
	FetchTransferEvents(ctx context.Context, contract common.Address) ([]models.TransferEvent, error)
}

// TokenMetadataPort 代币元数据数据源，不返回错误
type TokenMetadataPort interface {
	ResolveTokenMetadata(ctx context.Context, contract common.Address) models.TokenInfo
}

// TxSignalPort 交易信号数据源，不返回错误
type TxSignalPort interface {
	FetchTxSignal(ctx context.Context, txHash common.Hash) models.TxSignal
}

// Metrics 分析指标
type Metrics interface {
	ObserveAnalysis(outcome string, seconds float64)
	RecordSignal(status string)
	RecordDegradation(code string, count int)
}

// Analyzer 首批买家分析器
type Analyzer struct {
	transfers  TransferLogPort
	metadata   TokenMetadataPort
	signals    TxSignalPort
	cfg        *config.AnalysisConfig
	classifier *BundleClassifier
	validator  *validation.Validator
	lpLimit    decimal.Decimal
	metrics    Metrics
	logger     *logrus.Logger
}

// NewAnalyzer 创建分析器
func NewAnalyzer(
	transfers TransferLogPort,
	metadata TokenMetadataPort,
	signals TxSignalPort,
	cfg *config.AnalysisConfig,
	logger *logrus.Logger,
) *Analyzer {
	return &Analyzer{
		transfers:  transfers,
		metadata:   metadata,
		signals:    signals,
		cfg:        cfg,
		classifier: NewBundleClassifier(cfg.Classifier),
		validator:  validation.NewValidator(logger, cfg.DefaultLimit, cfg.MaxLimit),
		lpLimit:    decimal.NewFromFloat(cfg.LPThresholdPercent),
		logger:     logger,
	}
}

// SetMetrics 设置指标记录器
func (a *Analyzer) SetMetrics(m Metrics) {
	a.metrics = m
}

// AnalyzeFirstBuyers 分析代币的首批买家并检测捆绑分界
//
// 只有转账日志为空和过滤后没有买家是致命错误，其余失败降级为默认值，
// 降级次数按错误码记录在结果的 Degradations 中。
func (a *Analyzer) AnalyzeFirstBuyers(ctx context.Context, contract string, limit int) (*models.ClassificationResult, error) {
	start := time.Now()
	result, err := a.analyze(ctx, contract, limit)
	a.observe(start, result, err)
	return result, err
}

func (a *Analyzer) analyze(ctx context.Context, contract string, limit int) (*models.ClassificationResult, error) {
	address, err := a.validator.ContractAddress(contract)
	if err != nil {
		return nil, err
	}
	limit, err = a.validator.Limit(limit)
	if err != nil {
		return nil, err
	}

	log := logging.ContractLogger(a.logger, "analyzer", address.Hex()).WithField("limit", limit)
	recorder := errors.NewDegradationRecorder(a.logger)

	// 转账日志和元数据互不依赖，并发获取
	var (
		events []models.TransferEvent
		token  models.TokenInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = a.transfers.FetchTransferEvents(gctx, address)
		return err
	})
	g.Go(func() error {
		// 主数据源超时后仍需留出时间给回退数据源
		token = a.metadata.ResolveTokenMetadata(gctx, address)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("获取转账日志失败")
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.NewNoTransactionsError(address.Hex(), nil)
	}
	token.Address = address
	recordDefaultedFields(recorder, token)

	events = a.validator.TransferLog(events)
	exclusions := BuildExclusions(address, a.cfg.ExcludedAddresses)
	unique := Deduplicate(events, exclusions, limit)
	log.WithFields(logrus.Fields{
		"events": len(events),
		"buyers": len(unique),
	}).Debug("买家去重完成")

	enricher := NewEnricher(a.signals, a.cfg.SignalBudget, a.cfg.SignalConcurrency, recorder)
	buyers := enricher.Enrich(ctx, token, unique)

	buyers, dropped := FilterLPOutlier(buyers, a.lpLimit)
	if dropped {
		log.Info("第一名持有超过阈值的供应量，按流动性池移除")
	}
	if len(buyers) == 0 {
		return nil, errors.NewNoBuyersError(address.Hex())
	}

	result := assemble(token, buyers, a.classifier.BundleEndRank(buyers), recorder)
	a.recordSignals(buyers)

	log.WithFields(logrus.Fields{
		"buyers":          result.Len(),
		"bundle_end_rank": result.BundleEndRank,
		"degradations":    recorder.Total(),
	}).Info("首批买家分析完成")
	return result, nil
}

// assemble 组合最终结果
func assemble(token models.TokenInfo, buyers []models.BuyerRecord, bundleEnd int, recorder *errors.DegradationRecorder) *models.ClassificationResult {
	return &models.ClassificationResult{
		Token:         token,
		Buyers:        buyers,
		BundleEndRank: bundleEnd,
		Degradations:  recorder.Counts(),
	}
}

func recordDefaultedFields(recorder *errors.DegradationRecorder, token models.TokenInfo) {
	for _, field := range token.DefaultedFields {
		recorder.Record(errors.NewAnalyzerError(errors.ErrorTypeExternalAPI, errors.SeverityLow,
			errors.CodeMetadataDefault, "元数据字段使用默认值").
			WithComponent("token_metadata").
			WithContract(token.Address.Hex()).
			WithContext("field", field))
	}
}

func (a *Analyzer) recordSignals(buyers []models.BuyerRecord) {
	if a.metrics == nil {
		return
	}
	for _, b := range buyers {
		a.metrics.RecordSignal(string(b.Signal.Status))
	}
}

func (a *Analyzer) observe(start time.Time, result *models.ClassificationResult, err error) {
	if a.metrics == nil {
		return
	}
	a.metrics.ObserveAnalysis(Outcome(err), time.Since(start).Seconds())
	if result == nil {
		return
	}

	codes := make([]string, 0, len(result.Degradations))
	for code := range result.Degradations {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		a.metrics.RecordDegradation(code, result.Degradations[code])
	}
}

// Outcome 将分析错误映射为指标标签
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errors.ErrNoTransactions):
		return "no_transactions"
	case errors.Is(err, errors.ErrNoBuyers):
		return "no_buyers"
	case errors.Is(err, errors.ErrInvalidAddress), errors.Is(err, errors.ErrInvalidLimit):
		return "invalid_input"
	default:
		return "error"
	}
}
