package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"firstbuyers/internal/config"
	apperrors "firstbuyers/internal/errors"
	"firstbuyers/internal/retry"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// 响应体上限
const maxResponseBytes = 10 << 20

// EtherscanClient 区块浏览器API客户端
type EtherscanClient struct {
	cfg     *config.EtherscanConfig
	client  *http.Client
	retrier *retry.Retrier
	logger  *logrus.Logger
}

// etherscanResponse 通用响应
// 出错时 result 为字符串（如 "Max rate limit reached"），因此延迟解析
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTransferRow struct {
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenName    string `json:"tokenName"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal string `json:"tokenDecimal"`
}

type internalTxRow struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value"`
	IsError string `json:"isError"`
}

// NewEtherscanClient 创建区块浏览器客户端
func NewEtherscanClient(cfg *config.EtherscanConfig, logger *logrus.Logger) *EtherscanClient {
	return &EtherscanClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		retrier: retry.NewRetrier(retry.NetworkRetryConfig, logger),
		logger:  logger,
	}
}

// FetchTransferEvents 获取代币的转账日志（按时间升序）
// 上游状态非"1"或没有任何记录时返回 ErrNoTransactions
func (c *EtherscanClient) FetchTransferEvents(ctx context.Context, contract common.Address) ([]models.TransferEvent, error) {
	rows, err := c.tokenTransfers(ctx, contract, c.cfg.PageSize)
	if err != nil {
		return nil, err
	}

	events := make([]models.TransferEvent, 0, len(rows))
	for _, row := range rows {
		event, ok := toTransferEvent(row)
		if !ok {
			c.logger.WithFields(logrus.Fields{
				"component": "transfer_log",
				"tx_hash":   row.Hash,
			}).Debug("跳过无法解析的转账记录")
			continue
		}
		events = append(events, event)
	}

	if len(events) == 0 {
		return nil, apperrors.NewNoTransactionsError(contract.Hex(), nil)
	}
	return events, nil
}

// FirstTransfer 获取最早的一条转账记录，元数据回退时使用
func (c *EtherscanClient) FirstTransfer(ctx context.Context, contract common.Address) (*models.TransferEvent, error) {
	rows, err := c.tokenTransfers(ctx, contract, 1)
	if err != nil {
		return nil, err
	}
	event, ok := toTransferEvent(rows[0])
	if !ok {
		return nil, fmt.Errorf("无法解析首条转账记录: %s", rows[0].Hash)
	}
	return &event, nil
}

// TokenSupply 获取未换算精度的总供应量
func (c *EtherscanClient) TokenSupply(ctx context.Context, contract common.Address) (*big.Int, error) {
	resp, err := c.get(ctx, "stats/tokensupply", url.Values{
		"module":          {"stats"},
		"action":          {"tokensupply"},
		"contractaddress": {contract.Hex()},
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		return nil, upstreamStatusError("tokensupply", resp)
	}

	var raw string
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, fmt.Errorf("解析总供应量失败: %w", err)
	}
	supply, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("总供应量格式无效: %q", raw)
	}
	return supply, nil
}

// InternalTransfersTo 汇总交易内部转给指定地址的ETH（wei）
// 没有内部交易时返回0
func (c *EtherscanClient) InternalTransfersTo(ctx context.Context, txHash common.Hash, recipient common.Address) (*big.Int, error) {
	resp, err := c.get(ctx, "txlistinternal", url.Values{
		"module": {"account"},
		"action": {"txlistinternal"},
		"txhash": {txHash.Hex()},
	})
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	if resp.Status != "1" {
		if isNoRecords(resp) {
			return total, nil
		}
		return nil, upstreamStatusError("txlistinternal", resp)
	}

	var rows []internalTxRow
	if err := json.Unmarshal(resp.Result, &rows); err != nil {
		return nil, fmt.Errorf("解析内部交易失败: %w", err)
	}

	for _, row := range rows {
		if row.IsError == "1" || !common.IsHexAddress(row.To) {
			continue
		}
		if common.HexToAddress(row.To) != recipient {
			continue
		}
		if v, ok := new(big.Int).SetString(row.Value, 10); ok {
			total.Add(total, v)
		}
	}
	return total, nil
}

// tokenTransfers 查询合约的 tokentx 列表
func (c *EtherscanClient) tokenTransfers(ctx context.Context, contract common.Address, offset int) ([]tokenTransferRow, error) {
	if offset <= 0 {
		offset = 1000
	}
	resp, err := c.get(ctx, "tokentx", url.Values{
		"module":          {"account"},
		"action":          {"tokentx"},
		"contractaddress": {contract.Hex()},
		"startblock":      {"0"},
		"endblock":        {"99999999"},
		"page":            {"1"},
		"offset":          {strconv.Itoa(offset)},
		"sort":            {"asc"},
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		return nil, apperrors.NewNoTransactionsError(contract.Hex(), upstreamStatusError("tokentx", resp))
	}

	var rows []tokenTransferRow
	if err := json.Unmarshal(resp.Result, &rows); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeData, apperrors.SeverityHigh,
			apperrors.CodeUpstreamStatus, "解析转账记录失败").WithContract(contract.Hex())
	}
	if len(rows) == 0 {
		return nil, apperrors.NewNoTransactionsError(contract.Hex(), nil)
	}
	return rows, nil
}

// get 发起请求并解析通用响应，限流和网络错误自动重试
func (c *EtherscanClient) get(ctx context.Context, operation string, params url.Values) (*etherscanResponse, error) {
	if c.cfg.ChainID > 0 {
		params.Set("chainid", strconv.Itoa(c.cfg.ChainID))
	}
	if c.cfg.APIKey != "" {
		params.Set("apikey", c.cfg.APIKey)
	}
	endpoint := c.cfg.APIURL + "?" + params.Encode()

	return retry.Do(ctx, c.retrier, "etherscan "+operation, func() (*etherscanResponse, error) {
		body, err := c.getJSON(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		var resp etherscanResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("解析响应失败: %w", err)
		}
		// 限流以状态"0"返回，转为错误以触发重试
		if resp.Status == "0" && isRateLimited(&resp) {
			return nil, apperrors.NewAnalyzerError(apperrors.ErrorTypeRateLimit, apperrors.SeverityMedium,
				apperrors.CodeUpstreamStatus, "区块浏览器API rate limit").WithContext("result", resultText(&resp))
		}
		return &resp, nil
	})
}

func (c *EtherscanClient) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorType := apperrors.ErrorTypeExternalAPI
		if resp.StatusCode == http.StatusTooManyRequests {
			errorType = apperrors.ErrorTypeRateLimit
		}
		e := apperrors.NewAnalyzerError(errorType, apperrors.SeverityMedium, apperrors.CodeUpstreamStatus,
			fmt.Sprintf("HTTP %d", resp.StatusCode))
		// 4xx（限流除外）不重试
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			e.Retryable = false
		}
		return nil, e
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

func toTransferEvent(row tokenTransferRow) (models.TransferEvent, bool) {
	if !common.IsHexAddress(row.From) || !common.IsHexAddress(row.To) {
		return models.TransferEvent{}, false
	}
	block, err := strconv.ParseUint(row.BlockNumber, 10, 64)
	if err != nil {
		return models.TransferEvent{}, false
	}
	var ts time.Time
	if sec, err := strconv.ParseInt(row.TimeStamp, 10, 64); err == nil {
		ts = time.Unix(sec, 0).UTC()
	}

	return models.TransferEvent{
		From:          common.HexToAddress(row.From),
		To:            common.HexToAddress(row.To),
		RawValue:      row.Value,
		TxHash:        common.HexToHash(row.Hash),
		BlockNumber:   block,
		Timestamp:     ts,
		TokenName:     row.TokenName,
		TokenSymbol:   row.TokenSymbol,
		TokenDecimals: row.TokenDecimal,
	}, true
}

func resultText(resp *etherscanResponse) string {
	var s string
	if err := json.Unmarshal(resp.Result, &s); err == nil {
		return s
	}
	return ""
}

func isRateLimited(resp *etherscanResponse) bool {
	text := strings.ToLower(resultText(resp) + " " + resp.Message)
	return strings.Contains(text, "rate limit")
}

func isNoRecords(resp *etherscanResponse) bool {
	return strings.HasPrefix(strings.ToLower(resp.Message), "no transactions found") ||
		strings.HasPrefix(strings.ToLower(resp.Message), "no records found")
}

func upstreamStatusError(operation string, resp *etherscanResponse) *apperrors.AnalyzerError {
	return apperrors.NewAnalyzerError(apperrors.ErrorTypeExternalAPI, apperrors.SeverityMedium, apperrors.CodeUpstreamStatus,
		fmt.Sprintf("%s 返回状态 %s: %s", operation, resp.Status, resp.Message)).
		WithContext("result", resultText(resp))
}
