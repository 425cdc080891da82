package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeTimeout
	ErrorTypeRateLimit

	// 外部数据源错误
	ErrorTypeExternalAPI
	ErrorTypeBlockchain

	// 数据相关错误
	ErrorTypeData
	ErrorTypeValidation

	// 系统相关错误
	ErrorTypeConfig
	ErrorTypeKafka
	ErrorTypeCache

	// 分析结果错误
	ErrorTypeAnalysis
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// 错误码
const (
	CodeNoTransactions   = "NO_TRANSACTIONS"
	CodeNoBuyers         = "NO_BUYERS"
	CodeInvalidAddress   = "INVALID_ADDRESS"
	CodeInvalidLimit     = "INVALID_LIMIT"
	CodeInvalidWindow    = "INVALID_WINDOW"
	CodeUpstreamStatus   = "UPSTREAM_STATUS"
	CodeMetadataFallback = "METADATA_FALLBACK"
	CodeMetadataDefault  = "METADATA_DEFAULTED"
	CodeSignalFailed     = "SIGNAL_FETCH_FAILED"
	CodeAmountConversion = "AMOUNT_CONVERSION_FAILED"
	CodeCacheFailed      = "CACHE_FAILED"
	CodePublishFailed    = "PUBLISH_FAILED"
	CodeConfigInvalid    = "CONFIG_INVALID"
)

// AnalyzerError 自定义错误类型
type AnalyzerError struct {
	Type      ErrorType              `json:"type"`
	Severity  ErrorSeverity          `json:"severity"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"cause,omitempty"`
	Retryable bool                   `json:"retryable"`
	Component string                 `json:"component"`
	Contract  *string                `json:"contract,omitempty"`
	TxHash    *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口
func (e *AnalyzerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *AnalyzerError) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，支持errors.Is
func (e *AnalyzerError) Is(target error) bool {
	t, ok := target.(*AnalyzerError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable 判断是否可重试
func (e *AnalyzerError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal 是否为终止请求的错误
func (e *AnalyzerError) IsFatal() bool {
	return e.Code == CodeNoTransactions || e.Code == CodeNoBuyers
}

// WithContext 添加上下文信息
func (e *AnalyzerError) WithContext(key string, value interface{}) *AnalyzerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithComponent 设置出错组件
func (e *AnalyzerError) WithComponent(component string) *AnalyzerError {
	e.Component = component
	return e
}

// WithContract 添加合约地址
func (e *AnalyzerError) WithContract(contract string) *AnalyzerError {
	e.Contract = &contract
	return e
}

// WithTxHash 添加交易哈希
func (e *AnalyzerError) WithTxHash(txHash string) *AnalyzerError {
	e.TxHash = &txHash
	return e
}

// NewAnalyzerError 创建新的错误
func NewAnalyzerError(errorType ErrorType, severity ErrorSeverity, code, message string) *AnalyzerError {
	return &AnalyzerError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *AnalyzerError {
	e := NewAnalyzerError(errorType, severity, code, message)
	e.Cause = err
	return e
}

// determineRetryable 根据错误类型判断是否可重试
func determineRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit:
		return true
	case ErrorTypeExternalAPI, ErrorTypeBlockchain, ErrorTypeKafka:
		return true
	default:
		return false
	}
}

// 哨兵错误，仅用于errors.Is比较，不要修改
var (
	ErrNoTransactions = &AnalyzerError{Type: ErrorTypeAnalysis, Severity: SeverityHigh, Code: CodeNoTransactions, Message: "未找到任何转账交易"}
	ErrNoBuyers       = &AnalyzerError{Type: ErrorTypeAnalysis, Severity: SeverityHigh, Code: CodeNoBuyers, Message: "过滤后没有剩余买家"}
	ErrInvalidAddress = &AnalyzerError{Type: ErrorTypeValidation, Severity: SeverityMedium, Code: CodeInvalidAddress, Message: "合约地址格式无效"}
	ErrInvalidLimit   = &AnalyzerError{Type: ErrorTypeValidation, Severity: SeverityMedium, Code: CodeInvalidLimit, Message: "买家数量上限无效"}
	ErrInvalidWindow  = &AnalyzerError{Type: ErrorTypeValidation, Severity: SeverityMedium, Code: CodeInvalidWindow, Message: "排名区间无效"}
)

// Is 同标准库 errors.Is，AnalyzerError 按错误码匹配
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As 同标准库 errors.As
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// NewNoTransactionsError 转账日志为空或上游返回错误状态
func NewNoTransactionsError(contract string, cause error) *AnalyzerError {
	e := NewAnalyzerError(ErrorTypeAnalysis, SeverityHigh, CodeNoTransactions, "未找到任何转账交易")
	e.Cause = cause
	return e.WithContract(contract).WithComponent("transfer_log")
}

// NewNoBuyersError 去重和过滤后没有买家
func NewNoBuyersError(contract string) *AnalyzerError {
	return NewAnalyzerError(ErrorTypeAnalysis, SeverityHigh, CodeNoBuyers, "过滤后没有剩余买家").
		WithContract(contract).
		WithComponent("analyzer")
}

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:     "Network",
	ErrorTypeTimeout:     "Timeout",
	ErrorTypeRateLimit:   "RateLimit",
	ErrorTypeExternalAPI: "ExternalAPI",
	ErrorTypeBlockchain:  "Blockchain",
	ErrorTypeData:        "Data",
	ErrorTypeValidation:  "Validation",
	ErrorTypeConfig:      "Config",
	ErrorTypeKafka:       "Kafka",
	ErrorTypeCache:       "Cache",
	ErrorTypeAnalysis:    "Analysis",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}
