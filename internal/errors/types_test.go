package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestNewAnalyzerError(t *testing.T) {
	err := NewAnalyzerError(ErrorTypeNetwork, SeverityHigh, "TEST_ERROR", "测试错误")

	assert.NotNil(t, err)
	assert.Equal(t, ErrorTypeNetwork, err.Type)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.Equal(t, "测试错误", err.Message)
	assert.True(t, err.Retryable) // 网络错误默认可重试
	assert.False(t, err.Timestamp.IsZero())
}

func TestAnalyzerError_Error(t *testing.T) {
	err := NewAnalyzerError(ErrorTypeData, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息", err.Error())

	wrapped := WrapError(errors.New("原始错误"), ErrorTypeData, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息: 原始错误", wrapped.Error())
}

func TestAnalyzerError_Unwrap(t *testing.T) {
	original := errors.New("原始错误")
	wrapped := WrapError(original, ErrorTypeExternalAPI, SeverityMedium, "WRAPPED", "包装")

	assert.Equal(t, original, wrapped.Unwrap())
	assert.True(t, errors.Is(wrapped, original))

	standalone := NewAnalyzerError(ErrorTypeData, SeverityLow, "STANDALONE", "独立错误")
	assert.Nil(t, standalone.Unwrap())
}

func TestAnalyzerError_IsMatchesByCode(t *testing.T) {
	err := NewNoTransactionsError("0xabc", errors.New("status 0"))

	assert.True(t, errors.Is(err, ErrNoTransactions))
	assert.False(t, errors.Is(err, ErrNoBuyers))

	// 多层包装后仍能匹配
	outer := fmt.Errorf("分析失败: %w", err)
	assert.True(t, errors.Is(outer, ErrNoTransactions))

	var target *AnalyzerError
	assert.True(t, errors.As(outer, &target))
	assert.Equal(t, "0xabc", *target.Contract)
	assert.Equal(t, "transfer_log", target.Component)
}

func TestAnalyzerError_IsFatal(t *testing.T) {
	assert.True(t, NewNoTransactionsError("0x1", nil).IsFatal())
	assert.True(t, NewNoBuyersError("0x1").IsFatal())
	assert.False(t, NewAnalyzerError(ErrorTypeData, SeverityLow, CodeAmountConversion, "x").IsFatal())
}

func TestAnalyzerError_WithHelpers(t *testing.T) {
	err := NewAnalyzerError(ErrorTypeBlockchain, SeverityMedium, CodeSignalFailed, "信号查询失败")
	err.WithContext("attempt", 3).WithTxHash("0xdead").WithComponent("signal")

	assert.Equal(t, 3, err.Context["attempt"])
	assert.Equal(t, "0xdead", *err.TxHash)
	assert.Equal(t, "signal", err.Component)
}

func TestDetermineRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeExternalAPI, true},
		{ErrorTypeBlockchain, true},
		{ErrorTypeKafka, true},
		{ErrorTypeValidation, false},
		{ErrorTypeConfig, false},
		{ErrorTypeAnalysis, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, determineRetryable(tt.errorType), "errorType=%v", tt.errorType)
	}
}

func TestErrorType_String(t *testing.T) {
	assert.Equal(t, "Network", ErrorTypeNetwork.String())
	assert.Equal(t, "Analysis", ErrorTypeAnalysis.String())
	assert.Equal(t, "Unknown(999)", ErrorType(999).String())
	assert.Equal(t, "Critical", SeverityCritical.String())
	assert.Equal(t, "Unknown(9)", ErrorSeverity(9).String())
}

func TestDegradationRecorder(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	recorder := NewDegradationRecorder(logger)

	assert.Nil(t, recorder.Counts())

	recorder.Record(NewAnalyzerError(ErrorTypeBlockchain, SeverityMedium, CodeSignalFailed, "信号查询失败").WithTxHash("0x01"))
	recorder.Record(NewAnalyzerError(ErrorTypeBlockchain, SeverityMedium, CodeSignalFailed, "信号查询失败").WithTxHash("0x02"))
	recorder.Record(NewAnalyzerError(ErrorTypeData, SeverityLow, CodeAmountConversion, "金额换算失败"))
	recorder.Record(nil)

	assert.Equal(t, map[string]int{CodeSignalFailed: 2, CodeAmountConversion: 1}, recorder.Counts())
	assert.Equal(t, 3, recorder.Total())
	assert.Equal(t, []string{CodeAmountConversion, CodeSignalFailed}, recorder.Codes())
	assert.Len(t, recorder.Recent(), 3)

	assert.Len(t, hook.AllEntries(), 3)
	assert.Equal(t, logrus.WarnLevel, hook.AllEntries()[0].Level)
	assert.Equal(t, "0x01", hook.AllEntries()[0].Data["tx_hash"])
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestDegradationRecorder_RecentIsBounded(t *testing.T) {
	logger, _ := test.NewNullLogger()
	recorder := NewDegradationRecorder(logger)

	for i := 0; i < maxRecentDegradations+10; i++ {
		recorder.Record(NewAnalyzerError(ErrorTypeData, SeverityLow, CodeAmountConversion, "金额换算失败"))
	}

	assert.Len(t, recorder.Recent(), maxRecentDegradations)
	assert.Equal(t, maxRecentDegradations+10, recorder.Total())
}
