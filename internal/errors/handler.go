package errors

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// DegradationRecorder 降级处理记录器
//
// 记录被吸收的非致命错误（字段回退默认值、信号查询失败等），
// 每个分析请求持有独立实例。
type DegradationRecorder struct {
	logger *logrus.Logger
	mu     sync.Mutex
	counts map[string]int
	recent []*AnalyzerError
}

// 保留的最近降级记录条数
const maxRecentDegradations = 50

// NewDegradationRecorder 创建降级记录器
func NewDegradationRecorder(logger *logrus.Logger) *DegradationRecorder {
	return &DegradationRecorder{
		logger: logger,
		counts: make(map[string]int),
	}
}

// Record 记录一次降级
func (r *DegradationRecorder) Record(err *AnalyzerError) {
	if r == nil || err == nil {
		return
	}

	r.mu.Lock()
	r.counts[err.Code]++
	r.recent = append(r.recent, err)
	if len(r.recent) > maxRecentDegradations {
		r.recent = r.recent[1:]
	}
	r.mu.Unlock()

	r.log(err)
}

// log 根据严重级别选择日志级别
func (r *DegradationRecorder) log(err *AnalyzerError) {
	if r.logger == nil {
		return
	}

	fields := logrus.Fields{
		"error_type": err.Type.String(),
		"error_code": err.Code,
		"component":  err.Component,
	}
	if err.Contract != nil {
		fields["contract"] = *err.Contract
	}
	if err.TxHash != nil {
		fields["tx_hash"] = *err.TxHash
	}
	for k, v := range err.Context {
		fields[k] = v
	}
	if err.Cause != nil {
		fields["cause"] = err.Cause.Error()
	}

	entry := r.logger.WithFields(fields)
	switch err.Severity {
	case SeverityLow:
		entry.Debug(err.Message)
	case SeverityMedium:
		entry.Warn(err.Message)
	default:
		entry.Error(err.Message)
	}
}

// Counts 返回按错误码统计的降级次数副本
func (r *DegradationRecorder) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Total 降级总次数
func (r *DegradationRecorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, v := range r.counts {
		total += v
	}
	return total
}

// Codes 已出现的错误码（排序后）
func (r *DegradationRecorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make([]string, 0, len(r.counts))
	for k := range r.counts {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

// Recent 最近的降级记录
func (r *DegradationRecorder) Recent() []*AnalyzerError {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*AnalyzerError, len(r.recent))
	copy(out, r.recent)
	return out
}
