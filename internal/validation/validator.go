package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"firstbuyers/internal/errors"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// Validator 请求参数和数据验证器
type Validator struct {
	logger       *logrus.Logger
	defaultLimit int
	maxLimit     int
}

// NewValidator 创建验证器
func NewValidator(logger *logrus.Logger, defaultLimit, maxLimit int) *Validator {
	return &Validator{
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// ContractAddress 验证合约地址并返回规范化地址
func (v *Validator) ContractAddress(addr string) (common.Address, error) {
	addr = strings.TrimSpace(addr)
	if !isValidAddress(addr) {
		return common.Address{}, errors.NewAnalyzerError(errors.ErrorTypeValidation, errors.SeverityMedium,
			errors.CodeInvalidAddress, "合约地址格式无效").WithContext("address", addr)
	}

	address := common.HexToAddress(addr)
	if address == models.ZeroAddress {
		return common.Address{}, errors.NewAnalyzerError(errors.ErrorTypeValidation, errors.SeverityMedium,
			errors.CodeInvalidAddress, "合约地址不能为零地址")
	}
	return address, nil
}

// Limit 验证买家数量上限，0 表示使用默认值
func (v *Validator) Limit(limit int) (int, error) {
	if limit == 0 {
		return v.defaultLimit, nil
	}
	if limit < 0 || limit > v.maxLimit {
		return 0, errors.NewAnalyzerError(errors.ErrorTypeValidation, errors.SeverityMedium,
			errors.CodeInvalidLimit, fmt.Sprintf("买家数量上限必须在1-%d之间", v.maxLimit)).
			WithContext("limit", limit)
	}
	return limit, nil
}

// Window 验证展示区间 [start, end]，0 表示不限
func (v *Validator) Window(start, end int) error {
	if start < 0 || end < 0 || (end > 0 && start > end) {
		return errors.NewAnalyzerError(errors.ErrorTypeValidation, errors.SeverityLow,
			errors.CodeInvalidWindow, "排名区间无效").
			WithContext("start", start).
			WithContext("end", end)
	}
	return nil
}

// TransferLog 确保转账日志按区块升序，顺序异常时稳定排序后返回副本
func (v *Validator) TransferLog(events []models.TransferEvent) []models.TransferEvent {
	ordered := sort.SliceIsSorted(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})
	if ordered {
		return events
	}

	if v.logger != nil {
		v.logger.WithField("component", "validation").Warn("转账日志未按区块升序，已重新排序")
	}
	sorted := make([]models.TransferEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BlockNumber < sorted[j].BlockNumber
	})
	return sorted
}

// isValidAddress 验证地址格式，要求0x前缀
func isValidAddress(addr string) bool {
	return addressRegex.MatchString(addr)
}
