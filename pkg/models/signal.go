package models

import (
	"github.com/shopspring/decimal"
)

// SignalStatus 交易信号的获取状态
type SignalStatus string

const (
	SignalNotAttempted SignalStatus = "not_attempted" // 超出查询预算，未查询
	SignalUnavailable  SignalStatus = "unavailable"   // 已查询但全部失败
	SignalPartial      SignalStatus = "partial"       // 部分字段获取成功
	SignalFetched      SignalStatus = "fetched"       // 全部字段获取成功
)

// TxSignal 单笔交易的gas/贿赂信号
//
// 缺失值与零值含义不同：BribeEth.Valid=false 表示未能确定，
// Valid=true 且为0 表示确认没有贿赂转账。
type TxSignal struct {
	Status          SignalStatus        `json:"status"`
	GasPriceGwei    decimal.NullDecimal `json:"gas_price_gwei"`
	PriorityFeeGwei decimal.NullDecimal `json:"priority_fee_gwei"`
	BlockPosition   *int                `json:"block_position"`
	BribeEth        decimal.NullDecimal `json:"bribe_eth"`
}

// NotAttemptedSignal 超出预算时使用的占位信号
func NotAttemptedSignal() TxSignal {
	return TxSignal{Status: SignalNotAttempted}
}

// HasGasPrice 是否有gas价格
func (s TxSignal) HasGasPrice() bool {
	return s.GasPriceGwei.Valid
}

// HasPriorityFee 是否有优先费
func (s TxSignal) HasPriorityFee() bool {
	return s.PriorityFeeGwei.Valid
}

// HasBlockPosition 是否有区块内位置
func (s TxSignal) HasBlockPosition() bool {
	return s.BlockPosition != nil
}

// ResolveStatus 根据已填充的字段计算状态
func (s TxSignal) ResolveStatus() SignalStatus {
	present := 0
	if s.GasPriceGwei.Valid {
		present++
	}
	if s.PriorityFeeGwei.Valid {
		present++
	}
	if s.BlockPosition != nil {
		present++
	}
	if s.BribeEth.Valid {
		present++
	}

	switch present {
	case 0:
		return SignalUnavailable
	case 4:
		return SignalFetched
	default:
		return SignalPartial
	}
}

// IntPtr 返回int指针
func IntPtr(v int) *int {
	return &v
}
