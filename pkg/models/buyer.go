package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BuyerRecord 单个买家记录
//
// Rank 从1开始连续编号，只在LP过滤后重新编号时修改。
type BuyerRecord struct {
	Rank          int             `json:"rank"`
	Wallet        common.Address  `json:"wallet"`
	Amount        decimal.Decimal `json:"amount"`
	SupplyPercent decimal.Decimal `json:"supply_percent"`
	TxHash        common.Hash     `json:"tx_hash"`
	BlockNumber   uint64          `json:"block_number"`
	Timestamp     time.Time       `json:"timestamp"`
	Signal        TxSignal        `json:"signal"`
}

// GasPriceGwei gas价格（可能缺失）
func (b *BuyerRecord) GasPriceGwei() decimal.NullDecimal {
	return b.Signal.GasPriceGwei
}

// PriorityFeeGwei 优先费（可能缺失）
func (b *BuyerRecord) PriorityFeeGwei() decimal.NullDecimal {
	return b.Signal.PriorityFeeGwei
}

// BlockPosition 区块内位置（可能缺失）
func (b *BuyerRecord) BlockPosition() *int {
	return b.Signal.BlockPosition
}

// BribeEth 估算的贿赂金额（可能缺失）
func (b *BuyerRecord) BribeEth() decimal.NullDecimal {
	return b.Signal.BribeEth
}
