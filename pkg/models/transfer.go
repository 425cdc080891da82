package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress 零地址（铸造事件的发送方）
var ZeroAddress = common.Address{}

// DeadAddress 常见的销毁地址
var DeadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// TransferEvent 代币转账事件（按区块/时间升序排列，只读）
type TransferEvent struct {
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	RawValue    string         `json:"raw_value"` // 未按精度换算的原始整数
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	Timestamp   time.Time      `json:"timestamp"`

	// 浏览器返回的代币元数据，元数据回退时使用
	TokenName     string `json:"token_name,omitempty"`
	TokenSymbol   string `json:"token_symbol,omitempty"`
	TokenDecimals string `json:"token_decimals,omitempty"`
}

// IsMint 判断是否为铸造事件
func (e *TransferEvent) IsMint() bool {
	return e.From == ZeroAddress
}
