package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// 元数据默认值
const (
	DefaultTokenName     = "Unknown"
	DefaultTokenSymbol   = "Unknown"
	DefaultTokenDecimals = uint8(18)
)

// 元数据字段名，用于记录哪些字段使用了默认值
const (
	FieldName        = "name"
	FieldSymbol      = "symbol"
	FieldDecimals    = "decimals"
	FieldTotalSupply = "total_supply"
)

// TokenInfo 代币元数据
type TokenInfo struct {
	Address     common.Address  `json:"address"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Decimals    uint8           `json:"decimals"`
	TotalSupply decimal.Decimal `json:"total_supply"` // 已按精度换算，未知时为0

	// 未能从任何数据源获取、最终使用默认值的字段
	DefaultedFields []string `json:"defaulted_fields,omitempty"`
}

// DefaultTokenInfo 返回全部字段均为默认值的元数据
func DefaultTokenInfo(address common.Address) TokenInfo {
	return TokenInfo{
		Address:         address,
		Name:            DefaultTokenName,
		Symbol:          DefaultTokenSymbol,
		Decimals:        DefaultTokenDecimals,
		TotalSupply:     decimal.Zero,
		DefaultedFields: []string{FieldName, FieldSymbol, FieldDecimals, FieldTotalSupply},
	}
}

// IsDefaulted 判断字段是否使用了默认值
func (t *TokenInfo) IsDefaulted(field string) bool {
	for _, f := range t.DefaultedFields {
		if f == field {
			return true
		}
	}
	return false
}

// HasSupply 总供应量是否可用
func (t *TokenInfo) HasSupply() bool {
	return t.TotalSupply.IsPositive()
}
