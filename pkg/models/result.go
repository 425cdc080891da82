package models

import (
	"github.com/shopspring/decimal"
)

// ClassificationResult 首批买家分析结果
//
// BundleEndRank 为捆绑段最后一名的排名；等于买家数量表示未检测到分界。
type ClassificationResult struct {
	Token         TokenInfo      `json:"token"`
	Buyers        []BuyerRecord  `json:"buyers"`
	BundleEndRank int            `json:"bundle_end_rank"`
	Degradations  map[string]int `json:"degradations,omitempty"` // 降级处理次数，按错误码统计
}

// Len 买家数量
func (r *ClassificationResult) Len() int {
	return len(r.Buyers)
}

// FullyBundled 是否全部买家属于同一捆绑群体（单个买家不算捆绑）
func (r *ClassificationResult) FullyBundled() bool {
	return r.Len() > 1 && r.BundleEndRank == r.Len()
}

// Bundled 捆绑段买家
func (r *ClassificationResult) Bundled() []BuyerRecord {
	if r.Len() <= 1 {
		return nil
	}
	return r.Buyers[:r.boundary()]
}

// Snipers 狙击段买家
func (r *ClassificationResult) Snipers() []BuyerRecord {
	if r.Len() <= 1 {
		return r.Buyers
	}
	return r.Buyers[r.boundary():]
}

// IsBundled 判断某个排名是否属于捆绑段
func (r *ClassificationResult) IsBundled(rank int) bool {
	return r.Len() > 1 && rank >= 1 && rank <= r.boundary()
}

// BundledSupplyPercent 捆绑段合计占总供应量的百分比
func (r *ClassificationResult) BundledSupplyPercent() decimal.Decimal {
	return sumSupply(r.Bundled())
}

// SniperSupplyPercent 狙击段合计占总供应量的百分比
func (r *ClassificationResult) SniperSupplyPercent() decimal.Decimal {
	return sumSupply(r.Snipers())
}

// Window 按排名区间 [start, end] 截取买家（闭区间，越界自动收缩）
func (r *ClassificationResult) Window(start, end int) []BuyerRecord {
	if start < 1 {
		start = 1
	}
	if end <= 0 || end > r.Len() {
		end = r.Len()
	}
	if start > end {
		return nil
	}
	return r.Buyers[start-1 : end]
}

func (r *ClassificationResult) boundary() int {
	if r.BundleEndRank < 0 {
		return 0
	}
	if r.BundleEndRank > r.Len() {
		return r.Len()
	}
	return r.BundleEndRank
}

func sumSupply(buyers []BuyerRecord) decimal.Decimal {
	total := decimal.Zero
	for _, b := range buyers {
		total = total.Add(b.SupplyPercent)
	}
	return total
}
