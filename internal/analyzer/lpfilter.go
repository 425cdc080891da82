package analyzer

import (
	"firstbuyers/pkg/models"

	"github.com/shopspring/decimal"
)

// FilterLPOutlier 第一名持有超过阈值的供应量时视为流动性池，移除并重新编号
// 只检查第一名，返回新切片，不修改输入
func FilterLPOutlier(buyers []models.BuyerRecord, thresholdPercent decimal.Decimal) ([]models.BuyerRecord, bool) {
	if len(buyers) == 0 || !buyers[0].SupplyPercent.GreaterThan(thresholdPercent) {
		return buyers, false
	}

	filtered := make([]models.BuyerRecord, len(buyers)-1)
	copy(filtered, buyers[1:])
	for i := range filtered {
		filtered[i].Rank = i + 1
	}
	return filtered, true
}
