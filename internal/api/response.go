package api

import (
	"firstbuyers/pkg/models"

	"github.com/shopspring/decimal"
)

// WindowInfo 实际返回的排名区间
type WindowInfo struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FirstBuyersResponse 首批买家接口响应
type FirstBuyersResponse struct {
	Token                models.TokenInfo     `json:"token"`
	TotalBuyers          int                  `json:"total_buyers"`
	BundleEndRank        int                  `json:"bundle_end_rank"`
	FullyBundled         bool                 `json:"fully_bundled"`
	BundledSupplyPercent decimal.Decimal      `json:"bundled_supply_percent"`
	SniperSupplyPercent  decimal.Decimal      `json:"sniper_supply_percent"`
	Window               WindowInfo           `json:"window"`
	Buyers               []models.BuyerRecord `json:"buyers"`
	Degradations         map[string]int       `json:"degradations,omitempty"`
}

// NewFirstBuyersResponse 按区间截取买家并附带汇总
func NewFirstBuyersResponse(result *models.ClassificationResult, start, end int) *FirstBuyersResponse {
	buyers := result.Window(start, end)
	if buyers == nil {
		buyers = []models.BuyerRecord{}
	}

	window := WindowInfo{}
	if len(buyers) > 0 {
		window.Start = buyers[0].Rank
		window.End = buyers[len(buyers)-1].Rank
	}

	return &FirstBuyersResponse{
		Token:                result.Token,
		TotalBuyers:          result.Len(),
		BundleEndRank:        result.BundleEndRank,
		FullyBundled:         result.FullyBundled(),
		BundledSupplyPercent: result.BundledSupplyPercent(),
		SniperSupplyPercent:  result.SniperSupplyPercent(),
		Window:               window,
		Buyers:               buyers,
		Degradations:         result.Degradations,
	}
}
