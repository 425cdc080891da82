package analyzer

import (
	"firstbuyers/internal/config"
	"firstbuyers/pkg/models"

	"github.com/shopspring/decimal"
)

// BundleClassifier 捆绑/狙击分界检测
//
// 从第2名开始检查相邻买家 (i-1, i)，第一个命中的规则决定分界：
//  1. 区块内位置不连续：pos[i] - pos[i-1] > MaxPositionGap
//  2. gas突增：gas[i] > GasJumpFactor × gas[i-1] 且 gas[i] > MinGasJumpGwei，
//     或优先费突增：prio[i] > PriorityJumpFactor × prio[i-1] 且 prio[i] > MinPriorityFeeGwei
//
// 命中时分界为第 i-1 名。都未命中时使用平均gas回退规则，仍未命中则返回 N。
// 任一侧数据缺失的买家对不会触发分界。
type BundleClassifier struct {
	maxPositionGap     int
	gasJumpFactor      decimal.Decimal
	minGasJump         decimal.Decimal
	priorityJumpFactor decimal.Decimal
	minPriorityFee     decimal.Decimal
	fallbackWindow     int
	cheapGas           decimal.Decimal
	fallbackFactor     decimal.Decimal
	gasFloor           decimal.Decimal
}

// NewBundleClassifier 根据配置创建分界检测器，cfg 为nil时使用默认参数
func NewBundleClassifier(cfg *config.ClassifierConfig) *BundleClassifier {
	if cfg == nil {
		cfg = config.DefaultClassifierConfig()
	}
	return &BundleClassifier{
		maxPositionGap:     cfg.MaxPositionGap,
		gasJumpFactor:      decimal.NewFromFloat(cfg.GasJumpFactor),
		minGasJump:         decimal.NewFromFloat(cfg.MinGasJumpGwei),
		priorityJumpFactor: decimal.NewFromFloat(cfg.PriorityJumpFactor),
		minPriorityFee:     decimal.NewFromFloat(cfg.MinPriorityFeeGwei),
		fallbackWindow:     cfg.FallbackWindow,
		cheapGas:           decimal.NewFromFloat(cfg.CheapGasGwei),
		fallbackFactor:     decimal.NewFromFloat(cfg.FallbackFactor),
		gasFloor:           decimal.NewFromFloat(cfg.GasFloorGwei),
	}
}

// BundleEndRank 返回捆绑段最后一名的排名，纯函数
func (c *BundleClassifier) BundleEndRank(buyers []models.BuyerRecord) int {
	n := len(buyers)
	if n == 0 {
		return 0
	}

	for i := 1; i < n; i++ {
		prev, cur := buyers[i-1].Signal, buyers[i].Signal
		if c.positionBreak(prev, cur) || c.gasBreak(prev, cur) {
			return i
		}
	}

	if end, ok := c.fallback(buyers); ok {
		return end
	}
	return n
}

func (c *BundleClassifier) positionBreak(prev, cur models.TxSignal) bool {
	if prev.BlockPosition == nil || cur.BlockPosition == nil {
		return false
	}
	return *cur.BlockPosition-*prev.BlockPosition > c.maxPositionGap
}

func (c *BundleClassifier) gasBreak(prev, cur models.TxSignal) bool {
	return jumped(prev.GasPriceGwei, cur.GasPriceGwei, c.gasJumpFactor, c.minGasJump) ||
		jumped(prev.PriorityFeeGwei, cur.PriorityFeeGwei, c.priorityJumpFactor, c.minPriorityFee)
}

// jumped cur > factor × prev 且 cur > floor，任一侧缺失时为 false
func jumped(prev, cur decimal.NullDecimal, factor, floor decimal.Decimal) bool {
	if !prev.Valid || !cur.Valid {
		return false
	}
	return cur.Decimal.GreaterThan(prev.Decimal.Mul(factor)) && cur.Decimal.GreaterThan(floor)
}

// fallback 前 FallbackWindow 名的平均gas偏低时，
// 以第一个gas超过 FallbackFactor 倍平均值且高于下限的买家为分界（分界为其前一名）
func (c *BundleClassifier) fallback(buyers []models.BuyerRecord) (int, bool) {
	window := c.fallbackWindow
	if window <= 0 || window > len(buyers) {
		window = len(buyers)
	}

	sum := decimal.Zero
	count := 0
	for _, b := range buyers[:window] {
		if b.Signal.GasPriceGwei.Valid {
			sum = sum.Add(b.Signal.GasPriceGwei.Decimal)
			count++
		}
	}
	if count == 0 {
		return 0, false
	}

	avg := sum.Div(decimal.NewFromInt(int64(count)))
	if !avg.LessThan(c.cheapGas) {
		return 0, false
	}

	threshold := avg.Mul(c.fallbackFactor)
	for i := 1; i < len(buyers); i++ {
		gas := buyers[i].Signal.GasPriceGwei
		if gas.Valid && gas.Decimal.GreaterThan(threshold) && gas.Decimal.GreaterThan(c.gasFloor) {
			return i, true
		}
	}
	return 0, false
}
