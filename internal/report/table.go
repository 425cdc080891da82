package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"firstbuyers/pkg/models"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

const missing = "-"

var (
	bundleColor  = color.New(color.FgRed, color.Bold)
	sniperColor  = color.New(color.FgGreen)
	headingColor = color.New(color.FgCyan, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

// Renderer 终端表格输出
type Renderer struct {
	out io.Writer
}

// NewRenderer 创建表格输出器
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Render 输出摘要和 [start, end] 区间内的买家表格，0 表示不限制
func (r *Renderer) Render(result *models.ClassificationResult, start, end int) {
	r.summary(result)

	rows := result.Window(start, end)
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "区间内没有买家")
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"排名", "钱包", "数量", "占比%", "Gas(gwei)", "优先费(gwei)", "位置", "贿赂(ETH)", "分组"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	for _, b := range rows {
		table.Append(r.row(result, b))
	}
	table.Render()
}

func (r *Renderer) summary(result *models.ClassificationResult) {
	token := result.Token
	headingColor.Fprintf(r.out, "%s (%s) %s\n", token.Name, token.Symbol, token.Address.Hex())
	fmt.Fprintf(r.out, "买家数量: %d  捆绑分界: 第%d名\n", result.Len(), result.BundleEndRank)

	switch {
	case result.Len() <= 1:
		fmt.Fprintln(r.out, "买家不足，无法判断捆绑")
	case result.FullyBundled():
		bundleColor.Fprintf(r.out, "全部买家属于同一捆绑，合计占比 %s%%\n", percent(result.BundledSupplyPercent()))
	default:
		fmt.Fprintf(r.out, "捆绑占比 %s%%  狙击占比 %s%%\n",
			percent(result.BundledSupplyPercent()), percent(result.SniperSupplyPercent()))
	}

	if len(result.Degradations) > 0 {
		codes := make([]string, 0, len(result.Degradations))
		for code, n := range result.Degradations {
			codes = append(codes, code+"="+strconv.Itoa(n))
		}
		sort.Strings(codes)
		warnColor.Fprintf(r.out, "降级: %s\n", strings.Join(codes, ", "))
	}
}

func (r *Renderer) row(result *models.ClassificationResult, b models.BuyerRecord) []string {
	group := sniperColor.Sprint("狙击")
	if result.IsBundled(b.Rank) {
		group = bundleColor.Sprint("捆绑")
	}

	position := missing
	if b.Signal.BlockPosition != nil {
		position = strconv.Itoa(*b.Signal.BlockPosition)
	}

	return []string{
		strconv.Itoa(b.Rank),
		b.Wallet.Hex(),
		b.Amount.StringFixed(2),
		percent(b.SupplyPercent),
		nullable(b.Signal.GasPriceGwei, 2),
		nullable(b.Signal.PriorityFeeGwei, 2),
		position,
		nullable(b.Signal.BribeEth, 6),
		group,
	}
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(4)
}

func nullable(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return missing
	}
	return d.Decimal.StringFixed(places)
}
