package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(n int) *models.ClassificationResult {
	result := &models.ClassificationResult{
		Token: models.TokenInfo{
			Address:     common.HexToAddress("0x6982508145454Ce325dDbE47a25d4ec3d2311933"),
			Name:        "Pepe",
			Symbol:      "PEPE",
			TotalSupply: decimal.NewFromInt(1000),
		},
		BundleEndRank: 2,
	}
	for rank := 1; rank <= n; rank++ {
		result.Buyers = append(result.Buyers, models.BuyerRecord{
			Rank:          rank,
			Wallet:        common.BigToAddress(big.NewInt(int64(0x1000 + rank))),
			Amount:        decimal.NewFromInt(10),
			SupplyPercent: decimal.NewFromInt(1),
			Signal:        models.NotAttemptedSignal(),
		})
	}
	return result
}

func TestWriteResult_JSONAppliesWindow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, testResult(5), 2, 3, true))

	var body struct {
		TotalBuyers int `json:"total_buyers"`
		Window      struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"window"`
		Buyers []struct {
			Rank int `json:"rank"`
		} `json:"buyers"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))

	assert.Equal(t, 5, body.TotalBuyers)
	assert.Equal(t, 2, body.Window.Start)
	assert.Equal(t, 3, body.Window.End)
	require.Len(t, body.Buyers, 2)
	assert.Equal(t, 2, body.Buyers[0].Rank)
	assert.Equal(t, 3, body.Buyers[1].Rank)
}

func TestWriteResult_JSONWithoutWindow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, testResult(3), 0, 0, true))

	var body struct {
		Buyers []json.RawMessage `json:"buyers"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Len(t, body.Buyers, 3)
}

func TestWriteResult_Table(t *testing.T) {
	color.NoColor = true
	result := testResult(4)

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, result, 3, 0, false))

	out := buf.String()
	assert.NotContains(t, out, result.Buyers[0].Wallet.Hex())
	assert.Contains(t, out, result.Buyers[2].Wallet.Hex())
	assert.Contains(t, out, result.Buyers[3].Wallet.Hex())
}
