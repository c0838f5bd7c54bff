package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssetType(t *testing.T) {
	for _, in := range []string{"stock", "Stock", " FUND ", "crypto", "cash"} {
		got, err := ParseAssetType(in)
		require.NoError(t, err, in)
		assert.Contains(t, AssetTypes, got)
	}

	_, err := ParseAssetType("nft")
	assert.ErrorIs(t, err, ErrInvalidAssetType)
	_, err = ParseAssetType("")
	assert.ErrorIs(t, err, ErrInvalidAssetType)
}

func TestParseMarket(t *testing.T) {
	got, err := ParseMarket("tw")
	require.NoError(t, err)
	assert.Equal(t, MarketTW, got)

	got, err = ParseMarket("Other")
	require.NoError(t, err)
	assert.Equal(t, MarketOther, got)

	_, err = ParseMarket("LSE")
	assert.ErrorIs(t, err, ErrInvalidMarket)
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"usd", "USD", true},
		{" TWD ", "TWD", true},
		{"US", "", false},
		{"DOLLAR", "", false},
		{"U5D", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, err := NormalizeCurrency(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, ErrInvalidCurrency, tt.in)
		}
	}
}

func TestHoldingNormalize(t *testing.T) {
	h := Holding{
		AccountID: "acc",
		Symbol:    " 2330.TW ",
		Type:      "Stock",
		Market:    "tw",
		Quantity:  decimal.NewFromInt(1000),
		CostBasis: decimal.NewFromInt(580),
		Currency:  "twd",
	}
	require.NoError(t, h.Normalize())

	assert.Equal(t, "2330.TW", h.Symbol)
	assert.Equal(t, AssetStock, h.Type)
	assert.Equal(t, MarketTW, h.Market)
	assert.Equal(t, "TWD", h.Currency)
	assert.False(t, h.IsCash())
}

func TestHoldingNormalize_Violations(t *testing.T) {
	valid := func() Holding {
		return Holding{
			AccountID: "acc", Symbol: "AAPL", Type: AssetStock, Market: MarketUS,
			Quantity: decimal.NewFromInt(1), CostBasis: decimal.NewFromInt(1), Currency: "USD",
		}
	}
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name   string
		mutate func(*Holding)
		want   error
	}{
		{"missing account", func(h *Holding) { h.AccountID = "" }, ErrMissingField},
		{"missing symbol", func(h *Holding) { h.Symbol = "  " }, ErrMissingField},
		{"bad type", func(h *Holding) { h.Type = "nft" }, ErrInvalidAssetType},
		{"bad market", func(h *Holding) { h.Market = "LSE" }, ErrInvalidMarket},
		{"bad currency", func(h *Holding) { h.Currency = "DOLLAR" }, ErrInvalidCurrency},
		{"negative quantity", func(h *Holding) { h.Quantity = negative }, ErrNegativeQuantity},
		{"negative cost", func(h *Holding) { h.CostBasis = negative }, ErrNegativeCost},
		{"negative price", func(h *Holding) { h.CurrentPrice = &negative }, ErrNegativePrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := valid()
			tt.mutate(&h)
			assert.ErrorIs(t, h.Normalize(), tt.want)
		})
	}
}

func TestAssumedCount(t *testing.T) {
	s := PortfolioStats{Holdings: []Valuation{
		{PriceSource: PriceAssumed},
		{PriceSource: PriceFetched},
		{PriceSource: PriceAssumed},
		{PriceSource: PriceFace},
	}}
	assert.Equal(t, 2, s.AssumedCount())
}
