package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// AssetType determines the valuation rule applied to a holding.
type AssetType string

// Supported asset types.
const (
	AssetStock     AssetType = "stock"
	AssetFund      AssetType = "fund"
	AssetBond      AssetType = "bond"
	AssetGold      AssetType = "gold"
	AssetCrypto    AssetType = "crypto"
	AssetCash      AssetType = "cash"
	AssetCommodity AssetType = "commodity"
)

// AssetTypes lists every asset type in display order.
var AssetTypes = []AssetType{
	AssetStock, AssetFund, AssetBond, AssetGold, AssetCrypto, AssetCash, AssetCommodity,
}

// Market is a reporting dimension only; it has no effect on valuation.
type Market string

// Supported markets.
const (
	MarketUS    Market = "US"
	MarketTW    Market = "TW"
	MarketOther Market = "OTHER"
)

// Markets lists every market in display order.
var Markets = []Market{MarketUS, MarketTW, MarketOther}

var (
	ErrInvalidAssetType = errors.New("model: unsupported asset type")
	ErrInvalidMarket    = errors.New("model: unsupported market")
	ErrInvalidCurrency  = errors.New("model: invalid currency code")
)

// currencyRegex matches ISO-like three letter codes: USD, TWD, JPY.
var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ParseAssetType validates a free-form asset type string.
// Matching is case-insensitive; the canonical form is lower case.
func ParseAssetType(s string) (AssetType, error) {
	t := AssetType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AssetTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAssetType, s)
}

// ParseMarket validates a free-form market string.
// Matching is case-insensitive; the canonical form is upper case.
func ParseMarket(s string) (Market, error) {
	m := Market(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Markets {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMarket, s)
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(s string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(s))
	if !currencyRegex.MatchString(c) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return c, nil
}
