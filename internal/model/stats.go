package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource records which rule supplied the per-unit price of a valuation.
type PriceSource string

const (
	PriceManual  PriceSource = "manual"  // holding's own CurrentPrice
	PriceFetched PriceSource = "fetched" // latest PriceObservation for the symbol
	PriceAssumed PriceSource = "assumed" // no data: cost basis used, break-even
	PriceFace    PriceSource = "face"    // cash, always 1
)

// Valuation is the normalised result for one holding, in the base currency.
type Valuation struct {
	HoldingID       string          `json:"holding_id"`
	AccountID       string          `json:"account_id"`
	Symbol          string          `json:"symbol"`
	Type            AssetType       `json:"type"`
	Market          Market          `json:"market"`
	Currency        string          `json:"currency"`
	Price           decimal.Decimal `json:"price"` // per unit, in Currency
	PriceSource     PriceSource     `json:"price_source"`
	Rate            decimal.Decimal `json:"rate"` // Currency -> base
	CurrentValue    decimal.Decimal `json:"current_value"`
	CostValue       decimal.Decimal `json:"cost_value"`
	GainLoss        decimal.Decimal `json:"gain_loss"`
	GainLossPercent decimal.Decimal `json:"gain_loss_percent"` // fraction of CostValue
}

// Distribution is one category of a group-by over valuations.
type Distribution struct {
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalGainLoss decimal.Decimal `json:"total_gain_loss"`
	Percentage    decimal.Decimal `json:"percentage"` // share of portfolio value, 0–100
}

// PortfolioStats is an immutable projection of holdings, prices and rates.
// It is rebuilt on every change and never patched in place.
type PortfolioStats struct {
	BaseCurrency         string                     `json:"base_currency"`
	TotalValue           decimal.Decimal            `json:"total_value"`
	TotalCost            decimal.Decimal            `json:"total_cost"`
	TotalGainLoss        decimal.Decimal            `json:"total_gain_loss"`
	TotalGainLossPercent decimal.Decimal            `json:"total_gain_loss_percent"` // fraction of TotalCost
	ByType               map[AssetType]Distribution `json:"by_type"`
	ByMarket             map[Market]Distribution    `json:"by_market"`
	ByAccount            map[string]Distribution    `json:"by_account"` // account id → distribution
	Holdings             []Valuation                `json:"holdings"`
	CalculatedAt         time.Time                  `json:"calculated_at"`
}

// AssumedCount returns how many valuations fell back to the cost-basis price.
func (s PortfolioStats) AssumedCount() int {
	n := 0
	for _, v := range s.Holdings {
		if v.PriceSource == PriceAssumed {
			n++
		}
	}
	return n
}

// StatsSnapshot is a stored copy of the statistics for one calendar day,
// together with the exchange rates that produced it.
type StatsSnapshot struct {
	ID        string         `json:"id" db:"id"`
	Date      string         `json:"date" db:"date"` // YYYY-MM-DD
	Stats     PortfolioStats `json:"stats" db:"stats"`
	Rates     []ExchangeRate `json:"rates" db:"rates"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// DateLayout is the calendar-day format used for snapshots and pinned rates.
const DateLayout = "2006-01-02"
