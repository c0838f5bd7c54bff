// Package model defines the core domain types shared across the portfolio engine.
// All monetary values, quantities and rates use shopspring/decimal, never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user-configured container for holdings (a broker, a bank, a wallet).
// Accounts are an open set; statistics are grouped by Account.ID.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Holding is a single position inside an account.
// Schema: {account, symbol, type, market, quantity, cost basis, currency, manual price}
type Holding struct {
	ID           string           `json:"id" db:"id"`
	AccountID    string           `json:"account_id" db:"account_id"`
	Symbol       string           `json:"symbol" db:"symbol"`
	Name         string           `json:"name" db:"name"`
	Type         AssetType        `json:"type" db:"type"`
	Market       Market           `json:"market" db:"market"`
	Quantity     decimal.Decimal  `json:"quantity" db:"quantity"`
	CostBasis    decimal.Decimal  `json:"cost_basis" db:"cost_basis"` // per unit, in Currency
	Currency     string           `json:"currency" db:"currency"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty" db:"current_price"` // manual override, per unit
	PurchaseDate time.Time        `json:"purchase_date" db:"purchase_date"`
	LastUpdated  time.Time        `json:"last_updated" db:"last_updated"`
}

// IsCash reports whether the holding is valued at face (price fixed at 1).
func (h Holding) IsCash() bool {
	return h.Type == AssetCash
}

// PriceObservation is a fetched quote for one symbol. Produced by price
// providers and consumed read-only by the valuation engine.
type PriceObservation struct {
	Symbol        string          `json:"symbol" db:"symbol"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Currency      string          `json:"currency" db:"currency"`
	Change        decimal.Decimal `json:"change" db:"change"`
	ChangePercent decimal.Decimal `json:"change_percent" db:"change_percent"`
	Source        string          `json:"source" db:"source"` // provider tag, e.g. "yahoo", "manual-import"
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// ExchangeRate is one observed conversion: 1 unit of From is worth Rate units of To.
type ExchangeRate struct {
	From      string          `json:"from" db:"from_currency"`
	To        string          `json:"to" db:"to_currency"`
	Rate      decimal.Decimal `json:"rate" db:"rate"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
