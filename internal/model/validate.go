package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingField     = errors.New("model: required field missing")
	ErrNegativeQuantity = errors.New("model: quantity must not be negative")
	ErrNegativeCost     = errors.New("model: cost basis must not be negative")
	ErrNegativePrice    = errors.New("model: current price must not be negative")
)

// Normalize canonicalises the enum and currency fields in place and checks
// the holding invariants. It returns the first violation found.
func (h *Holding) Normalize() error {
	h.Symbol = strings.TrimSpace(h.Symbol)
	if h.AccountID == "" {
		return fmt.Errorf("%w: account_id", ErrMissingField)
	}
	if h.Symbol == "" {
		return fmt.Errorf("%w: symbol", ErrMissingField)
	}

	t, err := ParseAssetType(string(h.Type))
	if err != nil {
		return err
	}
	h.Type = t

	m, err := ParseMarket(string(h.Market))
	if err != nil {
		return err
	}
	h.Market = m

	cur, err := NormalizeCurrency(h.Currency)
	if err != nil {
		return err
	}
	h.Currency = cur

	return h.Validate()
}

// Validate checks the numeric invariants of a holding without modifying it.
func (h Holding) Validate() error {
	if h.Quantity.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeQuantity, h.Quantity)
	}
	if h.CostBasis.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeCost, h.CostBasis)
	}
	if h.CurrentPrice != nil && h.CurrentPrice.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativePrice, h.CurrentPrice)
	}
	return nil
}
