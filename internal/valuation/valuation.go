// Package valuation turns holdings, price observations and exchange rates into
// normalised portfolio statistics in a single base currency.
//
// Everything here is a pure function of its inputs. Missing data never fails a
// calculation: a missing price falls back to the cost basis, a missing rate to 1
// (see package fx), and every division by zero yields 0.
package valuation

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/portfolio-engine/internal/model"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// EffectivePrice picks the per-unit price for a holding, first match wins:
// a positive manual CurrentPrice, then the first positive observation for the
// symbol, then the cost basis. Cash is always priced at 1.
func EffectivePrice(h model.Holding, prices []model.PriceObservation) (decimal.Decimal, model.PriceSource) {
	if h.IsCash() {
		return one, model.PriceFace
	}
	if h.CurrentPrice != nil && h.CurrentPrice.IsPositive() {
		return *h.CurrentPrice, model.PriceManual
	}
	for _, p := range prices {
		if strings.EqualFold(p.Symbol, h.Symbol) && p.Price.IsPositive() {
			return p.Price, model.PriceFetched
		}
	}
	return h.CostBasis, model.PriceAssumed
}

// ValueHolding values one holding at the given per-unit price and exchange
// rate to the base currency.
//
// Cash is valued at face: current and cost value are both quantity*rate, so
// gain/loss is always zero and FX drift on cash is not reported as a gain.
func ValueHolding(h model.Holding, price, rate decimal.Decimal) model.Valuation {
	v := model.Valuation{
		HoldingID: h.ID,
		AccountID: h.AccountID,
		Symbol:    h.Symbol,
		Type:      h.Type,
		Market:    h.Market,
		Currency:  h.Currency,
		Price:     price,
		Rate:      rate,
	}

	if h.IsCash() {
		face := h.Quantity.Mul(rate)
		v.Price = one
		v.PriceSource = model.PriceFace
		v.CurrentValue = face
		v.CostValue = face
		v.GainLoss = decimal.Zero
		v.GainLossPercent = decimal.Zero
		return v
	}

	v.CostValue = h.Quantity.Mul(h.CostBasis).Mul(rate)
	v.CurrentValue = h.Quantity.Mul(price).Mul(rate)
	v.GainLoss = v.CurrentValue.Sub(v.CostValue)
	v.GainLossPercent = ratio(v.GainLoss, v.CostValue)
	return v
}

// ratio returns n/d, or 0 when d is not positive.
func ratio(n, d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	return n.Div(d)
}

// share returns part as a percentage of total, or 0 when total is not positive.
func share(part, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred)
}
