// Package fx resolves conversion factors between currencies from a set of
// observed exchange rates.
//
// Resolution order: identity, direct pair, inverse pair, triangulation through
// the USD pivot. An unresolvable pair resolves to 1 and is reported through the
// logger and the unresolved-rates metric; it is never an error.
package fx

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atmx/portfolio-engine/internal/metrics"
	"github.com/atmx/portfolio-engine/internal/model"
)

// Pivot is the currency used to triangulate pairs with no direct observation.
const Pivot = "USD"

// Method names the rule that produced a rate.
type Method string

const (
	MethodIdentity    Method = "identity"
	MethodDirect      Method = "direct"
	MethodInverse     Method = "inverse"
	MethodTriangulate Method = "triangulated"
	MethodUnresolved  Method = "unresolved"
)

var one = decimal.NewFromInt(1)

// Resolver converts between currencies. It holds no rate state: every call
// scans the observations it is given.
type Resolver struct {
	log zerolog.Logger
}

// NewResolver creates a resolver that reports unresolvable pairs to log.
func NewResolver(log zerolog.Logger) *Resolver {
	return &Resolver{log: log.With().Str("component", "fx").Logger()}
}

// Rate returns how many units of `to` one unit of `from` is worth.
// It returns 1 when the pair cannot be resolved.
func (r *Resolver) Rate(from, to string, observations []model.ExchangeRate) decimal.Decimal {
	rate, method := Resolve(from, to, observations)
	if method == MethodUnresolved {
		metrics.UnresolvedRates.WithLabelValues(normalize(from), normalize(to)).Inc()
		r.log.Warn().
			Str("from", from).
			Str("to", to).
			Int("observations", len(observations)).
			Msg("No exchange rate for pair, using 1")
	}
	return rate
}

// Lookup is the side-effect free form of Rate. ok is false when the pair
// could not be resolved, in which case rate is 1.
func Lookup(from, to string, observations []model.ExchangeRate) (rate decimal.Decimal, ok bool) {
	rate, method := Resolve(from, to, observations)
	return rate, method != MethodUnresolved
}

// Resolve returns the conversion factor and the rule that produced it.
func Resolve(from, to string, observations []model.ExchangeRate) (decimal.Decimal, Method) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return one, MethodIdentity
	}

	if rate, ok := find(from, to, observations); ok {
		return rate, MethodDirect
	}
	if rate, ok := find(to, from, observations); ok {
		return one.Div(rate), MethodInverse
	}

	// rate(from→to) = rate(USD→to) / rate(USD→from)
	fromLeg, okFrom := leg(from, observations)
	toLeg, okTo := leg(to, observations)
	if okFrom && okTo {
		return toLeg.Div(fromLeg), MethodTriangulate
	}

	return one, MethodUnresolved
}

// leg returns the rate from the pivot to cur, using the (USD, cur)
// observation or the inverse of (cur, USD).
func leg(cur string, observations []model.ExchangeRate) (decimal.Decimal, bool) {
	if cur == Pivot {
		return one, true
	}
	if rate, ok := find(Pivot, cur, observations); ok {
		return rate, true
	}
	if rate, ok := find(cur, Pivot, observations); ok {
		return one.Div(rate), true
	}
	return decimal.Zero, false
}

// find returns the first usable observation for the ordered pair.
// Non-positive rates are skipped so they are never divided by.
func find(from, to string, observations []model.ExchangeRate) (decimal.Decimal, bool) {
	for _, o := range observations {
		if !o.Rate.IsPositive() {
			continue
		}
		if normalize(o.From) == from && normalize(o.To) == to {
			return o.Rate, true
		}
	}
	return decimal.Zero, false
}

func normalize(cur string) string {
	return strings.ToUpper(strings.TrimSpace(cur))
}
