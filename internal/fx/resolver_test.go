package fx

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/portfolio-engine/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func obs(from, to, rate string) model.ExchangeRate {
	return model.ExchangeRate{From: from, To: to, Rate: d(rate)}
}

func assertDecimal(t *testing.T, expected, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, expected.Equal(actual), "expected %s, got %s", expected, actual)
}

func TestResolve_Identity(t *testing.T) {
	observations := []model.ExchangeRate{obs("USD", "TWD", "30.31")}
	for _, cur := range []string{"USD", "TWD", "JPY", "xyz", ""} {
		rate, method := Resolve(cur, cur, observations)
		assertDecimal(t, d("1"), rate)
		assert.Equal(t, MethodIdentity, method, cur)
	}
}

func TestResolve_IdentityIgnoresCase(t *testing.T) {
	rate, method := Resolve("usd", "USD", nil)
	assertDecimal(t, d("1"), rate)
	assert.Equal(t, MethodIdentity, method)
}

func TestResolve_DirectAndInverse(t *testing.T) {
	r := d("30.31")
	observations := []model.ExchangeRate{obs("USD", "TWD", "30.31")}

	rate, method := Resolve("USD", "TWD", observations)
	assertDecimal(t, r, rate)
	assert.Equal(t, MethodDirect, method)

	rate, method = Resolve("TWD", "USD", observations)
	assertDecimal(t, decimal.NewFromInt(1).Div(r), rate)
	assert.Equal(t, MethodInverse, method)
}

func TestResolve_DirectWinsOverInverse(t *testing.T) {
	observations := []model.ExchangeRate{
		obs("TWD", "USD", "0.04"),
		obs("USD", "TWD", "30"),
	}
	rate, method := Resolve("USD", "TWD", observations)
	assertDecimal(t, d("30"), rate)
	assert.Equal(t, MethodDirect, method)
}

func TestResolve_FirstMatchWins(t *testing.T) {
	observations := []model.ExchangeRate{
		obs("USD", "TWD", "30"),
		obs("USD", "TWD", "31"),
	}
	rate, _ := Resolve("USD", "TWD", observations)
	assertDecimal(t, d("30"), rate)
}

func TestResolve_Triangulation(t *testing.T) {
	ra, rb := d("150.25"), d("30.31")
	observations := []model.ExchangeRate{
		obs("USD", "JPY", "150.25"),
		obs("USD", "TWD", "30.31"),
	}

	rate, method := Resolve("JPY", "TWD", observations)
	assertDecimal(t, rb.Div(ra), rate)
	assert.Equal(t, MethodTriangulate, method)

	rate, _ = Resolve("TWD", "JPY", observations)
	assertDecimal(t, ra.Div(rb), rate)
}

func TestResolve_TriangulationThroughInverseLeg(t *testing.T) {
	observations := []model.ExchangeRate{
		obs("EUR", "USD", "1.25"), // USD→EUR = 0.8
		obs("USD", "TWD", "32"),
	}
	rate, method := Resolve("EUR", "TWD", observations)
	assert.Equal(t, MethodTriangulate, method)
	assert.InDelta(t, 40.0, rate.InexactFloat64(), 1e-9)
}

func TestResolve_Unresolvable(t *testing.T) {
	rate, method := Resolve("EUR", "TWD", nil)
	assertDecimal(t, d("1"), rate)
	assert.Equal(t, MethodUnresolved, method)

	// Only one pivot leg is known.
	rate, method = Resolve("EUR", "TWD", []model.ExchangeRate{obs("USD", "TWD", "30")})
	assertDecimal(t, d("1"), rate)
	assert.Equal(t, MethodUnresolved, method)
}

func TestResolve_SkipsNonPositiveRates(t *testing.T) {
	observations := []model.ExchangeRate{
		obs("USD", "TWD", "0"),
		obs("USD", "TWD", "-3"),
	}
	assert.NotPanics(t, func() {
		rate, method := Resolve("TWD", "USD", observations)
		assertDecimal(t, d("1"), rate)
		assert.Equal(t, MethodUnresolved, method)
	})
}

func TestLookup(t *testing.T) {
	rate, ok := Lookup("USD", "TWD", []model.ExchangeRate{obs("usd", "twd", "30")})
	require.True(t, ok)
	assertDecimal(t, d("30"), rate)

	rate, ok = Lookup("USD", "TWD", nil)
	assert.False(t, ok)
	assertDecimal(t, d("1"), rate)
}

func TestResolver_RateLogsUnresolved(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(zerolog.New(&buf))

	rate := r.Rate("EUR", "TWD", nil)
	assertDecimal(t, d("1"), rate)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"from":"EUR"`)
}

func TestResolver_RateResolvedIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(zerolog.New(&buf))

	rate := r.Rate("USD", "TWD", []model.ExchangeRate{obs("USD", "TWD", "30.31")})
	assertDecimal(t, d("30.31"), rate)
	assert.Empty(t, buf.String())
}
