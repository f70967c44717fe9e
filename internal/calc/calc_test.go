package calc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type factorMap map[string]float64

func (m factorMap) FactorOf(_ context.Context, country string) (float64, error) {
	if f, ok := m[country]; ok {
		return f, nil
	}
	return 1.0, nil
}

var testFactors = factorMap{
	"USA":            1.0,
	"India":          0.28,
	"Germany":        0.85,
	"United Kingdom": 0.88,
	"Switzerland":    0.79,
}

func TestCalculateKnownPairs(t *testing.T) {
	c := NewCalculator(testFactors)
	res, err := c.Calculate(context.Background(), Request{SourceCountry: "India", DestCountry: "USA", CurrentRate: 50})
	require.NoError(t, err)
	assert.Equal(t, 178.57, res.FairRate)
	assert.Equal(t, 257.1, res.PercentageChange)
	assert.Equal(t, 3.57, res.PurchasingPowerRatio)
	assert.Equal(t, 50.0, res.CurrentRate)
	assert.Equal(t, "Your $50 has 3.57x purchasing power in USA", res.Message)
	assert.Equal(t, "You could charge $178.57 to maintain equivalent value", res.Insight)
}

func TestCalculateMatchesFormulaForAllPairs(t *testing.T) {
	c := NewCalculator(testFactors)
	rates := []float64{1, 12.5, 40, 99.99, 150}
	for src, f1 := range testFactors {
		for dst, f2 := range testFactors {
			for _, r := range rates {
				res, err := c.Calculate(context.Background(), Request{SourceCountry: src, DestCountry: dst, CurrentRate: r})
				require.NoError(t, err)
				assert.Equal(t, Round(r/f1*f2, 2), res.FairRate, "%s->%s @%v", src, dst, r)
				if f1 == f2 {
					assert.Equal(t, r, res.FairRate)
					assert.Equal(t, 0.0, res.PercentageChange)
				}
			}
		}
	}
}

func TestCalculateCompetitiveInsight(t *testing.T) {
	c := NewCalculator(testFactors)
	res, err := c.Calculate(context.Background(), Request{SourceCountry: "USA", DestCountry: "India", CurrentRate: 100})
	require.NoError(t, err)
	assert.Equal(t, 28.0, res.FairRate)
	assert.Equal(t, -72.0, res.PercentageChange)
	assert.Equal(t, "Your rate is already competitive for India", res.Insight)
}

func TestCalculateUnknownCountriesAreNeutral(t *testing.T) {
	c := NewCalculator(testFactors)
	res, err := c.Calculate(context.Background(), Request{SourceCountry: "Atlantis", DestCountry: "Lemuria", CurrentRate: 42})
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.FairRate)
	assert.Equal(t, 0.0, res.PercentageChange)
	assert.Equal(t, 1.0, res.PurchasingPowerRatio)

	res, err = c.Calculate(context.Background(), Request{SourceCountry: "Atlantis", DestCountry: "USA", CurrentRate: 50})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.FairRate)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	c := NewCalculator(testFactors)
	for _, req := range []Request{
		{SourceCountry: "", DestCountry: "USA", CurrentRate: 10},
		{SourceCountry: "USA", DestCountry: " ", CurrentRate: 10},
		{SourceCountry: "USA", DestCountry: "India", CurrentRate: 0},
		{SourceCountry: "USA", DestCountry: "India", CurrentRate: -5},
	} {
		_, err := c.Calculate(context.Background(), req)
		assert.ErrorIs(t, err, ErrValidation, "%+v", req)
	}
}

func TestParseRate(t *testing.T) {
	ok := map[string]float64{`50`: 50, `"75.5"`: 75.5, `0.01`: 0.01, `" 12 "`: 12}
	for raw, want := range ok {
		got, err := ParseRate(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{`0`, `-5`, `"abc"`, `"-1"`, `"NaN"`, `"Infinity"`, `true`, `[1]`} {
		_, err := ParseRate(json.RawMessage(raw))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), raw)
		assert.Equal(t, MsgInvalidRate, verr.Message, raw)
	}

	for _, raw := range []string{``, `null`, `""`} {
		_, err := ParseRate(json.RawMessage(raw))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), raw)
		assert.Equal(t, MsgMissingFields, verr.Message, raw)
	}
}

type brokenFactors struct{}

func (brokenFactors) FactorOf(context.Context, string) (float64, error) {
	return 0, errors.New("store unavailable")
}

func TestCalculatePropagatesFactorErrors(t *testing.T) {
	_, err := NewCalculator(brokenFactors{}).Calculate(context.Background(), Request{SourceCountry: "USA", DestCountry: "India", CurrentRate: 10})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestCalculateRejectsOverflowingRate(t *testing.T) {
	c := NewCalculator(testFactors)
	_, err := c.Calculate(context.Background(), Request{SourceCountry: "India", DestCountry: "USA", CurrentRate: 1e308})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, MsgInvalidRate, verr.Message)

	res, err := c.Calculate(context.Background(), Request{SourceCountry: "USA", DestCountry: "India", CurrentRate: 1e308})
	require.NoError(t, err)
	assert.Equal(t, -72.0, res.PercentageChange)
}

func TestCalculateEchoesRateText(t *testing.T) {
	c := NewCalculator(testFactors)
	res, err := c.Calculate(context.Background(), Request{SourceCountry: "India", DestCountry: "USA", CurrentRate: 50, RateText: "50.00"})
	require.NoError(t, err)
	assert.Equal(t, "Your $50.00 has 3.57x purchasing power in USA", res.Message)
	assert.Equal(t, 178.57, res.FairRate)
}
