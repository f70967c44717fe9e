// Package calc converts an hourly rate between two countries through their
// purchasing-power-parity factors.
package calc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// ValidationError names the field category that failed validation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

const (
	MsgMissingFields = "Missing required fields"
	MsgInvalidRate   = "Invalid rate value"
)

// FactorSource resolves a country to its PPP factor.
type FactorSource interface {
	FactorOf(ctx context.Context, country string) (float64, error)
}

type Request struct {
	SourceCountry string
	DestCountry   string
	CurrentRate   float64
	// RateText is the rate as the caller wrote it, echoed in Message. Empty
	// renders CurrentRate.
	RateText string
}

type Result struct {
	FairRate             float64 `json:"fairRate"`
	CurrentRate          float64 `json:"currentRate"`
	PercentageChange     float64 `json:"percentageChange"`
	PurchasingPowerRatio float64 `json:"purchasingPowerRatio"`
	Message              string  `json:"message"`
	Insight              string  `json:"insight"`
}

// ParseRate accepts a JSON number or a numeric JSON string.
func ParseRate(raw json.RawMessage) (float64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" || text == `""` {
		return 0, invalid(MsgMissingFields)
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, invalid(MsgInvalidRate)
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return 0, invalid(MsgMissingFields)
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, invalid(MsgInvalidRate)
	}
	return v, nil
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.SourceCountry) == "" || strings.TrimSpace(r.DestCountry) == "" {
		return invalid(MsgMissingFields)
	}
	if math.IsNaN(r.CurrentRate) || math.IsInf(r.CurrentRate, 0) || r.CurrentRate <= 0 {
		return invalid(MsgInvalidRate)
	}
	return nil
}

// Convert is the fixed conversion formula. Both factors must be positive.
func Convert(currentRate, myFactor, clientFactor float64) (fairRate, percentChange, pppRatio float64) {
	fairRate = Round((currentRate/myFactor)*clientFactor, 2)
	percentChange = Round(((fairRate-currentRate)/currentRate)*100, 1)
	pppRatio = Round(clientFactor/myFactor, 2)
	return fairRate, percentChange, pppRatio
}

type Calculator struct {
	factors FactorSource
}

func NewCalculator(factors FactorSource) *Calculator {
	return &Calculator{factors: factors}
}

func (c *Calculator) Calculate(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	myFactor, err := c.factors.FactorOf(ctx, req.SourceCountry)
	if err != nil {
		return Result{}, err
	}
	clientFactor, err := c.factors.FactorOf(ctx, req.DestCountry)
	if err != nil {
		return Result{}, err
	}
	res := Build(req, myFactor, clientFactor)
	if !finite(res.FairRate) || !finite(res.PercentageChange) {
		return Result{}, invalid(MsgInvalidRate)
	}
	return res, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Build assembles the full result, including the human-readable lines, from
// already resolved factors.
func Build(req Request, myFactor, clientFactor float64) Result {
	fair, change, ratio := Convert(req.CurrentRate, myFactor, clientFactor)
	rateText := strings.TrimSpace(req.RateText)
	if rateText == "" {
		rateText = strconv.FormatFloat(req.CurrentRate, 'f', -1, 64)
	}
	res := Result{
		FairRate:             fair,
		CurrentRate:          req.CurrentRate,
		PercentageChange:     change,
		PurchasingPowerRatio: ratio,
		Message: fmt.Sprintf("Your $%s has %sx purchasing power in %s",
			rateText, FormatFixed(clientFactor/myFactor, 2), req.DestCountry),
	}
	if change > 0 {
		res.Insight = fmt.Sprintf("You could charge $%s to maintain equivalent value", FormatFixed(fair, 2))
	} else {
		res.Insight = fmt.Sprintf("Your rate is already competitive for %s", req.DestCountry)
	}
	return res
}
