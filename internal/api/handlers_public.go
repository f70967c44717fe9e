package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"fairrate/internal/calc"
	"fairrate/internal/email"
	"fairrate/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	now := s.now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": formatISO(now),
		"uptime":    now.Sub(s.started).Seconds(),
	})
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	countries, err := s.countries.ListCountries(r.Context())
	if err != nil {
		s.logger.Error(err, "list countries failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch countries")
		return
	}
	if countries == nil {
		countries = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"countries": countries})
}

func (s *Server) handleTrackView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	// A client hanging up must not drop the count.
	s.analytics.Increment(context.WithoutCancel(r.Context()), store.CounterViews, 1)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "tracked"})
}

type calculateBody struct {
	MyLocation     string          `json:"myLocation" validate:"required,max=100"`
	ClientLocation string          `json:"clientLocation" validate:"required,max=100"`
	CurrentRate    json.RawMessage `json:"currentRate"`
	Skill          string          `json:"skill" validate:"max=200"`
}

type calculateResponse struct {
	calc.Result
	CalculationTime string `json:"calculationTime"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.limits.Calculation) {
		return
	}
	start := time.Now()
	var body calculateBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeBodyErr(w, err)
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	rate, err := calc.ParseRate(body.CurrentRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// A rate sent as a string is echoed as written; a JSON number is rendered
	// in its shortest form.
	var rateText string
	if strings.HasPrefix(strings.TrimSpace(string(body.CurrentRate)), `"`) {
		rateText = rawText(body.CurrentRate)
	}
	res, err := s.calculator.Calculate(r.Context(), calc.Request{
		SourceCountry: strings.TrimSpace(body.MyLocation),
		DestCountry:   strings.TrimSpace(body.ClientLocation),
		CurrentRate:   rate,
		RateText:      rateText,
	})
	if err != nil {
		var verr *calc.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		s.logger.Error(err, "calculate failed")
		writeError(w, http.StatusInternalServerError, "Calculation failed")
		return
	}
	elapsed := time.Since(start)
	s.analytics.Increment(context.WithoutCancel(r.Context()), store.CounterCalculations, 1)
	if err := writeJSON(w, http.StatusOK, calculateResponse{
		Result:          res,
		CalculationTime: fmt.Sprintf("%dms", elapsed.Milliseconds()),
	}); err != nil {
		s.logger.Error(err, "calculate response failed")
	}
}

type emailBody struct {
	FairRate       json.RawMessage `json:"fairRate"`
	CurrentRate    json.RawMessage `json:"currentRate"`
	Skill          string          `json:"skill" validate:"max=200"`
	ClientLocation string          `json:"clientLocation" validate:"max=100"`
}

func (s *Server) handleGenerateEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.limits.Calculation) {
		return
	}
	var body emailBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeBodyErr(w, err)
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req := email.Request{
		FairRate:       rawText(body.FairRate),
		CurrentRate:    rawText(body.CurrentRate),
		Skill:          body.Skill,
		ClientLocation: body.ClientLocation,
	}
	if !s.email.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":    email.ErrNotConfigured.Error(),
			"fallback": email.Fallback(req),
		})
		return
	}
	draft, err := s.email.Draft(r.Context(), req)
	if err != nil || draft.Fallback {
		writeJSON(w, http.StatusOK, map[string]interface{}{"email": draft.Email, "fallback": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"email": draft.Email})
}

// validationMessage reports absent fields with the same text the calculator
// uses; any other rule failure is a malformed body.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return calc.MsgMissingFields
			}
		}
	}
	return "Invalid request body"
}

// rawText renders a JSON scalar the way it reads in a sentence: strings
// unquoted, numbers verbatim, absent values empty.
func rawText(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return text
}
