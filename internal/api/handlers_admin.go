package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fairrate/internal/analytics"
	"fairrate/internal/model"
	"fairrate/internal/session"
)

type loginBody struct {
	Password string `json:"password"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.limits.Login) {
		return
	}
	var body loginBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeBodyErr(w, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), body.Password)
	switch {
	case errors.Is(err, session.ErrPasswordRequired):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "Password required"})
		return
	case errors.Is(err, session.ErrInvalidCredentials):
		s.auditAuth(r, "deny", "password", "invalid credentials")
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "Invalid credentials"})
		return
	case err != nil:
		s.logger.Error(err, "admin login failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": "Login failed"})
		return
	}
	s.auditAuth(r, "allow", "password", "")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"token":     sess.Token,
		"expiresAt": formatISO(sess.ExpiresAt),
	})
}

// requireAdmin rejects every missing, unknown or expired token with the same
// 403 body.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.auth.Validate(r.Context(), bearerToken(r))
		if err != nil {
			s.logger.Error(err, "session validation failed")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !ok {
			s.auditAuth(r, "deny", "session", "missing or invalid session token")
			writeError(w, http.StatusForbidden, "Unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	days := analytics.DefaultDays
	if n, ok := leadingInt(r.URL.Query().Get("days")); ok {
		days = n
	}
	report, err := s.analytics.Query(r.Context(), days)
	if err != nil {
		s.logger.Error(err, "stats query failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch statistics")
		return
	}
	stats := report.Stats
	if stats == nil {
		stats = []model.DailyStat{}
	}
	if err := writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  stats,
		"totals": report.Totals,
		"period": fmt.Sprintf("Last %d days", len(stats)),
	}); err != nil {
		s.logger.Error(err, "stats response failed")
	}
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		s.logger.Error(err, "logout failed")
		writeError(w, http.StatusInternalServerError, "Logout failed")
		return
	}
	s.auditAuth(r, "allow", "logout", "")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// leadingInt reads the optionally signed integer prefix of raw, so "7.5" and
// "7days" are 7. Prefixes too large for an int saturate; the caller clamps.
func leadingInt(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(sign+s[:end], 10, 0)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return int(n), true
}
