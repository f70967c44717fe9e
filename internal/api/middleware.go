package api

import (
	"net/http"
	"strconv"
	"strings"

	"fairrate/internal/throttle"
)

func (s *Server) withCommon(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		if s.frontendURL != "" {
			h.Set("Access-Control-Allow-Origin", s.frontendURL)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET,HEAD,POST,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") && !s.allow(w, r, s.limits.General) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow counts the request against l and writes the 429 response when the
// policy is exhausted. Store failures let the request through.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, l Limiter) bool {
	if l == nil {
		return true
	}
	policy := l.Policy()
	d, err := l.Allow(r.Context(), requestRemoteIP(r, s.trustProxy))
	if err != nil {
		s.logger.Error(err, "throttle store unavailable, allowing request", "policy", policy.Name)
		return true
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(policy.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	if d.Allowed {
		return true
	}
	s.auditAuth(r, "deny", "rate_limit", policy.Name+" limit exceeded")
	w.Header().Set("Retry-After", throttle.RetryAfterSeconds(d.RetryAfter))
	writeError(w, http.StatusTooManyRequests, policy.Message)
	return false
}
