package api

import "net/http"

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/countries", s.handleCountries)
	mux.HandleFunc("/api/track-view", s.handleTrackView)
	mux.HandleFunc("/api/calculate", s.handleCalculate)
	mux.HandleFunc("/api/generate-email", s.handleGenerateEmail)
	mux.HandleFunc("/api/admin/login", s.handleAdminLogin)
	mux.HandleFunc("/api/admin/stats", s.requireAdmin(s.handleAdminStats))
	mux.HandleFunc("/api/admin/logout", s.requireAdmin(s.handleAdminLogout))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	return s.withCommon(mux)
}
