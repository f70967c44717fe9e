package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes int64 = 10 << 10 // 10 KiB

// isoMillis matches the millisecond UTC timestamps the frontend parses.
const isoMillis = "2006-01-02T15:04:05.000Z"

var (
	errBodyTooLarge = errors.New("request body too large")
	errBadBody      = errors.New("invalid request body")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			// An empty body decodes to the zero value so field checks report it.
			return nil
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// writeJSON encodes payload before touching the status line, so a payload
// that cannot be encoded becomes a 500 instead of a headers-only reply.
func writeJSON(w http.ResponseWriter, code int, payload interface{}) error {
	b, err := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error"}` + "\n"))
		return fmt.Errorf("encode response: %w", err)
	}
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
	return nil
}

func writeError(w http.ResponseWriter, code int, message string) {
	_ = writeJSON(w, code, map[string]interface{}{"error": message})
}

func writeBodyErr(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request body")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
