package api

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
)

type auditEvent struct {
	Time      string `json:"time"`
	Decision  string `json:"decision"`
	Mechanism string `json:"mechanism"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	RemoteIP  string `json:"remote_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

var auditFileMu sync.Mutex

func (s *Server) auditAuth(r *http.Request, decision, mechanism, reason string) {
	ev := auditEvent{
		Time:      formatISO(s.now()),
		Decision:  strings.TrimSpace(decision),
		Mechanism: strings.TrimSpace(mechanism),
		Method:    r.Method,
		Path:      r.URL.Path,
		RemoteIP:  requestRemoteIP(r, s.trustProxy),
		RequestID: strings.TrimSpace(r.Header.Get("X-Request-Id")),
		Reason:    strings.TrimSpace(reason),
	}
	s.logger.Info("audit_auth",
		"decision", ev.Decision,
		"mechanism", ev.Mechanism,
		"method", ev.Method,
		"path", ev.Path,
		"remote_ip", ev.RemoteIP,
		"request_id", ev.RequestID,
		"reason", ev.Reason,
	)
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.writeAuditLine("audit_auth " + string(b))
}

// requestRemoteIP keys throttling and audit lines on the socket peer. The
// first X-Forwarded-For hop is used only when trustProxy is set, which
// requires a proxy in front that overwrites the header.
func requestRemoteIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
		if xff != "" {
			parts := strings.Split(xff, ",")
			if first := strings.TrimSpace(parts[0]); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func (s *Server) writeAuditLine(line string) {
	path := strings.TrimSpace(s.audit.LogFile)
	if path == "" {
		return
	}
	auditFileMu.Lock()
	defer auditFileMu.Unlock()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		s.logger.Error(err, "audit_auth_file_error", "path", path)
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line + "\n")
}
