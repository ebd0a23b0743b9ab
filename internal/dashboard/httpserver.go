package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HTTPServer wraps a Bridge with the thin net/http transport named in
// SPEC_FULL §4.10's "supplemented" section: GET /api/stats, GET /api/events
// (SSE), POST /api/killswitch. It carries no decision logic — every route
// just reads from or calls into Bridge. Grounded on the teacher's
// internal/dashboard/server.go route-registration idiom and
// handlers.go's handleSSE flusher pattern.
type HTTPServer struct {
	bridge *Bridge
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHTTPServer builds the route table for bridge.
func NewHTTPServer(bridge *Bridge, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{bridge: bridge, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the server's http.Handler.
func (s *HTTPServer) Handler() http.Handler { return s.mux }

func (s *HTTPServer) routes() {
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/audit", s.handleAudit)
	s.mux.HandleFunc("POST /api/killswitch", s.handleKillswitch)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Stats())
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.bridge.RecentAuditEntries(limit))
}

// handleEvents streams every periodic stats Snapshot as a server-sent
// event, one "data: <json>\n\n" frame per publish.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	flusher.Flush()

	ch := make(chan Snapshot, 8)
	unsubscribe := s.bridge.Subscribe(func(snap Snapshot) {
		select {
		case ch <- snap:
		default:
			// A slow client drops intermediate ticks rather than blocking
			// the bridge's own publish loop.
		}
	})
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error("marshaling snapshot for SSE failed", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

type killswitchRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

func (s *HTTPServer) handleKillswitch(w http.ResponseWriter, r *http.Request) {
	var req killswitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.bridge.SetKillSwitch(req.Active, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Stats().KillSwitch)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding json response failed", "error", err)
	}
}
