package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	perrors "github.com/cursorshare/backend/internal/errors"
	"github.com/cursorshare/backend/internal/presence"
	"github.com/cursorshare/backend/internal/session"
	"github.com/cursorshare/backend/internal/stats"
	"github.com/gorilla/websocket"
)

// Roster is the read side of the presence state exposed over HTTP.
type Roster interface {
	Participants() []session.Participant
}

type StatsSource interface {
	Collect() (stats.Snapshot, error)
}

type Server struct {
	log             *slog.Logger
	hub             *Hub
	roster          Roster
	stats           StatsSource
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	upgrader        websocket.Upgrader
}

func NewServer(log *slog.Logger, hub *Hub, roster Roster, statsSource StatsSource, embeddedHandler http.Handler, allowedOrigins []string) *Server {
	s := &Server{
		log:             log,
		hub:             hub,
		roster:          roster,
		stats:           statsSource,
		embeddedHandler: embeddedHandler,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/api/participants", securityHeaders(http.HandlerFunc(s.handleParticipants)))
	mux.Handle("/api/stats", securityHeaders(http.HandlerFunc(s.handleStats)))
	mux.Handle("/healthz", securityHeaders(http.HandlerFunc(s.handleHealth)))

	if s.embeddedHandler != nil {
		s.log.Info("Serving embedded frontend")
		mux.Handle("/", securityHeaders(s.embeddedHandler))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub.Full() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id, err := s.hub.Register(conn)
	if errors.Is(err, perrors.ErrTooManyConnections) {
		// Lost the race for the last slot after the pre-check.
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		_ = conn.Close()
		return
	}
	if err != nil {
		s.log.Error("Registering connection", "remote", r.RemoteAddr, "error", err)
		_ = conn.Close()
		return
	}
	s.log.Info("WebSocket client connected", "conn_id", id, "remote", r.RemoteAddr)
	s.hub.OnDisconnect(id, func() {
		s.log.Info("WebSocket client disconnected", "conn_id", id, "remote", r.RemoteAddr)
	})
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, presence.ToUserPayloads(s.roster.Participants()))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	snap, err := s.stats.Collect()
	if err != nil {
		s.log.Warn("Collecting stats", "error", err)
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Writing response", "error", err)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// NewHTTPServer wraps mux with timeouts suitable for long-lived WebSocket
// upgrades alongside short API calls.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
