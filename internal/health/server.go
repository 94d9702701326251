// Package health exposes liveness and status endpoints for process monitors.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dhvos/dhvos-go/internal/engine"
	"github.com/dhvos/dhvos-go/internal/knowledge"
	"github.com/dhvos/dhvos-go/internal/track"
)

// Server serves "/" (liveness) and "/healthz" (readiness plus counters).
type Server struct {
	addr      string
	store     *knowledge.Store
	stats     *engine.Stats
	tracker   *track.Tracker
	startedAt time.Time

	srv *http.Server
	ln  net.Listener
}

// NewServer creates a health server. tracker may be nil.
func NewServer(addr string, store *knowledge.Store, stats *engine.Stats, tracker *track.Tracker) *Server {
	return &Server{
		addr:      addr,
		store:     store,
		stats:     stats,
		tracker:   tracker,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealthz)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: mux}
	log.Printf("[Health] Listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the bound address once Start has been called.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "dhvos",
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	loaded := !s.store.LoadedAt().IsZero()

	body := map[string]any{
		"status": "ok",
		"knowledge": map[string]any{
			"entries":  s.store.Len(),
			"source":   s.store.Source(),
			"loadedAt": s.store.LoadedAt().Format(time.RFC3339),
		},
	}
	if s.stats != nil {
		body["engine"] = s.stats.Snapshot()
	}
	if s.tracker != nil {
		body["chats"] = map[string]any{
			"tracked": s.tracker.TrackedChats(),
			"active":  s.tracker.ActiveCount(),
		}
	}

	status := http.StatusOK
	if !loaded {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
