// Package web provides the HTTP status server: a status page, a JSON
// snapshot, a transmit endpoint and a websocket stream of decoded values.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/vevorbus/vevor-bus/internal/protocol"
	"github.com/vevorbus/vevor-bus/internal/status"
)

const sendTimeout = 5 * time.Second

// Sender transmits a byte on the bus. *bus.Transmitter satisfies it.
type Sender interface {
	SendByte(ctx context.Context, b byte) error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	sender     Sender
	hub        *Hub
}

// New creates a Server that reads state from tracker. sender and hub are
// optional; without them /send answers 503 and /ws is not routed.
// A non-empty corsOrigins enables CORS for those origins.
func New(addr string, tracker *status.Tracker, sender Sender, hub *Hub, corsOrigins []string) *Server {
	s := &Server{tracker: tracker, sender: sender, hub: hub}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Post("/send", s.handleSend)
	if hub != nil {
		r.Handle("/ws", hub)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("web: status server listening")
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.hub != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

type sendRequest struct {
	Value *int `json:"value"`
}

type sendResponse struct {
	Sent  string `json:"sent"`
	Value int    `json:"value"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		http.Error(w, "transmit not available", http.StatusServiceUnavailable)
		return
	}
	b, err := parseSendRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), sendTimeout)
	defer cancel()
	if err := s.sender.SendByte(ctx, b); err != nil {
		log.Error().Err(err).Msg("web: send failed")
		http.Error(w, "transmit failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sendResponse{Sent: fmt.Sprintf("0x%02X", b), Value: int(b)})
}

func parseSendRequest(r *http.Request) (byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req sendRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil {
			return 0, fmt.Errorf("decode body: %w", err)
		}
		if req.Value == nil {
			return 0, errors.New("missing value")
		}
		if *req.Value < 0 || *req.Value > 0xFF {
			return 0, fmt.Errorf("value %d out of byte range", *req.Value)
		}
		return byte(*req.Value), nil
	}
	return protocol.ParseByte(r.FormValue("value"))
}

// OriginChecker returns a websocket origin check accepting the listed
// origins, or any origin when the list contains "*". An empty list keeps
// the same-origin default.
func OriginChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
