// Package statusapi exposes a small local HTTP surface for front-ends:
// prometheus metrics, a JSON status snapshot, and a websocket feed of the
// bridge's log/error events.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drksbr/xmlabridge/internal/events"
)

// SessionInfo is the read-only view of the proxy's current session.
type SessionInfo interface {
	IsRunning() bool
	ListenPort() int
	TargetPort() int
	TargetDatabase() string
}

// Server serves the status endpoints until its context is cancelled.
type Server struct {
	logger    *slog.Logger
	bus       *events.Bus
	session   SessionInfo
	addr      string
	resources *resourceTracker
	upgrader  websocket.Upgrader
}

// New constructs a status server bound to addr.
func New(logger *slog.Logger, bus *events.Bus, session SessionInfo, addr string) *Server {
	return &Server{
		logger:    logger.With("component", "statusapi"),
		bus:       bus,
		session:   session,
		addr:      addr,
		resources: newResourceTracker(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type statusPayload struct {
	GeneratedAt    time.Time        `json:"generatedAt"`
	Running        bool             `json:"running"`
	ListenPort     int              `json:"listenPort"`
	TargetPort     int              `json:"targetPort"`
	TargetDatabase string           `json:"targetDatabase"`
	Resources      resourceSnapshot `json:"resources"`
}

// Run blocks serving HTTP until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.resources != nil {
		s.resources.start(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status.json", s.handleStatus)
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		s.handleEvents(ctx, w, r)
	})

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("status api shutdown", "error", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusPayload{
		GeneratedAt:    time.Now(),
		Running:        s.session.IsRunning(),
		ListenPort:     s.session.ListenPort(),
		TargetPort:     s.session.TargetPort(),
		TargetDatabase: s.session.TargetDatabase(),
	}
	if s.resources != nil {
		payload.Resources = s.resources.snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}

type eventMessage struct {
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// handleEvents streams bus events to a websocket client until either side
// goes away. Each subscriber has its own buffered channel, so a slow client
// misses events instead of stalling the bridge.
func (s *Server) handleEvents(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("events upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	ch, cancel := s.bus.Subscribe(256)
	defer cancel()

	// Drain and discard client frames so pings and close frames are
	// processed.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			kind := "log"
			if ev.Kind == events.KindError {
				kind = "error"
			}
			if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteJSON(eventMessage{Kind: kind, Time: ev.Time, Message: ev.Message}); err != nil {
				return
			}
		}
	}
}
