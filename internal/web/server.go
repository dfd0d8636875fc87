package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"webcammonitor/internal/logger"
	"webcammonitor/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Status is the /healthz payload.
type Status struct {
	State         string `json:"state"`
	Camera        string `json:"camera"`
	ArtifactCount int64  `json:"artifact_count"`
	ArtifactBytes int64  `json:"artifact_bytes"`
	Viewers       int    `json:"viewers"`
}

// StatusFunc supplies the current status; the monitor loop owns the state.
type StatusFunc func() Status

// Server exposes /healthz, /metrics and the /live websocket feed.
type Server struct {
	server *http.Server
	hub    *Hub
	status StatusFunc
	log    *logger.Logger
}

// NewServer wires up the routes on the given port.
func NewServer(port int, hub *Hub, status StatusFunc, log *logger.Logger) *Server {
	s := &Server{hub: hub, status: status, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/live", s.handleLive)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.status()
	status.Viewers = s.hub.ClientCount()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Error("Error writing healthz response: %v", err)
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Websocket upgrade failed: %v", err)
		return
	}

	s.hub.Register(conn)

	// Viewers only listen; the read loop exists to notice the close.
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
