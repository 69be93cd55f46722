// Package server exposes the dashboard over HTTP: the WebSocket
// subscription endpoint, Prometheus self-metrics, a health probe and an
// optional static frontend directory.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vitalis-app/dockdash/internal/broadcast"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Counter reports a current size, such as the history store's record count.
type Counter interface {
	Len() int
}

// Options configures a Server.
type Options struct {
	Listen    string
	StaticDir string
	Hub       *broadcast.Hub
	History   Counter
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server is the dashboard's HTTP listener.
type Server struct {
	opts   Options
	logger *zap.Logger
	srv    *http.Server
}

// New builds the route table. It fails only on an unusable static dir.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("/ws", broadcast.Handler(opts.Hub))
	mux.HandleFunc("/healthz", s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.StaticDir != "" {
		abs, err := filepath.Abs(opts.StaticDir)
		if err != nil {
			return nil, fmt.Errorf("resolving static dir: %w", err)
		}
		mux.Handle("/", http.FileServer(http.Dir(abs)))
		logger.Info("Serving static files", zap.String("dir", abs))
	}

	s.srv = &http.Server{
		Addr:              opts.Listen,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
	History     int    `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{Status: "ok"}
	if s.opts.Hub != nil {
		resp.Subscribers = s.opts.Hub.Count()
	}
	if s.opts.History != nil {
		resp.History = s.opts.History.Len()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Run listens on the configured address until ctx is cancelled, then
// detaches every subscriber and shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Error during HTTP shutdown", zap.Error(err))
		return err
	}
	return nil
}
