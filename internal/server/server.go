// Package server exposes the stagetrack HTTP surface: the live stage
// WebSocket, health probes, and the Prometheus metrics endpoint.
//
// A stage client opens GET /v1/stage, uploads its setlist as the first
// message, and then streams control messages (text JSON) and PCM audio
// (binary) while the server pushes position updates, control-law events,
// and finally the post-show report back over the same socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tightfive/stagetrack/internal/config"
	"github.com/tightfive/stagetrack/internal/observe"
	"github.com/tightfive/stagetrack/pkg/provider/stt"
)

const (
	defaultListenAddr = ":8080"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Options holds the server dependencies.
type Options struct {
	// Config is the application config; nil means built-in defaults.
	Config *config.Config

	// STT, when non-nil, attaches a server-side recognizer to every
	// stage session.
	STT stt.Provider

	// Metrics records instrumentation. Defaults to the process-wide set.
	Metrics *observe.Metrics
}

// Server is the stagetrack HTTP server.
type Server struct {
	cfg     *config.Config
	stt     stt.Provider
	metrics *observe.Metrics
	httpSrv *http.Server
	ready   atomic.Bool
}

// New builds a Server with its routes registered. Call Run to serve.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Server{cfg: cfg, stt: opts.STT, metrics: metrics}

	mux := http.NewServeMux()
	newHealthHandler(HealthChecker{Name: "server", Check: s.readyCheck}).register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/stage", s.handleStage)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the server's root HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// readyCheck fails until Run has bound the listener and after shutdown
// begins, so load balancers stop routing new sessions during a roll.
func (s *Server) readyCheck(context.Context) error {
	if !s.ready.Load() {
		return errors.New("not accepting sessions")
	}
	return nil
}

// Run listens and serves until ctx is cancelled, then shuts down
// gracefully. In-flight stage sessions get shutdownTimeout to wind down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.httpSrv.Addr, err)
	}

	tlsCfg := s.cfg.Server.TLS
	s.ready.Store(true)
	slog.Info("server: listening",
		"addr", ln.Addr().String(),
		"tls", tlsCfg != nil,
		"recognizer", s.stt != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tlsCfg != nil {
			err = s.httpSrv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = s.httpSrv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		s.ready.Store(false)
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutCtx)
	})
	return g.Wait()
}
