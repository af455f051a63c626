package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smsh73/AAA/pkg/config"
	"github.com/smsh73/AAA/pkg/logger"
)

// Server serves the router and owns the lifetime of websocket log streams
// http.Server.Shutdown 은 hijack된 연결을 기다리지도 끊지도 않으므로 스트림은 여기서 직접 관리
type Server struct {
	http   *http.Server
	addr   string
	logger *logger.Logger

	streams     context.Context
	stopStreams context.CancelFunc
	active      sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server listening on cfg.Port once started
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	streams, stop := context.WithCancel(context.Background())
	s := &Server{
		addr:        ":" + cfg.Port,
		logger:      log.Module("api"),
		streams:     streams,
		stopStreams: stop,
	}
	s.http = &http.Server{
		Handler:           s.trackStreams(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout 없음: 로그 스트림은 프레임마다 자체 write deadline 사용
		IdleTimeout: 2 * time.Minute,
	}
	s.http.RegisterOnShutdown(stop)
	return s
}

// trackStreams ties websocket requests to the server lifetime
func (s *Server) trackStreams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		s.active.Add(1)
		defer s.active.Done()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		release := context.AfterFunc(s.streams, cancel)
		defer release()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start listens on the configured port and serves until Shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln; it returns nil after a clean Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.WithField("addr", ln.Addr().String()).Info("API server listening")

	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

// Addr returns the bound address, or the configured one before Serve
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections, drains in-flight requests and closes open log streams
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	err := s.http.Shutdown(ctx)

	drained := make(chan struct{})
	go func() {
		s.active.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	if err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}
