package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// StaticServer serves a directory over HTTP on the loopback interface.
type StaticServer struct {
	name   string
	root   string
	logger *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewStaticServer creates a StaticServer for root.
func NewStaticServer(name, root string, logger *slog.Logger) *StaticServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticServer{
		name:   name,
		root:   root,
		logger: logger.With("server", name),
	}
}

// Root returns the served directory.
func (s *StaticServer) Root() string {
	return s.root
}

// OnStart binds 127.0.0.1:port and serves in the background.
func (s *StaticServer) OnStart(_ context.Context, port int, _ []string) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("static root %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static root %s is not a directory", s.root)
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           http.FileServer(http.Dir(s.root)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Static server failed", "error", err)
		}
	}()

	s.logger.Info("Serving static files", "root", s.root, "addr", addr)
	return nil
}

// OnStop shuts the listener down.
func (s *StaticServer) OnStop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown static server %s: %w", s.name, err)
	}
	return nil
}
