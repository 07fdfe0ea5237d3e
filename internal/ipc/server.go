package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/matjam/drmcomp/internal/middleware"
	"github.com/spf13/viper"
)

const shutdownTimeout = 2 * time.Second

// SocketPath is the control socket: control_socket from the config, or
// drmcomp.sock in XDG_RUNTIME_DIR.
func SocketPath() string {
	if p := viper.GetString("control_socket"); p != "" {
		return p
	}
	sockDir := os.Getenv("XDG_RUNTIME_DIR")
	if sockDir == "" {
		sockDir = os.TempDir()
	}
	return filepath.Join(sockDir, "drmcomp.sock")
}

// NewServer returns the echo instance serving the control routes.
func NewServer(session SessionInterface) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.CharmLog())

	RegisterRoutes(e, session)
	return e
}

// Server is the control server listening on a unix socket.
type Server struct {
	e    *echo.Echo
	srv  *http.Server
	path string
	done chan struct{}
}

// Start listens on sockPath and serves in the background. A stale socket
// file from an earlier run is replaced.
func Start(session SessionInterface, sockPath string) (*Server, error) {
	if _, err := os.Stat(sockPath); err == nil {
		_ = os.Remove(sockPath)
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", sockPath, err)
	}

	e := NewServer(session)
	e.Listener = listener

	s := &Server{e: e, srv: new(http.Server), path: sockPath, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := e.StartServer(s.srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Socket server error: %v", err)
		}
	}()

	log.Infof("Control socket: %s", sockPath)
	return s, nil
}

func (s *Server) Path() string {
	return s.path
}

// Close stops the server, waiting up to shutdownTimeout for requests in
// flight, and removes the socket file.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	if err != nil {
		err = s.srv.Close()
	}
	<-s.done
	_ = os.Remove(s.path)
	return err
}
