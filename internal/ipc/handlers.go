package ipc

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/matjam/drmcomp"
	"github.com/spf13/viper"
)

// GET /status
func statusHandler(s SessionInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSONPretty(http.StatusOK, StatusResponse{
			Status:        "ok",
			Message:       "drmcomp is running",
			Version:       strings.Trim(drmcomp.Version, "\n\r "),
			PID:           os.Getpid(),
			Socket:        SocketPath(),
			Config:        viper.ConfigFileUsed(),
			SessionStatus: s.Status(),
		}, "  ")
	}
}

// POST /stop
func stopHandler(s SessionInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.EnqueueCommand(Command{Type: CommandStop}); err != nil {
			return c.JSON(http.StatusServiceUnavailable, Response{Status: "error", Error: err.Error()})
		}
		return c.JSON(http.StatusOK, Response{Status: "ok"})
	}
}

// POST /snapshot
func snapshotHandler(s SessionInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req SnapshotRequest
		if err := c.Bind(&req); err != nil || req.Path == "" {
			return c.JSON(http.StatusBadRequest, Response{Status: "error", Error: "expected {\"path\": \"file.png\"}"})
		}
		if !filepath.IsAbs(req.Path) {
			return c.JSON(http.StatusBadRequest, Response{Status: "error", Error: "snapshot path must be absolute"})
		}

		if err := s.EnqueueCommand(Command{Type: CommandSnapshot, Args: []string{req.Path}}); err != nil {
			return c.JSON(http.StatusServiceUnavailable, Response{Status: "error", Error: err.Error()})
		}
		return c.JSON(http.StatusOK, Response{Status: "ok", Message: "snapshot queued"})
	}
}
