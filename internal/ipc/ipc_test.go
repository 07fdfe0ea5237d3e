package ipc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu     sync.Mutex
	status SessionStatus
	cmds   []Command
	err    error
}

func (s *fakeSession) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSession) EnqueueCommand(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *fakeSession) commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.cmds...)
}

func TestHandlers(t *testing.T) {
	session := &fakeSession{status: SessionStatus{State: "idle", Backend: "software", Frames: 12}}
	e := NewServer(session)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantBody string
	}{
		{"status", http.MethodGet, "/status", "", http.StatusOK, `"frames": 12`},
		{"stop", http.MethodPost, "/stop", "", http.StatusOK, `"status":"ok"`},
		{"snapshot", http.MethodPost, "/snapshot", `{"path":"/tmp/out.png"}`, http.StatusOK, "snapshot queued"},
		{"snapshot without path", http.MethodPost, "/snapshot", `{}`, http.StatusBadRequest, "expected"},
		{"snapshot relative path", http.MethodPost, "/snapshot", `{"path":"out.png"}`, http.StatusBadRequest, "absolute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}

	assert.Equal(t, []Command{
		{Type: CommandStop},
		{Type: CommandSnapshot, Args: []string{"/tmp/out.png"}},
	}, session.commands())
}

func TestStopHandler_QueueFull(t *testing.T) {
	session := &fakeSession{err: errors.New("command queue full")}
	e := NewServer(session)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stop", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "queue full")
}

func TestClientOverUnixSocket(t *testing.T) {
	session := &fakeSession{status: SessionStatus{
		State:         "frame-in-flight",
		WaylandSocket: "wayland-1",
		Output:        OutputInfo{Crtc: 41, Width: 1920, Height: 1080},
	}}
	sock := filepath.Join(t.TempDir(), "drmcomp.sock")

	srv, err := Start(session, sock)
	require.NoError(t, err)
	defer srv.Close()

	c := NewClient(sock)
	defer c.Close()

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "wayland-1", status.WaylandSocket)
	assert.Equal(t, uint32(41), status.Output.Crtc)
	assert.Equal(t, 1920, status.Output.Width)

	require.NoError(t, c.Stop())

	resp, err := c.Snapshot("/tmp/shot.png")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	_, err = c.Snapshot("relative.png")
	assert.ErrorContains(t, err, "absolute")

	assert.Len(t, session.commands(), 2)
}

func TestServerClose_ReturnsWithOpenConnection(t *testing.T) {
	session := &fakeSession{status: SessionStatus{State: "idle"}}
	sock := filepath.Join(t.TempDir(), "drmcomp.sock")

	srv, err := Start(session, sock)
	require.NoError(t, err)

	// leave a kept-alive connection behind
	c := NewClient(sock)
	defer c.Close()
	_, err = c.Status()
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- srv.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(3 * shutdownTimeout):
		t.Fatal("Close did not return")
	}

	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err), "socket file removed")
}
