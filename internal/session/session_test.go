package session

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matjam/drmcomp/internal/ipc"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/scheduler"
	"github.com/matjam/drmcomp/internal/shell"
	"github.com/matjam/drmcomp/internal/swrender"
	"github.com/matjam/drmcomp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDisplay is a display with no clients; its descriptor never becomes
// readable.
type fakeDisplay struct {
	r, w    *os.File
	flushes int
}

func newFakeDisplay(t *testing.T) *fakeDisplay {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return &fakeDisplay{r: r, w: w}
}

func (d *fakeDisplay) EventFd() int        { return int(d.r.Fd()) }
func (d *fakeDisplay) Ready(revents int16) {}
func (d *fakeDisplay) FlushClients()       { d.flushes++ }
func (d *fakeDisplay) Socket() string      { return "wayland-test" }

func newHeadless(t *testing.T, sh *shell.Shell) (*Session, *fakeDisplay) {
	target, err := HeadlessTarget(16, 16, time.Millisecond)
	require.NoError(t, err)

	display := newFakeDisplay(t)
	s, err := New(Config{Tick: 50 * time.Millisecond, Background: render.Color{B: 1, A: 1}}, display, sh, target)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, display
}

func tickUntil(t *testing.T, s *Session, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not reached")
		require.NoError(t, s.Tick())
	}
}

func TestHeadlessSession_RendersOnTicks(t *testing.T) {
	s, display := newHeadless(t, shell.New(shell.NewWindowMap()))

	tickUntil(t, s, func() bool { return s.Scheduler().Frames() >= 3 })

	st := s.Status()
	assert.Equal(t, "headless", st.Backend)
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.HardwareAccel)
	assert.Equal(t, "wayland-test", st.WaylandSocket)
	assert.Equal(t, 16, st.Output.Width)
	assert.GreaterOrEqual(t, st.Frames, uint64(3))
	assert.Greater(t, display.flushes, 0)
}

func TestHeadlessSession_DrawsWindows(t *testing.T) {
	windows := shell.NewWindowMap()
	s, _ := newHeadless(t, shell.New(windows))

	buf := redSquare(t)

	surface := shell.NewSurface()
	surface.Attach(buf)
	windows.Insert(surface, types.Point{X: 2, Y: 2})

	start := s.Scheduler().Frames()
	tickUntil(t, s, func() bool { return s.Scheduler().Frames() > start })

	img := s.target.Backend.(*swrender.Renderer).Snapshot()
	r, g, b, _ := img.At(3, 3).RGBA()
	assert.Equal(t, color.RGBA{R: 255, A: 255}, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
	r, g, b, _ = img.At(10, 10).RGBA()
	assert.Equal(t, color.RGBA{B: 255, A: 255}, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})

	assert.NotNil(t, surface.Texture())
	assert.Equal(t, 1, s.Status().Windows)
}

func redSquare(t *testing.T) *shell.ShmBuffer {
	pool := make([]byte, 4*4*4)
	for i := 0; i < len(pool); i += 4 {
		pool[i+2] = 0xff // red, little endian ARGB
		pool[i+3] = 0xff
	}
	buf, err := shell.NewShmBuffer(pool, 0, 4, 4, 16, shell.ShmFormatARGB8888)
	require.NoError(t, err)
	return buf
}

func rgbAt(img image.Image, x, y int) color.RGBA {
	r, g, b, _ := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}
}

func TestHeadlessSession_DrawsCommittedToplevel(t *testing.T) {
	sh := shell.New(shell.NewWindowMap())
	s, _ := newHeadless(t, sh)

	surface := sh.CreateSurface()
	require.NoError(t, sh.SetToplevel(surface, "client"))
	sh.Attach(surface, redSquare(t))
	var doneAt []uint32
	sh.Frame(surface, func(ms uint32) { doneAt = append(doneAt, ms) })
	sh.Commit(surface)

	start := s.Scheduler().Frames()
	tickUntil(t, s, func() bool { return s.Scheduler().Frames() > start })

	img := s.target.Backend.(*swrender.Renderer).Snapshot()
	assert.Equal(t, color.RGBA{R: 255, A: 255}, rgbAt(img, 0, 0), "first window at the origin")
	assert.Equal(t, color.RGBA{R: 255, A: 255}, rgbAt(img, 3, 3))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, rgbAt(img, 4, 4))
	assert.Equal(t, 1, s.Status().Windows)
	assert.Len(t, doneAt, 1, "frame callback sent after the frame")

	sh.DestroySurface(surface)
	start = s.Scheduler().Frames()
	tickUntil(t, s, func() bool { return s.Scheduler().Frames() > start })
	img = s.target.Backend.(*swrender.Renderer).Snapshot()
	assert.Equal(t, color.RGBA{B: 255, A: 255}, rgbAt(img, 0, 0))
	assert.Equal(t, 0, s.Status().Windows)
}

func TestSession_StopCommand(t *testing.T) {
	s, _ := newHeadless(t, shell.New(shell.NewWindowMap()))

	require.NoError(t, s.EnqueueCommand(ipc.Command{Type: ipc.CommandStop}))
	assert.False(t, s.Stopped())
	require.NoError(t, s.Tick())
	assert.True(t, s.Stopped())
}

func TestSession_RunReturnsAfterStop(t *testing.T) {
	s, _ := newHeadless(t, shell.New(shell.NewWindowMap()))
	require.NoError(t, s.EnqueueCommand(ipc.Command{Type: ipc.CommandStop}))
	assert.NoError(t, s.Run())
}

func TestSession_SnapshotCommand(t *testing.T) {
	s, _ := newHeadless(t, shell.New(shell.NewWindowMap()))
	tickUntil(t, s, func() bool { return s.Scheduler().Frames() >= 1 })

	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, s.EnqueueCommand(ipc.Command{Type: ipc.CommandSnapshot, Args: []string{path}}))
	require.NoError(t, s.Tick())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_QueueFull(t *testing.T) {
	s, _ := newHeadless(t, shell.New(shell.NewWindowMap()))

	var err error
	for i := 0; i < cap(s.cmds)+1; i++ {
		err = s.EnqueueCommand(ipc.Command{Type: ipc.CommandStatus})
	}
	assert.ErrorIs(t, err, ErrQueueFull)
}

type failingBackend struct {
	*swrender.Renderer
	fail bool
}

func (b *failingBackend) BeginFrame() (render.Frame, error) {
	if b.fail {
		return nil, errors.New("device lost")
	}
	return b.Renderer.BeginFrame()
}

func TestSession_RenderFailureIsFatal(t *testing.T) {
	target, err := HeadlessTarget(8, 8, time.Millisecond)
	require.NoError(t, err)
	backend := &failingBackend{Renderer: target.Backend.(*swrender.Renderer)}
	target.Backend = backend

	s, err := New(Config{Tick: 50 * time.Millisecond}, newFakeDisplay(t), shell.New(shell.NewWindowMap()), target)
	require.NoError(t, err)
	defer s.Close()

	backend.fail = true
	deadline := time.Now().Add(2 * time.Second)
	for err == nil && time.Now().Before(deadline) {
		err = s.Tick()
	}

	var fault *scheduler.DeviceFaultError
	require.ErrorAs(t, err, &fault)
	assert.ErrorContains(t, err, "device lost")
	assert.Equal(t, scheduler.Faulted, s.Scheduler().State())
}

type countingSource struct {
	handler scheduler.FlipHandler
}

func (c *countingSource) Fd() int             { return -1 }
func (c *countingSource) Ready(revents int16) {}

func TestFlipHandler_PageFlippedBeforeRender(t *testing.T) {
	var order []string
	sched := scheduler.New(func() error {
		order = append(order, "render")
		return nil
	})
	h := &flipHandler{sched: sched, pageFlipped: func() { order = append(order, "flipped") }}

	h.Flip(41, 7, 16*time.Millisecond)
	assert.Equal(t, []string{"flipped", "render"}, order)
	assert.Equal(t, uint32(7), sched.LastSequence())

	h.Error(errors.New("hangup"))
	h.Flip(41, 8, 16*time.Millisecond)
	assert.Equal(t, []string{"flipped", "render"}, order, "faulted scheduler ignores flips")
}

func TestNew_RequiresBackendAndFlipSource(t *testing.T) {
	display := newFakeDisplay(t)

	_, err := New(Config{}, display, shell.New(shell.NewWindowMap()), Target{})
	assert.Error(t, err)

	target, err := HeadlessTarget(8, 8, time.Millisecond)
	require.NoError(t, err)
	target.NewFlipSource = nil
	_, err = New(Config{}, display, shell.New(shell.NewWindowMap()), target)
	assert.Error(t, err)

	target.NewFlipSource = func(h scheduler.FlipHandler) (FlipSource, error) {
		return &countingSource{handler: h}, errors.New("no timer")
	}
	_, err = New(Config{}, display, shell.New(shell.NewWindowMap()), target)
	assert.ErrorContains(t, err, "no timer")
}
