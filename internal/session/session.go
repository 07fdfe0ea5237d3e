// Package session runs the compositor: one goroutine owning the display,
// the renderer and the window stack, blocking only in the event loop.
package session

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/matjam/drmcomp/internal/compositor"
	"github.com/matjam/drmcomp/internal/eventloop"
	"github.com/matjam/drmcomp/internal/ipc"
	"github.com/matjam/drmcomp/internal/render"
	"github.com/matjam/drmcomp/internal/scheduler"
	"github.com/matjam/drmcomp/internal/shell"
)

const DefaultTick = 16 * time.Millisecond

var ErrQueueFull = errors.New("command queue full")

// Display is the protocol side the session services every tick.
type Display interface {
	EventFd() int
	Ready(revents int16)
	FlushClients()
	Socket() string
}

// FlipSource reports flip completions through the handler it was created
// with once its descriptor is readable.
type FlipSource interface {
	Fd() int
	Ready(revents int16)
}

// Target is an output the session renders to.
type Target struct {
	Name     string
	Backend  render.Backend
	Importer render.ImageImporter // nil when client GPU buffers cannot be sampled
	Output   ipc.OutputInfo

	// NewFlipSource creates the completion source, delivering to h.
	NewFlipSource func(h scheduler.FlipHandler) (FlipSource, error)
	// PageFlipped is called before each render pass triggered by a flip.
	PageFlipped func()
	// Close releases the target. May be nil.
	Close func()
}

type Config struct {
	Tick       time.Duration
	Background render.Color
}

type Session struct {
	mu     sync.Mutex
	status ipc.SessionStatus
	cmds   chan ipc.Command

	cfg     Config
	display Display
	target  Target
	shell   *shell.Shell
	comp    *compositor.Compositor
	sched   *scheduler.Scheduler
	loop    *eventloop.Loop
	flips   FlipSource
	stopped bool
}

func New(cfg Config, display Display, sh *shell.Shell, target Target) (*Session, error) {
	if target.Backend == nil {
		return nil, errors.New("session target has no backend")
	}
	if target.NewFlipSource == nil {
		return nil, errors.New("session target has no flip source")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}

	s := &Session{
		cmds:    make(chan ipc.Command, 16),
		cfg:     cfg,
		display: display,
		target:  target,
		shell:   sh,
		loop:    eventloop.New(),
	}
	s.comp = compositor.New(target.Backend, sh.Windows(), target.Importer, cfg.Background)
	s.sched = scheduler.New(s.renderFrame)

	flips, err := target.NewFlipSource(&flipHandler{sched: s.sched, pageFlipped: target.PageFlipped})
	if err != nil {
		return nil, fmt.Errorf("flip source: %w", err)
	}
	s.flips = flips

	// protocol first so client requests land before the frame they affect
	s.loop.Add(display.EventFd(), display.Ready)
	s.loop.Add(flips.Fd(), flips.Ready)

	s.status = ipc.SessionStatus{
		State:         s.sched.State().String(),
		Backend:       target.Name,
		HardwareAccel: target.Importer != nil,
		WaylandSocket: display.Socket(),
		Output:        target.Output,
	}
	return s, nil
}

func (s *Session) renderFrame() error {
	stats, err := s.comp.RenderFrame()
	if err != nil {
		return err
	}
	if stats.Dropped > 0 {
		log.Debugf("dropped %d buffers this frame", stats.Dropped)
	}
	s.shell.SendFrameCallbacks(uint32(time.Now().UnixMilli()))
	return nil
}

// Run draws the initial frame, which performs the first modeset on hardware
// targets, and then loops until stopped or the device faults.
func (s *Session) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.renderFrame(); err != nil {
		return fmt.Errorf("initial frame: %w", err)
	}
	log.Infof("compositing on %s output %dx%d", s.target.Name, s.target.Output.Width, s.target.Output.Height)

	for !s.stopped {
		if err := s.Tick(); err != nil {
			return err
		}
	}
	log.Info("Compositor stopped.")
	return nil
}

// Tick runs one iteration: reactor dispatch, client flush, window pruning,
// then control commands.
func (s *Session) Tick() error {
	if err := s.loop.Dispatch(s.cfg.Tick); err != nil {
		return err
	}
	if err := s.sched.Fault(); err != nil {
		return err
	}

	s.display.FlushClients()
	s.shell.Windows().Refresh()
	s.drainCommands()
	s.publishStatus()
	return nil
}

func (s *Session) Stopped() bool {
	return s.stopped
}

func (s *Session) Scheduler() *scheduler.Scheduler {
	return s.sched
}

// Status returns the snapshot published after the last tick. Safe from any
// goroutine.
func (s *Session) Status() ipc.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// EnqueueCommand queues a control command for the next tick. Safe from any
// goroutine; never blocks.
func (s *Session) EnqueueCommand(cmd ipc.Command) error {
	select {
	case s.cmds <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Session) drainCommands() {
	for {
		select {
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		default:
			return
		}
	}
}

func (s *Session) handleCommand(cmd ipc.Command) {
	switch cmd.Type {
	case ipc.CommandStop:
		log.Info("Stopping compositor...")
		s.stopped = true
	case ipc.CommandSnapshot:
		if len(cmd.Args) != 1 {
			log.Warnf("snapshot: expected one path, got %d", len(cmd.Args))
			return
		}
		if err := s.snapshot(cmd.Args[0]); err != nil {
			log.Warnf("snapshot: %v", err)
			return
		}
		log.Infof("Saved snapshot to %s", cmd.Args[0])
	case ipc.CommandStatus:
		// status is served from the published snapshot
	default:
		log.Warnf("unknown command %q", cmd.Type)
	}
}

type snapshotter interface {
	SavePNG(path string) error
}

func (s *Session) snapshot(path string) error {
	sn, ok := s.target.Backend.(snapshotter)
	if !ok {
		return fmt.Errorf("%s backend cannot take snapshots", s.target.Name)
	}
	return sn.SavePNG(path)
}

func (s *Session) publishStatus() {
	st := ipc.SessionStatus{
		State:         s.sched.State().String(),
		Backend:       s.target.Name,
		HardwareAccel: s.target.Importer != nil,
		WaylandSocket: s.display.Socket(),
		Frames:        s.sched.Frames(),
		LastSequence:  s.sched.LastSequence(),
		FrameInterval: s.sched.FrameInterval().String(),
		Windows:       s.shell.Windows().Len(),
		Output:        s.target.Output,
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Close releases the flip source and the target.
func (s *Session) Close() {
	if c, ok := s.flips.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Debugf("close flip source: %v", err)
		}
	}
	if s.target.Close != nil {
		s.target.Close()
	}
}

// flipHandler feeds completions from the device into the scheduler.
type flipHandler struct {
	sched       *scheduler.Scheduler
	pageFlipped func()
}

func (h *flipHandler) Flip(crtc, sequence uint32, sinceLast time.Duration) {
	if h.sched.State() == scheduler.Faulted {
		return
	}
	if h.pageFlipped != nil {
		h.pageFlipped()
	}
	if err := h.sched.Flip(crtc, sequence, sinceLast); errors.Is(err, scheduler.ErrReentrantFlip) {
		log.Warnf("crtc %d: %v", crtc, err)
	}
}

func (h *flipHandler) Error(err error) {
	h.sched.Error(err)
}
